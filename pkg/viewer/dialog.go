package viewer

// dialogState holds the open JavaScript dialog while the viewer is in
// Dialog mode. Prompt dialogs reuse the URL bar editor for their text
// field, seeded with the page's default.
type dialogState struct {
	kind    string
	message string
	prompt  bool
	text    *URLBar
}

func newDialogState(kind, message, defaultPrompt string) *dialogState {
	d := &dialogState{
		kind:    kind,
		message: message,
		prompt:  kind == "prompt",
		text:    NewURLBar(),
	}
	if d.prompt {
		d.text.SetValue(defaultPrompt)
		d.text.focused = true
	}
	return d
}

// PromptText is the text submitted when the dialog is accepted.
func (d *dialogState) PromptText() string {
	if !d.prompt {
		return ""
	}
	return d.text.Value()
}
