package viewer

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/teamchong/termweb/pkg/termio"
)

// handleInput routes one decoded terminal event by mode.
func (v *Viewer) handleInput(ctx context.Context, in termio.Input) {
	v.log.Debug("input", "kind", in.Kind, "key", in.Key, "mouse", in.Mouse, "mode", v.mode)
	statInputEvents.Add(1)
	switch in.Kind {
	case termio.InputKey:
		v.handleKey(ctx, in.Key)
	case termio.InputMouse:
		v.handleMouse(ctx, in.Mouse)
	case termio.InputPaste:
		v.handlePaste(ctx, in.Paste)
	}
}

func (v *Viewer) handlePaste(ctx context.Context, text string) {
	switch v.mode {
	case ModeURLPrompt:
		if v.toolbar != nil {
			v.toolbar.URL().Paste(text)
			v.toolbar.MarkDirty()
		}
	case ModeDialog:
		if v.dialog != nil && v.dialog.prompt {
			v.dialog.text.Paste(text)
			v.showDialogOverlay()
		}
	default:
		sctx, cancel := shortCtx(ctx)
		defer cancel()
		if err := v.session.InsertText(sctx, text); err != nil {
			v.log.Debug("paste dispatch failed", "err", err)
		}
	}
}

func (v *Viewer) handleKey(ctx context.Context, k termio.Key) {
	if !v.opts.DisableHotkeys && v.handleGlobalHotkey(ctx, k) {
		return
	}

	switch v.mode {
	case ModeURLPrompt:
		v.handleURLPromptKey(ctx, k)
	case ModeHelp:
		if k.Code == termio.KeyEscape || k.Rune == '?' || k.Rune == 'q' {
			v.exitOverlay()
		}
	case ModeDialog:
		v.handleDialogKey(ctx, k)
	case ModeForm:
		v.handleFormKey(ctx, k)
	case ModeTextInput:
		v.handleTextInputKey(ctx, k)
	default:
		v.handleNormalKey(ctx, k)
	}
}

// handleGlobalHotkey intercepts the session-wide chords regardless of
// mode. Returns true when the key was consumed.
func (v *Viewer) handleGlobalHotkey(ctx context.Context, k termio.Key) bool {
	switch {
	case k.IsCtrl('q'), k.IsCtrl('w'), k.IsCtrl('c'):
		v.running = false
	case k.IsCtrl('l'):
		v.enterURLPrompt()
	case k.IsCtrl('r'):
		v.reload(ctx)
	case k.IsCtrl(']'):
		v.history(ctx, +1)
	case k.IsCtrl('.'):
		sctx, cancel := shortCtx(ctx)
		defer cancel()
		_ = v.session.StopLoading(sctx)
		v.isLoading = false
		v.refreshNavState(ctx)
	case k.IsCtrl('t'):
		// Tabs belong to the terminal multiplexer layer.
		v.setStatus("single-tab session")
	default:
		return false
	}
	return true
}

func (v *Viewer) handleNormalKey(ctx context.Context, k termio.Key) {
	// Ctrl+[ arrives as Escape; in Normal mode both mean history back.
	if k.Code == termio.KeyEscape {
		v.history(ctx, -1)
		return
	}
	if k.Mod == 0 && k.Code == termio.KeyRune {
		switch k.Rune {
		case 'f':
			v.enterForm(ctx)
			return
		case '?':
			v.enterHelp()
			return
		}
	}
	if k.IsCtrl('f') {
		v.enterForm(ctx)
		return
	}
	v.dispatchKeyToPage(ctx, k)
}

func (v *Viewer) dispatchKeyToPage(ctx context.Context, k termio.Key) {
	params := KeyEventFor(k)
	if params == nil {
		return
	}
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	if err := v.session.DispatchKey(sctx, params); err != nil {
		v.log.Debug("key dispatch failed", "err", err, "key", params.Key)
	}
}

func (v *Viewer) handleURLPromptKey(ctx context.Context, k termio.Key) {
	if v.toolbar == nil {
		v.mode = ModeNormal
		return
	}
	switch v.toolbar.URL().HandleKey(k, v.clip) {
	case URLCommit:
		target := normalizeURL(v.toolbar.URL().Value())
		v.exitURLPrompt()
		v.navigateTo(ctx, target)
	case URLCancel:
		v.exitURLPrompt()
		v.toolbar.SetURL(v.currentURL)
	case URLChanged:
		v.toolbar.MarkDirty()
	}
}

func (v *Viewer) handleDialogKey(ctx context.Context, k termio.Key) {
	if v.dialog == nil {
		v.mode = ModeNormal
		return
	}
	switch k.Code {
	case termio.KeyEnter:
		v.answerDialog(ctx, true)
		return
	case termio.KeyEscape:
		v.answerDialog(ctx, false)
		return
	}
	if v.dialog.prompt {
		if v.dialog.text.HandleKey(k, v.clip) == URLChanged {
			v.showDialogOverlay()
		}
	}
}

func (v *Viewer) handleFormKey(ctx context.Context, k termio.Key) {
	if v.form == nil {
		v.mode = ModeNormal
		return
	}
	switch {
	case k.Code == termio.KeyEscape:
		v.exitForm()
	case k.Code == termio.KeyTab && k.Mod.Contains(termio.ModShift):
		v.focusFormIndex(ctx, v.form.step(-1))
	case k.Code == termio.KeyTab:
		v.focusFormIndex(ctx, v.form.step(+1))
	case k.Code == termio.KeyEnter:
		v.activateFormElement(ctx)
	}
}

func (v *Viewer) handleTextInputKey(ctx context.Context, k termio.Key) {
	switch k.Code {
	case termio.KeyEscape:
		v.mode = ModeForm
		return
	case termio.KeyEnter:
		// Commit the field, then hand control back to form navigation.
		v.dispatchKeyToPage(ctx, k)
		v.mode = ModeForm
		return
	}
	v.dispatchKeyToPage(ctx, k)
}

func (v *Viewer) handleMouse(ctx context.Context, m termio.Mouse) {
	v.mapper.Observe(m)
	x, y := v.mapper.Normalize(m)
	v.cursorX, v.cursorY = x, y
	v.uiDirty = true

	if v.toolbar != nil && y < v.toolbarPx {
		v.handleToolbarMouse(ctx, m, x, y)
		return
	}

	if v.mode == ModeURLPrompt {
		// Clicking into the page leaves URL editing.
		if m.Kind == termio.MousePress {
			v.exitURLPrompt()
			v.toolbar.SetURL(v.currentURL)
		}
	}

	if v.toolbar != nil {
		v.toolbar.SetHover(ButtonNone)
		v.toolbar.SetActive(ButtonNone)
	}

	bx, by, ok := v.mapper.TerminalToBrowser(x, y)
	if !ok {
		return
	}
	v.bus.Record(m, bx, by)
}

func (v *Viewer) handleToolbarMouse(ctx context.Context, m termio.Mouse, x, y int) {
	tb := v.toolbar
	switch m.Kind {
	case termio.MouseMove, termio.MouseDrag:
		tb.SetHover(tb.HitTest(x, y))
	case termio.MousePress:
		if m.Button != termio.MouseLeft {
			return
		}
		if b := tb.HitTest(x, y); b != ButtonNone {
			tb.SetActive(b)
			return
		}
		if tb.HitURL(x, y) {
			v.enterURLPrompt()
		}
	case termio.MouseRelease:
		if m.Button != termio.MouseLeft {
			return
		}
		pressed := tb.HitTest(x, y)
		switch {
		case pressed == ButtonNone:
		case pressed == ButtonBack:
			v.history(ctx, -1)
		case pressed == ButtonForward:
			v.history(ctx, +1)
		case pressed == ButtonReload:
			if v.isLoading {
				sctx, cancel := shortCtx(ctx)
				_ = v.session.StopLoading(sctx)
				cancel()
				v.isLoading = false
				v.refreshNavState(ctx)
			} else {
				v.reload(ctx)
			}
		case pressed == ButtonClose:
			v.running = false
		}
		tb.SetActive(ButtonNone)
	}
}

// navigateTo drives Page.navigate. Navigation is a critical path:
// a timeout surfaces in the status line rather than being dropped.
func (v *Viewer) navigateTo(ctx context.Context, target string) {
	if target == "" {
		return
	}
	v.currentURL = target
	if v.toolbar != nil {
		v.toolbar.SetURL(target)
	}
	v.markLoading()
	if err := v.session.Navigate(ctx, target); err != nil {
		v.log.Info("navigate failed", "url", target, "err", err)
		v.setStatus("navigation failed: " + target)
		v.isLoading = false
	}
}

func (v *Viewer) reload(ctx context.Context) {
	v.markLoading()
	if err := v.session.Reload(ctx, false); err != nil {
		v.log.Info("reload failed", "err", err)
		v.setStatus("reload failed")
		v.isLoading = false
	}
}

func (v *Viewer) history(ctx context.Context, delta int) {
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	var err error
	if delta < 0 {
		err = v.session.GoBack(sctx)
	} else {
		err = v.session.GoForward(sctx)
	}
	if err != nil {
		v.log.Debug("history move failed", "err", err)
	}
}

func (v *Viewer) markLoading() {
	v.isLoading = true
	v.loadStart = time.Now()
	if v.toolbar != nil {
		v.toolbar.SetNavState(v.canBack, v.canForward, true)
	}
}

// normalizeURL fills in a scheme, treating schemeless input with no dot
// as a search.
func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "about:") {
		return s
	}
	if !strings.Contains(s, ".") || strings.ContainsRune(s, ' ') {
		return "https://duckduckgo.com/?q=" + url.QueryEscape(s)
	}
	return "https://" + s
}
