package viewer

import (
	"unicode"

	"github.com/chromedp/cdproto/input"

	"github.com/teamchong/termweb/pkg/termio"
)

// domKey describes how a key appears to the DOM: its KeyboardEvent code
// and the legacy Windows virtual key code Chrome still keys shortcuts
// off. The table is fixed so dispatch is identical on every platform.
type domKey struct {
	key  string
	code string
	vk   int64
}

var specialKeys = map[termio.KeyCode]domKey{
	termio.KeyEnter:     {"Enter", "Enter", 13},
	termio.KeyTab:       {"Tab", "Tab", 9},
	termio.KeyEscape:    {"Escape", "Escape", 27},
	termio.KeyBackspace: {"Backspace", "Backspace", 8},
	termio.KeyDelete:    {"Delete", "Delete", 46},
	termio.KeyInsert:    {"Insert", "Insert", 45},
	termio.KeyUp:        {"ArrowUp", "ArrowUp", 38},
	termio.KeyDown:      {"ArrowDown", "ArrowDown", 40},
	termio.KeyLeft:      {"ArrowLeft", "ArrowLeft", 37},
	termio.KeyRight:     {"ArrowRight", "ArrowRight", 39},
	termio.KeyHome:      {"Home", "Home", 36},
	termio.KeyEnd:       {"End", "End", 35},
	termio.KeyPageUp:    {"PageUp", "PageUp", 33},
	termio.KeyPageDown:  {"PageDown", "PageDown", 34},
	termio.KeyF1:        {"F1", "F1", 112},
	termio.KeyF2:        {"F2", "F2", 113},
	termio.KeyF3:        {"F3", "F3", 114},
	termio.KeyF4:        {"F4", "F4", 115},
	termio.KeyF5:        {"F5", "F5", 116},
	termio.KeyF6:        {"F6", "F6", 117},
	termio.KeyF7:        {"F7", "F7", 118},
	termio.KeyF8:        {"F8", "F8", 119},
	termio.KeyF9:        {"F9", "F9", 120},
	termio.KeyF10:       {"F10", "F10", 121},
	termio.KeyF11:       {"F11", "F11", 122},
	termio.KeyF12:       {"F12", "F12", 123},
}

// punctuation on the US layout: base (unshifted) rune to DOM code and
// virtual key.
var punctKeys = map[rune]domKey{
	' ':  {" ", "Space", 32},
	';':  {";", "Semicolon", 186},
	'=':  {"=", "Equal", 187},
	',':  {",", "Comma", 188},
	'-':  {"-", "Minus", 189},
	'.':  {".", "Period", 190},
	'/':  {"/", "Slash", 191},
	'`':  {"`", "Backquote", 192},
	'[':  {"[", "BracketLeft", 219},
	'\\': {"\\", "Backslash", 220},
	']':  {"]", "BracketRight", 221},
	'\'': {"'", "Quote", 222},
}

// shifted maps a shifted US-layout rune to its base key.
var shifted = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'_': '-', '+': '=', '{': '[', '}': ']', '|': '\\',
	':': ';', '"': '\'', '<': ',', '>': '.', '?': '/', '~': '`',
}

// KeyEventFor translates a decoded terminal key to a single
// Input.dispatchKeyEvent. Shift never changes the reported code, only
// the text. Returns nil for keys with no DOM equivalent.
func KeyEventFor(k termio.Key) *input.DispatchKeyEventParams {
	mods := cdpModifiers(k.Mod)

	if k.Code != termio.KeyRune {
		dk, ok := specialKeys[k.Code]
		if !ok {
			return nil
		}
		p := &input.DispatchKeyEventParams{
			Type:                  input.KeyDown,
			Key:                   dk.key,
			Code:                  dk.code,
			WindowsVirtualKeyCode: dk.vk,
			NativeVirtualKeyCode:  dk.vk,
			Modifiers:             mods,
		}
		switch k.Code {
		case termio.KeyEnter:
			p.Text = "\r"
		case termio.KeyTab:
			p.Text = "\t"
		}
		return p
	}

	r := k.Rune
	text := string(r)

	base := r
	if b, ok := shifted[r]; ok {
		base = b
		mods |= input.ModifierShift
	} else if unicode.IsUpper(r) {
		base = unicode.ToLower(r)
		mods |= input.ModifierShift
	}

	var dk domKey
	switch {
	case base >= 'a' && base <= 'z':
		dk = domKey{text, "Key" + string(unicode.ToUpper(base)), int64(unicode.ToUpper(base))}
	case base >= '0' && base <= '9':
		dk = domKey{text, "Digit" + string(base), int64(base)}
	default:
		if pk, ok := punctKeys[base]; ok {
			dk = domKey{text, pk.code, pk.vk}
		} else {
			// Non-layout rune (IME input, non-Latin): text only.
			dk = domKey{text, "", 0}
		}
	}

	if int64(mods)&2 != 0 {
		// Ctrl combinations are shortcuts, not text insertion.
		text = ""
	}

	return &input.DispatchKeyEventParams{
		Type:                  input.KeyDown,
		Key:                   dk.key,
		Code:                  dk.code,
		Text:                  text,
		WindowsVirtualKeyCode: dk.vk,
		NativeVirtualKeyCode:  dk.vk,
		Modifiers:             mods,
	}
}
