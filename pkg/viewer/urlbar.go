package viewer

import (
	"runtime"

	"github.com/teamchong/termweb/pkg/termio"
)

// Clipboard abstracts the platform clipboard. Failures are swallowed by
// callers; clipboard trouble is never worth interrupting the session.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(string) error
}

// URLAction is the outcome of feeding a key to the URL bar.
type URLAction int

const (
	URLNone URLAction = iota
	// URLChanged means the text, cursor, or selection moved; redraw.
	URLChanged
	// URLCommit means Enter was pressed; navigate to Value.
	URLCommit
	// URLCancel means Esc was pressed; leave URL editing.
	URLCancel
)

// URLBar is the text editor backing the toolbar's address field: a rune
// buffer with cursor, anchor-based selection, and a horizontal scroll
// offset so long URLs stay visible around the cursor.
type URLBar struct {
	value  []rune
	cursor int
	// anchor is the fixed end of the selection, -1 when there is none.
	anchor  int
	focused bool
	scroll  int
}

// NewURLBar creates an empty, unfocused bar.
func NewURLBar() *URLBar { return &URLBar{anchor: -1} }

func (u *URLBar) Value() string { return string(u.value) }

// SetValue replaces the text, clears the selection, and moves the
// cursor to the end.
func (u *URLBar) SetValue(s string) {
	u.value = []rune(s)
	u.cursor = len(u.value)
	u.anchor = -1
}

func (u *URLBar) Focused() bool { return u.focused }

// Focus enters URL editing and selects everything, the way browsers do
// on Ctrl+L.
func (u *URLBar) Focus() {
	u.focused = true
	u.SelectAll()
}

func (u *URLBar) Blur() {
	u.focused = false
	u.anchor = -1
}

// Cursor returns the rune index of the cursor.
func (u *URLBar) Cursor() int { return u.cursor }

// Selection returns the selected range [start, end), ok=false when
// nothing is selected.
func (u *URLBar) Selection() (start, end int, ok bool) {
	if u.anchor < 0 || u.anchor == u.cursor {
		return 0, 0, false
	}
	if u.anchor < u.cursor {
		return u.anchor, u.cursor, true
	}
	return u.cursor, u.anchor, true
}

// SelectedText returns the selected run, empty when none.
func (u *URLBar) SelectedText() string {
	s, e, ok := u.Selection()
	if !ok {
		return ""
	}
	return string(u.value[s:e])
}

func (u *URLBar) SelectAll() {
	u.anchor = 0
	u.cursor = len(u.value)
}

// Insert replaces the selection (if any) with s.
func (u *URLBar) Insert(s string) {
	u.deleteSelection()
	runes := []rune(s)
	out := make([]rune, 0, len(u.value)+len(runes))
	out = append(out, u.value[:u.cursor]...)
	out = append(out, runes...)
	out = append(out, u.value[u.cursor:]...)
	u.value = out
	u.cursor += len(runes)
}

func (u *URLBar) deleteSelection() bool {
	s, e, ok := u.Selection()
	if !ok {
		u.anchor = -1
		return false
	}
	u.value = append(u.value[:s], u.value[e:]...)
	u.cursor = s
	u.anchor = -1
	return true
}

func (u *URLBar) backspace() {
	if u.deleteSelection() {
		return
	}
	if u.cursor > 0 {
		u.value = append(u.value[:u.cursor-1], u.value[u.cursor:]...)
		u.cursor--
	}
}

func (u *URLBar) del() {
	if u.deleteSelection() {
		return
	}
	if u.cursor < len(u.value) {
		u.value = append(u.value[:u.cursor], u.value[u.cursor+1:]...)
	}
}

// moveTo moves the cursor, extending or collapsing the selection.
func (u *URLBar) moveTo(pos int, extend bool) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(u.value) {
		pos = len(u.value)
	}
	if extend {
		if u.anchor < 0 {
			u.anchor = u.cursor
		}
	} else {
		u.anchor = -1
	}
	u.cursor = pos
}

// isWordRune defines word boundaries: runs of [A-Za-z0-9] separated by
// anything else.
func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func (u *URLBar) wordLeft() int {
	i := u.cursor
	for i > 0 && !isWordRune(u.value[i-1]) {
		i--
	}
	for i > 0 && isWordRune(u.value[i-1]) {
		i--
	}
	return i
}

func (u *URLBar) wordRight() int {
	i := u.cursor
	for i < len(u.value) && !isWordRune(u.value[i]) {
		i++
	}
	for i < len(u.value) && isWordRune(u.value[i]) {
		i++
	}
	return i
}

// HandleKey feeds one key to the bar and reports what happened. clip may
// be nil to disable cut/copy/paste.
func (u *URLBar) HandleKey(k termio.Key, clip Clipboard) URLAction {
	extend := k.Mod.Contains(termio.ModShift)
	word := k.Mod.Contains(termio.ModAlt) || k.Mod.Contains(termio.ModCtrl)
	// Cmd+Arrow on macOS is Home/End.
	home := k.Mod.Contains(termio.ModMeta) && runtime.GOOS == "darwin"

	switch k.Code {
	case termio.KeyEnter:
		return URLCommit
	case termio.KeyEscape:
		return URLCancel
	case termio.KeyBackspace:
		u.backspace()
		return URLChanged
	case termio.KeyDelete:
		u.del()
		return URLChanged
	case termio.KeyLeft:
		switch {
		case home:
			u.moveTo(0, extend)
		case word:
			u.moveTo(u.wordLeft(), extend)
		default:
			u.moveTo(u.cursor-1, extend)
		}
		return URLChanged
	case termio.KeyRight:
		switch {
		case home:
			u.moveTo(len(u.value), extend)
		case word:
			u.moveTo(u.wordRight(), extend)
		default:
			u.moveTo(u.cursor+1, extend)
		}
		return URLChanged
	case termio.KeyHome:
		u.moveTo(0, extend)
		return URLChanged
	case termio.KeyEnd:
		u.moveTo(len(u.value), extend)
		return URLChanged
	}

	if k.Code != termio.KeyRune {
		return URLNone
	}

	// Editing chords: Ctrl on Linux, Cmd on macOS; accept both.
	if k.Mod.Contains(termio.ModCtrl) || k.Mod.Contains(termio.ModMeta) {
		switch k.Rune {
		case 'a', 'A':
			u.SelectAll()
			return URLChanged
		case 'c', 'C':
			if clip != nil && u.SelectedText() != "" {
				_ = clip.WriteAll(u.SelectedText())
			}
			return URLNone
		case 'x', 'X':
			if sel := u.SelectedText(); sel != "" {
				if clip != nil {
					_ = clip.WriteAll(sel)
				}
				u.deleteSelection()
				return URLChanged
			}
			return URLNone
		case 'v', 'V':
			if clip != nil {
				if s, err := clip.ReadAll(); err == nil && s != "" {
					u.Insert(s)
					return URLChanged
				}
			}
			return URLNone
		}
		return URLNone
	}

	u.Insert(string(k.Rune))
	return URLChanged
}

// Paste inserts pasted text (bracketed paste bypasses key handling).
func (u *URLBar) Paste(s string) {
	u.Insert(s)
}

// VisibleWindow returns the rune range [start, end) to draw in a field
// that fits width runes, scrolling so the cursor stays in view.
func (u *URLBar) VisibleWindow(width int) (start, end int) {
	if width <= 0 {
		return 0, 0
	}
	if u.cursor < u.scroll {
		u.scroll = u.cursor
	}
	if u.cursor > u.scroll+width {
		u.scroll = u.cursor - width
	}
	if u.scroll > len(u.value) {
		u.scroll = len(u.value)
	}
	end = u.scroll + width
	if end > len(u.value) {
		end = len(u.value)
	}
	return u.scroll, end
}
