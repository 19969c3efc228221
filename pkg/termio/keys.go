package termio

// Mod is a bitmask of modifier keys attached to a key or mouse event.
type Mod uint8

const (
	ModShift Mod = 1 << iota
	ModAlt
	ModCtrl
	ModMeta
)

func (m Mod) Contains(o Mod) bool { return m&o == o }

// KeyCode identifies a non-printable key. Printable input carries
// KeyRune plus the decoded rune.
type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyEnter
	KeyTab
	KeyEscape
	KeyBackspace
	KeyDelete
	KeyInsert
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Key is a decoded keyboard event.
type Key struct {
	Code KeyCode
	// Rune is set when Code == KeyRune.
	Rune rune
	Mod  Mod
}

// IsCtrl reports whether the key is Ctrl plus the given letter
// (case-insensitive).
func (k Key) IsCtrl(letter rune) bool {
	return k.Code == KeyRune && k.Mod.Contains(ModCtrl) && !k.Mod.Contains(ModAlt) &&
		(k.Rune == letter || k.Rune == letter-'a'+'A')
}

// MouseKind distinguishes the mouse event variants.
type MouseKind int

const (
	MousePress MouseKind = iota
	MouseRelease
	MouseMove
	MouseDrag
	MouseWheel
)

// MouseButton numbering follows the SGR encoding: 0 left, 1 middle,
// 2 right. MouseButtonNone is reported for motion without buttons.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
	MouseButtonNone
)

// Mouse is a decoded SGR mouse event. X and Y are 0-indexed; they are
// cell coordinates under mode 1006 and pixel coordinates when the
// terminal honors mode 1016. The consumer decides which via geometry.
type Mouse struct {
	Kind   MouseKind
	Button MouseButton
	X, Y   int
	Mod    Mod
	// Wheel deltas; positive DY scrolls down.
	DX, DY int
}

// InputKind tags the Input variant.
type InputKind int

const (
	// InputNone means the input buffer is momentarily empty. Callers use
	// it to break out of the per-tick drain loop.
	InputNone InputKind = iota
	InputKey
	InputMouse
	InputPaste
)

// Input is one decoded terminal input event.
type Input struct {
	Kind  InputKind
	Key   Key
	Mouse Mouse
	Paste string
}
