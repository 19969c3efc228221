package viewer

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchong/termweb/pkg/termio"
)

func TestLetterKey(t *testing.T) {
	p := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'a'})
	require.NotNil(t, p)
	assert.Equal(t, "a", p.Key)
	assert.Equal(t, "KeyA", p.Code)
	assert.Equal(t, "a", p.Text)
	assert.Equal(t, int64(65), p.WindowsVirtualKeyCode)
	assert.Zero(t, p.Modifiers)
}

func TestShiftDoesNotChangeCode(t *testing.T) {
	lower := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'a'})
	upper := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'A'})
	require.NotNil(t, upper)
	assert.Equal(t, lower.Code, upper.Code)
	assert.Equal(t, lower.WindowsVirtualKeyCode, upper.WindowsVirtualKeyCode)
	assert.Equal(t, "A", upper.Text)
	assert.Equal(t, input.ModifierShift, upper.Modifiers)
}

func TestShiftedPunctuationKeepsBaseCode(t *testing.T) {
	p := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: '?'})
	require.NotNil(t, p)
	assert.Equal(t, "Slash", p.Code)
	assert.Equal(t, int64(191), p.WindowsVirtualKeyCode)
	assert.Equal(t, "?", p.Text)
	assert.Equal(t, input.ModifierShift, p.Modifiers)
}

func TestDigitsAndSpace(t *testing.T) {
	d := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: '7'})
	require.NotNil(t, d)
	assert.Equal(t, "Digit7", d.Code)
	assert.Equal(t, int64('7'), d.WindowsVirtualKeyCode)

	s := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: ' '})
	require.NotNil(t, s)
	assert.Equal(t, "Space", s.Code)
	assert.Equal(t, int64(32), s.WindowsVirtualKeyCode)
}

func TestSpecialKeys(t *testing.T) {
	enter := KeyEventFor(termio.Key{Code: termio.KeyEnter})
	require.NotNil(t, enter)
	assert.Equal(t, "Enter", enter.Key)
	assert.Equal(t, "\r", enter.Text)
	assert.Equal(t, int64(13), enter.WindowsVirtualKeyCode)

	up := KeyEventFor(termio.Key{Code: termio.KeyUp})
	require.NotNil(t, up)
	assert.Equal(t, "ArrowUp", up.Key)
	assert.Empty(t, up.Text)
	assert.Equal(t, int64(38), up.WindowsVirtualKeyCode)

	f5 := KeyEventFor(termio.Key{Code: termio.KeyF5})
	require.NotNil(t, f5)
	assert.Equal(t, int64(116), f5.WindowsVirtualKeyCode)
}

func TestModifierMask(t *testing.T) {
	p := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 's', Mod: termio.ModCtrl})
	require.NotNil(t, p)
	assert.Equal(t, input.ModifierCtrl, p.Modifiers)
	assert.Empty(t, p.Text, "ctrl chords do not insert text")

	p = KeyEventFor(termio.Key{Code: termio.KeyLeft, Mod: termio.ModAlt | termio.ModShift})
	require.NotNil(t, p)
	assert.Equal(t, input.ModifierAlt|input.ModifierShift, p.Modifiers)
}

func TestNonLayoutRuneStillTypes(t *testing.T) {
	p := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'é'})
	require.NotNil(t, p)
	assert.Equal(t, "é", p.Text)
	assert.Empty(t, p.Code)
}

func TestDeterministicAcrossCalls(t *testing.T) {
	a := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'x', Mod: termio.ModAlt})
	b := KeyEventFor(termio.Key{Code: termio.KeyRune, Rune: 'x', Mod: termio.ModAlt})
	assert.Equal(t, a, b)
}
