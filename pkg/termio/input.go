package termio

import (
	"bytes"
	"unicode/utf8"
)

// Parser decodes raw terminal bytes into Input events. It is fed whole
// read chunks and consumes them incrementally, holding back incomplete
// escape sequences until the next chunk arrives.
type Parser struct {
	buf []byte
	// inPaste is set between the bracketed-paste open and close marks.
	inPaste bool
	paste   bytes.Buffer
}

const (
	pasteOpen  = "\x1b[200~"
	pasteClose = "\x1b[201~"
)

// Feed appends a chunk of raw bytes read from the terminal.
func (p *Parser) Feed(data []byte) {
	p.buf = append(p.buf, data...)
}

// Pending reports whether undecoded bytes remain.
func (p *Parser) Pending() bool { return len(p.buf) > 0 }

// Next decodes and consumes the next event. It returns an Input with
// Kind InputNone when the buffer is empty or holds only an incomplete
// sequence.
func (p *Parser) Next() Input {
	if p.inPaste {
		return p.nextPaste()
	}
	if len(p.buf) == 0 {
		return Input{}
	}

	b := p.buf
	if b[0] != 0x1b {
		return p.nextPlain()
	}

	// Bracketed paste open.
	if bytes.HasPrefix(b, []byte(pasteOpen)) {
		p.buf = b[len(pasteOpen):]
		p.inPaste = true
		p.paste.Reset()
		return p.nextPaste()
	}

	if len(b) == 1 {
		// A lone ESC at the end of a read chunk is the Escape key; a
		// continuation would have arrived in the same chunk.
		p.buf = nil
		return Input{Kind: InputKey, Key: Key{Code: KeyEscape}}
	}

	switch b[1] {
	case '[':
		return p.nextCSI()
	case 'O':
		return p.nextSS3()
	default:
		// ESC prefix on a plain key: Alt modifier.
		p.buf = b[1:]
		in := p.nextPlain()
		if in.Kind == InputKey {
			in.Key.Mod |= ModAlt
		}
		return in
	}
}

func (p *Parser) nextPaste() Input {
	if i := bytes.Index(p.buf, []byte(pasteClose)); i >= 0 {
		p.paste.Write(p.buf[:i])
		p.buf = p.buf[i+len(pasteClose):]
		p.inPaste = false
		return Input{Kind: InputPaste, Paste: p.paste.String()}
	}
	// Hold everything that cannot contain the close mark's start.
	if i := bytes.LastIndexByte(p.buf, 0x1b); i >= 0 {
		p.paste.Write(p.buf[:i])
		p.buf = p.buf[i:]
	} else {
		p.paste.Write(p.buf)
		p.buf = nil
	}
	return Input{}
}

// nextPlain decodes a control byte or UTF-8 rune.
func (p *Parser) nextPlain() Input {
	b := p.buf
	c := b[0]
	switch {
	case c == '\r':
		p.buf = b[1:]
		return keyInput(Key{Code: KeyEnter})
	case c == '\n':
		p.buf = b[1:]
		return keyInput(Key{Code: KeyEnter, Mod: ModCtrl}) // Ctrl+J
	case c == '\t':
		p.buf = b[1:]
		return keyInput(Key{Code: KeyTab})
	case c == 0x7f, c == 0x08:
		p.buf = b[1:]
		return keyInput(Key{Code: KeyBackspace})
	case c == 0x00:
		p.buf = b[1:]
		return keyInput(Key{Code: KeyRune, Rune: ' ', Mod: ModCtrl})
	case c >= 0x1c && c <= 0x1f:
		// FS/GS/RS/US: Ctrl+\ Ctrl+] Ctrl+^ Ctrl+_
		p.buf = b[1:]
		return keyInput(Key{Code: KeyRune, Rune: rune("\\]^_"[c-0x1c]), Mod: ModCtrl})
	case c < 0x20:
		p.buf = b[1:]
		return keyInput(Key{Code: KeyRune, Rune: rune('a' + c - 1), Mod: ModCtrl})
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size == 1 && !utf8.FullRune(b) {
		// Partial multi-byte rune; wait for the rest.
		return Input{}
	}
	p.buf = b[size:]
	return keyInput(Key{Code: KeyRune, Rune: r})
}

func keyInput(k Key) Input { return Input{Kind: InputKey, Key: k} }

// nextCSI decodes an ESC [ sequence: arrows, function keys, tilde keys,
// and SGR mouse reports.
func (p *Parser) nextCSI() Input {
	b := p.buf
	// Find the final byte (0x40..0x7e) after "ESC [".
	i := 2
	mouse := false
	if i < len(b) && b[i] == '<' {
		mouse = true
		i++
	}
	for i < len(b) && (b[i] == ';' || (b[i] >= '0' && b[i] <= '9')) {
		i++
	}
	if i >= len(b) {
		return Input{} // incomplete
	}
	final := b[i]
	params := parseParams(b[2+boolToInt(mouse) : i])
	p.buf = b[i+1:]

	if mouse {
		return decodeSGRMouse(params, final)
	}

	mod := Mod(0)
	if len(params) >= 2 && params[1] > 0 {
		mod = csiMod(params[1])
	}

	switch final {
	case 'A':
		return keyInput(Key{Code: KeyUp, Mod: mod})
	case 'B':
		return keyInput(Key{Code: KeyDown, Mod: mod})
	case 'C':
		return keyInput(Key{Code: KeyRight, Mod: mod})
	case 'D':
		return keyInput(Key{Code: KeyLeft, Mod: mod})
	case 'H':
		return keyInput(Key{Code: KeyHome, Mod: mod})
	case 'F':
		return keyInput(Key{Code: KeyEnd, Mod: mod})
	case 'Z':
		return keyInput(Key{Code: KeyTab, Mod: ModShift})
	case 'P', 'Q', 'R', 'S':
		return keyInput(Key{Code: KeyF1 + KeyCode(final-'P'), Mod: mod})
	case 'u':
		// Kitty keyboard protocol: CSI code;mods u
		if len(params) == 0 {
			return Input{}
		}
		m := Mod(0)
		if len(params) >= 2 {
			m = csiMod(params[1])
		}
		return keyInput(Key{Code: KeyRune, Rune: rune(params[0]), Mod: m})
	case '~':
		if len(params) == 0 {
			return Input{}
		}
		// xterm modifyOtherKeys: CSI 27;mods;code ~
		if params[0] == 27 && len(params) >= 3 {
			return keyInput(Key{Code: KeyRune, Rune: rune(params[2]), Mod: csiMod(params[1])})
		}
		code, ok := tildeKeys[params[0]]
		if !ok {
			return Input{}
		}
		return keyInput(Key{Code: code, Mod: mod})
	}
	return Input{}
}

// nextSS3 decodes ESC O sequences (application cursor keys, F1-F4).
func (p *Parser) nextSS3() Input {
	b := p.buf
	if len(b) < 3 {
		return Input{}
	}
	p.buf = b[3:]
	switch b[2] {
	case 'A':
		return keyInput(Key{Code: KeyUp})
	case 'B':
		return keyInput(Key{Code: KeyDown})
	case 'C':
		return keyInput(Key{Code: KeyRight})
	case 'D':
		return keyInput(Key{Code: KeyLeft})
	case 'H':
		return keyInput(Key{Code: KeyHome})
	case 'F':
		return keyInput(Key{Code: KeyEnd})
	case 'P', 'Q', 'R', 'S':
		return keyInput(Key{Code: KeyF1 + KeyCode(b[2]-'P')})
	}
	return Input{}
}

var tildeKeys = map[int]KeyCode{
	1:  KeyHome,
	2:  KeyInsert,
	3:  KeyDelete,
	4:  KeyEnd,
	5:  KeyPageUp,
	6:  KeyPageDown,
	7:  KeyHome,
	8:  KeyEnd,
	11: KeyF1,
	12: KeyF2,
	13: KeyF3,
	14: KeyF4,
	15: KeyF5,
	17: KeyF6,
	18: KeyF7,
	19: KeyF8,
	20: KeyF9,
	21: KeyF10,
	23: KeyF11,
	24: KeyF12,
}

// csiMod converts the xterm modifier parameter (value-1 is a bitmask:
// 1 shift, 2 alt, 4 ctrl, 8 meta) into a Mod.
func csiMod(param int) Mod {
	bits := param - 1
	var m Mod
	if bits&1 != 0 {
		m |= ModShift
	}
	if bits&2 != 0 {
		m |= ModAlt
	}
	if bits&4 != 0 {
		m |= ModCtrl
	}
	if bits&8 != 0 {
		m |= ModMeta
	}
	return m
}

// decodeSGRMouse decodes an "ESC [ < b ; x ; y M|m" report. Coordinates
// arrive 1-indexed and are normalised to 0-indexed here; whether they
// are cells (1006) or pixels (1016) is decided by the coordinate mapper.
func decodeSGRMouse(params []int, final byte) Input {
	if len(params) < 3 {
		return Input{}
	}
	b, x, y := params[0], params[1]-1, params[2]-1
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	var mod Mod
	if b&4 != 0 {
		mod |= ModShift
	}
	if b&8 != 0 {
		mod |= ModAlt
	}
	if b&16 != 0 {
		mod |= ModCtrl
	}

	m := Mouse{X: x, Y: y, Mod: mod}

	switch {
	case b&64 != 0:
		m.Kind = MouseWheel
		m.Button = MouseButtonNone
		switch b & 3 {
		case 0:
			m.DY = -1
		case 1:
			m.DY = 1
		case 2:
			m.DX = -1
		case 3:
			m.DX = 1
		}
	case b&32 != 0:
		button := MouseButton(b & 3)
		if button == 3 {
			m.Kind = MouseMove
			m.Button = MouseButtonNone
		} else {
			m.Kind = MouseDrag
			m.Button = button
		}
	default:
		m.Button = MouseButton(b & 3)
		if m.Button == 3 {
			m.Button = MouseButtonNone
		}
		if final == 'M' {
			m.Kind = MousePress
		} else {
			m.Kind = MouseRelease
		}
	}
	return Input{Kind: InputMouse, Mouse: m}
}

func parseParams(b []byte) []int {
	if len(b) == 0 {
		return nil
	}
	var params []int
	n := 0
	has := false
	for _, c := range b {
		if c == ';' {
			params = append(params, n)
			n, has = 0, false
			continue
		}
		n = n*10 + int(c-'0')
		has = true
	}
	if has || len(params) > 0 {
		params = append(params, n)
	}
	return params
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
