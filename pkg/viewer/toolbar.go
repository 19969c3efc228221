package viewer

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Button identifies a toolbar navigation button.
type Button int

const (
	ButtonNone Button = iota
	ButtonBack
	ButtonForward
	ButtonReload
	ButtonClose
)

// ButtonState is the visual state of a button.
type ButtonState int

const (
	StateNormal ButtonState = iota
	StateHover
	StateActive
	StateDisabled
)

var (
	colBG          = color.RGBA{0x1e, 0x1e, 0x1e, 0xff}
	colButton      = color.RGBA{0x2d, 0x2d, 0x2d, 0xff}
	colButtonHover = color.RGBA{0x3c, 0x3c, 0x3c, 0xff}
	colButtonDown  = color.RGBA{0x50, 0x50, 0x50, 0xff}
	colGlyph       = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	colGlyphDim    = color.RGBA{0x55, 0x55, 0x55, 0xff}
	colField       = color.RGBA{0x2b, 0x2b, 0x2b, 0xff}
	colFieldFocus  = color.RGBA{0x4a, 0x90, 0xd9, 0xff}
	colSelection   = color.RGBA{0x26, 0x4f, 0x78, 0xff}
	colText        = color.RGBA{0xe6, 0xe6, 0xe6, 0xff}
)

// Toolbar renders the top bar: back/forward/reload/close buttons and the
// URL field. The height passed at construction is exactly the height the
// coordinate mapper reserves and the pixel offset of the content image;
// a mismatch drifts every click, so both always come from the same
// Geometry.
type Toolbar struct {
	widthPx  int
	heightPx int

	url *URLBar

	canBack    bool
	canForward bool
	loading    bool

	hover  Button
	active Button
	status string

	boxes map[Button]image.Rectangle
	field image.Rectangle

	dirty bool
}

// NewToolbar lays out a toolbar of the given pixel size.
func NewToolbar(widthPx, heightPx int) *Toolbar {
	t := &Toolbar{
		widthPx:  widthPx,
		heightPx: heightPx,
		url:      NewURLBar(),
		dirty:    true,
	}
	t.layout()
	return t
}

// HeightPx is the height reserved at construction time.
func (t *Toolbar) HeightPx() int { return t.heightPx }

func (t *Toolbar) URL() *URLBar { return t.url }

// Dirty reports whether the toolbar needs re-rendering, clearing the
// flag.
func (t *Toolbar) Dirty() bool {
	d := t.dirty
	t.dirty = false
	return d
}

func (t *Toolbar) MarkDirty() { t.dirty = true }

// SetNavState updates the history buttons and the reload/stop toggle.
func (t *Toolbar) SetNavState(back, forward, loading bool) {
	if t.canBack == back && t.canForward == forward && t.loading == loading {
		return
	}
	t.canBack, t.canForward, t.loading = back, forward, loading
	t.dirty = true
}

// SetURL replaces the field text unless the user is editing it.
func (t *Toolbar) SetURL(s string) {
	if t.url.Focused() || t.url.Value() == s {
		return
	}
	t.url.SetValue(s)
	t.dirty = true
}

func (t *Toolbar) FocusURL() {
	t.url.Focus()
	t.dirty = true
}

func (t *Toolbar) BlurURL() {
	t.url.Blur()
	t.dirty = true
}

// SetStatus shows a transient message in the URL field area (unless the
// user is editing the URL). Empty restores the URL display.
func (t *Toolbar) SetStatus(s string) {
	if t.status != s {
		t.status = s
		t.dirty = true
	}
}

// SetHover updates the hovered button; returns true when it changed.
func (t *Toolbar) SetHover(b Button) bool {
	if t.hover == b {
		return false
	}
	t.hover = b
	t.dirty = true
	return true
}

// SetActive marks a button pressed (or ButtonNone on release).
func (t *Toolbar) SetActive(b Button) {
	if t.active != b {
		t.active = b
		t.dirty = true
	}
}

// HitTest maps a toolbar-local pixel position to a button, or
// ButtonNone (which includes the URL field).
func (t *Toolbar) HitTest(px, py int) Button {
	p := image.Pt(px, py)
	for b, box := range t.boxes {
		if p.In(box) {
			return b
		}
	}
	return ButtonNone
}

// HitURL reports whether the position lands in the URL field.
func (t *Toolbar) HitURL(px, py int) bool {
	return image.Pt(px, py).In(t.field)
}

func (t *Toolbar) layout() {
	h := t.heightPx
	pad := h / 6
	side := h - 2*pad

	t.boxes = map[Button]image.Rectangle{}
	x := pad
	for _, b := range []Button{ButtonBack, ButtonForward, ButtonReload} {
		t.boxes[b] = image.Rect(x, pad, x+side, pad+side)
		x += side + pad
	}
	closeX := t.widthPx - pad - side
	t.boxes[ButtonClose] = image.Rect(closeX, pad, closeX+side, pad+side)
	t.field = image.Rect(x+pad, pad, closeX-2*pad, pad+side)
}

func (t *Toolbar) buttonState(b Button) ButtonState {
	switch {
	case b == ButtonBack && !t.canBack,
		b == ButtonForward && !t.canForward:
		return StateDisabled
	case t.active == b:
		return StateActive
	case t.hover == b:
		return StateHover
	default:
		return StateNormal
	}
}

// Render draws the toolbar into a fresh RGBA image.
func (t *Toolbar) Render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.widthPx, t.heightPx))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBG), image.Point{}, draw.Src)

	for _, b := range []Button{ButtonBack, ButtonForward, ButtonReload, ButtonClose} {
		t.drawButton(img, b)
	}
	t.drawField(img)
	return img
}

// RenderPNG renders and PNG-encodes the toolbar for the Kitty emitter.
func (t *Toolbar) RenderPNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Render()); err != nil {
		return nil, errors.Wrap(err, "encode toolbar")
	}
	return buf.Bytes(), nil
}

func (t *Toolbar) drawButton(img *image.RGBA, b Button) {
	box := t.boxes[b]
	state := t.buttonState(b)

	bg := colButton
	switch state {
	case StateHover:
		bg = colButtonHover
	case StateActive:
		bg = colButtonDown
	}
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	fg := colGlyph
	if state == StateDisabled {
		fg = colGlyphDim
	}

	switch b {
	case ButtonBack:
		drawTriangle(img, box, fg, true)
	case ButtonForward:
		drawTriangle(img, box, fg, false)
	case ButtonReload:
		if t.loading {
			drawCross(img, box, fg)
		} else {
			drawRing(img, box, fg)
		}
	case ButtonClose:
		drawCross(img, box, fg)
	}
}

func (t *Toolbar) drawField(img *image.RGBA) {
	draw.Draw(img, t.field, image.NewUniform(colField), image.Point{}, draw.Src)
	if t.url.Focused() {
		strokeRect(img, t.field, colFieldFocus)
	}

	face := basicfont.Face7x13
	charW := face.Advance
	inner := t.field.Inset(3)
	fit := inner.Dx() / charW
	if fit <= 0 {
		return
	}

	if t.status != "" && !t.url.Focused() {
		msg := []rune(t.status)
		if len(msg) > fit {
			msg = msg[:fit]
		}
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{0xd9, 0xa4, 0x4a, 0xff}),
			Face: face,
			Dot:  fixed.P(inner.Min.X, inner.Min.Y+(inner.Dy()+face.Ascent)/2),
		}
		d.DrawString(string(msg))
		return
	}

	start, end := t.url.VisibleWindow(fit)
	text := []rune(t.url.Value())[start:end]

	baseline := inner.Min.Y + (inner.Dy()+face.Ascent)/2

	// Selection highlight behind the glyphs.
	if s, e, ok := t.url.Selection(); ok && t.url.Focused() {
		s = clampInt(s-start, 0, len(text))
		e = clampInt(e-start, 0, len(text))
		if e > s {
			sel := image.Rect(inner.Min.X+s*charW, inner.Min.Y, inner.Min.X+e*charW, inner.Max.Y)
			draw.Draw(img, sel, image.NewUniform(colSelection), image.Point{}, draw.Src)
		}
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colText),
		Face: face,
		Dot:  fixed.P(inner.Min.X, baseline),
	}
	d.DrawString(string(text))

	// Cursor caret.
	if t.url.Focused() {
		cx := inner.Min.X + (t.url.Cursor()-start)*charW
		if cx >= inner.Min.X && cx <= inner.Max.X {
			caret := image.Rect(cx, inner.Min.Y, cx+1, inner.Max.Y)
			draw.Draw(img, caret, image.NewUniform(colText), image.Point{}, draw.Src)
		}
	}
}

// drawTriangle fills a left- or right-pointing triangle inside box.
func drawTriangle(img *image.RGBA, box image.Rectangle, c color.RGBA, left bool) {
	b := box.Inset(box.Dx() / 4)
	h := b.Dy()
	for row := 0; row < h; row++ {
		// Width shrinks toward the point.
		dist := row
		if row > h/2 {
			dist = h - 1 - row
		}
		span := b.Dx() * dist * 2 / h
		if span <= 0 {
			continue
		}
		y := b.Min.Y + row
		if left {
			for x := b.Min.X; x < b.Min.X+span && x < b.Max.X; x++ {
				img.SetRGBA(x, y, c)
			}
		} else {
			for x := b.Max.X - span; x < b.Max.X; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawCross draws an X spanning the inset box.
func drawCross(img *image.RGBA, box image.Rectangle, c color.RGBA) {
	b := box.Inset(box.Dx() / 4)
	n := b.Dx()
	if b.Dy() < n {
		n = b.Dy()
	}
	for i := 0; i < n; i++ {
		for w := 0; w < 2; w++ {
			img.SetRGBA(b.Min.X+i+w, b.Min.Y+i, c)
			img.SetRGBA(b.Min.X+i+w, b.Max.Y-1-i, c)
		}
	}
}

// drawRing draws a circle outline (the reload glyph).
func drawRing(img *image.RGBA, box image.Rectangle, c color.RGBA) {
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	r := float64(box.Dx()) / 3
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			d2 := dx*dx + dy*dy
			if d2 >= (r-1.2)*(r-1.2) && d2 <= (r+1.2)*(r+1.2) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// strokeRect draws a 1px border.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, c)
		img.SetRGBA(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, c)
		img.SetRGBA(r.Max.X-1, y, c)
	}
}
