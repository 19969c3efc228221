package kitty

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/pkg/errors"
)

// chunkSize is the payload limit per graphics escape, per the protocol's
// 4096-byte line cap.
const chunkSize = 4096

// Layer is a fixed (placement, z) tuple. The three layers compose the
// on-screen image: content below, cursor above it, toolbar on top.
type Layer struct {
	Placement uint8
	Z         int32
}

var (
	LayerContent = Layer{Placement: 1, Z: 0}
	LayerCursor  = Layer{Placement: 2, Z: 10}
	LayerToolbar = Layer{Placement: 3, Z: 20}
	// LayerOverlay sits above everything: help panel, dialog prompt.
	LayerOverlay = Layer{Placement: 4, Z: 30}
)

// DisplayOptions positions an image on screen. Row/Col are 1-indexed
// screen cells; XOffset/YOffset are pixel offsets within that cell.
// Rows/Columns, when non-zero, ask the terminal to scale the image to
// that many cells.
type DisplayOptions struct {
	Layer   Layer
	Row     int
	Col     int
	Rows    int
	Columns int
	XOffset int
	YOffset int
}

// Emitter writes Kitty graphics protocol commands. Image ids are
// assigned monotonically; the caller is responsible for deleting stale
// ids (see Delete) to keep terminal-side memory bounded.
//
// All commands accumulate in an internal buffer between BeginFrame and
// EndFrame so a composite of several layers reaches the terminal as one
// synchronized write.
type Emitter struct {
	out io.Writer
	buf bytes.Buffer

	nextID uint32
	shm    *SHMBuffer
}

// NewEmitter creates an emitter writing to out. shm may be nil to force
// the base64 path.
func NewEmitter(out io.Writer, shm *SHMBuffer) *Emitter {
	return &Emitter{out: out, nextID: 1, shm: shm}
}

// SHMEnabled reports whether the shared-memory fast path is active.
func (e *Emitter) SHMEnabled() bool { return e.shm != nil }

// DisableSHM drops the fast path, e.g. after the terminal rejects a
// transfer. Existing placements are unaffected.
func (e *Emitter) DisableSHM() {
	if e.shm != nil {
		e.shm.Close()
		e.shm = nil
	}
}

// BeginFrame opens a synchronized-output batch.
func (e *Emitter) BeginFrame() {
	e.buf.WriteString("\x1b[?2026h")
}

// EndFrame closes the batch and flushes it to the terminal in a single
// write.
func (e *Emitter) EndFrame() error {
	e.buf.WriteString("\x1b[?2026l")
	_, err := e.out.Write(e.buf.Bytes())
	e.buf.Reset()
	return errors.Wrap(err, "flush graphics batch")
}

// DisplayPNG transmits PNG bytes and displays them at opts. Returns the
// assigned image id.
func (e *Emitter) DisplayPNG(data []byte, opts DisplayOptions) uint32 {
	id := e.nextID
	e.nextID++
	e.moveCursor(opts)
	e.transmitBase64(data, id, 100, 0, 0, opts)
	return id
}

// DisplayJPEG decodes JPEG bytes and displays them. The decoded RGBA
// goes through shared memory when available, otherwise as base64 raw
// pixels. Decoding client-side keeps the terminal's work down to a blit.
func (e *Emitter) DisplayJPEG(data []byte, opts DisplayOptions) (uint32, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "decode jpeg frame")
	}
	rgba := toRGBA(img)
	return e.DisplayRGBA(rgba, opts), nil
}

// DisplayRGBA displays raw RGBA pixels, preferring the shared-memory
// path. A failed shm write downgrades to base64 permanently.
func (e *Emitter) DisplayRGBA(img *image.RGBA, opts DisplayOptions) uint32 {
	id := e.nextID
	e.nextID++
	e.moveCursor(opts)

	w := img.Rect.Dx()
	h := img.Rect.Dy()

	if e.shm != nil {
		name, err := e.shm.Store(img)
		if err == nil {
			payload := base64.StdEncoding.EncodeToString([]byte(name))
			fmt.Fprintf(&e.buf, "\x1b_Ga=T,q=2,t=s,f=32,s=%d,v=%d,i=%d,%s;%s\x1b\\",
				w, h, id, e.placementArgs(opts), payload)
			return id
		}
		e.DisableSHM()
	}

	e.transmitBase64(img.Pix, id, 32, w, h, opts)
	return id
}

// Delete removes the image and frees its data on the terminal side.
func (e *Emitter) Delete(id uint32) {
	fmt.Fprintf(&e.buf, "\x1b_Ga=d,d=I,q=2,i=%d\x1b\\", id)
}

// ClearAll deletes every image and placement this process created.
func (e *Emitter) ClearAll() {
	e.buf.WriteString("\x1b_Ga=d,d=A,q=2\x1b\\")
}

// AbortFrame discards the current batch without writing anything.
func (e *Emitter) AbortFrame() {
	e.buf.Reset()
}

// Flush writes any buffered commands outside a frame batch. Used by
// teardown paths that must not depend on frame sequencing.
func (e *Emitter) Flush() error {
	if e.buf.Len() == 0 {
		return nil
	}
	_, err := e.out.Write(e.buf.Bytes())
	e.buf.Reset()
	return err
}

func (e *Emitter) moveCursor(opts DisplayOptions) {
	row, col := opts.Row, opts.Col
	if row < 1 {
		row = 1
	}
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(&e.buf, "\x1b[%d;%dH", row, col)
}

func (e *Emitter) placementArgs(opts DisplayOptions) string {
	args := fmt.Sprintf("p=%d,z=%d", opts.Layer.Placement, opts.Layer.Z)
	if opts.Columns > 0 {
		args += fmt.Sprintf(",c=%d", opts.Columns)
	}
	if opts.Rows > 0 {
		args += fmt.Sprintf(",r=%d", opts.Rows)
	}
	if opts.XOffset > 0 {
		args += fmt.Sprintf(",X=%d", opts.XOffset)
	}
	if opts.YOffset > 0 {
		args += fmt.Sprintf(",Y=%d", opts.YOffset)
	}
	return args
}

// transmitBase64 chunks the payload at chunkSize and writes the
// transmit-and-display command. format is the Kitty f= key: 100 for
// PNG, 32 for raw RGBA (which also needs s= and v=).
func (e *Emitter) transmitBase64(data []byte, id uint32, format, w, h int, opts DisplayOptions) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for i := 0; i < len(encoded); i += chunkSize {
		end := i + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		more := 1
		if end == len(encoded) {
			more = 0
		}
		if i == 0 {
			dims := ""
			if format == 32 {
				dims = fmt.Sprintf(",s=%d,v=%d", w, h)
			}
			fmt.Fprintf(&e.buf, "\x1b_Ga=T,q=2,f=%d%s,i=%d,%s,m=%d;%s\x1b\\",
				format, dims, id, e.placementArgs(opts), more, encoded[i:end])
		} else {
			fmt.Fprintf(&e.buf, "\x1b_Gm=%d;%s\x1b\\", more, encoded[i:end])
		}
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return rgba
}
