package viewer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// cursorPNG renders the pointer-arrow overlay once; every redisplay
// reuses the same bytes under a fresh image id.
var cursorPNG = sync.OnceValue(func() []byte {
	const w, h = 12, 18
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	black := color.RGBA{0x00, 0x00, 0x00, 0xff}

	// Filled white triangle: straight left edge, diagonal hypotenuse,
	// flat bottom row, all outlined in black.
	for y := 0; y < h; y++ {
		span := y * w / h
		for x := 0; x <= span && x < w; x++ {
			c := white
			if x == 0 || x == span || y == h-1 {
				c = black
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
})
