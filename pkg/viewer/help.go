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

// helpLines is the hotkey reference shown by the Help overlay.
var helpLines = []string{
	"termweb keys",
	"",
	"Ctrl+L       edit URL",
	"Ctrl+R       reload",
	"Ctrl+.       stop loading",
	"Esc / Ctrl+[ history back",
	"Ctrl+]       history forward",
	"f / Ctrl+F   form navigation (Tab cycles, Enter activates)",
	"?            this help",
	"Ctrl+Q/W/C   quit",
	"",
	"Esc closes this overlay",
}

// dialogLines formats a JavaScript dialog for the overlay panel.
func dialogLines(d *dialogState) []string {
	lines := []string{d.kind, ""}
	lines = append(lines, wrapText(d.message, 60)...)
	if d.prompt {
		lines = append(lines, "", "> "+d.text.Value())
	}
	lines = append(lines, "", "Enter accepts - Esc dismisses")
	return lines
}

// RenderPanelPNG rasterises lines into a bordered panel image for the
// overlay layer.
func RenderPanelPNG(lines []string) ([]byte, error) {
	face := basicfont.Face7x13
	const padX, padY = 14, 10
	lineH := face.Height + 3

	width := 0
	for _, l := range lines {
		if w := len(l) * face.Advance; w > width {
			width = w
		}
	}
	width += 2 * padX
	height := len(lines)*lineH + 2*padY

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{0x20, 0x20, 0x24, 0xf0}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	strokeRect(img, img.Bounds(), color.RGBA{0x4a, 0x90, 0xd9, 0xff})

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0xe6, 0xe6, 0xe6, 0xff}),
		Face: face,
	}
	y := padY + face.Ascent
	for _, l := range lines {
		d.Dot = fixed.P(padX, y)
		d.DrawString(l)
		y += lineH
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode overlay panel")
	}
	return buf.Bytes(), nil
}

type dims struct{ w, h int }

// pngDims reads the IHDR dimensions without a full decode.
func pngDims(b []byte) (dims, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return dims{}, errors.Wrap(err, "png header")
	}
	return dims{w: cfg.Width, h: cfg.Height}, nil
}

func wrapText(s string, width int) []string {
	var lines []string
	for len(s) > width {
		cut := width
		for cut > 0 && s[cut] != ' ' {
			cut--
		}
		if cut == 0 {
			cut = width
		}
		lines = append(lines, s[:cut])
		s = s[cut:]
		for len(s) > 0 && s[0] == ' ' {
			s = s[1:]
		}
	}
	return append(lines, s)
}
