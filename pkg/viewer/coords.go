// Package viewer drives the interactive session: it maps terminal input
// to browser input, renders screencast frames through the Kitty
// emitter, and runs the mode-based state machine that owns the toolbar,
// overlays, dialogs, and the virtual filesystem bridge.
package viewer

import (
	"math"

	"github.com/teamchong/termweb/pkg/termio"
)

// Mapper converts terminal coordinates to browser viewport coordinates.
// It is a pure value rebuilt on every resize; the viewer keeps exactly
// one current instance.
type Mapper struct {
	TermWidthPx  int
	TermHeightPx int
	Cols         int
	Rows         int
	CellWidth    int
	CellHeight   int

	ChromeWidth  int
	ChromeHeight int

	// ToolbarPx is the pixel band at the top reserved for the toolbar;
	// clicks there never reach the page.
	ToolbarPx int

	// pixelStream latches once any mouse coordinate exceeds the cell
	// grid: the terminal is reporting SGR 1016 pixels, not 1006 cells.
	pixelStream bool
}

// NewMapper derives a mapper from the terminal geometry and Chrome's
// actual viewport.
func NewMapper(g termio.Geometry, chromeWidth, chromeHeight, toolbarPx int) *Mapper {
	return &Mapper{
		TermWidthPx:  g.WidthPx,
		TermHeightPx: g.HeightPx,
		Cols:         g.Cols,
		Rows:         g.Rows,
		CellWidth:    g.CellWidth,
		CellHeight:   g.CellHeight,
		ChromeWidth:  chromeWidth,
		ChromeHeight: chromeHeight,
		ToolbarPx:    toolbarPx,
	}
}

// Observe updates the stream-mode latch from a raw mouse event.
func (m *Mapper) Observe(ev termio.Mouse) {
	if ev.X >= m.Cols || ev.Y >= m.Rows {
		m.pixelStream = true
	}
}

// PixelStream reports whether mouse coordinates arrive as pixels.
func (m *Mapper) PixelStream() bool { return m.pixelStream }

// Normalize converts a raw mouse position to terminal pixels. Cell
// coordinates resolve to the cell's center so clicks land where the
// pointer visually sits.
func (m *Mapper) Normalize(ev termio.Mouse) (xPx, yPx int) {
	if m.pixelStream {
		return ev.X, ev.Y
	}
	return ev.X*m.CellWidth + m.CellWidth/2, ev.Y*m.CellHeight + m.CellHeight/2
}

// TerminalToBrowser maps a terminal pixel position to browser viewport
// coordinates. Returns ok=false inside the reserved toolbar band.
func (m *Mapper) TerminalToBrowser(xPx, yPx int) (bx, by int, ok bool) {
	if yPx < m.ToolbarPx {
		return 0, 0, false
	}
	contentH := m.TermHeightPx - m.ToolbarPx
	if contentH <= 0 || m.TermWidthPx <= 0 {
		return 0, 0, false
	}
	contentY := yPx - m.ToolbarPx

	fx := float64(xPx) * float64(m.ChromeWidth) / float64(m.TermWidthPx)
	fy := float64(contentY) * float64(m.ChromeHeight) / float64(contentH)

	bx = clampInt(int(math.RoundToEven(fx)), 0, m.ChromeWidth-1)
	by = clampInt(int(math.RoundToEven(fy)), 0, m.ChromeHeight-1)
	return bx, by, true
}

// BrowserToTerminal is the inverse mapping, used to position the cursor
// overlay above the content image.
func (m *Mapper) BrowserToTerminal(bx, by int) (xPx, yPx int) {
	contentH := m.TermHeightPx - m.ToolbarPx
	if m.ChromeWidth <= 0 || m.ChromeHeight <= 0 {
		return 0, m.ToolbarPx
	}
	fx := float64(bx) * float64(m.TermWidthPx) / float64(m.ChromeWidth)
	fy := float64(by) * float64(contentH) / float64(m.ChromeHeight)
	return int(math.RoundToEven(fx)), int(math.RoundToEven(fy)) + m.ToolbarPx
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
