package termio

// Fallback cell size used when the terminal does not report pixel
// dimensions through TIOCGWINSZ.
const (
	FallbackCellWidth  = 14
	FallbackCellHeight = 20
)

// Geometry is a snapshot of the terminal dimensions in cells and pixels,
// plus the derived per-cell size and device pixel ratio.
type Geometry struct {
	Cols     int
	Rows     int
	WidthPx  int
	HeightPx int

	CellWidth  int
	CellHeight int

	// DPR is 2 on terminals whose cell width suggests a HiDPI backing
	// store, 1 otherwise.
	DPR int
}

// NewGeometry derives cell size and DPR from raw winsize values. Pixel
// dimensions of zero fall back to a synthetic size so downstream layout
// math never divides by zero.
func NewGeometry(cols, rows, widthPx, heightPx int) Geometry {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	if widthPx <= 0 {
		widthPx = cols * FallbackCellWidth
	}
	if heightPx <= 0 {
		heightPx = rows * FallbackCellHeight
	}
	g := Geometry{
		Cols:       cols,
		Rows:       rows,
		WidthPx:    widthPx,
		HeightPx:   heightPx,
		CellWidth:  widthPx / cols,
		CellHeight: heightPx / rows,
	}
	if g.CellWidth <= 0 {
		g.CellWidth = FallbackCellWidth
	}
	if g.CellHeight <= 0 {
		g.CellHeight = FallbackCellHeight
	}
	g.DPR = 1
	if g.CellWidth >= 16 {
		g.DPR = 2
	}
	return g
}

// ToolbarHeightPx returns a toolbar height that occupies a whole number
// of cell rows, sized from the cell width so the buttons stay roughly
// square at any zoom level.
func (g Geometry) ToolbarHeightPx() int {
	want := g.CellWidth * 2
	if want < g.CellHeight {
		want = g.CellHeight
	}
	rows := (want + g.CellHeight - 1) / g.CellHeight
	return rows * g.CellHeight
}

// ToolbarRows returns the number of cell rows the toolbar occupies.
func (g Geometry) ToolbarRows() int {
	return g.ToolbarHeightPx() / g.CellHeight
}
