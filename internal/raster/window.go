package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// pixelTolerance absorbs floating-point noise when snapping a fractional
// window edge to whole pixels.
const pixelTolerance = 1e-6

// Window is a rectangular block of pixels within a raster.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

// Empty reports whether the window selects no pixels.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

func (w Window) String() string {
	return fmt.Sprintf("window(col=%d,row=%d,%dx%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}

// Meta describes a raster without its cell values.
type Meta struct {
	Rows      int
	Cols      int
	NoData    float64
	Transform Transform
	CRS       CRS
}

// WindowReader is a raster source that can materialize a sub-window without
// loading the remaining cells.
type WindowReader interface {
	Meta() Meta
	ReadWindow(w Window) (*Grid, error)
}

// WindowForBounds computes the pixel window of a raster described by m that
// covers b. Offsets are floored and the far edges ceiled so the window
// expands to cover the bounds rather than truncating them. The result is
// clamped to the raster extent and may be empty when b lies outside it.
func WindowForBounds(m Meta, b *geom.Bounds) (Window, error) {
	corners := []geom.Point{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Max.X, Y: b.Max.Y},
	}
	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		c, r, err := m.Transform.Invert(p)
		if err != nil {
			return Window{}, err
		}
		minCol, maxCol = math.Min(minCol, c), math.Max(maxCol, c)
		minRow, maxRow = math.Min(minRow, r), math.Max(maxRow, r)
	}

	colOff := int(math.Floor(minCol + pixelTolerance))
	rowOff := int(math.Floor(minRow + pixelTolerance))
	colEnd := int(math.Ceil(maxCol - pixelTolerance))
	rowEnd := int(math.Ceil(maxRow - pixelTolerance))

	colOff = clamp(colOff, 0, m.Cols)
	rowOff = clamp(rowOff, 0, m.Rows)
	colEnd = clamp(colEnd, 0, m.Cols)
	rowEnd = clamp(rowEnd, 0, m.Rows)

	return Window{ColOff: colOff, RowOff: rowOff, Width: colEnd - colOff, Height: rowEnd - rowOff}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Meta implements WindowReader for in-memory grids.
func (g *Grid) Meta() Meta {
	return Meta{Rows: g.Rows, Cols: g.Cols, NoData: g.NoData, Transform: g.Transform, CRS: g.CRS}
}

// ReadWindow implements WindowReader for in-memory grids.
func (g *Grid) ReadWindow(w Window) (*Grid, error) {
	if err := checkWindow(g.Meta(), w); err != nil {
		return nil, err
	}
	out := New(w.Height, w.Width, g.Transform.Offset(w.ColOff, w.RowOff), g.CRS)
	out.NoData = g.NoData
	for r := 0; r < w.Height; r++ {
		src := (w.RowOff+r)*g.Cols + w.ColOff
		copy(out.Data[r*w.Width:(r+1)*w.Width], g.Data[src:src+w.Width])
	}
	return out, nil
}

// Sample reads the cells of src that coincide with the pixel grid of dst.
// Each dst cell centre is mapped into src; centres falling outside src take
// the value outside.
func Sample(src *Grid, dst Meta, outside float64) (*Grid, error) {
	out := New(dst.Rows, dst.Cols, dst.Transform, dst.CRS)
	out.NoData = src.NoData
	for r := 0; r < dst.Rows; r++ {
		for c := 0; c < dst.Cols; c++ {
			col, row, err := src.Transform.Invert(dst.Transform.CellCenter(r, c))
			if err != nil {
				return nil, err
			}
			sr, sc := int(math.Floor(row)), int(math.Floor(col))
			if src.InBounds(sr, sc) {
				out.Set(r, c, src.At(sr, sc))
			} else {
				out.Set(r, c, outside)
			}
		}
	}
	return out, nil
}

func checkWindow(m Meta, w Window) error {
	if w.Empty() {
		return invalidGrid(fmt.Sprintf("%s is empty", w))
	}
	if w.ColOff < 0 || w.RowOff < 0 || w.ColOff+w.Width > m.Cols || w.RowOff+w.Height > m.Rows {
		return invalidGrid(fmt.Sprintf("%s exceeds raster %dx%d", w, m.Rows, m.Cols))
	}
	return nil
}
