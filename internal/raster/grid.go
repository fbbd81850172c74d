// Package raster holds the single-band georeferenced grid shared by every
// stage of a flood run, together with its on-disk codecs.
//
// Undefined cells are stored as NaN in memory. The NoData sentinel is only
// used when a grid is written to or read from a file.
package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"floodfactor/internal/types"
)

// DefaultNoData is written for undefined cells when a grid has no sentinel.
const DefaultNoData = -9999.0

// Grid is a row-major single-band raster.
type Grid struct {
	Rows      int
	Cols      int
	Data      []float64
	NoData    float64
	Transform Transform
	CRS       CRS
}

// New allocates a zero-filled grid.
func New(rows, cols int, t Transform, crs CRS) *Grid {
	return &Grid{
		Rows:      rows,
		Cols:      cols,
		Data:      make([]float64, rows*cols),
		NoData:    DefaultNoData,
		Transform: t,
		CRS:       crs,
	}
}

// NewFilled allocates a grid with every cell set to v.
func NewFilled(rows, cols int, t Transform, crs CRS, v float64) *Grid {
	g := New(rows, cols, t, crs)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// FromRows builds a grid from nested rows. All rows must have equal length.
func FromRows(rows [][]float64, t Transform, crs CRS) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, invalidGrid("grid must have at least one cell")
	}
	g := New(len(rows), len(rows[0]), t, crs)
	for r, row := range rows {
		if len(row) != g.Cols {
			return nil, invalidGrid(fmt.Sprintf("row %d has %d columns, want %d", r, len(row), g.Cols))
		}
		copy(g.Data[r*g.Cols:], row)
	}
	return g, nil
}

// Validate checks the shape invariant.
func (g *Grid) Validate() error {
	if g == nil {
		return invalidGrid("grid is nil")
	}
	if g.Rows <= 0 || g.Cols <= 0 {
		return invalidGrid(fmt.Sprintf("grid shape %dx%d is empty", g.Rows, g.Cols))
	}
	if len(g.Data) != g.Rows*g.Cols {
		return invalidGrid(fmt.Sprintf("grid has %d values for shape %dx%d", len(g.Data), g.Rows, g.Cols))
	}
	return nil
}

// Index returns the offset of (row, col) in Data.
func (g *Grid) Index(row, col int) int { return row*g.Cols + col }

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 { return g.Data[row*g.Cols+col] }

// Set stores v at (row, col).
func (g *Grid) Set(row, col int, v float64) { g.Data[row*g.Cols+col] = v }

// InBounds reports whether (row, col) addresses a cell of g.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = make([]float64, len(g.Data))
	copy(c.Data, g.Data)
	return &c
}

// Like allocates a zero-filled grid with g's shape, transform and CRS.
func (g *Grid) Like() *Grid {
	out := New(g.Rows, g.Cols, g.Transform, g.CRS)
	out.NoData = g.NoData
	return out
}

// Bounds returns the geographic envelope of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	return g.Transform.Bounds(g.Rows, g.Cols)
}

// CellCenter returns the map coordinate of the centre of (row, col).
func (g *Grid) CellCenter(row, col int) geom.Point {
	return g.Transform.CellCenter(row, col)
}

// CountDefined returns the number of non-NaN cells.
func (g *Grid) CountDefined() int {
	n := 0
	for _, v := range g.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// MaskNoData replaces the NoData sentinel with NaN in place.
func (g *Grid) MaskNoData() {
	if math.IsNaN(g.NoData) {
		return
	}
	for i, v := range g.Data {
		if v == g.NoData {
			g.Data[i] = math.NaN()
		}
	}
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b *Grid) bool {
	return a.Rows == b.Rows && a.Cols == b.Cols
}

func invalidGrid(msg string) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidGrid, msg, nil)
}
