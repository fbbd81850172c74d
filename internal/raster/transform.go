package raster

import (
	"fmt"

	"github.com/ctessum/geom"
)

// Transform is a GDAL-ordered affine geotransform mapping (col, row) pixel
// coordinates to map coordinates:
//
//	x = X0 + col*DX + row*RX
//	y = Y0 + col*RY + row*DY
//
// For north-up rasters RX and RY are zero and DY is negative.
type Transform struct {
	X0 float64 `json:"x0"`
	DX float64 `json:"dx"`
	RX float64 `json:"rx"`
	Y0 float64 `json:"y0"`
	RY float64 `json:"ry"`
	DY float64 `json:"dy"`
}

// NorthUp builds the transform of an unrotated raster whose upper-left corner
// is (x0, y0) with square cells of the given size.
func NorthUp(x0, y0, cellSize float64) Transform {
	return Transform{X0: x0, DX: cellSize, Y0: y0, DY: -cellSize}
}

// Apply maps fractional pixel coordinates to map coordinates.
func (t Transform) Apply(col, row float64) geom.Point {
	return geom.Point{
		X: t.X0 + col*t.DX + row*t.RX,
		Y: t.Y0 + col*t.RY + row*t.DY,
	}
}

// CellCenter returns the map coordinate of the centre of cell (row, col).
func (t Transform) CellCenter(row, col int) geom.Point {
	return t.Apply(float64(col)+0.5, float64(row)+0.5)
}

// Invert maps a map coordinate back to fractional (col, row).
func (t Transform) Invert(p geom.Point) (col, row float64, err error) {
	det := t.DX*t.DY - t.RX*t.RY
	if det == 0 {
		return 0, 0, fmt.Errorf("raster: transform is not invertible")
	}
	dx := p.X - t.X0
	dy := p.Y - t.Y0
	col = (t.DY*dx - t.RX*dy) / det
	row = (-t.RY*dx + t.DX*dy) / det
	return col, row, nil
}

// Offset returns the transform of a sub-grid whose upper-left pixel is
// (colOff, rowOff) in this transform.
func (t Transform) Offset(colOff, rowOff int) Transform {
	o := t.Apply(float64(colOff), float64(rowOff))
	return Transform{X0: o.X, DX: t.DX, RX: t.RX, Y0: o.Y, RY: t.RY, DY: t.DY}
}

// IsNorthUp reports whether the transform has no rotation terms.
func (t Transform) IsNorthUp() bool {
	return t.RX == 0 && t.RY == 0
}

// CellArea is the absolute area of one pixel in map units squared.
func (t Transform) CellArea() float64 {
	a := t.DX*t.DY - t.RX*t.RY
	if a < 0 {
		return -a
	}
	return a
}

// Bounds returns the envelope of a rows x cols raster under t.
func (t Transform) Bounds(rows, cols int) *geom.Bounds {
	b := geom.NewBoundsPoint(t.Apply(0, 0))
	b.Extend(geom.NewBoundsPoint(t.Apply(float64(cols), 0)))
	b.Extend(geom.NewBoundsPoint(t.Apply(0, float64(rows))))
	b.Extend(geom.NewBoundsPoint(t.Apply(float64(cols), float64(rows))))
	return b
}
