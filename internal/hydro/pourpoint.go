package hydro

import (
	"math"

	"floodfactor/internal/raster"
)

// DefaultStreamThreshold is the minimum number of contributing cells for a
// channel to form.
const DefaultStreamThreshold = 3000.0

// PourPoint is the outlet cell of a watershed.
type PourPoint struct {
	Row          int
	Col          int
	Lon          float64
	Lat          float64
	Accumulation float64
}

// LocatePourPoint returns the cell of maximum flow accumulation. Ties go to
// the first cell in row-major order. The coordinate reported is the cell
// centre. ErrChannelNotFound is returned when the maximum is below threshold
// or when every cell is undefined.
func LocatePourPoint(acc *raster.Grid, threshold float64) (PourPoint, error) {
	if err := acc.Validate(); err != nil {
		return PourPoint{}, err
	}

	best := -1
	bestVal := math.Inf(-1)
	for i, v := range acc.Data {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		return PourPoint{}, ErrChannelNotFound.WithDetails(map[string]any{
			"reason":    "flow accumulation grid has no defined cells",
			"threshold": threshold,
		})
	}
	if bestVal < threshold {
		return PourPoint{}, ErrChannelNotFound.WithDetails(map[string]any{
			"max_accumulation": bestVal,
			"threshold":        threshold,
		})
	}

	row, col := best/acc.Cols, best%acc.Cols
	c := acc.CellCenter(row, col)
	return PourPoint{Row: row, Col: col, Lon: c.X, Lat: c.Y, Accumulation: bestVal}, nil
}
