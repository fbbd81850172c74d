package hydro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"floodfactor/internal/raster"
)

// gridOf builds a north-up 1-unit grid from rows.
func gridOf(t *testing.T, rows [][]float64) *raster.Grid {
	t.Helper()
	g, err := raster.FromRows(rows, raster.NorthUp(0, float64(len(rows)), 1), raster.CRS{Def: raster.WGS84})
	require.NoError(t, err)
	return g
}

func totalVolume(depth []float64, cellArea float64) float64 {
	var sum float64
	for _, d := range depth {
		if d == d { // skip NaN
			sum += d * cellArea
		}
	}
	return sum
}
