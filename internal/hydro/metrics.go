package hydro

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"floodfactor/internal/raster"
)

// Metrics summarizes an inundation.
type Metrics struct {
	FloodedCells    int
	FloodedAreaKm2  float64
	FloodedVolumeM3 float64
	MaxDepthM       float64
}

// Aggregate computes flooded area from mask and flooded volume from depth.
// Undefined depths contribute zero volume.
func Aggregate(depth, mask *raster.Grid, cellArea float64) Metrics {
	var m Metrics
	for _, v := range mask.Data {
		if v == 1 {
			m.FloodedCells++
		}
	}
	m.FloodedAreaKm2 = float64(m.FloodedCells) * cellArea / 1e6

	defined := make([]float64, 0, len(depth.Data))
	for _, d := range depth.Data {
		if !math.IsNaN(d) {
			defined = append(defined, d)
		}
	}
	if len(defined) > 0 {
		m.FloodedVolumeM3 = floats.Sum(defined) * cellArea
		m.MaxDepthM = floats.Max(defined)
	}
	return m
}

// WatershedArea returns the area in square meters of cells with ws > 0.
func WatershedArea(ws *raster.Grid, cellArea float64) float64 {
	n := 0
	for _, v := range ws.Data {
		if v > 0 {
			n++
		}
	}
	return float64(n) * cellArea
}
