package hydro

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"floodfactor/internal/raster"
)

// CFactorResult is the runoff-coefficient raster of a watershed.
type CFactorResult struct {
	// Grid is aligned to the land-cover window, not to the watershed grid.
	// Cells outside the watershed are NaN.
	Grid *raster.Grid
	// Mean is the mean of the defined cells of Grid.
	Mean float64
	// Window is the land-cover pixel window that was read.
	Window raster.Window
	// WindowMean is the mean of table-matched cells in the window, used to
	// fill unrecognized classes.
	WindowMean float64
	// FilledCells counts window cells whose class was missing from the table.
	FilledCells int
}

// MapRunoffCoefficients builds the C-factor raster for the watershed ws from
// the land-cover source lc. Only the window of lc covering ws is read.
//
// Cells whose class is missing from table take the mean coefficient of the
// matched cells of the window itself, not a global default. Cells where the
// watershed value is zero or undefined are then set to NaN.
func MapRunoffCoefficients(ws *raster.Grid, lc raster.WindowReader, table CFactorTable) (*CFactorResult, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	meta := lc.Meta()
	same, err := ws.CRS.Equal(meta.CRS)
	if err != nil || !same {
		details := map[string]any{
			"watershed_crs": ws.CRS.Def,
			"landcover_crs": meta.CRS.Def,
		}
		if err != nil {
			details["error"] = err.Error()
		}
		return nil, ErrCRSMismatch.WithDetails(details)
	}

	window, err := raster.WindowForBounds(meta, ws.Bounds())
	if err != nil {
		return nil, err
	}
	if window.Empty() {
		return nil, ErrNumericDegeneracy.WithDetails(map[string]any{
			"reason": "watershed does not overlap the land-cover raster",
		})
	}

	lcw, err := lc.ReadWindow(window)
	if err != nil {
		return nil, err
	}

	out := lcw.Like()
	out.NoData = math.NaN()
	matched := make([]float64, 0, len(lcw.Data))
	for i, class := range lcw.Data {
		if c, ok := table.Lookup(class); ok && !math.IsNaN(class) {
			out.Data[i] = c
			matched = append(matched, c)
		} else {
			out.Data[i] = math.NaN()
		}
	}
	if len(matched) == 0 {
		return nil, ErrNumericDegeneracy.WithDetails(map[string]any{
			"reason": "no land-cover class in the window appears in the C-factor table",
			"window": window.String(),
		})
	}

	windowMean := stat.Mean(matched, nil)
	filled := 0
	for i, v := range out.Data {
		if math.IsNaN(v) {
			out.Data[i] = windowMean
			filled++
		}
	}

	mask, err := raster.Sample(ws, out.Meta(), 0)
	if err != nil {
		return nil, err
	}
	inside := make([]float64, 0, len(out.Data))
	for i, m := range mask.Data {
		if m == 0 || math.IsNaN(m) {
			out.Data[i] = math.NaN()
			continue
		}
		inside = append(inside, out.Data[i])
	}
	if len(inside) == 0 {
		return nil, ErrNumericDegeneracy.WithDetails(map[string]any{
			"reason": "no land-cover cell falls inside the watershed",
			"window": window.String(),
		})
	}

	return &CFactorResult{
		Grid:        out,
		Mean:        stat.Mean(inside, nil),
		Window:      window,
		WindowMean:  windowMean,
		FilledCells: filled,
	}, nil
}
