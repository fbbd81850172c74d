package hydro

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"floodfactor/internal/raster"
	"floodfactor/internal/types"
)

// Algorithm selects the flood-fill implementation.
type Algorithm string

const (
	// AlgorithmUnitStep raises the lowest water surface one meter at a time.
	AlgorithmUnitStep Algorithm = "unit"
	// AlgorithmQueue raises a single pool continuously through sorted levels.
	AlgorithmQueue Algorithm = "queue"
)

// Simulation defaults.
const (
	DefaultCellArea      = 900.0 // 30 m x 30 m
	DefaultMaxIterations = 1_000_000
)

// SimulationOptions tunes a flood simulation. Zero values take defaults.
type SimulationOptions struct {
	CellArea      float64
	MaxIterations int
	// Workers bounds the goroutines scanning the grid in each iteration of
	// the unit-step fill. 0 means GOMAXPROCS.
	Workers int
	// Progress, when set, is called after every iteration with a view of the
	// current state. The depth slice must not be retained or modified.
	Progress func(FloodState)
}

func (o SimulationOptions) withDefaults() SimulationOptions {
	if o.CellArea == 0 {
		o.CellArea = DefaultCellArea
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// FloodState is the mutable water field during a simulation.
type FloodState struct {
	Depth     []float64
	Remaining float64
	Iteration int
}

// FloodResult is the frozen outcome of a simulation.
type FloodResult struct {
	// Depth is in meters; NaN where the DEM is undefined.
	Depth *raster.Grid
	// Mask is 1 where depth > 0 and 0 elsewhere.
	Mask       *raster.Grid
	Iterations int
	Volume     float64
	Algorithm  Algorithm
}

// Simulate dispatches to the configured algorithm.
func Simulate(alg Algorithm, dem *raster.Grid, volume float64, opts SimulationOptions) (*FloodResult, error) {
	switch alg {
	case AlgorithmUnitStep, "":
		return SimulateFlood(dem, volume, opts)
	case AlgorithmQueue:
		return SimulateFloodQueue(dem, volume, opts)
	default:
		return nil, fmt.Errorf("hydro: unknown flood algorithm %q", alg)
	}
}

// SimulateFlood distributes volume cubic meters over dem with the unit-step
// level-pool fill. Each iteration finds the global minimum water surface and
// raises every cell at that surface by one meter, or by the fraction of a
// meter the remaining volume allows.
//
// Each iteration reads the water surface as it stood at the end of the
// previous one, so the scan is split across opts.Workers row bands.
func SimulateFlood(dem *raster.Grid, volume float64, opts SimulationOptions) (*FloodResult, error) {
	opts = opts.withDefaults()
	cells, err := prepareSimulation(dem, volume, opts)
	if err != nil {
		return nil, err
	}

	state := FloodState{Depth: initialDepth(dem), Remaining: volume}
	bands := splitBands(len(cells), opts.Workers)
	mins := make([]float64, len(bands))
	members := make([][]int, len(bands))

	for state.Remaining > 0 {
		if state.Iteration >= opts.MaxIterations {
			return nil, iterationLimit(opts.MaxIterations, state.Remaining, volume)
		}
		state.Iteration++

		// Reduce: global minimum water surface.
		runBands(bands, func(b int, lo, hi int) {
			m := math.Inf(1)
			for _, i := range cells[lo:hi] {
				if s := dem.Data[i] + state.Depth[i]; s < m {
					m = s
				}
			}
			mins[b] = m
		})
		minSurface := math.Inf(1)
		for _, m := range mins {
			minSurface = math.Min(minSurface, m)
		}

		// Mark: cells sitting exactly at the minimum.
		runBands(bands, func(b int, lo, hi int) {
			set := members[b][:0]
			for _, i := range cells[lo:hi] {
				if dem.Data[i]+state.Depth[i] == minSurface {
					set = append(set, i)
				}
			}
			members[b] = set
		})
		n := 0
		for _, set := range members {
			n += len(set)
		}
		if n == 0 {
			return nil, ErrNumericDegeneracy.WithDetails(map[string]any{
				"reason":    "no cell matched the minimum water surface",
				"iteration": state.Iteration,
			})
		}

		perUnit := float64(n) * opts.CellArea
		rise := 1.0
		if state.Remaining >= perUnit {
			state.Remaining -= perUnit
		} else {
			rise = state.Remaining / perUnit
			state.Remaining = 0
		}

		// Update.
		runBands(bands, func(b int, _, _ int) {
			for _, i := range members[b] {
				state.Depth[i] += rise
			}
		})

		if opts.Progress != nil {
			opts.Progress(state)
		}
	}

	return freeze(dem, state, volume, AlgorithmUnitStep), nil
}

// prepareSimulation validates inputs and returns the indices of defined DEM
// cells in row-major order.
func prepareSimulation(dem *raster.Grid, volume float64, opts SimulationOptions) ([]int, error) {
	if err := dem.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidVolume,
			fmt.Sprintf("runoff volume must be a finite non-negative number, got %v", volume), nil)
	}
	if !(opts.CellArea > 0) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidGrid,
			fmt.Sprintf("cell area must be positive, got %v", opts.CellArea), nil)
	}

	cells := make([]int, 0, len(dem.Data))
	for i, z := range dem.Data {
		if !math.IsNaN(z) {
			cells = append(cells, i)
		}
	}
	if len(cells) == 0 {
		return nil, ErrNumericDegeneracy.WithDetails(map[string]any{
			"reason": "DEM has no defined cells; volume per unit rise is zero",
		})
	}
	return cells, nil
}

func initialDepth(dem *raster.Grid) []float64 {
	depth := make([]float64, len(dem.Data))
	for i, z := range dem.Data {
		if math.IsNaN(z) {
			depth[i] = math.NaN()
		}
	}
	return depth
}

func iterationLimit(limit int, remaining, volume float64) error {
	return ErrIterationLimit.WithDetails(map[string]any{
		"max_iterations":   limit,
		"remaining_volume": remaining,
		"total_volume":     volume,
	})
}

func freeze(dem *raster.Grid, state FloodState, volume float64, alg Algorithm) *FloodResult {
	depth := dem.Like()
	depth.NoData = math.NaN()
	copy(depth.Data, state.Depth)

	mask := dem.Like()
	mask.NoData = 0
	for i, d := range depth.Data {
		if d > 0 {
			mask.Data[i] = 1
		}
	}
	return &FloodResult{
		Depth:      depth,
		Mask:       mask,
		Iterations: state.Iteration,
		Volume:     volume,
		Algorithm:  alg,
	}
}

type band struct{ lo, hi int }

// splitBands partitions n items into at most workers contiguous ranges.
func splitBands(n, workers int) []band {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	size := (n + workers - 1) / workers
	out := make([]band, 0, workers)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, band{lo, hi})
	}
	return out
}

// runBands calls fn for every band, concurrently when there is more than one.
func runBands(bands []band, fn func(b, lo, hi int)) {
	if len(bands) == 1 {
		fn(0, bands[0].lo, bands[0].hi)
		return
	}
	var g errgroup.Group
	for b, r := range bands {
		g.Go(func() error {
			fn(b, r.lo, r.hi)
			return nil
		})
	}
	_ = g.Wait()
}
