package hydro

import (
	"container/heap"
	"math"

	"floodfactor/internal/raster"
)

// SimulateFloodQueue distributes volume with a continuous level-pool fill.
// Cells enter a single pool in order of elevation from a min-heap; the pool
// surface rises continuously to the next distinct elevation until the
// remaining volume is exhausted, and the final level is solved exactly.
//
// This variant does not reproduce the whole-meter steps of SimulateFlood.
// It conserves volume to the same tolerance and agrees with it whenever the
// unit-step fill never overshoots a level, e.g. on flat or terraced terrain.
// Iterations counts the distinct elevation levels absorbed into the pool.
func SimulateFloodQueue(dem *raster.Grid, volume float64, opts SimulationOptions) (*FloodResult, error) {
	opts = opts.withDefaults()
	cells, err := prepareSimulation(dem, volume, opts)
	if err != nil {
		return nil, err
	}

	state := FloodState{Depth: initialDepth(dem), Remaining: volume}
	if volume == 0 {
		return freeze(dem, state, volume, AlgorithmQueue), nil
	}

	h := make(cellHeap, len(cells))
	for k, i := range cells {
		h[k] = heapCell{index: i, elev: dem.Data[i]}
	}
	heap.Init(&h)

	// Volumes below are in cell-meters: cubic meters divided by cell area.
	need := volume / opts.CellArea
	var pool []int
	var sum float64
	var level float64

	for {
		if state.Iteration >= opts.MaxIterations {
			return nil, iterationLimit(opts.MaxIterations, need*opts.CellArea, volume)
		}
		state.Iteration++

		next := h[0].elev
		for h.Len() > 0 && h[0].elev == next {
			c := heap.Pop(&h).(heapCell)
			pool = append(pool, c.index)
			sum += c.elev
		}
		k := float64(len(pool))

		if h.Len() == 0 {
			level = (need + sum) / k
			break
		}
		// Volume needed to bring the whole pool up to the next level.
		if capacity := k*h[0].elev - sum; need <= capacity {
			level = (need + sum) / k
			break
		}
	}

	for _, i := range pool {
		state.Depth[i] = math.Max(0, level-dem.Data[i])
	}
	state.Remaining = 0
	if opts.Progress != nil {
		opts.Progress(state)
	}
	return freeze(dem, state, volume, AlgorithmQueue), nil
}

type heapCell struct {
	index int
	elev  float64
}

// cellHeap orders cells by elevation, then by row-major index so pops are
// deterministic.
type cellHeap []heapCell

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(a, b int) bool {
	if h[a].elev != h[b].elev {
		return h[a].elev < h[b].elev
	}
	return h[a].index < h[b].index
}
func (h cellHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }

func (h *cellHeap) Push(x any) { *h = append(*h, x.(heapCell)) }

func (h *cellHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
