package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"floodfactor/internal/types"
)

// MemoryRunRepository keeps runs in process memory. It applies the same
// status rules as RunRepository and is used when no DATABASE_URL is set.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*types.FloodRun
}

var _ types.RunRepository = (*MemoryRunRepository)(nil)

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*types.FloodRun)}
}

// clone returns a copy so callers never share state with the store.
func clone(run *types.FloodRun) *types.FloodRun {
	c := *run
	if run.Result != nil {
		res := *run.Result
		res.Artifacts = append([]types.Artifact(nil), run.Result.Artifacts...)
		c.Result = &res
	}
	if run.Request.BBox != nil {
		b := *run.Request.BBox
		c.Request.BBox = &b
	}
	if run.StartedAt != nil {
		t := *run.StartedAt
		c.StartedAt = &t
	}
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

func (m *MemoryRunRepository) Create(_ context.Context, run *types.FloodRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictRunState, "run already exists", nil,
			map[string]any{"run_id": run.ID})
	}
	m.runs[run.ID] = clone(run)
	return nil
}

func (m *MemoryRunRepository) Get(_ context.Context, id string) (*types.FloodRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, runNotFound(id)
	}
	return clone(run), nil
}

// update applies fn to the stored run if its status is one of from.
func (m *MemoryRunRepository) update(id string, to types.RunStatus, fn func(*types.FloodRun), from ...types.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return runNotFound(id)
	}
	for _, s := range from {
		if run.Status == s {
			run.Status = to
			fn(run)
			return nil
		}
	}
	return invalidTransition(id, run.Status, to)
}

func (m *MemoryRunRepository) MarkRunning(_ context.Context, id string, at time.Time) error {
	return m.update(id, types.RunStatusRunning, func(r *types.FloodRun) {
		r.StartedAt = &at
	}, types.RunStatusQueued, types.RunStatusRunning)
}

func (m *MemoryRunRepository) Complete(_ context.Context, id string, result *types.FloodResult, at time.Time) error {
	return m.update(id, types.RunStatusSucceeded, func(r *types.FloodRun) {
		res := *result
		r.Result = &res
		r.FinishedAt = &at
	}, types.RunStatusRunning)
}

func (m *MemoryRunRepository) Fail(_ context.Context, id string, code types.ErrorCode, message string, at time.Time) error {
	return m.update(id, types.RunStatusFailed, func(r *types.FloodRun) {
		r.ErrorCode = code
		r.ErrorMessage = message
		r.FinishedAt = &at
	}, types.RunStatusQueued, types.RunStatusRunning)
}

// List orders runs like RunRepository: newest first, id descending on ties.
func (m *MemoryRunRepository) List(_ context.Context, limit int, cursor string) ([]*types.FloodRun, types.PageInfo, error) {
	limit = types.ClampPageSize(limit)

	var (
		after   time.Time
		afterID string
	)
	if cursor != "" {
		var err error
		after, afterID, err = parseCursor(cursor)
		if err != nil {
			return nil, types.PageInfo{}, err
		}
	}

	m.mu.RLock()
	all := make([]*types.FloodRun, 0, len(m.runs))
	for _, run := range m.runs {
		all = append(all, clone(run))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var results []*types.FloodRun
	for _, run := range all {
		if cursor != "" && !before(run, after, afterID) {
			continue
		}
		results = append(results, run)
		if len(results) > limit {
			break
		}
	}
	return paginate(results, limit)
}

// before reports whether run sorts after the cursor position, i.e.
// (created_at, id) < (at, id).
func before(run *types.FloodRun, at time.Time, id string) bool {
	if run.CreatedAt.Equal(at) {
		return run.ID < id
	}
	return run.CreatedAt.Before(at)
}
