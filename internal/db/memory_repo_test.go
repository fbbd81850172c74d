package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodfactor/internal/types"
)

func TestMemoryRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepository()
	run := newTestRun("r1")

	require.NoError(t, repo.Create(ctx, run))
	assert.Equal(t, types.ErrCodeConflictRunState, types.CodeOf(repo.Create(ctx, run)))

	// Complete requires running.
	err := repo.Complete(ctx, "r1", &types.FloodResult{}, testNow)
	assert.Equal(t, types.ErrCodeConflictRunState, types.CodeOf(err))

	require.NoError(t, repo.MarkRunning(ctx, "r1", testNow))
	require.NoError(t, repo.MarkRunning(ctx, "r1", testNow), "redelivery may restart a running run")

	result := &types.FloodResult{RunID: "r1", FloodedAreaKm2: 2.5, Artifacts: []types.Artifact{{Name: "flood_depth.asc"}}}
	finished := testNow.Add(time.Minute)
	require.NoError(t, repo.Complete(ctx, "r1", result, finished))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, got.Status)
	assert.Equal(t, result, got.Result)
	assert.Equal(t, testNow, *got.StartedAt)
	assert.Equal(t, finished, *got.FinishedAt)

	// Terminal runs accept no further transitions.
	assert.Equal(t, types.ErrCodeConflictRunState, types.CodeOf(repo.MarkRunning(ctx, "r1", testNow)))
	assert.Equal(t, types.ErrCodeConflictRunState, types.CodeOf(repo.Fail(ctx, "r1", types.ErrCodeToolkitFailed, "x", testNow)))
}

func TestMemoryRunRepository_FailQueued(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepository()
	require.NoError(t, repo.Create(ctx, newTestRun("r1")))

	require.NoError(t, repo.Fail(ctx, "r1", types.ErrCodeUpstreamQueue, "enqueue failed", testNow))
	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, got.Status)
	assert.Equal(t, types.ErrCodeUpstreamQueue, got.ErrorCode)
	assert.Equal(t, "enqueue failed", got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
}

func TestMemoryRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepository()

	_, err := repo.Get(ctx, "nope")
	assert.Equal(t, types.ErrCodeNotFoundRun, types.CodeOf(err))
	assert.Equal(t, types.ErrCodeNotFoundRun, types.CodeOf(repo.MarkRunning(ctx, "nope", testNow)))
}

func TestMemoryRunRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepository()
	run := newTestRun("r1")
	run.Request.BBox = &types.BoundingBox{West: 1, South: 2, East: 3, North: 4}
	require.NoError(t, repo.Create(ctx, run))

	run.Request.BBox.West = 99
	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Request.BBox.West)

	got.Status = types.RunStatusFailed
	again, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusQueued, again.Status)
}

func TestMemoryRunRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRunRepository()

	// Five runs; two share a timestamp to exercise the id tie-break.
	for i := 0; i < 5; i++ {
		run := newTestRun(fmt.Sprintf("run-%d", i))
		run.CreatedAt = testNow.Add(time.Duration(i/2*-1) * time.Hour)
		require.NoError(t, repo.Create(ctx, run))
	}

	var seen []string
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		runs, page, err := repo.List(ctx, 2, cursor)
		require.NoError(t, err)
		for _, r := range runs {
			seen = append(seen, r.ID)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"run-1", "run-0", "run-3", "run-2", "run-4"}, seen)

	_, _, err := repo.List(ctx, 2, "garbage")
	assert.Equal(t, types.ErrCodeValidationInvalidRequest, types.CodeOf(err))
}
