package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"floodfactor/internal/db"
	"floodfactor/internal/types"
	"floodfactor/internal/workspace"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, runID string, req types.FloodRequest) (*types.FloodResult, error) {
	args := m.Called(ctx, runID, req)
	res, _ := args.Get(0).(*types.FloodResult)
	return res, args.Error(1)
}

type fakePublisher struct {
	msgs []types.RunMessage
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg types.RunMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type recordedRun struct {
	algorithm string
	err       error
}

type fakeMetrics struct {
	runs []recordedRun
}

func (f *fakeMetrics) RecordRun(_ context.Context, algorithm string, _ time.Duration, _ *types.FloodResult, err error) {
	f.runs = append(f.runs, recordedRun{algorithm: algorithm, err: err})
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func writeText(path, s string) error {
	return os.WriteFile(path, []byte(s), 0o644)
}

var serviceNow = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, runner Runner, opts ...ServiceOption) (*Service, *db.MemoryRunRepository, *workspace.LocalStore) {
	t.Helper()
	repo := db.NewMemoryRunRepository()
	store := workspace.NewLocalStore(t.TempDir())
	opts = append([]ServiceOption{WithClock(fixedClock{serviceNow})}, opts...)
	return NewService(runner, repo, store, nil, opts...), repo, store
}

func TestService_SubmitSync(t *testing.T) {
	runner := new(mockRunner)
	metrics := &fakeMetrics{}
	svc, _, _ := newTestService(t, runner, WithMetrics(metrics))

	runner.On("Run", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(r types.FloodRequest) bool {
		return r.Address == "Dhaka" && r.RainfallIntensity == 2 && r.DurationHours == 150
	})).Return(&types.FloodResult{FloodedAreaKm2: 3.2, Algorithm: "unit"}, nil)

	run, err := svc.Submit(context.Background(), types.FloodRequest{Address: "Dhaka"})
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 3.2, run.Result.FloodedAreaKm2)
	assert.Equal(t, serviceNow, run.CreatedAt)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)

	require.Len(t, metrics.runs, 1)
	assert.Equal(t, "unit", metrics.runs[0].algorithm)
	assert.NoError(t, metrics.runs[0].err)
	runner.AssertExpectations(t)
}

func TestService_SubmitSyncFailure(t *testing.T) {
	runner := new(mockRunner)
	svc, repo, _ := newTestService(t, runner)

	runErr := types.NewAppError(types.ErrCodeChannelNotFound, "no channel here", nil)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, runErr)

	run, err := svc.Submit(context.Background(), types.FloodRequest{Address: "Dhaka"})
	require.ErrorIs(t, err, runErr)
	require.NotNil(t, run)
	assert.Equal(t, types.RunStatusFailed, run.Status)
	assert.Equal(t, types.ErrCodeChannelNotFound, run.ErrorCode)
	assert.Equal(t, "no channel here", run.ErrorMessage)

	stored, err := repo.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, stored.Status)
}

func TestService_SubmitValidation(t *testing.T) {
	runner := new(mockRunner)
	svc, _, _ := newTestService(t, runner)

	_, err := svc.Submit(context.Background(), types.FloodRequest{RainfallIntensity: 3})
	assert.Equal(t, types.ErrCodeValidationMissingField, types.CodeOf(err))

	_, err = svc.Submit(context.Background(), types.FloodRequest{Address: "x", Async: true})
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SubmitAsync(t *testing.T) {
	runner := new(mockRunner)
	pub := &fakePublisher{}
	svc, _, _ := newTestService(t, runner, WithPublisher(pub))
	assert.True(t, svc.AsyncEnabled())

	ctx := types.WithRequestID(context.Background(), "req-42")
	run, err := svc.Submit(ctx, types.FloodRequest{Address: "Dhaka", Async: true})
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusQueued, run.Status)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, run.ID, pub.msgs[0].RunID)
	assert.Equal(t, "req-42", pub.msgs[0].TraceID)
	assert.Equal(t, serviceNow, pub.msgs[0].EnqueuedAt)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SubmitAsyncPublishError(t *testing.T) {
	runner := new(mockRunner)
	pub := &fakePublisher{err: types.NewAppError(types.ErrCodeUpstreamQueue, "sqs down", nil)}
	svc, repo, _ := newTestService(t, runner, WithPublisher(pub))

	_, err := svc.Submit(context.Background(), types.FloodRequest{Address: "Dhaka", Async: true})
	assert.Equal(t, types.ErrCodeUpstreamQueue, types.CodeOf(err))

	runs, _, err := repo.List(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.RunStatusFailed, runs[0].Status)
	assert.Equal(t, types.ErrCodeUpstreamQueue, runs[0].ErrorCode)
}

func TestService_ExecuteQueuedRun(t *testing.T) {
	runner := new(mockRunner)
	svc, repo, _ := newTestService(t, runner)
	ctx := context.Background()

	req := types.FloodRequest{Address: "Dhaka", Async: true}.WithDefaults()
	require.NoError(t, repo.Create(ctx, &types.FloodRun{ID: "run-1", Status: types.RunStatusQueued, Request: req, CreatedAt: serviceNow}))

	runner.On("Run", mock.Anything, "run-1", req).Return(&types.FloodResult{RunID: "run-1"}, nil).Once()

	run, err := svc.Execute(ctx, "run-1", req)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, run.Status)

	// Redelivery of a finished run is a no-op.
	again, err := svc.Execute(ctx, "run-1", req)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, again.Status)
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestService_ExecuteUnknownRun(t *testing.T) {
	svc, _, _ := newTestService(t, new(mockRunner))
	_, err := svc.Execute(context.Background(), "missing", types.FloodRequest{Address: "x"})
	assert.Equal(t, types.ErrCodeNotFoundRun, types.CodeOf(err))
}

func TestService_ExecuteTimeout(t *testing.T) {
	runner := new(mockRunner)
	svc, repo, _ := newTestService(t, runner, WithRunTimeout(10*time.Millisecond))
	ctx := context.Background()
	req := types.FloodRequest{Address: "Dhaka"}.WithDefaults()
	require.NoError(t, repo.Create(ctx, &types.FloodRun{ID: "run-1", Status: types.RunStatusQueued, Request: req, CreatedAt: serviceNow}))

	runner.On("Run", mock.Anything, "run-1", req).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	run, err := svc.Execute(ctx, "run-1", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, types.RunStatusFailed, run.Status)
	assert.Equal(t, "run exceeded its time limit", run.ErrorMessage)
}

func TestService_ExecuteHidesUnexpectedErrors(t *testing.T) {
	runner := new(mockRunner)
	svc, repo, _ := newTestService(t, runner)
	ctx := context.Background()
	req := types.FloodRequest{Address: "Dhaka"}.WithDefaults()
	require.NoError(t, repo.Create(ctx, &types.FloodRun{ID: "run-1", Status: types.RunStatusQueued, Request: req, CreatedAt: serviceNow}))

	runner.On("Run", mock.Anything, "run-1", req).Return(nil, errors.New("open /tmp/secret/path: permission denied"))

	run, err := svc.Execute(ctx, "run-1", req)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalUnexpected, run.ErrorCode)
	assert.Equal(t, "unexpected error", run.ErrorMessage)
}

func TestService_OpenArtifact(t *testing.T) {
	runner := new(mockRunner)
	svc, repo, store := newTestService(t, runner)
	ctx := context.Background()

	req := types.FloodRequest{Address: "Dhaka"}.WithDefaults()
	require.NoError(t, repo.Create(ctx, &types.FloodRun{ID: "run-1", Status: types.RunStatusQueued, Request: req, CreatedAt: serviceNow}))

	_, err := svc.OpenArtifact(ctx, "run-1", FileDepth)
	assert.Equal(t, types.ErrCodeConflictRunState, types.CodeOf(err))

	require.NoError(t, repo.MarkRunning(ctx, "run-1", serviceNow))
	require.NoError(t, repo.Complete(ctx, "run-1", &types.FloodResult{}, serviceNow))

	src := t.TempDir() + "/depth.asc"
	require.NoError(t, writeText(src, "ncols 1\n"))
	require.NoError(t, store.PutFile(ctx, "run-1", FileDepth, src))

	rc, err := svc.OpenArtifact(ctx, "run-1", FileDepth)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "ncols"))

	_, err = svc.OpenArtifact(ctx, "run-1", "missing.asc")
	assert.Equal(t, types.ErrCodeNotFoundArtifact, types.CodeOf(err))

	_, err = svc.OpenArtifact(ctx, "run-1", "../etc/passwd")
	assert.Equal(t, types.ErrCodeValidationInvalidArtifact, types.CodeOf(err))

	_, err = svc.OpenArtifact(ctx, "nope", FileDepth)
	assert.Equal(t, types.ErrCodeNotFoundRun, types.CodeOf(err))
}

func TestService_List(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(&types.FloodResult{}, nil)
	svc, _, _ := newTestService(t, runner)

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(context.Background(), types.FloodRequest{Address: "Dhaka"})
		require.NoError(t, err)
	}
	runs, page, err := svc.List(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.True(t, page.HasMore)

	got, err := svc.Get(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, runs[0].ID, got.ID)
}
