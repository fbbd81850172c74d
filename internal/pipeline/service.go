package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"floodfactor/internal/types"
	"floodfactor/internal/workspace"
)

// Runner executes one flood run. *Pipeline is the production implementation.
type Runner interface {
	Run(ctx context.Context, runID string, req types.FloodRequest) (*types.FloodResult, error)
}

// ErrAsyncDisabled is returned for async requests when no queue is wired.
var ErrAsyncDisabled = types.NewAppError(types.ErrCodeValidationInvalidRequest,
	"asynchronous runs are not enabled on this deployment", nil)

// Service owns the run lifecycle: it records each run, executes it inline or
// hands it to the queue, and persists the outcome.
type Service struct {
	runner     Runner
	repo       types.RunRepository
	store      workspace.Store
	publisher  types.RunPublisher
	metrics    types.MetricsPublisher
	clock      types.Clock
	logger     *slog.Logger
	runTimeout time.Duration
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithPublisher enables asynchronous runs.
func WithPublisher(p types.RunPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics publishes run outcomes after each execution.
func WithMetrics(m types.MetricsPublisher) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces the wall clock used for run timestamps.
func WithClock(c types.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithRunTimeout bounds a single execution. Zero means no bound beyond the
// caller's context.
func WithRunTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.runTimeout = d }
}

// NewService creates a Service. Runs are synchronous until WithPublisher is
// given.
func NewService(runner Runner, repo types.RunRepository, store workspace.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		runner: runner,
		repo:   repo,
		store:  store,
		clock:  types.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AsyncEnabled reports whether Submit can queue runs.
func (s *Service) AsyncEnabled() bool { return s.publisher != nil }

// Submit validates req and records a new run. Async requests are queued and
// returned in the queued state; others execute before Submit returns.
func (s *Service) Submit(ctx context.Context, req types.FloodRequest) (*types.FloodRun, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Async && s.publisher == nil {
		return nil, ErrAsyncDisabled
	}

	run := &types.FloodRun{
		ID:        uuid.NewString(),
		Status:    types.RunStatusQueued,
		Request:   req,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, err
	}
	logger := s.logger.With("run_id", run.ID)

	if req.Async {
		msg := types.RunMessage{
			RunID:      run.ID,
			Request:    req,
			TraceID:    types.GetRequestID(ctx),
			EnqueuedAt: s.clock.Now(),
		}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "failed to enqueue run", "error", err)
			_ = s.repo.Fail(ctx, run.ID, types.CodeOf(err), "failed to enqueue run", s.clock.Now())
			return nil, err
		}
		logger.InfoContext(ctx, "run queued")
		return run, nil
	}

	return s.Execute(ctx, run.ID, req)
}

// Execute runs a recorded run and persists its outcome. Runs that already
// reached a terminal state are returned unchanged so redelivered queue
// messages are harmless. A pipeline failure is recorded on the run and the
// failed run is returned together with the error.
func (s *Service) Execute(ctx context.Context, runID string, req types.FloodRequest) (*types.FloodRun, error) {
	existing, err := s.repo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if existing.Status.IsTerminal() {
		s.logger.InfoContext(ctx, "run already finished", "run_id", runID, "status", existing.Status)
		return existing, nil
	}

	if err := s.repo.MarkRunning(ctx, runID, s.clock.Now()); err != nil {
		return nil, err
	}

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	start := time.Now()
	result, runErr := s.runner.Run(runCtx, runID, req)
	if errors.Is(runErr, context.DeadlineExceeded) {
		runErr = types.NewAppError(types.ErrCodeInternalUnexpected, "run exceeded its time limit", runErr)
	}
	if s.metrics != nil {
		alg := ""
		if result != nil {
			alg = result.Algorithm
		}
		s.metrics.RecordRun(ctx, alg, time.Since(start), result, runErr)
	}

	// Persist with a context that survives the run deadline.
	persistCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		code, msg := failureOf(runErr)
		s.logger.ErrorContext(ctx, "run failed", "run_id", runID, "code", code, "error", runErr)
		if err := s.repo.Fail(persistCtx, runID, code, msg, s.clock.Now()); err != nil {
			return nil, err
		}
		failed, err := s.repo.Get(persistCtx, runID)
		if err != nil {
			return nil, err
		}
		return failed, runErr
	}

	if err := s.repo.Complete(persistCtx, runID, result, s.clock.Now()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "run succeeded", "run_id", runID,
		"flooded_area_km2", result.FloodedAreaKm2, "duration_ms", time.Since(start).Milliseconds())
	return s.repo.Get(persistCtx, runID)
}

// Get returns a run by id.
func (s *Service) Get(ctx context.Context, id string) (*types.FloodRun, error) {
	return s.repo.Get(ctx, id)
}

// List pages through runs, newest first.
func (s *Service) List(ctx context.Context, limit int, cursor string) ([]*types.FloodRun, types.PageInfo, error) {
	return s.repo.List(ctx, limit, cursor)
}

// OpenArtifact streams an artifact of a succeeded run.
func (s *Service) OpenArtifact(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	if err := types.ValidateArtifactName(name); err != nil {
		return nil, err
	}
	run, err := s.repo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunStatusSucceeded {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictRunState,
			"artifacts are only available for succeeded runs", nil,
			map[string]any{"run_id": runID, "status": run.Status})
	}
	return s.store.Open(ctx, runID, name)
}

// failureOf extracts the persisted code and message. Unknown errors keep
// their text out of the record.
func failureOf(err error) (types.ErrorCode, string) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrCodeInternalUnexpected, "run was cancelled"
	}
	return types.ErrCodeInternalUnexpected, "unexpected error"
}
