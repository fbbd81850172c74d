package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// RunRepository persists flood runs.
type RunRepository interface {
	Create(ctx context.Context, run *FloodRun) error
	Get(ctx context.Context, id string) (*FloodRun, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Complete(ctx context.Context, id string, result *FloodResult, at time.Time) error
	Fail(ctx context.Context, id string, code ErrorCode, message string, at time.Time) error
	List(ctx context.Context, limit int, cursor string) ([]*FloodRun, PageInfo, error)
}

// RunPublisher hands a queued run to the asynchronous worker.
type RunPublisher interface {
	Publish(ctx context.Context, msg RunMessage) error
}

// MetricsPublisher emits run-level telemetry.
type MetricsPublisher interface {
	RecordRun(ctx context.Context, algorithm string, duration time.Duration, result *FloodResult, err error)
}
