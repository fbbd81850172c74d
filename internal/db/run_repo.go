package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"floodfactor/internal/types"
)

// RunRepository provides data access for the flood_runs table. It implements
// types.RunRepository.
//
// Status transitions are enforced in SQL: queued -> running -> succeeded |
// failed, with queued -> failed allowed for runs that never started. A
// running run may be marked running again when a queue message is
// redelivered after a worker crash.
type RunRepository struct {
	db DBTX
}

var _ types.RunRepository = (*RunRepository)(nil)

func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, status, request, result, error_code, error_message,
	created_at, started_at, finished_at`

func scanRun(row pgx.Row) (*types.FloodRun, error) {
	var (
		run     types.FloodRun
		result  *types.FloodResult
		errCode *string
		errMsg  *string
	)
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.Request,
		&result,
		&errCode,
		&errMsg,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Result = result
	if errCode != nil {
		run.ErrorCode = types.ErrorCode(*errCode)
	}
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	return &run, nil
}

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *types.FloodRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO flood_runs (id, status, request, created_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.Status, run.Request, run.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create run", err)
	}
	return nil
}

// Get returns ErrCodeNotFoundRun when id is unknown.
func (r *RunRepository) Get(ctx context.Context, id string) (*types.FloodRun, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM flood_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, runNotFound(id)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve run", err)
	}
	return run, nil
}

func (r *RunRepository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE flood_runs SET status = 'running', started_at = $2
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		id, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark run running", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, types.RunStatusRunning)
	}
	return nil
}

func (r *RunRepository) Complete(ctx context.Context, id string, result *types.FloodResult, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE flood_runs SET status = 'succeeded', result = $2, finished_at = $3
		 WHERE id = $1 AND status = 'running'`,
		id, result, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete run", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, types.RunStatusSucceeded)
	}
	return nil
}

func (r *RunRepository) Fail(ctx context.Context, id string, code types.ErrorCode, message string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE flood_runs SET status = 'failed', error_code = $2, error_message = $3, finished_at = $4
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		id, string(code), message, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record run failure", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id, types.RunStatusFailed)
	}
	return nil
}

// transitionError distinguishes a missing run from one in the wrong state
// after an UPDATE matched no rows.
func (r *RunRepository) transitionError(ctx context.Context, id string, to types.RunStatus) error {
	run, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return invalidTransition(id, run.Status, to)
}

// List returns runs newest first. The cursor is opaque to clients; it
// encodes the creation time and id of the last run of the previous page.
// Uses a limit+1 fetch to determine HasMore without a COUNT query.
func (r *RunRepository) List(ctx context.Context, limit int, cursor string) ([]*types.FloodRun, types.PageInfo, error) {
	limit = types.ClampPageSize(limit)

	query := `SELECT ` + runColumns + ` FROM flood_runs`
	var args []any
	if cursor != "" {
		at, id, err := parseCursor(cursor)
		if err != nil {
			return nil, types.PageInfo{}, err
		}
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, at, id)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list runs", err)
	}
	defer rows.Close()

	var results []*types.FloodRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan run row", scanErr)
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating run rows", err)
	}

	return paginate(results, limit)
}

func paginate(results []*types.FloodRun, limit int) ([]*types.FloodRun, types.PageInfo, error) {
	var page types.PageInfo
	if len(results) > limit {
		page.HasMore = true
		page.NextCursor = formatCursor(results[limit-1])
		results = results[:limit]
	}
	return results, page, nil
}

func formatCursor(run *types.FloodRun) string {
	return run.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + run.ID
}

func parseCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	at, err := time.Parse(time.RFC3339Nano, ts)
	if !ok || err != nil || id == "" {
		return time.Time{}, "", types.NewAppError(types.ErrCodeValidationInvalidRequest, "invalid pagination cursor", err)
	}
	return at, id, nil
}

func runNotFound(id string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundRun, "run not found", nil, map[string]any{"run_id": id})
}

func invalidTransition(id string, from, to types.RunStatus) error {
	return types.NewAppErrorWithDetails(types.ErrCodeConflictRunState,
		fmt.Sprintf("run cannot move from %s to %s", from, to), nil,
		map[string]any{"run_id": id, "status": from})
}
