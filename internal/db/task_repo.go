package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"automata/internal/types"
)

// taskColumns is the column list shared by every query that scans a full
// task row. Order must match scanTask.
const taskColumns = `id, task_type, payload, status, retry_count, max_retries,
	next_retry_at, execution_history, error_message, priority,
	created_at, updated_at, started_at, completed_at`

// TaskRepository provides data access for the task_queue table.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a new TaskRepository backed by the given
// database connection (pool or transaction).
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// HasPending reports whether an unclaimed task of the given type already
// exists. The orchestrator uses this to avoid enqueueing duplicates for the
// same schedule; a row already claimed for processing does not block a new
// enqueue. The check-then-insert pair is not atomic; a rare duplicate slips
// through and is tolerated downstream, where each handler is idempotent.
func (r *TaskRepository) HasPending(ctx context.Context, taskType types.TaskType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM task_queue
		   WHERE task_type = $1
		     AND status = 'pending'
		     AND is_deleted = FALSE
		 )`,
		string(taskType),
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check for pending task", err)
	}
	return exists, nil
}

// Create inserts a new pending task and returns its generated ID.
// A nil payload is stored as SQL NULL.
func (r *TaskRepository) Create(ctx context.Context, taskType types.TaskType, payload json.RawMessage, priority int) (string, error) {
	id := uuid.NewString()

	_, err := r.db.Exec(ctx,
		`INSERT INTO task_queue
		   (id, task_type, payload, status, retry_count, max_retries,
		    execution_history, priority, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, 'pending', 0, 3, '[]'::jsonb, $4, FALSE, NOW(), NOW())`,
		id,
		string(taskType),
		payload,
		priority,
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to create task", err)
	}
	return id, nil
}

// ClaimNext atomically claims the highest-priority due pending task and
// transitions it to processing. Returns (nil, nil) when no task is due.
//
// The inner SELECT uses FOR UPDATE SKIP LOCKED so concurrent consumers never
// claim the same row: a row locked by one claimer is invisible to the others
// rather than blocking them.
func (r *TaskRepository) ClaimNext(ctx context.Context) (*types.Task, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE task_queue
		 SET status = 'processing', started_at = NOW(), updated_at = NOW()
		 WHERE id = (
		   SELECT id FROM task_queue
		   WHERE status = 'pending'
		     AND is_deleted = FALSE
		     AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		   ORDER BY priority DESC, created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+taskColumns,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim next task", err)
	}
	return task, nil
}

// MarkCompleted transitions a processing task to completed and appends an
// execution history entry recording the outcome.
func (r *TaskRepository) MarkCompleted(ctx context.Context, id string, message string) error {
	entry, err := historyEntry(types.TaskStatusCompleted, message)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE task_queue
		 SET status = 'completed',
		     completed_at = NOW(),
		     updated_at = NOW(),
		     error_message = NULL,
		     execution_history = execution_history || $2::jsonb
		 WHERE id = $1 AND status = 'processing'`,
		id,
		entry,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark task completed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTaskState, "task is not in processing state", nil)
	}
	return nil
}

// Requeue returns a failed attempt to the pending state with an incremented
// retry count and the scheduled next attempt time.
func (r *TaskRepository) Requeue(ctx context.Context, id string, nextRetryAt time.Time, errMsg string) error {
	entry, err := historyEntry(types.TaskStatusPending, errMsg)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE task_queue
		 SET status = 'pending',
		     retry_count = retry_count + 1,
		     next_retry_at = $2,
		     error_message = $3,
		     updated_at = NOW(),
		     execution_history = execution_history || $4::jsonb
		 WHERE id = $1 AND status = 'processing'`,
		id,
		nextRetryAt,
		errMsg,
		entry,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to requeue task", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTaskState, "task is not in processing state", nil)
	}
	return nil
}

// MarkFailed transitions a task to the terminal failed state after its
// retry budget is exhausted.
func (r *TaskRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	entry, err := historyEntry(types.TaskStatusFailed, errMsg)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE task_queue
		 SET status = 'failed',
		     error_message = $2,
		     completed_at = NOW(),
		     updated_at = NOW(),
		     execution_history = execution_history || $3::jsonb
		 WHERE id = $1 AND status = 'processing'`,
		id,
		errMsg,
		entry,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark task failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTaskState, "task is not in processing state", nil)
	}
	return nil
}

// GetByID fetches a single task. Returns a not-found AppError when no row
// matches.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*types.Task, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM task_queue WHERE id = $1 AND is_deleted = FALSE`,
		id,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTask, "task not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch task", err)
	}
	return task, nil
}

// scanTask reads one full task row.
func scanTask(row pgx.Row) (*types.Task, error) {
	var t types.Task
	err := row.Scan(
		&t.ID,
		&t.TaskType,
		&t.Payload,
		&t.Status,
		&t.RetryCount,
		&t.MaxRetries,
		&t.NextRetryAt,
		&t.ExecutionHistory,
		&t.ErrorMessage,
		&t.Priority,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.StartedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// historyEntry marshals one execution history element as a single-element
// JSON array, ready for the || jsonb append operator.
func historyEntry(status types.TaskStatus, message string) ([]byte, error) {
	raw, err := json.Marshal([]types.ExecutionEntry{{
		At:      time.Now().UTC(),
		Status:  status,
		Message: message,
	}})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode execution history entry", err)
	}
	return raw, nil
}
