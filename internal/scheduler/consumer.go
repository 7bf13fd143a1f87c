package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"automata/internal/types"
)

// TaskQueue is the slice of the task store the consumer drives.
type TaskQueue interface {
	ClaimNext(ctx context.Context) (*types.Task, error)
	MarkCompleted(ctx context.Context, id string, message string) error
	Requeue(ctx context.Context, id string, nextRetryAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// TaskMetrics records per-task outcome metrics. Satisfied by
// metrics.Publisher.
type TaskMetrics interface {
	RecordTask(ctx context.Context, taskType types.TaskType, status types.TaskStatus, duration time.Duration)
}

// ConsumerConfig holds the dependencies for a Consumer.
type ConsumerConfig struct {
	Queue    TaskQueue
	Registry *Registry
	Metrics  TaskMetrics
	Budget   time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Consumer drains claimed tasks within a soft time budget. The budget is
// checked between tasks only; a task that starts inside the budget runs to
// completion, which is why the budget must stay comfortably under the
// invoking runtime's hard timeout.
type Consumer struct {
	queue    TaskQueue
	registry *Registry
	metrics  TaskMetrics
	budget   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewConsumer wires a Consumer from its config, defaulting Now to time.Now.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Consumer{
		queue:    cfg.Queue,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		budget:   cfg.Budget,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Run claims and executes due tasks until the queue is empty or the budget
// is spent, returning the number of tasks processed. Handler failures are
// absorbed into the task's retry state and never abort the loop; only a
// claim-level storage error does.
func (c *Consumer) Run(ctx context.Context) (int, error) {
	deadline := c.now().Add(c.budget)

	processed := 0
	for c.now().Before(deadline) {
		task, err := c.queue.ClaimNext(ctx)
		if err != nil {
			return processed, err
		}
		if task == nil {
			break
		}

		c.processOne(ctx, task)
		processed++
	}

	return processed, nil
}

func (c *Consumer) processOne(ctx context.Context, task *types.Task) {
	start := c.now()
	summary, err := c.registry.Dispatch(ctx, task)
	elapsed := c.now().Sub(start)

	if err == nil {
		if mErr := c.queue.MarkCompleted(ctx, task.ID, summary); mErr != nil {
			c.logger.ErrorContext(ctx, "failed to mark task completed",
				slog.String("task_id", task.ID), slog.Any("error", mErr))
		}
		c.recordTask(ctx, task.TaskType, types.TaskStatusCompleted, elapsed)
		c.logger.InfoContext(ctx, "task completed",
			slog.String("task_id", task.ID),
			slog.String("task_type", string(task.TaskType)),
			slog.String("summary", summary),
			slog.Duration("duration", elapsed))
		return
	}

	if isTerminal(err) || task.RetryCount+1 > task.MaxRetries {
		if mErr := c.queue.MarkFailed(ctx, task.ID, err.Error()); mErr != nil {
			c.logger.ErrorContext(ctx, "failed to mark task failed",
				slog.String("task_id", task.ID), slog.Any("error", mErr))
		}
		c.recordTask(ctx, task.TaskType, types.TaskStatusFailed, elapsed)
		c.logger.ErrorContext(ctx, "task failed terminally",
			slog.String("task_id", task.ID),
			slog.String("task_type", string(task.TaskType)),
			slog.Int("retry_count", task.RetryCount),
			slog.Any("error", err))
		return
	}

	// Requeue bumps retry_count, so the delay is sized for the attempt
	// count after this failure.
	nextRetryAt := NextRetryAt(c.now(), task.RetryCount+1)
	if rErr := c.queue.Requeue(ctx, task.ID, nextRetryAt, err.Error()); rErr != nil {
		c.logger.ErrorContext(ctx, "failed to requeue task",
			slog.String("task_id", task.ID), slog.Any("error", rErr))
	}
	c.recordTask(ctx, task.TaskType, types.TaskStatusPending, elapsed)
	c.logger.WarnContext(ctx, "task requeued after failure",
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.TaskType)),
		slog.Int("retry_count", task.RetryCount),
		slog.Time("next_retry_at", nextRetryAt),
		slog.Any("error", err))
}

func (c *Consumer) recordTask(ctx context.Context, taskType types.TaskType, status types.TaskStatus, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTask(ctx, taskType, status, elapsed)
}

// isTerminal reports whether the dispatch error must never be retried.
func isTerminal(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeInternalNoHandler
}
