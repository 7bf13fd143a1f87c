package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"automata/internal/types"
)

// CronSource lists the active cron bindings to evaluate each tick.
type CronSource interface {
	ListActive(ctx context.Context) ([]types.CronConfig, error)
}

// TaskEnqueuer is the slice of the task store the orchestrator needs: a
// pending-dedup check and task creation.
type TaskEnqueuer interface {
	HasPending(ctx context.Context, taskType types.TaskType) (bool, error)
	Create(ctx context.Context, taskType types.TaskType, payload json.RawMessage, priority int) (string, error)
}

// OrchestratorConfig holds the dependencies for an Orchestrator.
type OrchestratorConfig struct {
	Crons   CronSource
	Tasks   TaskEnqueuer
	Matcher *Matcher
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator turns due cron bindings into pending tasks. It runs once per
// scheduler tick; the paired Consumer drains what it enqueues.
type Orchestrator struct {
	crons   CronSource
	tasks   TaskEnqueuer
	matcher *Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewOrchestrator wires an Orchestrator from its config, defaulting Now to
// time.Now.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		crons:   cfg.Crons,
		tasks:   cfg.Tasks,
		matcher: cfg.Matcher,
		logger:  cfg.Logger,
		now:     now,
	}
}

// Run evaluates every active cron binding against the current tick and
// enqueues one pending task per due type that does not already have a
// pending or processing task. It returns the number of tasks enqueued.
// Storage errors abort the invocation; the next tick retries naturally.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	now := o.now()

	configs, err := o.crons.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: failed to list cron configs: %w", err)
	}

	enqueued := 0
	for _, cfg := range configs {
		if !o.matcher.Matches(cfg.CronExpression, now) {
			continue
		}

		pending, err := o.tasks.HasPending(ctx, cfg.TaskType)
		if err != nil {
			return enqueued, fmt.Errorf("scheduler: failed to check pending tasks for %s: %w", cfg.TaskType, err)
		}
		if pending {
			o.logger.InfoContext(ctx, "task already pending, skipping enqueue",
				slog.String("task_type", string(cfg.TaskType)))
			continue
		}

		taskID, err := o.tasks.Create(ctx, cfg.TaskType, nil, 0)
		if err != nil {
			return enqueued, fmt.Errorf("scheduler: failed to enqueue %s task: %w", cfg.TaskType, err)
		}
		enqueued++

		o.logger.InfoContext(ctx, "task enqueued",
			slog.String("task_type", string(cfg.TaskType)),
			slog.String("task_id", taskID),
			slog.String("cron", cfg.CronExpression))
	}

	return enqueued, nil
}
