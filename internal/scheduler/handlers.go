package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"automata/internal/email"
	"automata/internal/types"
)

// BatchExecutor runs one whole-fleet automation pass. Satisfied by
// runner.BatchRunner.
type BatchExecutor interface {
	RunDaily(ctx context.Context) (types.BatchResult, error)
	RunWeekly(ctx context.Context) (types.BatchResult, error)
	RunEvent(ctx context.Context, taskID string) (types.BatchResult, error)
	RunRedeem(ctx context.Context, taskID string) (types.BatchResult, error)
}

// BatchMetrics records per-batch account buckets. Satisfied by
// metrics.Publisher.
type BatchMetrics interface {
	RecordBatch(ctx context.Context, taskType types.TaskType, result types.BatchResult)
}

// EmailDrainer sends pending emails inline. Satisfied by email.Processor.
type EmailDrainer interface {
	Drain(ctx context.Context) (email.DrainResult, error)
}

// EmailDispatcher hands email processing off to the queue worker. Satisfied
// by queue.EmailTrigger.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, taskID string, reason string) error
}

// NewDefaultRegistry builds the production registry with all five task
// types bound.
func NewDefaultRegistry(batches BatchExecutor, metrics BatchMetrics, emails *EmailProcessHandler) *Registry {
	r := NewRegistry()
	r.Register(types.TaskDailyAttend, &batchHandler{kind: types.TaskDailyAttend, batches: batches, metrics: metrics})
	r.Register(types.TaskWeeklyAttend, &batchHandler{kind: types.TaskWeeklyAttend, batches: batches, metrics: metrics})
	r.Register(types.TaskEventParticipate, &batchHandler{kind: types.TaskEventParticipate, batches: batches, metrics: metrics})
	r.Register(types.TaskGiftCodeRedeem, &batchHandler{kind: types.TaskGiftCodeRedeem, batches: batches, metrics: metrics})
	r.Register(types.TaskEmailProcess, emails)
	return r
}

var (
	_ Handler = (*batchHandler)(nil)
	_ Handler = (*EmailProcessHandler)(nil)
)

// batchHandler adapts one BatchExecutor entry point to the Handler shape.
type batchHandler struct {
	kind    types.TaskType
	batches BatchExecutor
	metrics BatchMetrics
}

func (h *batchHandler) CanExecute(ctx context.Context, task *types.Task) (bool, string) {
	return true, ""
}

func (h *batchHandler) Handle(ctx context.Context, task *types.Task) (string, error) {
	var (
		result types.BatchResult
		err    error
	)
	switch h.kind {
	case types.TaskDailyAttend:
		result, err = h.batches.RunDaily(ctx)
	case types.TaskWeeklyAttend:
		result, err = h.batches.RunWeekly(ctx)
	case types.TaskEventParticipate:
		result, err = h.batches.RunEvent(ctx, task.ID)
	case types.TaskGiftCodeRedeem:
		result, err = h.batches.RunRedeem(ctx, task.ID)
	default:
		return "", types.NewAppError(types.ErrCodeInternalNoHandler,
			fmt.Sprintf("batch handler bound to non-batch task type %s", h.kind), nil)
	}
	if err != nil {
		return "", err
	}

	if h.metrics != nil {
		h.metrics.RecordBatch(ctx, h.kind, result)
	}
	return summarizeBatch(result), nil
}

func summarizeBatch(r types.BatchResult) string {
	return fmt.Sprintf("total=%d succeeded=%d already_completed=%d failed=%d",
		r.Total, r.Succeeded, r.AlreadyCompleted, r.Failed)
}

// EmailProcessHandler serves TaskEmailProcess in either delivery mode. In
// local mode the pending queue is drained inside this invocation; in remote
// mode the task is completed as soon as the dispatch message is accepted and
// the worker picks up the actual sending.
type EmailProcessHandler struct {
	mode       types.EmailProcessMode
	drainer    EmailDrainer
	dispatcher EmailDispatcher
	logger     *slog.Logger
}

// NewEmailProcessHandler builds the email task handler for the configured
// processing mode.
func NewEmailProcessHandler(mode types.EmailProcessMode, drainer EmailDrainer, dispatcher EmailDispatcher, logger *slog.Logger) *EmailProcessHandler {
	return &EmailProcessHandler{mode: mode, drainer: drainer, dispatcher: dispatcher, logger: logger}
}

func (h *EmailProcessHandler) CanExecute(ctx context.Context, task *types.Task) (bool, string) {
	switch h.mode {
	case types.EmailModeLocal:
		if h.drainer == nil {
			return false, "email processor not configured"
		}
	case types.EmailModeRemote:
		if h.dispatcher == nil {
			return false, "email queue trigger not configured"
		}
	default:
		return false, fmt.Sprintf("unknown email process mode %q", h.mode)
	}
	return true, ""
}

func (h *EmailProcessHandler) Handle(ctx context.Context, task *types.Task) (string, error) {
	if h.mode == types.EmailModeRemote {
		if err := h.dispatcher.Dispatch(ctx, task.ID, "scheduled"); err != nil {
			return "", err
		}
		return "dispatched to email worker", nil
	}

	result, err := h.drainer.Drain(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("picked=%d sent=%d failed=%d", result.Picked, result.Sent, result.Failed), nil
}
