package scheduler

import (
	"context"
	"fmt"

	"automata/internal/types"
)

// Handler executes one task type. CanExecute is a cheap precondition gate;
// a false result is a failed attempt, so the task lands on the retry path
// and can run once the missing dependency comes back.
type Handler interface {
	CanExecute(ctx context.Context, task *types.Task) (bool, string)
	Handle(ctx context.Context, task *types.Task) (string, error)
}

// Registry is the closed TaskType -> Handler map. Dispatching a type with no
// registered handler is a hard error (ErrCodeInternalNoHandler): it signals
// a deploy/config mismatch, not a transient condition, so the consumer fails
// such tasks terminally instead of retrying.
type Registry struct {
	handlers map[types.TaskType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.TaskType]Handler)}
}

// Register binds a handler to a task type, replacing any previous binding.
func (r *Registry) Register(taskType types.TaskType, h Handler) {
	r.handlers[taskType] = h
}

// Dispatch routes one claimed task to its handler. The returned string is a
// human-readable completion summary.
func (r *Registry) Dispatch(ctx context.Context, task *types.Task) (string, error) {
	h, ok := r.handlers[task.TaskType]
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeInternalNoHandler,
			fmt.Sprintf("no handler registered for task type %s", task.TaskType),
			nil,
		)
	}

	if ok, reason := h.CanExecute(ctx, task); !ok {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("task type %s cannot execute: %s", task.TaskType, reason),
			nil,
		)
	}

	return h.Handle(ctx, task)
}
