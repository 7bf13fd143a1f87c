// Package handlers contains the HTTP handler implementations for the
// automata API: the admin task trigger and the Resend status webhook.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"automata/internal/core"
	"automata/internal/types"
)

// TaskCreator enqueues ad-hoc tasks. Mirrors the db.TaskRepository method
// used by this handler.
type TaskCreator interface {
	Create(ctx context.Context, taskType types.TaskType, payload json.RawMessage, priority int) (string, error)
}

// adminTriggerPriority orders manually triggered tasks ahead of the
// scheduler's cron-enqueued ones.
const adminTriggerPriority = 10

// AdminHandler exposes the manual trigger endpoint. It only enqueues; the
// consumer loop executes the task on its next tick, so a trigger responds
// fast regardless of batch size.
type AdminHandler struct {
	tasks  TaskCreator
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(tasks TaskCreator, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{tasks: tasks, logger: logger}
}

// RegisterRoutes mounts the admin endpoints behind the admin key middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router, adminAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/admin/trigger-task/{taskType}", h.TriggerTask)
	})
}

// triggerTaskRequest is the optional body of POST /admin/trigger-task.
type triggerTaskRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// triggerTaskResponse is the success payload of POST /admin/trigger-task.
type triggerTaskResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"taskId"`
}

// TriggerTask enqueues one pending task of the requested type.
func (h *AdminHandler) TriggerTask(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "taskType")

	taskType, ok := types.ParseTaskType(raw)
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationUnknownTaskType,
			fmt.Sprintf("unknown task type %q", raw),
			nil,
		))
		return
	}

	var req triggerTaskRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	taskID, err := h.tasks.Create(r.Context(), taskType, req.Payload, adminTriggerPriority)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue triggered task",
			slog.String("task_type", string(taskType)),
			slog.Any("error", err))
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "task triggered manually",
		slog.String("task_type", string(taskType)),
		slog.String("task_id", taskID))

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: triggerTaskResponse{
		Message: fmt.Sprintf("%s task queued", taskType),
		TaskID:  taskID,
	}})
}
