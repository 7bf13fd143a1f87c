package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"automata/internal/core"
	"automata/internal/email"
	"automata/internal/types"
)

// maxWebhookBodySize caps the Resend webhook payload at 64 KB. Delivery
// events are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// WebhookVerifier checks a Svix-style webhook signature. Mirrors
// external.ResendVerifier.
type WebhookVerifier interface {
	Verify(payload []byte, msgID, timestamp, signatureHeader, secret string) (bool, error)
}

// StatusReconciler folds a delivery event into local email state. Mirrors
// email.Reconciler.
type StatusReconciler interface {
	Apply(ctx context.Context, ev email.WebhookEvent) error
}

// ResendWebhookHandler ingests delivery status events from Resend. The
// endpoint is not behind the admin key middleware; authentication is the
// Svix signature over the raw body.
type ResendWebhookHandler struct {
	verifier   WebhookVerifier
	reconciler StatusReconciler
	secret     string
	logger     *slog.Logger
}

// NewResendWebhookHandler creates a ResendWebhookHandler.
func NewResendWebhookHandler(verifier WebhookVerifier, reconciler StatusReconciler, secret string, logger *slog.Logger) *ResendWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the public webhook endpoint.
func (h *ResendWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/resend/status", h.Handle)
}

// Handle verifies the signature over the raw body, then applies the event.
// Reconciliation is idempotent, so Resend retries of an already-applied
// event still get a 200.
func (h *ResendWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBadPayload,
			"failed to read request body",
			err,
		))
		return
	}

	msgID := r.Header.Get("svix-id")
	timestamp := r.Header.Get("svix-timestamp")
	signature := r.Header.Get("svix-signature")

	valid, err := h.verifier.Verify(payload, msgID, timestamp, signature, h.secret)
	if err != nil || !valid {
		h.logger.WarnContext(r.Context(), "webhook signature rejected",
			slog.String("svix_id", msgID),
			slog.Any("error", err))
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBadSignature,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event email.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBadPayload,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	if err := h.reconciler.Apply(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to apply delivery event",
			slog.String("svix_id", msgID),
			slog.String("event_type", event.Type),
			slog.Any("error", err))
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "processed"}})
}
