package email

import (
	"context"
	"log/slog"
	"time"

	"automata/internal/db"
	"automata/internal/types"
)

// TransitionStore is the persistence surface the reconciler needs.
type TransitionStore interface {
	ApplyStatusTransition(ctx context.Context, resendEmailID string, allowedFrom []types.EmailStatus, to types.EmailStatus) (bool, error)
	IncrementDailyStat(ctx context.Context, statDate string, field db.StatField) error
}

// WebhookEvent is one parsed delivery-status callback. The provider wraps
// the event body in a data envelope, so the email id lives at data.email_id.
type WebhookEvent struct {
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	EmailID string `json:"email_id"`
}

// eventStatus maps provider event types to queue statuses. Unlisted event
// types (opens, clicks) are acknowledged without any state change.
var eventStatus = map[string]types.EmailStatus{
	"email.sent":       types.EmailStatusSent,
	"email.delivered":  types.EmailStatusDelivered,
	"email.bounced":    types.EmailStatusBounced,
	"email.complained": types.EmailStatusComplained,
	"email.failed":     types.EmailStatusFailed,
}

// allowedFrom guards each transition so late or replayed webhooks cannot
// regress a row. "sent" only applies to rows still pending; every terminal
// status applies from pending or sent.
var allowedFrom = map[types.EmailStatus][]types.EmailStatus{
	types.EmailStatusSent:       {types.EmailStatusPending},
	types.EmailStatusDelivered:  {types.EmailStatusPending, types.EmailStatusSent},
	types.EmailStatusBounced:    {types.EmailStatusPending, types.EmailStatusSent},
	types.EmailStatusComplained: {types.EmailStatusPending, types.EmailStatusSent},
	types.EmailStatusFailed:     {types.EmailStatusPending, types.EmailStatusSent},
}

// statFor lists the statuses that bump a daily counter when their transition
// actually applies.
var statFor = map[types.EmailStatus]db.StatField{
	types.EmailStatusDelivered:  db.StatDelivered,
	types.EmailStatusBounced:    db.StatBounced,
	types.EmailStatusComplained: db.StatComplained,
}

// Reconciler applies delivery-status webhooks to queue rows.
type Reconciler struct {
	store  TransitionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler with the wall clock.
func NewReconciler(store TransitionStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// Apply processes one webhook event. Unknown event types and events whose
// email ID matches no row (or matches a row already past the transition) are
// idempotent no-ops. Only storage failures return an error.
func (r *Reconciler) Apply(ctx context.Context, ev WebhookEvent) error {
	to, ok := eventStatus[ev.Type]
	if !ok {
		r.logger.DebugContext(ctx, "ignoring unhandled webhook event type",
			slog.String("type", ev.Type))
		return nil
	}
	if ev.Data.EmailID == "" {
		r.logger.WarnContext(ctx, "webhook event missing email id",
			slog.String("type", ev.Type))
		return nil
	}

	applied, err := r.store.ApplyStatusTransition(ctx, ev.Data.EmailID, allowedFrom[to], to)
	if err != nil {
		return err
	}
	if !applied {
		r.logger.DebugContext(ctx, "webhook matched no transitionable row",
			slog.String("type", ev.Type),
			slog.String("resend_email_id", ev.Data.EmailID))
		return nil
	}

	if field, ok := statFor[to]; ok {
		statDate := r.now().UTC().Format("2006-01-02")
		if err := r.store.IncrementDailyStat(ctx, statDate, field); err != nil {
			r.logger.ErrorContext(ctx, "transition applied but stat bump failed",
				slog.String("field", string(field)),
				slog.String("error", err.Error()))
		}
	}

	r.logger.InfoContext(ctx, "delivery status reconciled",
		slog.String("type", ev.Type),
		slog.String("resend_email_id", ev.Data.EmailID),
		slog.String("status", string(to)),
	)
	return nil
}
