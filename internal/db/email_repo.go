package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"automata/internal/types"
)

// emailBatchSize caps how many pending emails one processing run drains.
const emailBatchSize = 10

// emailMaxRetries is the send attempt budget per queued email; the attempt
// that takes retry_count to this value is marked terminally failed.
const emailMaxRetries = 3

// StatField selects which counter an email stat update increments.
// Values are column names from a closed set, never user input.
type StatField string

const (
	StatSent       StatField = "total_sent"
	StatDelivered  StatField = "total_delivered"
	StatFailed     StatField = "total_failed"
	StatBounced    StatField = "total_bounced"
	StatComplained StatField = "total_complained"
)

// valid reports whether the field is one of the known stat columns.
func (f StatField) valid() bool {
	switch f {
	case StatSent, StatDelivered, StatFailed, StatBounced, StatComplained:
		return true
	}
	return false
}

// EmailRepository provides data access for the automata_email_queue,
// automata_email_templates, and automata_email_stats tables.
type EmailRepository struct {
	db DBTX
}

// NewEmailRepository creates a new EmailRepository.
func NewEmailRepository(db DBTX) *EmailRepository {
	return &EmailRepository{db: db}
}

// ListPending returns up to emailBatchSize pending emails in enqueue order.
func (r *EmailRepository) ListPending(ctx context.Context) ([]types.EmailMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, recipient_email, subject, html_content,
		        template_id, template_vars, resend_email_id, status, retry_count
		 FROM automata_email_queue
		 WHERE status = 'pending' AND is_deleted = FALSE
		 ORDER BY created_at ASC
		 LIMIT $1`,
		emailBatchSize,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending emails", err)
	}
	defer rows.Close()

	var emails []types.EmailMessage
	for rows.Next() {
		var e types.EmailMessage
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.RecipientEmail,
			&e.Subject,
			&e.HTMLContent,
			&e.TemplateID,
			&e.TemplateVars,
			&e.ResendEmailID,
			&e.Status,
			&e.RetryCount,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email queue row", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate email queue", err)
	}

	return emails, nil
}

// GetTemplate fetches an active template by ID. Returns (nil, nil) when the
// template does not exist or is inactive; the processor then falls back to
// the message's stored subject and body.
func (r *EmailRepository) GetTemplate(ctx context.Context, id int64) (*types.EmailTemplate, error) {
	var t types.EmailTemplate
	err := r.db.QueryRow(ctx,
		`SELECT id, subject, html_content
		 FROM automata_email_templates
		 WHERE id = $1 AND is_active = TRUE AND is_deleted = FALSE`,
		id,
	).Scan(&t.ID, &t.Subject, &t.HTMLContent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch email template", err)
	}
	return &t, nil
}

// MarkSent transitions an email from pending to sent and stores the provider
// message ID used to correlate later delivery webhooks.
func (r *EmailRepository) MarkSent(ctx context.Context, id int64, resendEmailID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE automata_email_queue
		 SET status = 'sent', resend_email_id = $2, sent_at = NOW(),
		     error_msg = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id,
		resendEmailID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark email sent", err)
	}
	return nil
}

// MarkSendFailure records a failed send attempt. The email stays pending
// until its retry budget is exhausted, then becomes terminally failed.
// Returns true when this failure was terminal.
func (r *EmailRepository) MarkSendFailure(ctx context.Context, id int64, retryCount int, errMsg string) (bool, error) {
	terminal := retryCount+1 >= emailMaxRetries

	status := "pending"
	if terminal {
		status = "failed"
	}

	_, err := r.db.Exec(ctx,
		`UPDATE automata_email_queue
		 SET status = $2, retry_count = retry_count + 1,
		     error_msg = $3, updated_at = NOW()
		 WHERE id = $1`,
		id,
		status,
		errMsg,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record email send failure", err)
	}
	return terminal, nil
}

// ApplyStatusTransition moves the email identified by provider message ID to
// the target status, but only when its current status is in allowedFrom.
// Returns false without error when no row matched: either the ID is unknown
// or the row already progressed past the transition. Webhook deliveries
// arrive out of order and repeat, so the no-op case is expected.
func (r *EmailRepository) ApplyStatusTransition(ctx context.Context, resendEmailID string, allowedFrom []types.EmailStatus, to types.EmailStatus) (bool, error) {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE automata_email_queue
		 SET status = $2, updated_at = NOW()
		 WHERE resend_email_id = $1
		   AND status = ANY($3)
		   AND is_deleted = FALSE`,
		resendEmailID,
		string(to),
		from,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to apply email status transition", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementDailyStat bumps one counter on the per-day stats row, creating
// the row on first touch.
func (r *EmailRepository) IncrementDailyStat(ctx context.Context, statDate string, field StatField) error {
	if !field.valid() {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "unknown email stat field", nil)
	}

	col := string(field)
	_, err := r.db.Exec(ctx,
		`INSERT INTO automata_email_stats (stat_date, `+col+`, created_at, updated_at)
		 VALUES ($1, 1, NOW(), NOW())
		 ON CONFLICT (stat_date) DO UPDATE
		   SET `+col+` = automata_email_stats.`+col+` + 1,
		       updated_at = NOW()`,
		statDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment email stat", err)
	}
	return nil
}
