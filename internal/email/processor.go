// Package email drains the outbound email queue and reconciles asynchronous
// delivery-status webhooks from the provider.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"automata/internal/db"
	"automata/internal/external"
	"automata/internal/types"
)

// Queue is the email persistence surface the processor needs.
type Queue interface {
	ListPending(ctx context.Context) ([]types.EmailMessage, error)
	GetTemplate(ctx context.Context, id int64) (*types.EmailTemplate, error)
	MarkSent(ctx context.Context, id int64, resendEmailID string) error
	MarkSendFailure(ctx context.Context, id int64, retryCount int, errMsg string) (bool, error)
	IncrementDailyStat(ctx context.Context, statDate string, field db.StatField) error
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Queue       Queue
	Provider    external.EmailProvider
	FromAddress string
	Logger      *slog.Logger
	Now         func() time.Time
}

// Processor drains pending queue rows in creation order: render the template
// when one is referenced, send through the provider, then mark the row sent
// or requeue it. A row that keeps failing is marked terminally failed by the
// repository once its retry budget is spent.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor creates a Processor, defaulting the logger and clock.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{cfg: cfg}
}

// DrainResult summarizes one processing pass.
type DrainResult struct {
	Picked int `json:"picked"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Drain processes one batch of pending emails. Per-row failures never abort
// the pass; the row is requeued or terminally failed and the pass moves on.
func (p *Processor) Drain(ctx context.Context) (DrainResult, error) {
	pending, err := p.cfg.Queue.ListPending(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	result := DrainResult{Picked: len(pending)}
	for _, msg := range pending {
		if err := p.sendOne(ctx, msg); err != nil {
			result.Failed++
			continue
		}
		result.Sent++
	}

	if result.Picked > 0 {
		p.cfg.Logger.InfoContext(ctx, "email queue drained",
			slog.Int("picked", result.Picked),
			slog.Int("sent", result.Sent),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (p *Processor) sendOne(ctx context.Context, msg types.EmailMessage) error {
	subject, html, err := p.render(ctx, msg)
	if err != nil {
		return p.recordFailure(ctx, msg, err)
	}

	id, err := p.cfg.Provider.Send(ctx, external.SendInput{
		From:    p.cfg.FromAddress,
		To:      msg.RecipientEmail,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return p.recordFailure(ctx, msg, err)
	}

	if err := p.cfg.Queue.MarkSent(ctx, msg.ID, id); err != nil {
		p.cfg.Logger.ErrorContext(ctx, "email sent but row update failed",
			slog.Int64("email_id", msg.ID),
			slog.String("resend_email_id", id),
			slog.String("error", err.Error()))
		return err
	}

	p.bumpStat(ctx, db.StatSent)
	return nil
}

// render resolves the message's subject and body. A referenced template
// overrides the row's own subject/content; its {{var}} placeholders are
// substituted from template_vars.
func (p *Processor) render(ctx context.Context, msg types.EmailMessage) (subject, html string, err error) {
	subject, html = msg.Subject, msg.HTMLContent
	if msg.TemplateID == nil {
		return subject, html, nil
	}

	tpl, err := p.cfg.Queue.GetTemplate(ctx, *msg.TemplateID)
	if err != nil {
		return "", "", err
	}
	if tpl == nil {
		return "", "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("email template %d not found", *msg.TemplateID),
			nil,
		)
	}

	vars := map[string]string{}
	if len(msg.TemplateVars) > 0 {
		if err := json.Unmarshal(msg.TemplateVars, &vars); err != nil {
			return "", "", types.NewAppError(types.ErrCodeValidationBadPayload, "template vars are not a string map", err)
		}
	}

	return substitute(tpl.Subject, vars), substitute(tpl.HTMLContent, vars), nil
}

// substitute replaces {{key}} placeholders. Unknown placeholders are left
// in place so a misrendered email is visible rather than silently blank.
func substitute(s string, vars map[string]string) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}

func (p *Processor) recordFailure(ctx context.Context, msg types.EmailMessage, cause error) error {
	terminal, err := p.cfg.Queue.MarkSendFailure(ctx, msg.ID, msg.RetryCount, cause.Error())
	if err != nil {
		p.cfg.Logger.ErrorContext(ctx, "failed to record email send failure",
			slog.Int64("email_id", msg.ID),
			slog.String("error", err.Error()))
		return cause
	}

	if terminal {
		p.bumpStat(ctx, db.StatFailed)
		p.cfg.Logger.ErrorContext(ctx, "email failed terminally",
			slog.Int64("email_id", msg.ID),
			slog.Int("retry_count", msg.RetryCount+1),
			slog.String("error", cause.Error()))
	} else {
		p.cfg.Logger.WarnContext(ctx, "email send failed; requeued",
			slog.Int64("email_id", msg.ID),
			slog.String("error", cause.Error()))
	}
	return cause
}

func (p *Processor) bumpStat(ctx context.Context, field db.StatField) {
	statDate := p.cfg.Now().UTC().Format("2006-01-02")
	if err := p.cfg.Queue.IncrementDailyStat(ctx, statDate, field); err != nil {
		p.cfg.Logger.ErrorContext(ctx, "failed to bump email stat",
			slog.String("field", string(field)),
			slog.String("error", err.Error()))
	}
}
