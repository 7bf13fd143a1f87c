// Package types holds the shared domain model for the automata platform:
// queued tasks, game accounts, per-action log rows, the ephemeral web-shop
// session, and the error/enum vocabulary used across packages. It has no
// dependencies on other internal packages so every layer can import it.
package types

import (
	"encoding/json"
	"time"
)

// Task is one queued unit of scheduled work with retry/backoff bookkeeping.
// Rows live in the task_queue table. At most one pending Task should exist
// per TaskType at enqueue time; the orchestrator enforces this with a
// check-then-insert (a benign race can still produce duplicates, which the
// consumer tolerates).
type Task struct {
	ID               string          `json:"id"`
	TaskType         TaskType        `json:"task_type"`
	Payload          json.RawMessage `json:"payload"`
	Status           TaskStatus      `json:"status"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	NextRetryAt      *time.Time      `json:"next_retry_at,omitempty"`
	ExecutionHistory json.RawMessage `json:"execution_history"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	Priority         int             `json:"priority"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionEntry is one informational record appended to a Task's
// execution_history JSON array after each consumer-loop outcome.
type ExecutionEntry struct {
	At      time.Time  `json:"at"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// CronConfig is one declarative schedule row: which TaskType to enqueue and
// when. Read-only from the scheduling core's perspective; the CRUD layer
// owns writes.
type CronConfig struct {
	TaskType       TaskType `json:"task_type"`
	CronExpression string   `json:"cron_expression"`
	IsActive       bool     `json:"is_active"`
}

// GameAccount is one external game account under automation. RefreshToken is
// stored sealed (ChaCha20-Poly1305); the repository unseals it on read so the
// session broker always sees plaintext.
type GameAccount struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	GameNickname     string       `json:"game_nickname"`
	RefreshToken     string       `json:"-"`
	ProviderType     ProviderType `json:"provider_type"`
	IsActive         bool         `json:"is_active"`
	AutoDailyAttend  bool         `json:"auto_daily_attend"`
	AutoWeeklyAttend bool         `json:"auto_weekly_attend"`
	AutoRedeem       bool         `json:"auto_redeem"`
	AutoEventAttend  bool         `json:"auto_event_attend"`
}

// GiftCode is one globally known redemption code.
type GiftCode struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	RewardDesc string     `json:"reward_desc,omitempty"`
	IsActive   bool       `json:"is_active"`
	ExpiredAt  *time.Time `json:"expired_at,omitempty"`
}

// Session is the ephemeral web-shop credential produced by the 4-step login
// handshake. It is never persisted and never cached across batch runs; each
// account re-derives one per run.
type Session struct {
	AccessToken string
	UserID      string
	UserIndex   int64
	MemberID    int64
}

// ActionResult is the in-memory outcome of one (account, work-item) action.
type ActionResult struct {
	GameAccountID int64  `json:"game_account_id"`
	GameNickname  string `json:"game_nickname"`
	Success       bool   `json:"success"`
	Skipped       bool   `json:"skipped"`
	Message       string `json:"message"`
}

// BatchResult aggregates a batch action run. Succeeded counts true successes
// only; AlreadyCompleted counts idempotent skips separately. Per-account
// failures are recorded here and in log rows but do not fail the enclosing
// Task.
type BatchResult struct {
	Total            int            `json:"total"`
	Succeeded        int            `json:"succeeded"`
	AlreadyCompleted int            `json:"already_completed"`
	Failed           int            `json:"failed"`
	Details          []ActionResult `json:"details"`
}

// Summarize folds a detail list into a BatchResult.
func Summarize(details []ActionResult) BatchResult {
	r := BatchResult{Total: len(details), Details: details}
	for _, d := range details {
		switch {
		case d.Skipped:
			r.AlreadyCompleted++
		case d.Success:
			r.Succeeded++
		default:
			r.Failed++
		}
	}
	return r
}

// EventSchedule mirrors one live in-game event window as reported by the
// web shop. EventScheduleID is the platform's identifier, distinct from the
// local row ID.
type EventSchedule struct {
	ID              int64     `json:"id"`
	EventScheduleID int64     `json:"event_schedule_id"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	IsActive        bool      `json:"is_active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EmailMessage is one queued outbound email. ResendEmailID correlates
// asynchronous delivery callbacks with the row that produced them.
type EmailMessage struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	RecipientEmail string          `json:"recipient_email"`
	Subject        string          `json:"subject"`
	HTMLContent    string          `json:"html_content"`
	TemplateID     *int64          `json:"template_id,omitempty"`
	TemplateVars   json.RawMessage `json:"template_vars,omitempty"`
	ResendEmailID  *string         `json:"resend_email_id,omitempty"`
	Status         EmailStatus     `json:"status"`
	RetryCount     int             `json:"retry_count"`
}

// EmailTemplate is a stored HTML template with {{var}} placeholders.
type EmailTemplate struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
}
