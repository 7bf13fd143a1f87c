package types

// TaskType identifies the kind of scheduled work a queued task represents.
// The set is closed: dispatching an unknown TaskType is a hard error, not a
// retryable condition (see scheduler.Registry).
type TaskType string

const (
	TaskDailyAttend      TaskType = "DAILY_ATTEND"
	TaskWeeklyAttend     TaskType = "WEEKLY_ATTEND"
	TaskGiftCodeRedeem   TaskType = "GIFT_CODE_REDEEM"
	TaskEventParticipate TaskType = "EVENT_PARTICIPATE"
	TaskEmailProcess     TaskType = "EMAIL_PROCESS"
)

// AllTaskTypes lists every valid TaskType. Used for request validation on the
// manual trigger endpoint and for registry completeness checks.
var AllTaskTypes = []TaskType{
	TaskDailyAttend,
	TaskWeeklyAttend,
	TaskGiftCodeRedeem,
	TaskEventParticipate,
	TaskEmailProcess,
}

// ParseTaskType validates a raw string against the closed TaskType set.
func ParseTaskType(s string) (TaskType, bool) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ProviderType is the upstream identity provider a game account signs in with.
// It only changes how the subject identifier is extracted during the login
// handshake; the handshake itself is identical across providers.
type ProviderType string

const (
	ProviderGoogle ProviderType = "GOOGLE"
	ProviderApple  ProviderType = "APPLE"
	ProviderEmail  ProviderType = "EMAIL"
)

// Outcome is the tri-state result recorded in per-action log rows.
// OutcomeAlreadyDone is a success variant used for idempotent skips (the
// platform reports "already attended" / "already used" as a domain code, not
// an HTTP failure).
type Outcome int

const (
	OutcomeFailure     Outcome = 0
	OutcomeSuccess     Outcome = 1
	OutcomeAlreadyDone Outcome = 2
)

// EmailStatus is the delivery state of a queued outbound email. Transitions
// are guarded by the reconciler state machine; see email.Reconciler.
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusDelivered  EmailStatus = "delivered"
	EmailStatusBounced    EmailStatus = "bounced"
	EmailStatusComplained EmailStatus = "complained"
	EmailStatusFailed     EmailStatus = "failed"
)

// EmailProcessMode selects where EMAIL_PROCESS work executes.
type EmailProcessMode string

const (
	// EmailModeLocal drains the email queue inside the cron-runner invocation.
	EmailModeLocal EmailProcessMode = "local"
	// EmailModeRemote dispatches an SQS message consumed by cmd/email-worker.
	EmailModeRemote EmailProcessMode = "remote"
)
