package types

import "time"

// EmailProcessMessage is the SQS payload dispatched when EMAIL_PROCESS runs
// in remote mode. cmd/email-worker consumes it and drains the email queue
// out-of-process. TaskID ties worker logs back to the originating task row.
type EmailProcessMessage struct {
	TaskID     string    `json:"task_id"`
	TraceID    string    `json:"trace_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
