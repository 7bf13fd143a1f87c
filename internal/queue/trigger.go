// Package queue provides the SQS message producer used in the remote email
// deployment mode: instead of draining the email queue in-process, the
// EMAIL_PROCESS handler dispatches a message and cmd/email-worker drains
// out-of-process.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"automata/internal/config"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ProcessMessage is the body of one email-process dispatch. TaskID ties the
// dispatch back to the originating queue task; TraceID correlates worker
// logs with the dispatching run.
type ProcessMessage struct {
	TaskID      string    `json:"task_id"`
	TraceID     string    `json:"trace_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// EmailTrigger dispatches email-process messages to the worker queue.
type EmailTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEmailTrigger creates an EmailTrigger reading the queue URL from the
// AWS config.
func NewEmailTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EmailTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailTrigger{
		client:   client,
		queueURL: awsCfg.EmailQueueURL,
		logger:   logger,
	}
}

// Dispatch sends exactly one email-process message for the given task.
func (t *EmailTrigger) Dispatch(ctx context.Context, taskID string, reason string) error {
	msg := ProcessMessage{
		TaskID:      taskID,
		TraceID:     uuid.New().String(),
		RequestedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ProcessMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ProcessMessage to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "email process message sent",
		"queue_url", t.queueURL,
		"task_id", msg.TaskID,
		"trace_id", msg.TraceID,
		"reason", reason,
	)

	return nil
}
