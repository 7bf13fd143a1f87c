// Package main is the entry point for the email-worker Lambda function.
//
// The worker serves the remote email processing mode: the cron-runner
// completes an EMAIL_PROCESS task by dropping a dispatch message on SQS, and
// this function drains the pending email queue in response. Draining is
// idempotent (rows leave the pending state as they are handled), so
// duplicate SQS deliveries are harmless.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"automata/internal/config"
	"automata/internal/db"
	"automata/internal/email"
	"automata/internal/external"
	"automata/internal/queue"
	"automata/internal/types"
)

// drainer is the slice of email.Processor the handler uses; an interface so
// tests can substitute the processor.
type drainer interface {
	Drain(ctx context.Context) (email.DrainResult, error)
}

// worker holds the long-lived dependencies built once per cold start.
type worker struct {
	processor drainer
	logger    *slog.Logger
}

// Handle processes one SQS batch. Each dispatch message triggers a drain
// pass; a failed pass reports the message as a batch item failure so SQS
// redelivers it.
func (w *worker) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse

	for _, record := range event.Records {
		var msg queue.ProcessMessage
		if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
			// A malformed body never becomes valid; log and drop it.
			w.logger.ErrorContext(ctx, "dropping malformed dispatch message",
				slog.String("message_id", record.MessageId),
				slog.Any("error", err))
			continue
		}

		msgCtx := types.WithRequestID(ctx, msg.TraceID)
		w.logger.InfoContext(msgCtx, "dispatch received",
			slog.String("task_id", msg.TaskID),
			slog.Time("requested_at", msg.RequestedAt))

		result, err := w.processor.Drain(msgCtx)
		if err != nil {
			w.logger.ErrorContext(msgCtx, "drain pass failed",
				slog.String("task_id", msg.TaskID),
				slog.Any("error", err))
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		w.logger.InfoContext(msgCtx, "drain pass complete",
			slog.String("task_id", msg.TaskID),
			slog.Int("picked", result.Picked),
			slog.Int("sent", result.Sent),
			slog.Int("failed", result.Failed))
	}

	return resp, nil
}

func main() {
	ctx := context.Background()

	w, err := buildWorker(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	lambda.Start(w.Handle)
}

// buildWorker performs the cold-start wiring.
func buildWorker(ctx context.Context) (*worker, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("email-worker starting", "environment", cfg.Environment)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	processor := email.NewProcessor(email.ProcessorConfig{
		Queue: db.NewEmailRepository(pool),
		Provider: external.NewResendClient(httpClient, external.ResendClientConfig{
			APIKey: cfg.Email.ResendAPIKey.Unmask(),
			Logger: logger,
		}),
		FromAddress: cfg.Email.FromAddress,
		Logger:      logger,
	})

	return &worker{processor: processor, logger: logger}, nil
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
