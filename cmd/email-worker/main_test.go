package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"automata/internal/email"
)

type stubDrainer struct {
	result email.DrainResult
	errs   []error
	calls  int
}

func (s *stubDrainer) Drain(context.Context) (email.DrainResult, error) {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return s.result, err
}

func newTestWorker(d drainer) *worker {
	return &worker{
		processor: d,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func dispatchRecord(messageID, taskID string) events.SQSMessage {
	return events.SQSMessage{
		MessageId: messageID,
		Body: `{"task_id":"` + taskID + `","trace_id":"trace-1","requested_at":"` +
			time.Now().UTC().Format(time.RFC3339) + `"}`,
	}
}

func TestHandle_DrainsPerDispatch(t *testing.T) {
	d := &stubDrainer{result: email.DrainResult{Picked: 2, Sent: 2}}
	w := newTestWorker(d)

	resp, err := w.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		dispatchRecord("msg-1", "task-1"),
		dispatchRecord("msg-2", "task-2"),
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.calls != 2 {
		t.Errorf("drain calls = %d, want 2", d.calls)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("batch item failures = %v, want none", resp.BatchItemFailures)
	}
}

func TestHandle_FailedDrainReportsBatchItemFailure(t *testing.T) {
	d := &stubDrainer{errs: []error{errors.New("db down"), nil}}
	w := newTestWorker(d)

	resp, err := w.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		dispatchRecord("msg-1", "task-1"),
		dispatchRecord("msg-2", "task-2"),
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("batch item failures = %v, want one", resp.BatchItemFailures)
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "msg-1" {
		t.Errorf("failed item = %q, want msg-1", resp.BatchItemFailures[0].ItemIdentifier)
	}
	if d.calls != 2 {
		t.Errorf("drain calls = %d, want 2; one failure must not stop the batch", d.calls)
	}
}

func TestHandle_MalformedBodyDropped(t *testing.T) {
	d := &stubDrainer{}
	w := newTestWorker(d)

	resp, err := w.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "msg-1", Body: "{not json"},
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.calls != 0 {
		t.Errorf("drain calls = %d, want 0", d.calls)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("malformed body must be dropped, not retried: %v", resp.BatchItemFailures)
	}
}
