package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"automata/internal/types"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func newTestPublisher(client CloudWatchClient) *Publisher {
	return NewPublisher(client, "Automata", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dimValue(d cwtypes.MetricDatum, name string) string {
	for _, dim := range d.Dimensions {
		if *dim.Name == name {
			return *dim.Value
		}
	}
	return ""
}

func TestRecordTask_EmitsOutcomeAndDuration(t *testing.T) {
	cw := &fakeCloudWatch{}
	newTestPublisher(cw).RecordTask(context.Background(), types.TaskDailyAttend, types.TaskStatusCompleted, 1500*time.Millisecond)

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.inputs))
	}
	input := cw.inputs[0]
	if *input.Namespace != "Automata" {
		t.Errorf("namespace = %q", *input.Namespace)
	}
	if len(input.MetricData) != 2 {
		t.Fatalf("expected 2 datums, got %d", len(input.MetricData))
	}

	outcome := input.MetricData[0]
	if *outcome.MetricName != MetricTaskOutcome || *outcome.Value != 1 {
		t.Errorf("unexpected outcome datum: %s=%v", *outcome.MetricName, *outcome.Value)
	}
	if dimValue(outcome, DimTaskType) != "DAILY_ATTEND" || dimValue(outcome, DimStatus) != "completed" {
		t.Errorf("unexpected dimensions: %v", outcome.Dimensions)
	}

	duration := input.MetricData[1]
	if *duration.MetricName != MetricTaskDuration || *duration.Value != 1500 {
		t.Errorf("unexpected duration datum: %s=%v", *duration.MetricName, *duration.Value)
	}
}

func TestRecordBatch_EmitsPerOutcomeBuckets(t *testing.T) {
	cw := &fakeCloudWatch{}
	newTestPublisher(cw).RecordBatch(context.Background(), types.TaskGiftCodeRedeem, types.BatchResult{
		Total: 5, Succeeded: 3, AlreadyCompleted: 1, Failed: 1,
	})

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.inputs))
	}
	data := cw.inputs[0].MetricData
	if len(data) != 3 {
		t.Fatalf("expected 3 datums, got %d", len(data))
	}

	want := map[string]float64{"succeeded": 3, "already_completed": 1, "failed": 1}
	for _, d := range data {
		bucket := dimValue(d, DimOutcome)
		if *d.Value != want[bucket] {
			t.Errorf("bucket %s = %v, want %v", bucket, *d.Value, want[bucket])
		}
		if dimValue(d, DimTaskType) != "GIFT_CODE_REDEEM" {
			t.Errorf("bucket %s task type = %q", bucket, dimValue(d, DimTaskType))
		}
	}
}

func TestRecordTask_PublishFailureIsSwallowed(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	// Must not panic or propagate.
	newTestPublisher(cw).RecordTask(context.Background(), types.TaskEmailProcess, types.TaskStatusFailed, time.Second)
}
