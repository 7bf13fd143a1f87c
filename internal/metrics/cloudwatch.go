// Package metrics publishes task and batch outcome metrics to CloudWatch.
// Publishing is fire-and-forget: a metrics outage never fails the work that
// produced the numbers.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"automata/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names.
const (
	MetricTaskOutcome   = "TaskOutcome"
	MetricTaskDuration  = "TaskDuration"
	MetricBatchAccounts = "BatchAccounts"

	DimTaskType = "TaskType"
	DimStatus   = "Status"
	DimOutcome  = "Outcome"
)

// Publisher emits consumer-loop and batch metrics.
type Publisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewPublisher creates a Publisher targeting the given namespace.
func NewPublisher(client CloudWatchClient, namespace string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, namespace: namespace, logger: logger}
}

// RecordTask emits one TaskOutcome count plus the task's wall-clock duration,
// dimensioned by task type and final status.
func (p *Publisher) RecordTask(ctx context.Context, taskType types.TaskType, status types.TaskStatus, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(DimTaskType), Value: aws.String(string(taskType))},
		{Name: aws.String(DimStatus), Value: aws.String(string(status))},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricTaskOutcome),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(MetricTaskDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.ErrorContext(ctx, "failed to record task metric",
			slog.String("error", err.Error()),
			slog.String("task_type", string(taskType)),
			slog.String("status", string(status)),
		)
	}
}

// RecordBatch emits per-outcome account counts for one batch run,
// dimensioned by task type and outcome bucket.
func (p *Publisher) RecordBatch(ctx context.Context, taskType types.TaskType, result types.BatchResult) {
	buckets := []struct {
		outcome string
		count   int
	}{
		{"succeeded", result.Succeeded},
		{"already_completed", result.AlreadyCompleted},
		{"failed", result.Failed},
	}

	data := make([]cwtypes.MetricDatum, 0, len(buckets))
	for _, b := range buckets {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(MetricBatchAccounts),
			Value:      aws.Float64(float64(b.count)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTaskType), Value: aws.String(string(taskType))},
				{Name: aws.String(DimOutcome), Value: aws.String(b.outcome)},
			},
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.ErrorContext(ctx, "failed to record batch metric",
			slog.String("error", err.Error()),
			slog.String("task_type", string(taskType)),
		)
	}
}
