// Package main is the entry point for the cron-runner Lambda function.
//
// One invocation is one scheduler tick: the orchestrator turns due cron
// bindings into pending tasks, then the consumer claims and executes tasks
// until the queue is empty or the time budget is spent. EventBridge invokes
// the function every minute in production; running the binary directly
// performs a single tick, which is how local development drives it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"automata/internal/config"
	"automata/internal/db"
	"automata/internal/email"
	"automata/internal/external"
	"automata/internal/metrics"
	"automata/internal/queue"
	"automata/internal/runner"
	"automata/internal/scheduler"
	"automata/internal/security"
	"automata/internal/types"
)

// tickHandler holds the long-lived dependencies built once per cold start.
type tickHandler struct {
	orchestrator *scheduler.Orchestrator
	consumer     *scheduler.Consumer
	logger       *slog.Logger
}

// Handle runs one scheduler tick. The tick is fire-and-forget: failures are
// logged, never returned, so EventBridge does not retry a tick the next
// minute's invocation covers anyway.
func (h *tickHandler) Handle(ctx context.Context) error {
	enqueued, err := h.orchestrator.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "orchestration failed", slog.Any("error", err))
		return nil
	}

	processed, err := h.consumer.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "consumer loop aborted", slog.Any("error", err))
		return nil
	}

	h.logger.InfoContext(ctx, "tick complete",
		slog.Int("enqueued", enqueued),
		slog.Int("processed", processed))
	return nil
}

func main() {
	ctx := context.Background()

	h, pool, err := buildHandler(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if isLambdaEnvironment() {
		lambda.Start(h.Handle)
		return
	}

	// Direct execution is a single tick.
	defer pool.Close()
	_ = h.Handle(ctx)
}

// buildHandler performs the cold-start wiring: config, database pool,
// repositories, upstream clients, batch runner, and the scheduler core.
func buildHandler(ctx context.Context) (*tickHandler, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("cron-runner starting",
		"environment", cfg.Environment,
		"email_mode", cfg.Email.ProcessMode,
		"batch_concurrency", cfg.Scheduler.BatchConcurrency)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	keyBytes, err := cfg.TokenKeyBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("decoding token cipher key: %w", err)
	}
	cipher, err := security.NewTokenCipher(keyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("creating token cipher: %w", err)
	}

	taskRepo := db.NewTaskRepository(pool)
	cronRepo := db.NewCronConfigRepository(pool)
	accountRepo := db.NewGameAccountRepository(pool, cipher)
	dailyRepo := db.NewDailyAttendanceRepository(pool)
	weeklyRepo := db.NewWeeklyAttendanceRepository(pool)
	eventRepo := db.NewEventRepository(pool)
	giftCodeRepo := db.NewGiftCodeRepository(pool)
	emailRepo := db.NewEmailRepository(pool)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	batches := runner.NewBatchRunner(runner.Config{
		Accounts:    accountRepo,
		Sessions:    external.NewSessionClient(httpClient, cfg.Game, logger),
		Attendance:  external.NewWebshopClient(httpClient, cfg.Game, logger),
		Coupons:     external.NewCouponClient(httpClient, cfg.Game, logger),
		Catalog:     external.NewPulseClient(httpClient, cfg.Game, logger),
		DailyLog:    dailyRepo,
		WeeklyLog:   weeklyRepo,
		Events:      eventRepo,
		Codes:       giftCodeRepo,
		Concurrency: cfg.Scheduler.BatchConcurrency,
		Logger:      logger,
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := metrics.NewPublisher(cwClient, cfg.AWS.MetricNamespace, logger)

	mode := types.EmailProcessMode(cfg.Email.ProcessMode)
	drainer := email.NewProcessor(email.ProcessorConfig{
		Queue: emailRepo,
		Provider: external.NewResendClient(httpClient, external.ResendClientConfig{
			APIKey: cfg.Email.ResendAPIKey.Unmask(),
			Logger: logger,
		}),
		FromAddress: cfg.Email.FromAddress,
		Logger:      logger,
	})

	var dispatcher scheduler.EmailDispatcher
	if mode == types.EmailModeRemote {
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		dispatcher = queue.NewEmailTrigger(sqsClient, cfg.AWS, logger)
	}

	registry := scheduler.NewDefaultRegistry(batches, publisher,
		scheduler.NewEmailProcessHandler(mode, drainer, dispatcher, logger))

	h := &tickHandler{
		orchestrator: scheduler.NewOrchestrator(scheduler.OrchestratorConfig{
			Crons:   cronRepo,
			Tasks:   taskRepo,
			Matcher: scheduler.NewMatcher(cfg.Scheduler.MatchWindow, logger),
			Logger:  logger,
		}),
		consumer: scheduler.NewConsumer(scheduler.ConsumerConfig{
			Queue:    taskRepo,
			Registry: registry,
			Metrics:  publisher,
			Budget:   cfg.Scheduler.ConsumerBudget,
			Logger:   logger,
		}),
		logger: logger,
	}
	return h, pool, nil
}

// isLambdaEnvironment reports whether the process runs inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, ok := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	return ok
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
