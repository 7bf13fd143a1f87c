// Package config defines the global configuration structure for the automata
// platform. Configuration is loaded once at process initialization (Lambda
// cold start or server boot) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"automata/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the automata platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"automata"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Scheduler SchedulerConfig
	Game      GameConfig
	Email     EmailConfig
	Security  SecurityConfig
}

// ServerConfig holds HTTP server configuration for the admin/webhook API.
type ServerConfig struct {
	Port        string       `envconfig:"PORT" default:"8080"`
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-northeast-1"`

	// EmailQueueURL is required only when Email.ProcessMode is "remote";
	// the loader enforces that cross-field rule after struct validation.
	EmailQueueURL string `envconfig:"SQS_EMAIL_QUEUE" validate:"omitempty,url"`

	// MetricNamespace is the CloudWatch namespace for task and batch metrics.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Automata"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SchedulerConfig holds cron evaluation and consumer loop tuning.
type SchedulerConfig struct {
	// MatchWindow is how far back a cron fire time may lie and still count
	// as due for the current tick. Slightly above one minute so a tick that
	// arrives a moment late does not skip its schedule.
	MatchWindow time.Duration `envconfig:"CRON_MATCH_WINDOW" default:"61s"`

	// ConsumerBudget is the soft time budget for a single consumer run.
	// No new task is claimed once the budget is exhausted.
	ConsumerBudget time.Duration `envconfig:"CONSUMER_BUDGET" default:"25s"`

	// BatchConcurrency bounds how many game accounts a batch action
	// processes in parallel.
	BatchConcurrency int `envconfig:"BATCH_CONCURRENCY" default:"5" validate:"min=1"`
}

// GameConfig holds BD2 platform endpoints and credentials. The base URLs
// default to the production services and are overridable for testing.
type GameConfig struct {
	FirebaseBaseURL         string `envconfig:"FIREBASE_BASE_URL" default:"https://securetoken.googleapis.com" validate:"url"`
	FirebaseIdentityBaseURL string `envconfig:"FIREBASE_IDENTITY_BASE_URL" default:"https://identitytoolkit.googleapis.com" validate:"url"`
	NeonBaseURL             string `envconfig:"NEON_BASE_URL" default:"https://www.neonapi.com" validate:"url"`
	WebshopBaseURL          string `envconfig:"WEBSHOP_BASE_URL" default:"https://bd2-webshop-api.bd2.pmang.cloud" validate:"url"`
	CouponBaseURL           string `envconfig:"COUPON_BASE_URL" default:"https://loj2urwaua.execute-api.ap-northeast-1.amazonaws.com/prod" validate:"url"`
	PulseBaseURL            string `envconfig:"PULSE_BASE_URL" default:"https://api.thebd2pulse.com" validate:"url"`

	// FirebaseAPIKey is the BD2 web shop's public Firebase project key,
	// sent as a query parameter on securetoken and identitytoolkit calls.
	FirebaseAPIKey SecretString `envconfig:"FIREBASE_API_KEY" validate:"required"`

	// PulseAPIKey authenticates against the Pulse gift-code catalog,
	// sent as the x-api-key header.
	PulseAPIKey SecretString `envconfig:"PULSE_API_KEY" validate:"required"`
}

// EmailConfig holds email delivery credentials and processing mode.
type EmailConfig struct {
	ResendAPIKey  SecretString `envconfig:"RESEND_API_KEY" validate:"required"`
	FromAddress   string       `envconfig:"EMAIL_FROM_ADDRESS" default:"noreply@bd2-automata.com" validate:"email"`
	WebhookSecret SecretString `envconfig:"RESEND_WEBHOOK_SECRET" validate:"required"`

	// ProcessMode selects where queued emails are drained: "local" runs the
	// processor inline in the cron consumer, "remote" forwards the task to
	// the SQS-backed email worker.
	ProcessMode string `envconfig:"EMAIL_PROCESS_MODE" default:"local" validate:"oneof=local remote"`
}

// SecurityConfig holds encryption keys for data at rest.
type SecurityConfig struct {
	// TokenKey is the base64-encoded 32-byte key used to seal game account
	// refresh tokens in the database.
	TokenKey SecretString `envconfig:"TOKEN_CIPHER_KEY" validate:"required"`
}
