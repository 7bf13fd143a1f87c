// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in date-keyed dedup logic.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator, plus cross-field
//     rules validator tags cannot express.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrParsing indicates envconfig failed to map environment variables
	// onto the Config struct.
	ErrParsing ConfigErrorType = "PARSING"
	// ErrValidation indicates the populated Config struct failed validation.
	ErrValidation ConfigErrorType = "VALIDATION"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// tokenKeySize is the required length of the decoded token cipher key.
const tokenKeySize = 32

// LoadConfig loads and validates the automata configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing, does not
//     override variables already set in the environment).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Validates the Config struct, including cross-field rules.
func LoadConfig() (*Config, error) {
	// All period keys (attendance dates, ISO weeks) and cron evaluation are
	// computed in UTC. Pinning time.Local removes a whole class of drift
	// bugs between the scheduler and the dedup queries.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateCrossField(&cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// validateCrossField enforces the rules that span multiple fields or need
// decoding, which struct tags cannot express.
func validateCrossField(cfg *Config) error {
	if cfg.Email.ProcessMode == "remote" && cfg.AWS.EmailQueueURL == "" {
		return fmt.Errorf("SQS_EMAIL_QUEUE is required when EMAIL_PROCESS_MODE is remote")
	}

	key, err := base64.StdEncoding.DecodeString(cfg.Security.TokenKey.Unmask())
	if err != nil {
		return fmt.Errorf("TOKEN_CIPHER_KEY is not valid base64: %w", err)
	}
	if len(key) != tokenKeySize {
		return fmt.Errorf("TOKEN_CIPHER_KEY must decode to %d bytes, got %d", tokenKeySize, len(key))
	}

	return nil
}

// TokenKeyBytes decodes the configured token cipher key. LoadConfig has
// already verified the encoding and length, so callers may treat an error
// here as programmer error.
func (c *Config) TokenKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.Security.TokenKey.Unmask())
	if err != nil {
		return nil, fmt.Errorf("decoding token cipher key: %w", err)
	}
	if len(key) != tokenKeySize {
		return nil, fmt.Errorf("token cipher key must be %d bytes, got %d", tokenKeySize, len(key))
	}
	return key, nil
}
