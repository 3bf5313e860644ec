// Package config defines the process configuration for the drivewatch engine.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Decision thresholds are not environment configuration: they live in a
// versioned JSON file (see internal/thresholds) named by THRESHOLDS_PATH.
package config

import (
	"time"

	"drivewatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"drivewatch-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Engine   EngineConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Delivery DeliveryConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the sample ingest surface.
type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBatch        int           `envconfig:"MAX_SAMPLE_BATCH" default:"500" validate:"gt=0"`
	// StdinIngest additionally reads NDJSON samples from standard input.
	StdinIngest bool `envconfig:"STDIN_INGEST" default:"false"`
}

// EngineConfig locates the engine's files and tunes session housekeeping.
type EngineConfig struct {
	// ThresholdsPath is a JSON threshold file. Empty uses built-in defaults.
	ThresholdsPath string `envconfig:"THRESHOLDS_PATH"`
	// CameraSource is a dataset file path (plain or .zst) or a postgres:// URL.
	// Empty runs without camera alerts.
	CameraSource   string        `envconfig:"CAMERA_SOURCE"`
	ZonesPath      string        `envconfig:"ZONES_PATH"`
	TelemetryPath  string        `envconfig:"TELEMETRY_LOG" default:"telemetry.jsonl" validate:"required"`
	SweepInterval  time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"30s" validate:"gt=0"`
	DefaultDevice  string        `envconfig:"DEFAULT_DEVICE_ID" default:"device"`
	WriteQueueSize int           `envconfig:"PARKING_WRITE_QUEUE" default:"64" validate:"gt=0"`
}

// DatabaseConfig holds the optional parking record store.
type DatabaseConfig struct {
	// URL is empty when parking records are not persisted.
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	WriteTimeout    time.Duration `envconfig:"DB_WRITE_TIMEOUT" default:"5s"`
}

// AWSConfig holds queue identifiers for alert hand-off.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Empty queue URLs disable that delivery leg.
	PushQueue  string `envconfig:"SQS_ALERT_PUSH" validate:"omitempty,url"`
	AudioQueue string `envconfig:"SQS_ALERT_AUDIO" validate:"omitempty,url"`

	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"false"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// DeliveryConfig tunes the alert delivery coordinator.
type DeliveryConfig struct {
	DNDEnabled     bool          `envconfig:"DND_ENABLED" default:"false"`
	DNDStart       string        `envconfig:"DND_START" default:"22:00"`
	DNDEnd         string        `envconfig:"DND_END" default:"07:00"`
	DNDTimezone    string        `envconfig:"DND_TIMEZONE" default:"UTC"`
	AttemptTimeout time.Duration `envconfig:"DELIVERY_ATTEMPT_TIMEOUT" default:"2s" validate:"gt=0"`
	MaxInFlight    int           `envconfig:"DELIVERY_MAX_IN_FLIGHT" default:"16" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDotenv indicates an explicitly named .env file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
)
