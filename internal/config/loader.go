package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError says which loading stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoadConfig reads dotenv files, then the environment, then validates. With
// no arguments ./.env is optional; named files must exist. Values already in
// the environment win over dotenv values. time.Local is pinned to UTC.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	time.Local = time.UTC

	if len(dotenvFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(dotenvFiles...); err != nil {
		return nil, &ConfigError{
			Type:    ErrDotenv,
			Message: fmt.Sprintf("failed to load %s", strings.Join(dotenvFiles, ", ")),
			Err:     err,
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct rules plus the checks tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}
	if u := cfg.Database.URL.Unmask(); u != "" && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "DATABASE_URL must be a postgres:// URL",
		}
	}
	return nil
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
