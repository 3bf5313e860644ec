// Package thresholds holds the versioned decision thresholds shared by the
// alert evaluator and the parking state machine.
//
// A Config is loaded once at process start and is immutable afterwards: it is
// passed by pointer into every session constructor and never written to. A
// retuned Config (see internal/tuner) only takes effect after a restart, so a
// session never observes two different threshold sets mid-decision.
package thresholds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"drivewatch/internal/types"
)

// maxFileSize bounds the threshold file read at startup.
const maxFileSize = 1 << 20

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid threshold config")

// Config is the full threshold set. The JSON names are the wire format
// shared with the auto-tuner output.
type Config struct {
	Version int `json:"version" validate:"gte=1"`

	// Camera alerting
	CameraHighConfidenceMin   float64 `json:"cameraHighConfidenceMin" validate:"gte=0,lte=100"`
	CameraMediumConfidenceMin float64 `json:"cameraMediumConfidenceMin" validate:"gte=0,lte=100"`
	MinSpeedSpeedCam          float64 `json:"minSpeedSpeedCam" validate:"gte=0"`
	MinSpeedRedLight          float64 `json:"minSpeedRedLight" validate:"gte=0"`
	BaseAlertRadiusM          float64 `json:"baseAlertRadiusM" validate:"gt=0"`
	MaxAlertRadiusM           float64 `json:"maxAlertRadiusM" validate:"gt=0"`
	TargetWarningSeconds      float64 `json:"targetWarningSeconds" validate:"gt=0"`
	HeadingToleranceDeg       float64 `json:"headingToleranceDeg" validate:"gt=0,lte=180"`
	MaxBearingOffHeadingDeg   float64 `json:"maxBearingOffHeadingDeg" validate:"gt=0,lte=180"`

	// Parking detection
	IntersectionDwellMinStopSec float64 `json:"intersectionDwellMinStopSec" validate:"gt=0"`
	ParkingDwellMinStopSec      float64 `json:"parkingDwellMinStopSec" validate:"gt=0"`
	HotspotDwellMinStopSec      float64 `json:"hotspotDwellMinStopSec" validate:"gt=0"`
	LockoutDwellMinStopSec      float64 `json:"lockoutDwellMinStopSec" validate:"gt=0"`
	LockoutDurationSec          float64 `json:"lockoutDurationSec" validate:"gte=0"`
	AutomotiveConfidenceMin     float64 `json:"automotiveConfidenceMin" validate:"gte=0,lte=1"`
	DrivingSpeedMinMps          float64 `json:"drivingSpeedMinMps" validate:"gt=0"`
	StopSpeedMaxMps             float64 `json:"stopSpeedMaxMps" validate:"gt=0"`
	LowConfidenceStreakMax      int     `json:"lowConfidenceStreakMax" validate:"gte=0"`
	PostConfirmGraceSec         float64 `json:"postConfirmGraceSec" validate:"gte=0"`
	SessionIdleTimeoutSec       float64 `json:"sessionIdleTimeoutSec" validate:"gt=0"`
	IntersectionRadiusM         float64 `json:"intersectionRadiusM" validate:"gte=0"`
}

// Defaults returns the release-one threshold set. Values were picked from
// field telemetry of the first beta cohort and are replaced by tuner output.
func Defaults() Config {
	return Config{
		Version: 1,

		CameraHighConfidenceMin:   70,
		CameraMediumConfidenceMin: 45,
		MinSpeedSpeedCam:          4.5,
		MinSpeedRedLight:          2.0,
		BaseAlertRadiusM:          120,
		MaxAlertRadiusM:           600,
		TargetWarningSeconds:      20,
		HeadingToleranceDeg:       45,
		MaxBearingOffHeadingDeg:   60,

		IntersectionDwellMinStopSec: 180,
		ParkingDwellMinStopSec:      90,
		HotspotDwellMinStopSec:      300,
		LockoutDwellMinStopSec:      240,
		LockoutDurationSec:          900,
		AutomotiveConfidenceMin:     0.6,
		DrivingSpeedMinMps:          4.0,
		StopSpeedMaxMps:             1.5,
		LowConfidenceStreakMax:      5,
		PostConfirmGraceSec:         120,
		SessionIdleTimeoutSec:       1800,
		IntersectionRadiusM:         40,
	}
}

// Load reads a Config from a JSON file. Fields omitted from the file keep
// their Defaults values, so partial files are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("threshold file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat threshold file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("threshold file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON threshold document.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse threshold JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate enforces field ranges and the cross-field ordering invariants.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return invalid("field validation failed", err)
	}
	if c.CameraHighConfidenceMin <= c.CameraMediumConfidenceMin {
		return invalid(fmt.Sprintf("cameraHighConfidenceMin (%.2f) must be greater than cameraMediumConfidenceMin (%.2f)",
			c.CameraHighConfidenceMin, c.CameraMediumConfidenceMin), nil)
	}
	if c.MaxAlertRadiusM < c.BaseAlertRadiusM {
		return invalid(fmt.Sprintf("maxAlertRadiusM (%.1f) must be >= baseAlertRadiusM (%.1f)",
			c.MaxAlertRadiusM, c.BaseAlertRadiusM), nil)
	}
	if c.IntersectionDwellMinStopSec <= c.ParkingDwellMinStopSec {
		return invalid(fmt.Sprintf("intersectionDwellMinStopSec (%.0f) must be greater than parkingDwellMinStopSec (%.0f)",
			c.IntersectionDwellMinStopSec, c.ParkingDwellMinStopSec), nil)
	}
	if c.DrivingSpeedMinMps <= c.StopSpeedMaxMps {
		return invalid(fmt.Sprintf("drivingSpeedMinMps (%.2f) must be greater than stopSpeedMaxMps (%.2f)",
			c.DrivingSpeedMinMps, c.StopSpeedMaxMps), nil)
	}
	return nil
}

func invalid(msg string, err error) error {
	appErr := types.NewAppError(types.ErrCodeInvalidThresholds, msg, err)
	return fmt.Errorf("%w: %w", ErrInvalidConfig, appErr)
}

// AlertRadius returns the speed-scaled alert radius in meters. Unknown speed
// (negative) uses the base radius. The result is always within
// [BaseAlertRadiusM, MaxAlertRadiusM].
func (c *Config) AlertRadius(speedMPS float64) float64 {
	if speedMPS < 0 {
		return c.BaseAlertRadiusM
	}
	r := speedMPS * c.TargetWarningSeconds
	if r < c.BaseAlertRadiusM {
		return c.BaseAlertRadiusM
	}
	if r > c.MaxAlertRadiusM {
		return c.MaxAlertRadiusM
	}
	return r
}

// MinSpeedFor returns the minimum approach speed for a camera type.
func (c *Config) MinSpeedFor(t types.CameraType) float64 {
	if t == types.CameraRedLight {
		return c.MinSpeedRedLight
	}
	return c.MinSpeedSpeedCam
}

// Duration helpers convert the second-valued fields.

func (c *Config) LockoutDuration() time.Duration { return seconds(c.LockoutDurationSec) }
func (c *Config) PostConfirmGrace() time.Duration { return seconds(c.PostConfirmGraceSec) }
func (c *Config) SessionIdleTimeout() time.Duration {
	return seconds(c.SessionIdleTimeoutSec)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Marshal renders the config as indented JSON in the file format Load reads.
func (c *Config) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
