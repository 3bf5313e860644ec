// Package tuner proposes threshold changes from a replay summary. It never
// writes live configuration: a Proposal is reviewed and promoted by hand,
// and the engine only picks it up on restart.
package tuner

import (
	"math"
	"time"

	"drivewatch/internal/replay"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// Policy holds the targets that trigger an adjustment and the bounds every
// adjusted value is clamped to.
type Policy struct {
	TargetUnwindRate      float64
	TargetFallbackRate    float64
	SuppressedDominance   float64
	MinConfirmations      int
	MinAlerts             int
	ConfidenceStep        float64
	FallbackStep          float64
	IntersectionDwellStep float64

	HighMin, HighMax        float64
	MediumMin, MediumMax    float64
	IntersectionDwellMaxSec float64
	MinTierGap              float64
}

// DefaultPolicy mirrors the release gate: tuning reacts before the gate
// ceilings are reached.
func DefaultPolicy() Policy {
	return Policy{
		TargetUnwindRate:      0.10,
		TargetFallbackRate:    0.30,
		SuppressedDominance:   1.0,
		MinConfirmations:      5,
		MinAlerts:             5,
		ConfidenceStep:        5,
		FallbackStep:          3,
		IntersectionDwellStep: 30,

		HighMin:                 55,
		HighMax:                 95,
		MediumMin:               30,
		MediumMax:               85,
		IntersectionDwellMaxSec: 600,
		MinTierGap:              5,
	}
}

// Adjustment records one changed field.
type Adjustment struct {
	Field  string  `json:"field"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Reason string  `json:"reason"`
}

// Observed echoes the rates the proposal was derived from.
type Observed struct {
	ParkingMissRate    float64 `json:"parkingMissRate"`
	UnwindRate         float64 `json:"unwindRate"`
	FallbackPerAlert   float64 `json:"fallbackPerAlert"`
	SuppressedPerFired float64 `json:"suppressedPerFired"`
	ParkingConfirmed   int     `json:"parkingConfirmed"`
	CameraAlerts       int     `json:"cameraAlerts"`
	ReversedDwellP90   float64 `json:"reversedDwellP90"`
	SkippedLines       int     `json:"skippedLines"`
}

// Proposal is the auto-tune output document.
type Proposal struct {
	GeneratedAt           time.Time         `json:"generatedAt"`
	LogFile               string            `json:"logFile"`
	Observed              Observed          `json:"observed"`
	RecommendedThresholds thresholds.Config `json:"recommendedThresholds"`
	Adjustments           []Adjustment      `json:"adjustments"`
}

// Tuner derives proposals.
type Tuner struct {
	policy Policy
	clock  types.Clock
}

// New returns a Tuner. A nil clock uses the real clock.
func New(policy Policy, clock types.Clock) *Tuner {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Tuner{policy: policy, clock: clock}
}

// Propose derives recommended thresholds from base and the replay summary.
// base is not modified. The result always passes thresholds validation;
// the version is bumped only when something changed.
func (t *Tuner) Propose(base thresholds.Config, s *replay.Summary, logFile string) (Proposal, error) {
	p := t.policy
	next := base
	var adj []Adjustment

	set := func(field string, dst *float64, to float64, reason string) {
		if to == *dst {
			return
		}
		adj = append(adj, Adjustment{Field: field, From: *dst, To: to, Reason: reason})
		*dst = to
	}

	if s.Counts.ParkingConfirmed >= p.MinConfirmations && s.UnwindRate > p.TargetUnwindRate {
		reason := "unwind rate above target"
		set("cameraHighConfidenceMin", &next.CameraHighConfidenceMin,
			clamp(next.CameraHighConfidenceMin+p.ConfidenceStep, p.HighMin, p.HighMax), reason)
		set("cameraMediumConfidenceMin", &next.CameraMediumConfidenceMin,
			clamp(next.CameraMediumConfidenceMin+p.ConfidenceStep, p.MediumMin, p.MediumMax), reason)

		dwell := math.Max(next.IntersectionDwellMinStopSec+p.IntersectionDwellStep, math.Ceil(s.ReversedDwell.P90))
		set("intersectionDwellMinStopSec", &next.IntersectionDwellMinStopSec,
			clamp(dwell, next.ParkingDwellMinStopSec+p.IntersectionDwellStep, p.IntersectionDwellMaxSec), reason)
	}

	if s.Counts.CameraAlerts >= p.MinAlerts && s.FallbackPerAlert > p.TargetFallbackRate {
		set("cameraHighConfidenceMin", &next.CameraHighConfidenceMin,
			clamp(next.CameraHighConfidenceMin-p.FallbackStep, p.HighMin, p.HighMax), "fallback rate above target")
	}

	if s.Counts.CameraSuppressedLow > 0 && s.SuppressedPerFired > p.SuppressedDominance {
		set("cameraMediumConfidenceMin", &next.CameraMediumConfidenceMin,
			clamp(next.CameraMediumConfidenceMin-p.ConfidenceStep, p.MediumMin, p.MediumMax), "low-tier suppressions dominate fired alerts")
	}

	if next.CameraHighConfidenceMin-next.CameraMediumConfidenceMin < p.MinTierGap {
		set("cameraMediumConfidenceMin", &next.CameraMediumConfidenceMin,
			clamp(next.CameraHighConfidenceMin-p.MinTierGap, p.MediumMin, p.MediumMax), "keep high above medium")
		if next.CameraHighConfidenceMin <= next.CameraMediumConfidenceMin {
			set("cameraHighConfidenceMin", &next.CameraHighConfidenceMin,
				next.CameraMediumConfidenceMin+p.MinTierGap, "keep high above medium")
		}
	}

	if len(adj) > 0 {
		next.Version = base.Version + 1
	}
	if err := next.Validate(); err != nil {
		return Proposal{}, err
	}

	return Proposal{
		GeneratedAt: t.clock.Now(),
		LogFile:     logFile,
		Observed: Observed{
			ParkingMissRate:    s.ParkingMissRate,
			UnwindRate:         s.UnwindRate,
			FallbackPerAlert:   s.FallbackPerAlert,
			SuppressedPerFired: s.SuppressedPerFired,
			ParkingConfirmed:   s.Counts.ParkingConfirmed,
			CameraAlerts:       s.Counts.CameraAlerts,
			ReversedDwellP90:   s.ReversedDwell.P90,
			SkippedLines:       s.Counts.Skipped,
		},
		RecommendedThresholds: next,
		Adjustments:           adj,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
