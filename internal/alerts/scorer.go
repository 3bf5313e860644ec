package alerts

import (
	"math"

	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// ScoreInput carries the gate measurements for one (sample, camera) pair
// that survived every gate. Angular fields are types.UnknownReading when the
// vehicle heading is unknown or the camera declares no approach.
type ScoreInput struct {
	Sample         types.SensorSample
	Camera         types.CameraDef
	DistanceMeters float64
	RadiusMeters   float64
	HeadingDelta   float64
	BearingOffset  float64
}

// Scorer maps gate measurements to a confidence score in [0, 100].
type Scorer interface {
	Score(in ScoreInput) float64
}

// neutralMargin is the margin credited for an input that could not be
// measured. It keeps unknown heading from either boosting or sinking a score.
const neutralMargin = 0.5

// MarginScorer scores a candidate as a weighted sum of how far inside each
// gate it sits: 1 at the ideal (on top of the camera, exactly on the
// approach heading, camera dead ahead) down to 0 at the gate edge.
type MarginScorer struct {
	RadiusWeight  float64
	HeadingWeight float64
	BearingWeight float64

	HeadingToleranceDeg     float64
	MaxBearingOffHeadingDeg float64
}

// NewMarginScorer returns the default weights (0.4 radius, 0.3 heading,
// 0.3 bearing) with the angular limits taken from cfg.
func NewMarginScorer(cfg *thresholds.Config) MarginScorer {
	return MarginScorer{
		RadiusWeight:            0.4,
		HeadingWeight:           0.3,
		BearingWeight:           0.3,
		HeadingToleranceDeg:     cfg.HeadingToleranceDeg,
		MaxBearingOffHeadingDeg: cfg.MaxBearingOffHeadingDeg,
	}
}

// Score implements Scorer.
func (s MarginScorer) Score(in ScoreInput) float64 {
	radius := neutralMargin
	if in.RadiusMeters > 0 {
		radius = margin(in.DistanceMeters, in.RadiusMeters)
	}
	heading := neutralMargin
	if in.HeadingDelta >= 0 && s.HeadingToleranceDeg > 0 {
		heading = margin(in.HeadingDelta, s.HeadingToleranceDeg)
	}
	bearing := neutralMargin
	if in.BearingOffset >= 0 && s.MaxBearingOffHeadingDeg > 0 {
		bearing = margin(in.BearingOffset, s.MaxBearingOffHeadingDeg)
	}

	total := s.RadiusWeight + s.HeadingWeight + s.BearingWeight
	if total <= 0 {
		return 0
	}
	score := 100 * (s.RadiusWeight*radius + s.HeadingWeight*heading + s.BearingWeight*bearing) / total
	return math.Max(0, math.Min(100, score))
}

func margin(value, limit float64) float64 {
	return math.Max(0, math.Min(1, 1-value/limit))
}

// TierFor classifies a score against the configured minimums.
func TierFor(score float64, cfg *thresholds.Config) types.ConfidenceTier {
	switch {
	case score >= cfg.CameraHighConfidenceMin:
		return types.TierHigh
	case score >= cfg.CameraMediumConfidenceMin:
		return types.TierMedium
	default:
		return types.TierLow
	}
}
