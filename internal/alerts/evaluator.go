// Package alerts decides when an approaching vehicle should be warned about a
// nearby enforcement camera.
//
// Each sample is run through four gates in order (speed, radius, heading,
// ahead-of-vehicle) for every camera within the maximum alert radius.
// Survivors are scored, tiered, and deduplicated per (session, camera,
// approach) through a Ledger. Missing heading or speed never blocks an
// alert on its own: unknown readings pass their gate and score neutrally.
package alerts

import (
	"time"

	"drivewatch/internal/cameras"
	"drivewatch/internal/geo"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// RejectReason is the machine-readable gate that rejected a candidate.
type RejectReason string

const (
	RejectSpeedBelowMinimum RejectReason = "speed_below_minimum"
	RejectOutsideRadius     RejectReason = "outside_radius"
	RejectHeadingMismatch   RejectReason = "heading_mismatch"
	RejectCameraBehind      RejectReason = "camera_behind"
)

// Rejection records a candidate camera that failed a gate.
type Rejection struct {
	CameraID       string       `json:"camera_id"`
	SessionID      string       `json:"session_id"`
	Reason         RejectReason `json:"reason"`
	At             time.Time    `json:"at"`
	DistanceMeters float64      `json:"distance_meters"`
}

// Decision is the evaluator output for one sample.
type Decision struct {
	// Fired holds High and Medium alerts to hand to delivery.
	Fired []types.CameraAlertEvent
	// Suppressed holds Low-tier candidates logged for the first time.
	Suppressed []types.CameraAlertEvent
	// Rejected holds gate rejections whose reason changed since the last
	// rejection logged for that camera.
	Rejected []Rejection
}

// Empty reports whether the decision carries nothing to log or deliver.
func (d Decision) Empty() bool {
	return len(d.Fired) == 0 && len(d.Suppressed) == 0 && len(d.Rejected) == 0
}

// Evaluator runs the gate pipeline. It holds only immutable collaborators
// and may be shared between sessions; per-session memory lives in Ledger.
type Evaluator struct {
	cfg    *thresholds.Config
	index  *cameras.Index
	scorer Scorer
}

// NewEvaluator builds an evaluator. A nil scorer selects MarginScorer.
func NewEvaluator(cfg *thresholds.Config, index *cameras.Index, scorer Scorer) *Evaluator {
	if scorer == nil {
		scorer = NewMarginScorer(cfg)
	}
	if index == nil {
		index = cameras.Empty()
	}
	return &Evaluator{cfg: cfg, index: index, scorer: scorer}
}

// Evaluate runs every nearby camera through the gates for one sample.
// Invalid samples yield an empty decision; callers validate and log drops
// before reaching here.
func (e *Evaluator) Evaluate(sample types.SensorSample, ledger *Ledger) Decision {
	var d Decision
	pos := sample.Position()
	if types.ValidatePosition(pos) != nil {
		return d
	}

	speed := geo.Reading(sample.SpeedMPS)
	heading := geo.Reading(sample.HeadingDegrees)
	radius := e.cfg.AlertRadius(sample.SpeedMPS)

	for _, cam := range e.index.Near(pos, e.cfg.MaxAlertRadiusM) {
		dist, err := geo.Distance(pos, cam.Position())
		if err != nil {
			continue
		}

		reject := func(reason RejectReason) {
			if ledger.noteRejection(cam.ID, reason) {
				d.Rejected = append(d.Rejected, Rejection{
					CameraID:       cam.ID,
					SessionID:      ledger.SessionID(),
					Reason:         reason,
					At:             sample.Timestamp,
					DistanceMeters: dist,
				})
			}
		}

		if speed.Below(e.cfg.MinSpeedFor(cam.Type)) {
			reject(RejectSpeedBelowMinimum)
			continue
		}
		if dist > radius {
			reject(RejectOutsideRadius)
			continue
		}

		approach, headingDelta, ok := e.matchApproach(cam, heading)
		if !ok {
			reject(RejectHeadingMismatch)
			continue
		}

		bearingOffset := types.UnknownReading
		if heading.Known() {
			bearingOffset = 0
			if dist >= 1 {
				brg, err := geo.Bearing(pos, cam.Position())
				if err != nil {
					continue
				}
				bearingOffset = geo.HeadingDelta(brg, float64(heading))
			}
			if bearingOffset > e.cfg.MaxBearingOffHeadingDeg {
				reject(RejectCameraBehind)
				continue
			}
		}

		ledger.clearRejection(cam.ID)
		if ledger.HasFired(cam.ID, approach) {
			continue
		}

		score := e.scorer.Score(ScoreInput{
			Sample:         sample,
			Camera:         cam,
			DistanceMeters: dist,
			RadiusMeters:   radius,
			HeadingDelta:   headingDelta,
			BearingOffset:  bearingOffset,
		})
		ev := types.CameraAlertEvent{
			CameraID:            cam.ID,
			CameraType:          cam.Type,
			Address:             cam.Address,
			SessionID:           ledger.SessionID(),
			Approach:            approach,
			FiredAt:             sample.Timestamp,
			Tier:                TierFor(score, e.cfg),
			Score:               score,
			DeliveryMode:        types.DeliveryPending,
			DistanceMeters:      dist,
			HeadingDeltaDegrees: headingDelta,
		}

		if !ev.Tier.Deliverable() {
			if ledger.markLow(cam.ID, approach) {
				ev.DeliveryMode = types.DeliverySuppressed
				d.Suppressed = append(d.Suppressed, ev)
			}
			continue
		}
		ledger.record(ev)
		d.Fired = append(d.Fired, ev)
	}
	return d
}

// matchApproach applies the heading gate. It returns the approach code the
// vehicle matched, the heading delta to it (UnknownReading when not
// measured), and false when a known heading matches no declared approach.
func (e *Evaluator) matchApproach(cam types.CameraDef, heading geo.Reading) (string, float64, bool) {
	if !heading.Known() || len(cam.ApproachHeadings) == 0 {
		return WildcardApproach, types.UnknownReading, true
	}

	best := cam.ApproachHeadings[0]
	bestDelta := geo.HeadingDelta(float64(heading), best)
	for _, h := range cam.ApproachHeadings[1:] {
		if delta := geo.HeadingDelta(float64(heading), h); delta < bestDelta {
			best, bestDelta = h, delta
		}
	}
	if !heading.WithinOr(best, e.cfg.HeadingToleranceDeg, true) {
		return "", 0, false
	}
	return geo.HeadingCode(best), bestDelta, true
}
