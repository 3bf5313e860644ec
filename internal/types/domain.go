package types

import (
	"time"
)

// UnknownReading is the sentinel the platform sensor collaborator uses for a
// heading or speed it could not measure.
const UnknownReading = -1.0

// Position is a WGS84 latitude/longitude pair in decimal degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SensorSample is one location + motion-activity reading pushed by the
// platform. Samples are immutable once received.
type SensorSample struct {
	DeviceID           string         `json:"device_id,omitempty"`
	Timestamp          time.Time      `json:"timestamp" validate:"required"`
	Latitude           float64        `json:"latitude"`
	Longitude          float64        `json:"longitude"`
	HeadingDegrees     float64        `json:"heading_degrees"`
	SpeedMPS           float64        `json:"speed_mps"`
	MotionActivity     MotionActivity `json:"motion_activity"`
	ActivityConfidence float64        `json:"activity_confidence" validate:"gte=0,lte=1"`
}

// Position returns the sample location.
func (s SensorSample) Position() Position {
	return Position{Latitude: s.Latitude, Longitude: s.Longitude}
}

// HeadingKnown reports whether the sample carries a measured heading.
func (s SensorSample) HeadingKnown() bool { return s.HeadingDegrees >= 0 }

// SpeedKnown reports whether the sample carries a measured speed.
func (s SensorSample) SpeedKnown() bool { return s.SpeedMPS >= 0 }

// ConfidentActivity reports whether the sample is classified as a with
// confidence at least minConf.
func (s SensorSample) ConfidentActivity(a MotionActivity, minConf float64) bool {
	return s.MotionActivity == a && s.ActivityConfidence >= minConf
}

// CameraDef is a traffic-enforcement camera from the reference dataset.
// ApproachHeadings holds the compass headings (degrees) a vehicle travels on
// when approaching the camera; empty means any approach is enforced.
type CameraDef struct {
	ID               string     `json:"id"`
	Type             CameraType `json:"type"`
	Address          string     `json:"address"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	ApproachHeadings []float64  `json:"approach_headings,omitempty"`
}

// Position returns the camera location.
func (c CameraDef) Position() Position {
	return Position{Latitude: c.Latitude, Longitude: c.Longitude}
}

// CameraAlertEvent records one alert decision for a (session, camera,
// approach) tuple. Values are never mutated; delivery produces a copy
// carrying the final DeliveryMode.
type CameraAlertEvent struct {
	CameraID            string         `json:"camera_id"`
	CameraType          CameraType     `json:"camera_type"`
	Address             string         `json:"address,omitempty"`
	SessionID           string         `json:"session_id"`
	Approach            string         `json:"approach"`
	FiredAt             time.Time      `json:"fired_at"`
	Tier                ConfidenceTier `json:"confidence_tier"`
	Score               float64        `json:"confidence_score"`
	DeliveryMode        DeliveryMode   `json:"delivery_mode"`
	DistanceMeters      float64        `json:"distance_meters"`
	HeadingDeltaDegrees float64        `json:"heading_delta_degrees"`
}

// WithDeliveryMode returns a copy of the event carrying mode.
func (e CameraAlertEvent) WithDeliveryMode(mode DeliveryMode) CameraAlertEvent {
	e.DeliveryMode = mode
	return e
}

// DeliveryOutcome is the result reported by the delivery collaborator.
type DeliveryOutcome struct {
	Alert   CameraAlertEvent `json:"alert"`
	Mode    DeliveryMode     `json:"mode"`
	Reason  string           `json:"reason,omitempty"`
	Latency time.Duration    `json:"latency"`
}

// ParkingRecord is a confirmed parking location. A record that was reversed
// by a post-confirm unwind is kept and flagged, never deleted.
type ParkingRecord struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"session_id"`
	DeviceID         string        `json:"device_id,omitempty"`
	ConfirmedAt      time.Time     `json:"confirmed_at"`
	Location         Position      `json:"location"`
	DwellSeconds     float64       `json:"dwell_seconds"`
	Source           ParkingSource `json:"source"`
	IsAtIntersection bool          `json:"is_at_intersection"`
	Reversed         bool          `json:"reversed"`
	ReversedAt       *time.Time    `json:"reversed_at,omitempty"`
}
