package types

import "strings"

// MotionActivity is the platform motion classifier's label for a sample.
type MotionActivity string

const (
	ActivityAutomotive MotionActivity = "automotive"
	ActivityStationary MotionActivity = "stationary"
	ActivityWalking    MotionActivity = "walking"
	ActivityUnknown    MotionActivity = "unknown"
)

// ParseMotionActivity normalizes a label; anything unrecognized is Unknown.
func ParseMotionActivity(s string) MotionActivity {
	switch MotionActivity(strings.ToLower(strings.TrimSpace(s))) {
	case ActivityAutomotive:
		return ActivityAutomotive
	case ActivityStationary:
		return ActivityStationary
	case ActivityWalking:
		return ActivityWalking
	default:
		return ActivityUnknown
	}
}

// CameraType identifies the kind of enforcement camera.
type CameraType string

const (
	CameraSpeed    CameraType = "speed"
	CameraRedLight CameraType = "red_light"
)

// ParseCameraType accepts the dataset spellings ("Speed", "RedLight",
// "red_light", ...). The second return is false for unknown types.
func ParseCameraType(s string) (CameraType, bool) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch norm {
	case "speed":
		return CameraSpeed, true
	case "redlight":
		return CameraRedLight, true
	default:
		return "", false
	}
}

// ConfidenceTier classifies an alert decision's certainty.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// Rank orders tiers so that High > Medium > Low.
func (t ConfidenceTier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Deliverable reports whether alerts of this tier are shown to the user.
func (t ConfidenceTier) Deliverable() bool {
	return t == TierHigh || t == TierMedium
}

// DeliveryMode is how (or whether) an alert reached the user.
type DeliveryMode string

const (
	DeliveryPending       DeliveryMode = "pending"
	DeliveryPrimary       DeliveryMode = "primary"
	DeliveryFallbackAudio DeliveryMode = "fallback_audio"
	DeliverySuppressed    DeliveryMode = "suppressed"
)

// ParkingSource attributes a confirmed parking event to its evidence.
type ParkingSource string

const (
	SourceGPS                ParkingSource = "gps"
	SourceGPSUnknownFallback ParkingSource = "gps_unknown_fallback"
)
