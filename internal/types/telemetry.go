package types

// CloudWatch metric names and dimensions for alert delivery.
const (
	MetricDeliveryAttempt = "AlertDeliveryAttempt"
	MetricDeliveryLatency = "AlertDeliveryLatency"

	DimMode = "Mode"
	DimTier = "Tier"

	MetricNamespace = "DriveWatch"
)

// EventName is the machine-readable `event` field of a telemetry log line.
type EventName string

// Telemetry log events. The replay analyzer counts these by name, so renaming
// one is a log format change.
const (
	EventDrivingStarted              EventName = "driving_started"
	EventStopCandidateOpened         EventName = "stop_candidate_opened"
	EventStopCandidateUnwound        EventName = "stop_candidate_unwound"
	EventParkingCandidateReady       EventName = "parking_candidate_ready"
	EventParkingFinalizationCanceled EventName = "parking_finalization_cancelled"
	EventParkingConfirmed            EventName = "parking_confirmed"
	EventParkingPostConfirmUnwound   EventName = "parking_post_confirm_unwound"
	EventSessionClosed               EventName = "session_closed"
	EventSessionTimeout              EventName = "session_timeout"
	EventCameraAlertFired            EventName = "camera_alert_fired"
	EventCameraAlertSuppressed       EventName = "camera_alert_suppressed"
	EventCameraAlertRejected         EventName = "camera_alert_rejected"
	EventCameraAlertDelivered        EventName = "camera_alert_delivered"
	EventSampleDropped               EventName = "sample_dropped"
	EventCameraDatasetMissing        EventName = "camera_dataset_missing"
)
