// Package telemetry writes and reads the engine's append-only event log.
//
// Each line is a slog JSON record whose time is the sample timestamp that
// caused it (not wall-clock time), whose msg is a human-greppable marker, and
// whose event and session_id attributes are what the replay analyzer keys on.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"drivewatch/internal/alerts"
	"drivewatch/internal/fileio"
	"drivewatch/internal/parking"
	"drivewatch/internal/types"
)

// Log markers. Older tooling greps for these, so they stay stable.
const (
	MarkerDrivingStarted   = "Driving started ("
	MarkerParkingConfirmed = "PARKING CONFIRMED (source:"
	MarkerCameraAlert      = "NATIVE CAMERA ALERT:"
)

// Writer appends telemetry lines. It is safe for concurrent use: delivery
// outcomes arrive from coordinator goroutines while the engine writes
// decision events.
type Writer struct {
	mu      sync.Mutex
	handler slog.Handler
	closer  io.Closer
	closed  bool
}

// NewWriter writes JSON lines to w. If w is an io.Closer, Close closes it.
func NewWriter(w io.Writer) *Writer {
	tw := &Writer{
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	return tw
}

// OpenFile opens path for appending. A ".zst" path starts a fresh compressed
// stream instead, since zstd frames cannot be appended to in place.
func OpenFile(path string) (*Writer, error) {
	if fileio.IsCompressed(path) {
		w, err := fileio.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry log: %w", err)
		}
		return NewWriter(w), nil
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry log: %w", err)
	}
	return NewWriter(f), nil
}

// Close flushes and closes the underlying file. Later writes are dropped.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Emit writes one line. at becomes the record time.
func (w *Writer) Emit(at time.Time, level slog.Level, event types.EventName, sessionID, msg string, attrs ...slog.Attr) {
	rec := slog.NewRecord(at, level, msg, 0)
	rec.AddAttrs(slog.String("event", string(event)))
	if sessionID != "" {
		rec.AddAttrs(slog.String("session_id", sessionID))
	}
	rec.AddAttrs(attrs...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	_ = w.handler.Handle(context.Background(), rec)
}

func positionAttrs(p types.Position) []slog.Attr {
	return []slog.Attr{
		slog.Float64("latitude", p.Latitude),
		slog.Float64("longitude", p.Longitude),
	}
}

// Transition logs a state-machine transition.
func (w *Writer) Transition(t parking.Transition) {
	attrs := []slog.Attr{
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
	}
	if t.Reason != "" {
		attrs = append(attrs, slog.String("reason", t.Reason))
	}
	if t.Event != types.EventDrivingStarted {
		attrs = append(attrs,
			slog.Float64("dwell_seconds", t.DwellSeconds),
			slog.Bool("is_at_intersection", t.IsAtIntersection),
		)
	}
	if t.RequiredDwellSeconds > 0 {
		attrs = append(attrs, slog.Float64("required_dwell_seconds", t.RequiredDwellSeconds))
	}
	attrs = append(attrs, positionAttrs(t.Location)...)
	if t.Record != nil {
		attrs = append(attrs,
			slog.String("record_id", t.Record.ID),
			slog.String("source", string(t.Record.Source)),
			slog.Bool("reversed", t.Record.Reversed),
		)
	}

	level := slog.LevelInfo
	var msg string
	switch t.Event {
	case types.EventDrivingStarted:
		msg = fmt.Sprintf("%ssession %s)", MarkerDrivingStarted, t.SessionID)
	case types.EventStopCandidateOpened:
		msg = "Stop candidate opened"
	case types.EventStopCandidateUnwound:
		msg = "Stop candidate unwound"
	case types.EventParkingCandidateReady:
		msg = "Parking candidate ready"
	case types.EventParkingFinalizationCanceled:
		msg = "Parking finalization cancelled"
	case types.EventParkingConfirmed:
		source := t.Reason
		if t.Record != nil {
			source = string(t.Record.Source)
		}
		msg = fmt.Sprintf("%s %s)", MarkerParkingConfirmed, source)
	case types.EventParkingPostConfirmUnwound:
		msg = "Parking confirmation reversed"
		level = slog.LevelWarn
	case types.EventSessionClosed:
		msg = "Session closed"
	case types.EventSessionTimeout:
		msg = "Session timed out"
	default:
		msg = string(t.Event)
	}
	w.Emit(t.At, level, t.Event, t.SessionID, msg, attrs...)
}

func alertAttrs(ev types.CameraAlertEvent) []slog.Attr {
	return []slog.Attr{
		slog.String("camera_id", ev.CameraID),
		slog.String("camera_type", string(ev.CameraType)),
		slog.String("approach", ev.Approach),
		slog.String("tier", string(ev.Tier)),
		slog.Float64("score", ev.Score),
		slog.Float64("distance_meters", ev.DistanceMeters),
		slog.Float64("heading_delta_degrees", ev.HeadingDeltaDegrees),
	}
}

// AlertFired logs a High or Medium alert handed to delivery.
func (w *Writer) AlertFired(ev types.CameraAlertEvent) {
	where := ev.Address
	if where == "" {
		where = ev.CameraID
	}
	msg := fmt.Sprintf("%s %s camera at %s (%s)", MarkerCameraAlert, ev.CameraType, where, ev.Tier)
	w.Emit(ev.FiredAt, slog.LevelInfo, types.EventCameraAlertFired, ev.SessionID, msg, alertAttrs(ev)...)
}

// AlertSuppressed logs a Low-tier candidate.
func (w *Writer) AlertSuppressed(ev types.CameraAlertEvent) {
	w.Emit(ev.FiredAt, slog.LevelInfo, types.EventCameraAlertSuppressed, ev.SessionID,
		"Camera alert suppressed", alertAttrs(ev)...)
}

// AlertRejected logs a gate rejection.
func (w *Writer) AlertRejected(r alerts.Rejection) {
	w.Emit(r.At, slog.LevelDebug, types.EventCameraAlertRejected, r.SessionID, "Camera alert rejected",
		slog.String("camera_id", r.CameraID),
		slog.String("reason", string(r.Reason)),
		slog.Float64("distance_meters", r.DistanceMeters),
	)
}

// Delivered logs a delivery outcome. It satisfies delivery.OutcomeSink.
func (w *Writer) Delivered(o types.DeliveryOutcome) {
	attrs := append(alertAttrs(o.Alert),
		slog.String("mode", string(o.Mode)),
		slog.Int64("latency_ms", o.Latency.Milliseconds()),
	)
	if o.Reason != "" {
		attrs = append(attrs, slog.String("reason", o.Reason))
	}
	level := slog.LevelInfo
	if o.Mode == types.DeliverySuppressed {
		level = slog.LevelWarn
	}
	w.Emit(o.Alert.FiredAt.Add(o.Latency), level, types.EventCameraAlertDelivered, o.Alert.SessionID,
		"Camera alert delivered", attrs...)
}

// SampleDropped logs a sample the engine refused.
func (w *Writer) SampleDropped(at time.Time, sessionID, reason string, err error) {
	attrs := []slog.Attr{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	w.Emit(at, slog.LevelWarn, types.EventSampleDropped, sessionID, "Sample dropped", attrs...)
}

// DatasetMissing records that the engine is running without cameras.
func (w *Writer) DatasetMissing(at time.Time, source string) {
	w.Emit(at, slog.LevelWarn, types.EventCameraDatasetMissing, "", "Camera dataset missing, alerts disabled",
		slog.String("code", string(types.ErrCodeMissingCameraDataset)),
		slog.String("source", source),
	)
}
