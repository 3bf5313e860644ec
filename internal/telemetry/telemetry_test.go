package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivewatch/internal/alerts"
	"drivewatch/internal/parking"
	"drivewatch/internal/types"
)

var t0 = time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		out = append(out, m)
	}
	return out
}

func TestWriter_TransitionLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.Transition(parking.Transition{
		Event: types.EventDrivingStarted, SessionID: "s1", At: t0,
		From: parking.StateIdle, To: parking.StateDriving,
	})
	w.Transition(parking.Transition{
		Event: types.EventParkingConfirmed, SessionID: "s1", At: t0.Add(5 * time.Minute),
		From: parking.StateStopCandidate, To: parking.StateConfirmed,
		DwellSeconds: 95,
		Record:       &types.ParkingRecord{ID: "r1", Source: types.SourceGPSUnknownFallback},
	})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "Driving started (session s1)", lines[0]["msg"])
	assert.Equal(t, "driving_started", lines[0]["event"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, t0.Format(time.RFC3339), lines[0]["time"])

	assert.Equal(t, "PARKING CONFIRMED (source: gps_unknown_fallback)", lines[1]["msg"])
	assert.Equal(t, "parking_confirmed", lines[1]["event"])
	assert.Equal(t, 95.0, lines[1]["dwell_seconds"])
	assert.Equal(t, "r1", lines[1]["record_id"])
}

func TestWriter_AlertLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	ev := types.CameraAlertEvent{
		CameraID: "cam-1", CameraType: types.CameraSpeed, Address: "E 42nd St",
		SessionID: "s1", Approach: "E", FiredAt: t0, Tier: types.TierMedium, Score: 62.5,
	}
	w.AlertFired(ev)
	w.AlertRejected(alerts.Rejection{CameraID: "cam-2", SessionID: "s1", Reason: alerts.RejectHeadingMismatch, At: t0})
	w.Delivered(types.DeliveryOutcome{Alert: ev, Mode: types.DeliveryFallbackAudio, Reason: "primary: breaker open", Latency: 250 * time.Millisecond})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "NATIVE CAMERA ALERT: speed camera at E 42nd St (medium)", lines[0]["msg"])
	assert.Equal(t, "E", lines[0]["approach"])
	assert.Equal(t, "heading_mismatch", lines[1]["reason"])
	assert.Equal(t, "DEBUG", lines[1]["level"])
	assert.Equal(t, "fallback_audio", lines[2]["mode"])
	assert.Equal(t, 250.0, lines[2]["latency_ms"])
}

func TestWriter_ConcurrentWritesStayLineAtomic(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w.SampleDropped(t0, "s1", "invalid_coordinate", errors.New("latitude 91 outside [-90, 90]"))
			}
		}()
	}
	wg.Wait()

	stats, err := Scan(&buf, func(l Line) error {
		assert.Equal(t, types.EventSampleDropped, l.Event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.Lines)
	assert.Zero(t, stats.Skipped)
}

func TestWriter_CloseDropsLaterWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	w, err := OpenFile(path)
	require.NoError(t, err)
	w.DatasetMissing(t0, "cams.json")
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	w.DatasetMissing(t0, "cams.json")

	stats, err := ScanFile(path, func(Line) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Lines)
}

func TestOpenFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	for i := 0; i < 2; i++ {
		w, err := OpenFile(path)
		require.NoError(t, err)
		w.Transition(parking.Transition{Event: types.EventDrivingStarted, SessionID: "s", At: t0})
		require.NoError(t, w.Close())
	}

	stats, err := ScanFile(path, func(Line) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Lines)
}

func TestOpenFile_Compressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl.zst")
	w, err := OpenFile(path)
	require.NoError(t, err)
	w.Transition(parking.Transition{Event: types.EventDrivingStarted, SessionID: "s", At: t0})
	require.NoError(t, w.Close())

	var events []types.EventName
	_, err = ScanFile(path, func(l Line) error {
		events = append(events, l.Event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.EventName{types.EventDrivingStarted}, events)
}

func TestScan_SkipsMalformedAndRecoversMarkers(t *testing.T) {
	input := strings.Join([]string{
		`{"time":"2026-05-04T17:00:00Z","level":"INFO","msg":"Driving started (session a)","session_id":"a"}`,
		`not json at all`,
		``,
		`{"time":"2026-05-04T17:05:00Z","level":"INFO","msg":"PARKING CONFIRMED (source: gps)","session_id":"a"}`,
		`{"time":"2026-05-04T17:06:00Z","level":"INFO","msg":"something unrelated"}`,
		`{"time":"2026-05-04T17:07:00Z","msg":"NATIVE CAMERA ALERT: red_light camera at X (high)","event":"camera_alert_fired","tier":"high"}`,
		`{"time": 12`,
	}, "\n")

	var got []Line
	stats, err := Scan(strings.NewReader(input), func(l Line) error {
		got = append(got, l)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Lines: 6, Skipped: 3}, stats)

	require.Len(t, got, 3)
	assert.Equal(t, types.EventDrivingStarted, got[0].Event)
	assert.Equal(t, types.EventParkingConfirmed, got[1].Event)
	assert.Equal(t, "gps", got[1].Source)
	assert.Equal(t, types.EventCameraAlertFired, got[2].Event)
	assert.Equal(t, "high", got[2].Tier)
}

func TestScan_CallbackErrorStops(t *testing.T) {
	input := `{"event":"driving_started"}` + "\n" + `{"event":"driving_started"}`
	stop := errors.New("stop")
	calls := 0
	_, err := Scan(strings.NewReader(input), func(Line) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestScan_SkipsOversizedLine(t *testing.T) {
	huge := `{"event":"driving_started","msg":"` + strings.Repeat("x", 2*maxLineBytes) + `"}`
	input := strings.Join([]string{
		`{"event":"driving_started","session_id":"a"}`,
		huge,
		`{"event":"parking_confirmed","session_id":"a","source":"gps"}`,
	}, "\n")

	var got []types.EventName
	stats, err := Scan(strings.NewReader(input), func(l Line) error {
		got = append(got, l.Event)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Lines: 3, Skipped: 1}, stats)
	assert.Equal(t, []types.EventName{types.EventDrivingStarted, types.EventParkingConfirmed}, got)
}

func TestScan_LineAtLimitIsKept(t *testing.T) {
	prefix, suffix := `{"event":"driving_started","msg":"`, `"}`
	line := prefix + strings.Repeat("y", maxLineBytes-len(prefix)-len(suffix)) + suffix
	require.Len(t, line, maxLineBytes)

	stats, err := Scan(strings.NewReader(line+"\n"), func(Line) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Lines: 1}, stats)
}

func TestScan_RecoversPlainTextMarkers(t *testing.T) {
	input := strings.Join([]string{
		`12:00:01 Driving started (gps)`,
		`12:04:40 PARKING CONFIRMED (source: gps)`,
		`12:09:12 [warn] NATIVE CAMERA ALERT: speed camera at Main St (low)`,
		`12:10:00 engine idle`,
	}, "\n")

	var got []Line
	stats, err := Scan(strings.NewReader(input), func(l Line) error {
		got = append(got, l)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ScanStats{Lines: 4, Skipped: 1}, stats)

	require.Len(t, got, 3)
	assert.Equal(t, types.EventDrivingStarted, got[0].Event)
	assert.Equal(t, "12:00:01 Driving started (gps)", got[0].Msg)
	assert.Equal(t, types.EventParkingConfirmed, got[1].Event)
	assert.Equal(t, "gps", got[1].Source)
	assert.Equal(t, types.EventCameraAlertFired, got[2].Event)
}
