package parking

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

var t0 = time.Date(2026, 5, 4, 17, 0, 0, 0, time.UTC)

type fakePlaces struct {
	intersection bool
	hotspot      bool
}

func (f fakePlaces) IsIntersection(types.Position, float64) bool { return f.intersection }
func (f fakePlaces) InHotspot(types.Position) bool               { return f.hotspot }

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestMachine(places Places) *Machine {
	cfg := thresholds.Defaults()
	return NewMachine(&cfg, places, WithIDGenerator(seqIDs()), WithDeviceID("dev-1"))
}

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func sample(sec int, speed float64, act types.MotionActivity, conf float64) types.SensorSample {
	return types.SensorSample{
		Timestamp:          at(sec),
		Latitude:           40.7128,
		Longitude:          -74.0060,
		HeadingDegrees:     types.UnknownReading,
		SpeedMPS:           speed,
		MotionActivity:     act,
		ActivityConfidence: conf,
	}
}

func drive(sec int) types.SensorSample { return sample(sec, 12, types.ActivityAutomotive, 0.9) }
func still(sec int) types.SensorSample { return sample(sec, 0, types.ActivityStationary, 0.9) }

func run(m *Machine, samples ...types.SensorSample) []Transition {
	var out []Transition
	for _, s := range samples {
		out = append(out, m.Step(s)...)
	}
	return out
}

// stillFrom returns stationary samples every 10s over [from, to].
func stillFrom(from, to int) []types.SensorSample {
	var out []types.SensorSample
	for s := from; s <= to; s += 10 {
		out = append(out, still(s))
	}
	return out
}

func names(ts []Transition) []types.EventName {
	out := make([]types.EventName, len(ts))
	for i, t := range ts {
		out[i] = t.Event
	}
	return out
}

func find(ts []Transition, ev types.EventName) []Transition {
	var out []Transition
	for _, t := range ts {
		if t.Event == ev {
			out = append(out, t)
		}
	}
	return out
}

func TestMachine_DriveThenPark(t *testing.T) {
	m := newTestMachine(nil)

	ts := run(m, drive(0), drive(10), drive(20))
	assert.Equal(t, []types.EventName{types.EventDrivingStarted}, names(ts))
	assert.Equal(t, StateDriving, m.State())
	sessionID := m.Session().ID

	ts = run(m, stillFrom(30, 110)...)
	assert.Equal(t, []types.EventName{types.EventStopCandidateOpened}, names(ts))
	assert.Equal(t, StateStopCandidate, m.State())

	ts = m.Step(still(120))
	assert.Equal(t, []types.EventName{types.EventParkingCandidateReady, types.EventParkingConfirmed}, names(ts))
	assert.Equal(t, StateConfirmed, m.State())

	rec := ts[1].Record
	require.NotNil(t, rec)
	assert.Equal(t, sessionID, rec.SessionID)
	assert.Equal(t, "dev-1", rec.DeviceID)
	assert.Equal(t, types.SourceGPS, rec.Source)
	assert.Equal(t, at(120), rec.ConfirmedAt)
	assert.InDelta(t, 90, rec.DwellSeconds, 1e-9)
	assert.False(t, rec.IsAtIntersection)
	assert.Equal(t, string(types.SourceGPS), ts[1].Reason)
}

func TestMachine_IdleIgnoresNonDriving(t *testing.T) {
	m := newTestMachine(nil)
	ts := run(m,
		still(0),
		sample(10, 0, types.ActivityWalking, 0.95),
		sample(20, 15, types.ActivityAutomotive, 0.4),
		sample(30, types.UnknownReading, types.ActivityUnknown, 0),
	)
	assert.Empty(t, ts)
	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Session())
}

func TestMachine_StopCandidateUnwinds(t *testing.T) {
	tests := []struct {
		name   string
		resume types.SensorSample
		reason string
	}{
		{"speed", sample(60, 8, types.ActivityUnknown, 0.2), ReasonSpeed},
		{"automotive activity", sample(60, types.UnknownReading, types.ActivityAutomotive, 0.8), ReasonAutomotive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(nil)
			run(m, drive(0))
			run(m, stillFrom(30, 50)...)
			require.Equal(t, StateStopCandidate, m.State())

			ts := m.Step(tt.resume)
			require.Equal(t, []types.EventName{types.EventStopCandidateUnwound}, names(ts))
			assert.Equal(t, tt.reason, ts[0].Reason)
			assert.Equal(t, StateDriving, m.State())
			assert.Nil(t, m.Session().Candidate)

			// The discarded candidate never confirms.
			ts = run(m, drive(70), drive(200))
			assert.Empty(t, find(ts, types.EventParkingConfirmed))
		})
	}
}

func TestMachine_RedLightWithAutomotiveActivityIsNotAStop(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))
	ts := run(m,
		sample(10, 0, types.ActivityAutomotive, 0.9),
		sample(20, 0.5, types.ActivityAutomotive, 0.85),
	)
	assert.Empty(t, ts)
	assert.Equal(t, StateDriving, m.State())
}

func TestMachine_UnknownSpeedNeedsConfidentOnFootOrStationary(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))

	assert.Empty(t, m.Step(sample(10, types.UnknownReading, types.ActivityUnknown, 0.3)))
	assert.Equal(t, StateDriving, m.State())

	ts := m.Step(sample(20, types.UnknownReading, types.ActivityWalking, 0.8))
	assert.Equal(t, []types.EventName{types.EventStopCandidateOpened}, names(ts))
}

func TestMachine_IntersectionRequiresLongerDwell(t *testing.T) {
	m := newTestMachine(fakePlaces{intersection: true})
	run(m, drive(0))

	ts := run(m, stillFrom(30, 200)...)
	require.Equal(t, types.EventStopCandidateOpened, ts[0].Event)
	assert.True(t, ts[0].IsAtIntersection)
	assert.Equal(t, 180.0, ts[0].RequiredDwellSeconds)
	assert.Empty(t, find(ts, types.EventParkingConfirmed), "90s dwell is not enough at an intersection")

	ts = m.Step(still(210))
	confirmed := find(ts, types.EventParkingConfirmed)
	require.Len(t, confirmed, 1)
	assert.True(t, confirmed[0].Record.IsAtIntersection)
	assert.InDelta(t, 180, confirmed[0].Record.DwellSeconds, 1e-9)
}

func TestMachine_HotspotGuardRaisesDwell(t *testing.T) {
	m := newTestMachine(fakePlaces{hotspot: true})
	run(m, drive(0))

	ts := run(m, stillFrom(30, 120)...)
	cancelled := find(ts, types.EventParkingFinalizationCanceled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, string(GuardHotspot), cancelled[0].Reason)
	assert.Equal(t, 300.0, cancelled[0].RequiredDwellSeconds)
	assert.Equal(t, StateStopCandidate, m.State())
	assert.True(t, m.Session().Candidate.Served(GuardHotspot))

	ts = run(m, stillFrom(130, 410)...)
	assert.Empty(t, find(ts, types.EventParkingConfirmed))

	ts = m.Step(still(420))
	assert.Equal(t, []types.EventName{types.EventParkingCandidateReady, types.EventParkingConfirmed}, names(ts))
	assert.InDelta(t, 390, ts[1].Record.DwellSeconds, 1e-9)
}

func TestMachine_PostConfirmUnwindSetsLockout(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))
	ts := run(m, stillFrom(30, 120)...)
	confirmed := find(ts, types.EventParkingConfirmed)
	require.Len(t, confirmed, 1)
	sessionID := confirmed[0].SessionID
	recordID := confirmed[0].Record.ID

	// Driving again inside the grace window reverses the confirmation.
	ts = m.Step(drive(180))
	require.Equal(t, []types.EventName{types.EventParkingPostConfirmUnwound}, names(ts))
	rec := ts[0].Record
	assert.Equal(t, recordID, rec.ID)
	assert.True(t, rec.Reversed)
	require.NotNil(t, rec.ReversedAt)
	assert.Equal(t, at(180), *rec.ReversedAt)
	assert.False(t, confirmed[0].Record.Reversed, "earlier transition keeps its own copy")

	sess := m.Session()
	assert.Equal(t, sessionID, sess.ID)
	assert.Equal(t, StateDriving, sess.State)
	require.NotNil(t, sess.LockoutUntil)
	assert.Equal(t, at(180+900), *sess.LockoutUntil)

	// The next stop inside the lockout must serve the lockout dwell.
	ts = run(m, stillFrom(200, 290)...)
	cancelled := find(ts, types.EventParkingFinalizationCanceled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, string(GuardLockout), cancelled[0].Reason)
	assert.Equal(t, 240.0, cancelled[0].RequiredDwellSeconds)

	ts = run(m, stillFrom(300, 530)...)
	confirmed = find(ts, types.EventParkingConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, sessionID, confirmed[0].SessionID)
	assert.NotEqual(t, recordID, confirmed[0].Record.ID)
}

func TestMachine_LowConfidenceFallsBackWhenGPSCorroborates(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))

	var stops []types.SensorSample
	for s := 30; s <= 210; s += 10 {
		stops = append(stops, sample(s, 0, types.ActivityUnknown, 0.3))
	}
	ts := run(m, stops...)

	assert.Equal(t, []types.EventName{
		types.EventStopCandidateOpened,
		types.EventParkingCandidateReady,
		types.EventParkingFinalizationCanceled,
		types.EventParkingCandidateReady,
		types.EventParkingConfirmed,
	}, names(ts))
	assert.Equal(t, string(GuardLowConfidence), ts[2].Reason)
	assert.Equal(t, at(120), ts[2].At)
	assert.Equal(t, at(210), ts[4].At)
	assert.Equal(t, types.SourceGPSUnknownFallback, ts[4].Record.Source)
}

func TestMachine_LowConfidenceWithoutGPSKeepsDeferring(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))

	stops := []types.SensorSample{sample(30, types.UnknownReading, types.ActivityStationary, 0.9)}
	for s := 40; s <= 400; s += 10 {
		stops = append(stops, sample(s, types.UnknownReading, types.ActivityUnknown, 0.2))
	}
	ts := run(m, stops...)

	assert.Empty(t, find(ts, types.EventParkingConfirmed))
	cancelled := find(ts, types.EventParkingFinalizationCanceled)
	require.GreaterOrEqual(t, len(cancelled), 2)
	assert.Equal(t, string(GuardLowConfidence), cancelled[0].Reason)
	assert.Equal(t, "low_confidence_uncorroborated", cancelled[1].Reason)
	assert.Equal(t, StateStopCandidate, m.State())

	ts = m.Expire(at(30 + 1800))
	require.Equal(t, []types.EventName{types.EventSessionTimeout}, names(ts))
	assert.Equal(t, StateStopCandidate, ts[0].From)
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_ExpireTimesOutIdleSession(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0), drive(60))

	assert.Empty(t, m.Expire(at(60+1799)))
	ts := m.Expire(at(60 + 1800))
	require.Len(t, ts, 1)
	assert.Equal(t, types.EventSessionTimeout, ts[0].Event)
	assert.Equal(t, StateDriving, ts[0].From)
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.Expire(at(5000)))
}

func TestMachine_GraceExpiryClosesSession(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))
	run(m, stillFrom(30, 120)...)
	require.Equal(t, StateConfirmed, m.State())

	assert.Empty(t, m.Step(still(200)), "still inside the grace window")

	ts := m.Step(still(250))
	require.Equal(t, []types.EventName{types.EventSessionClosed}, names(ts))
	assert.False(t, ts[0].Record.Reversed)
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_DrivingAfterGraceStartsNewSession(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0))
	first := find(run(m, stillFrom(30, 120)...), types.EventParkingConfirmed)[0].SessionID

	ts := m.Step(drive(400))
	require.Equal(t, []types.EventName{types.EventSessionClosed, types.EventDrivingStarted}, names(ts))
	assert.Equal(t, first, ts[0].SessionID)
	assert.NotEqual(t, first, ts[1].SessionID)
}

// Every confirmation must come from a candidate opened earlier in the same
// session with no unwind in between, and a session never holds two
// candidates.
func TestMachine_ConfirmationsComeFromCandidates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := newTestMachine(fakePlaces{})

	open := map[string]bool{}
	sec := 0
	for i := 0; i < 5000; i++ {
		sec += 5 + rng.Intn(20)
		var s types.SensorSample
		switch rng.Intn(4) {
		case 0:
			s = drive(sec)
		case 1, 2:
			s = still(sec)
		default:
			s = sample(sec, types.UnknownReading, types.ActivityUnknown, rng.Float64())
		}
		for _, tr := range m.Step(s) {
			switch tr.Event {
			case types.EventStopCandidateOpened:
				require.False(t, open[tr.SessionID], "second candidate opened in %s", tr.SessionID)
				open[tr.SessionID] = true
			case types.EventStopCandidateUnwound, types.EventSessionTimeout:
				open[tr.SessionID] = false
			case types.EventParkingConfirmed:
				require.True(t, open[tr.SessionID], "confirmation without candidate in %s", tr.SessionID)
				open[tr.SessionID] = false
			}
		}
	}
}

func TestMachine_SessionSnapshotIsDetached(t *testing.T) {
	m := newTestMachine(nil)
	run(m, drive(0), still(10))

	snap := m.Session()
	snap.Candidate.RequiredDwell = 1
	snap.State = StateIdle

	assert.Equal(t, StateStopCandidate, m.State())
	assert.Equal(t, 90.0, m.Session().Candidate.RequiredDwell)
}
