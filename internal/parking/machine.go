// Package parking implements the driving/parking state machine.
//
// A Machine consumes one device's samples in timestamp order and moves
// through Idle -> Driving -> StopCandidate -> Confirmed, unwinding a stop
// candidate back to Driving when motion resumes. A ready candidate is held
// back by three guards, checked in order (hotspot, lockout, low confidence).
// Each guard cancels that finalization attempt, restarts the dwell clock and
// raises the dwell the retry must reach. Every move is returned as a
// Transition for the telemetry log.
package parking

import (
	"math"
	"time"

	"github.com/google/uuid"

	"drivewatch/internal/geo"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// Option configures a Machine.
type Option func(*Machine)

// WithIDGenerator overrides session and record ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) { m.newID = fn }
}

// WithDeviceID stamps confirmed records with the owning device.
func WithDeviceID(id string) Option {
	return func(m *Machine) { m.deviceID = id }
}

// Machine is the per-device state machine. It is not safe for concurrent
// use; the engine serializes calls per device.
type Machine struct {
	cfg      *thresholds.Config
	places   Places
	newID    func() string
	deviceID string

	session      *Session
	lastSampleAt time.Time
}

// NewMachine returns an Idle machine. places may be nil, in which case no
// stop is ever treated as an intersection or hotspot.
func NewMachine(cfg *thresholds.Config, places Places, opts ...Option) *Machine {
	if places == nil {
		places = noPlaces{}
	}
	m := &Machine{
		cfg:    cfg,
		places: places,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	if m.session == nil {
		return StateIdle
	}
	return m.session.State
}

// Session returns a snapshot of the active session, or nil when Idle.
func (m *Machine) Session() *Session {
	if m.session == nil {
		return nil
	}
	return m.session.snapshot()
}

// LastSampleAt returns the timestamp of the last sample stepped.
func (m *Machine) LastSampleAt() time.Time { return m.lastSampleAt }

// Step advances the machine by one sample and returns the transitions it
// caused, oldest first. Samples must be valid and non-decreasing in time.
func (m *Machine) Step(s types.SensorSample) []Transition {
	now := s.Timestamp
	if now.After(m.lastSampleAt) {
		m.lastSampleAt = now
	}

	out := m.Expire(now)

	switch m.State() {
	case StateIdle:
		out = append(out, m.stepIdle(s)...)
	case StateDriving:
		out = append(out, m.stepDriving(s)...)
	case StateStopCandidate:
		out = append(out, m.stepCandidate(s)...)
	case StateConfirmed:
		out = append(out, m.stepConfirmed(s)...)
	}
	return out
}

// Expire archives the session when its post-confirm grace window has passed
// or it has shown no driving motion for the idle timeout. It is called by
// Step and by the engine's sweeper when a device stops sending samples.
func (m *Machine) Expire(now time.Time) []Transition {
	sess := m.session
	if sess == nil {
		return nil
	}

	if sess.State == StateConfirmed && sess.Confirmed != nil &&
		now.Sub(sess.Confirmed.ConfirmedAt) > m.cfg.PostConfirmGrace() {
		m.session = nil
		return []Transition{{
			Event:     types.EventSessionClosed,
			SessionID: sess.ID,
			At:        now,
			From:      StateConfirmed,
			To:        StateIdle,
			Location:  sess.Confirmed.Location,
			Record:    copyRecord(sess.Confirmed),
		}}
	}

	if now.Sub(sess.LastMotionAt) >= m.cfg.SessionIdleTimeout() {
		m.session = nil
		t := Transition{
			Event:     types.EventSessionTimeout,
			SessionID: sess.ID,
			At:        now,
			From:      sess.State,
			To:        StateIdle,
			Reason:    "idle_timeout",
		}
		if sess.Candidate != nil {
			t.Location = sess.Candidate.Location
			t.DwellSeconds = sess.Candidate.DwellSeconds
		}
		return []Transition{t}
	}
	return nil
}

func (m *Machine) stepIdle(s types.SensorSample) []Transition {
	if !s.ConfidentActivity(types.ActivityAutomotive, m.cfg.AutomotiveConfidenceMin) {
		return nil
	}
	m.session = &Session{
		ID:           m.newID(),
		State:        StateDriving,
		StartedAt:    s.Timestamp,
		LastMotionAt: s.Timestamp,
	}
	return []Transition{{
		Event:     types.EventDrivingStarted,
		SessionID: m.session.ID,
		At:        s.Timestamp,
		From:      StateIdle,
		To:        StateDriving,
		Location:  s.Position(),
	}}
}

func (m *Machine) stepDriving(s types.SensorSample) []Transition {
	sess := m.session
	if _, moving := m.drivingMotion(s); moving {
		sess.LastMotionAt = s.Timestamp
		return nil
	}
	if !m.stopEvidence(s) {
		return nil
	}

	pos := s.Position()
	cand := &StopCandidate{
		OpenedAt:         s.Timestamp,
		DwellStartedAt:   s.Timestamp,
		Location:         pos,
		IsAtIntersection: m.places.IsIntersection(pos, m.cfg.IntersectionRadiusM),
		InHotspot:        m.places.InHotspot(pos),
		served:           make(map[Guard]bool),
	}
	cand.RequiredDwell = m.baseDwell(cand)
	m.observe(cand, s)

	sess.Candidate = cand
	sess.State = StateStopCandidate
	return []Transition{{
		Event:                types.EventStopCandidateOpened,
		SessionID:            sess.ID,
		At:                   s.Timestamp,
		From:                 StateDriving,
		To:                   StateStopCandidate,
		Location:             pos,
		RequiredDwellSeconds: cand.RequiredDwell,
		IsAtIntersection:     cand.IsAtIntersection,
	}}
}

func (m *Machine) stepCandidate(s types.SensorSample) []Transition {
	sess := m.session
	cand := sess.Candidate

	if reason, moving := m.drivingMotion(s); moving {
		sess.Candidate = nil
		sess.State = StateDriving
		sess.LastMotionAt = s.Timestamp
		return []Transition{{
			Event:        types.EventStopCandidateUnwound,
			SessionID:    sess.ID,
			At:           s.Timestamp,
			From:         StateStopCandidate,
			To:           StateDriving,
			Reason:       reason,
			Location:     cand.Location,
			DwellSeconds: s.Timestamp.Sub(cand.OpenedAt).Seconds(),
		}}
	}

	m.observe(cand, s)
	cand.DwellSeconds = s.Timestamp.Sub(cand.DwellStartedAt).Seconds()
	if cand.DwellSeconds < cand.RequiredDwell {
		return nil
	}

	var out []Transition
	if !cand.readyLogged {
		cand.readyLogged = true
		out = append(out, m.candidateTransition(types.EventParkingCandidateReady, s.Timestamp, StateStopCandidate, ""))
	}

	if g, dwell, blocked := m.guard(cand, s.Timestamp); blocked {
		out = append(out, m.cancel(g, dwell, s.Timestamp))
		return out
	}

	source := types.SourceGPS
	if cand.LowConfidenceSeen {
		source = types.SourceGPSUnknownFallback
	}
	return append(out, m.confirm(source, s.Timestamp))
}

func (m *Machine) stepConfirmed(s types.SensorSample) []Transition {
	sess := m.session
	if _, moving := m.drivingMotion(s); !moving {
		return nil
	}

	rec := sess.Confirmed
	at := s.Timestamp
	rec.Reversed = true
	rec.ReversedAt = &at

	until := at.Add(m.cfg.LockoutDuration())
	sess.LockoutUntil = &until
	sess.Confirmed = nil
	sess.Candidate = nil
	sess.State = StateDriving
	sess.LastMotionAt = at

	return []Transition{{
		Event:            types.EventParkingPostConfirmUnwound,
		SessionID:        sess.ID,
		At:               at,
		From:             StateConfirmed,
		To:               StateDriving,
		Reason:           "driving_resumed",
		Location:         rec.Location,
		DwellSeconds:     rec.DwellSeconds,
		IsAtIntersection: rec.IsAtIntersection,
		Record:           copyRecord(rec),
	}}
}

// guard returns the first guard holding back a ready candidate and the
// dwell its retry must reach.
func (m *Machine) guard(cand *StopCandidate, now time.Time) (Guard, float64, bool) {
	if cand.InHotspot && !cand.served[GuardHotspot] {
		return GuardHotspot, m.cfg.HotspotDwellMinStopSec, true
	}
	if lock := m.session.LockoutUntil; lock != nil && now.Before(*lock) && !cand.served[GuardLockout] {
		return GuardLockout, m.cfg.LockoutDwellMinStopSec, true
	}
	if cand.LowConfidenceSeen {
		// First sighting defers once. On the retry, GPS corroboration lets
		// the stop confirm on the fallback source; without it the stop keeps
		// deferring until motion resumes or the session times out.
		if !cand.served[GuardLowConfidence] || !cand.GPSCorroborated {
			return GuardLowConfidence, m.baseDwell(cand), true
		}
	}
	return "", 0, false
}

func (m *Machine) cancel(g Guard, dwell float64, now time.Time) Transition {
	cand := m.session.Candidate
	reason := string(g)
	if g == GuardLowConfidence && cand.served[GuardLowConfidence] {
		reason = "low_confidence_uncorroborated"
	}
	cand.served[g] = true
	cand.DwellStartedAt = now
	cand.RequiredDwell = math.Max(cand.RequiredDwell, dwell)
	cand.readyLogged = false

	t := m.candidateTransition(types.EventParkingFinalizationCanceled, now, StateStopCandidate, reason)
	t.RequiredDwellSeconds = cand.RequiredDwell
	return t
}

func (m *Machine) confirm(source types.ParkingSource, now time.Time) Transition {
	sess := m.session
	cand := sess.Candidate
	rec := &types.ParkingRecord{
		ID:               m.newID(),
		SessionID:        sess.ID,
		DeviceID:         m.deviceID,
		ConfirmedAt:      now,
		Location:         cand.Location,
		DwellSeconds:     now.Sub(cand.OpenedAt).Seconds(),
		Source:           source,
		IsAtIntersection: cand.IsAtIntersection,
	}
	sess.Confirmed = rec
	sess.Candidate = nil
	sess.State = StateConfirmed

	return Transition{
		Event:                types.EventParkingConfirmed,
		SessionID:            sess.ID,
		At:                   now,
		From:                 StateStopCandidate,
		To:                   StateConfirmed,
		Reason:               string(source),
		Location:             rec.Location,
		DwellSeconds:         rec.DwellSeconds,
		RequiredDwellSeconds: cand.RequiredDwell,
		IsAtIntersection:     rec.IsAtIntersection,
		Record:               copyRecord(rec),
	}
}

func (m *Machine) candidateTransition(ev types.EventName, now time.Time, to State, reason string) Transition {
	cand := m.session.Candidate
	return Transition{
		Event:                ev,
		SessionID:            m.session.ID,
		At:                   now,
		From:                 StateStopCandidate,
		To:                   to,
		Reason:               reason,
		Location:             cand.Location,
		DwellSeconds:         cand.DwellSeconds,
		RequiredDwellSeconds: cand.RequiredDwell,
		IsAtIntersection:     cand.IsAtIntersection,
	}
}

// observe folds one stationary sample into the candidate's confidence
// bookkeeping.
func (m *Machine) observe(cand *StopCandidate, s types.SensorSample) {
	if s.MotionActivity == types.ActivityUnknown || s.ActivityConfidence < m.cfg.AutomotiveConfidenceMin {
		cand.LowConfidenceStreak++
		if cand.LowConfidenceStreak > m.cfg.LowConfidenceStreakMax {
			cand.LowConfidenceSeen = true
		}
	} else {
		cand.LowConfidenceStreak = 0
	}
	if geo.Reading(s.SpeedMPS).Below(m.cfg.StopSpeedMaxMps) {
		cand.GPSCorroborated = true
	}
}

// drivingMotion reports whether the sample shows the vehicle moving under
// its own power, and which evidence said so.
func (m *Machine) drivingMotion(s types.SensorSample) (string, bool) {
	if geo.Reading(s.SpeedMPS).Above(m.cfg.DrivingSpeedMinMps) {
		return ReasonSpeed, true
	}
	if s.ConfidentActivity(types.ActivityAutomotive, m.cfg.AutomotiveConfidenceMin) {
		return ReasonAutomotive, true
	}
	return "", false
}

// stopEvidence reports whether a driving sample looks like the vehicle has
// stopped. Unknown speed needs a confident on-foot or stationary label.
func (m *Machine) stopEvidence(s types.SensorSample) bool {
	if s.ConfidentActivity(types.ActivityAutomotive, m.cfg.AutomotiveConfidenceMin) {
		return false
	}
	speed := geo.Reading(s.SpeedMPS)
	if speed.Known() {
		return speed.Below(m.cfg.StopSpeedMaxMps)
	}
	return s.ConfidentActivity(types.ActivityStationary, m.cfg.AutomotiveConfidenceMin) ||
		s.ConfidentActivity(types.ActivityWalking, m.cfg.AutomotiveConfidenceMin)
}

func (m *Machine) baseDwell(cand *StopCandidate) float64 {
	if cand.IsAtIntersection {
		return m.cfg.IntersectionDwellMinStopSec
	}
	return m.cfg.ParkingDwellMinStopSec
}

func copyRecord(r *types.ParkingRecord) *types.ParkingRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ReversedAt != nil {
		at := *r.ReversedAt
		c.ReversedAt = &at
	}
	return &c
}
