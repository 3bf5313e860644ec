// Package engine wires the parking state machine, the camera alert evaluator,
// the telemetry log and the delivery coordinator into one per-device
// pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"drivewatch/internal/alerts"
	"drivewatch/internal/cameras"
	"drivewatch/internal/parking"
	"drivewatch/internal/thresholds"
	"drivewatch/internal/types"
)

// Drop reasons written to sample_dropped lines.
const (
	DropInvalidCoordinate = "invalid_coordinate"
	DropInvalidSample     = "invalid_sample"
	DropOutOfOrder        = "out_of_order"
)

// EventLog receives every decision the engine makes. *telemetry.Writer
// implements it.
type EventLog interface {
	Transition(t parking.Transition)
	AlertFired(ev types.CameraAlertEvent)
	AlertSuppressed(ev types.CameraAlertEvent)
	AlertRejected(r alerts.Rejection)
	SampleDropped(at time.Time, sessionID, reason string, err error)
	DatasetMissing(at time.Time, source string)
}

// ParkingSink persists confirmed and reversed parking records.
// *db.ParkingStore implements it.
type ParkingSink interface {
	SaveConfirmed(rec types.ParkingRecord) error
	SaveReversed(rec types.ParkingRecord) error
}

// Dispatcher hands fired alerts to delivery without blocking.
// *delivery.Coordinator implements it.
type Dispatcher interface {
	Dispatch(alert types.CameraAlertEvent)
}

// Deps are the collaborators shared by every device engine.
type Deps struct {
	Thresholds *thresholds.Config
	Index      *cameras.Index
	Log        EventLog
	Store      ParkingSink // optional
	Dispatcher Dispatcher  // optional
	Logger     types.Logger
	// NewID overrides session and record ID generation in tests.
	NewID func() string
	// Scorer overrides the default alert scorer.
	Scorer alerts.Scorer
}

func (d *Deps) normalize() error {
	if d.Thresholds == nil {
		return errors.New("engine: thresholds are required")
	}
	if d.Log == nil {
		return errors.New("engine: event log is required")
	}
	if d.Index == nil {
		d.Index = cameras.Empty()
	}
	if d.Logger == nil {
		d.Logger = types.NopLogger{}
	}
	return nil
}

// Engine is the pipeline for one device. Ingest and Expire are serialized.
type Engine struct {
	mu        sync.Mutex
	deviceID  string
	deps      Deps
	machine   *parking.Machine
	evaluator *alerts.Evaluator
	ledger    *alerts.Ledger
	logger    types.Logger
}

// New returns an engine for deviceID.
func New(deviceID string, deps Deps) (*Engine, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	return newEngine(deviceID, deps, alerts.NewEvaluator(deps.Thresholds, deps.Index, deps.Scorer)), nil
}

func newEngine(deviceID string, deps Deps, ev *alerts.Evaluator) *Engine {
	opts := []parking.Option{parking.WithDeviceID(deviceID)}
	if deps.NewID != nil {
		opts = append(opts, parking.WithIDGenerator(deps.NewID))
	}
	return &Engine{
		deviceID:  deviceID,
		deps:      deps,
		machine:   parking.NewMachine(deps.Thresholds, deps.Index, opts...),
		evaluator: ev,
		logger:    deps.Logger.With("device_id", deviceID),
	}
}

// DeviceID returns the device this engine serves.
func (e *Engine) DeviceID() string { return e.deviceID }

// State returns the current parking state.
func (e *Engine) State() parking.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.State()
}

// Session returns a snapshot of the active session, or nil.
func (e *Engine) Session() *parking.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Session()
}

// FiredAlerts returns the alerts fired in the active session.
func (e *Engine) FiredAlerts() []types.CameraAlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ledger == nil {
		return nil
	}
	return e.ledger.Fired()
}

// LastSampleAt returns the timestamp of the last accepted sample.
func (e *Engine) LastSampleAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.LastSampleAt()
}

// Ingest processes one sample. A rejected sample is logged as
// sample_dropped and returned as an *types.AppError; the session is
// unaffected and the next sample is processed normally.
func (e *Engine) Ingest(ctx context.Context, s types.SensorSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(s); err != nil {
		return err
	}

	logger := e.logger
	if l := types.LoggerFromContext(ctx); l != nil {
		logger = l.With("device_id", e.deviceID)
	}
	for _, t := range e.machine.Step(s) {
		e.apply(t, logger)
	}

	sess := e.machine.Session()
	if sess == nil {
		return nil
	}
	if e.ledger == nil || e.ledger.SessionID() != sess.ID {
		e.ledger = alerts.NewLedger(sess.ID)
	}

	d := e.evaluator.Evaluate(s, e.ledger)
	for _, r := range d.Rejected {
		e.deps.Log.AlertRejected(r)
	}
	for _, ev := range d.Suppressed {
		e.deps.Log.AlertSuppressed(ev)
	}
	for _, ev := range d.Fired {
		e.deps.Log.AlertFired(ev)
		if e.deps.Dispatcher != nil {
			e.deps.Dispatcher.Dispatch(ev)
		}
	}
	return nil
}

func (e *Engine) validate(s types.SensorSample) error {
	sessionID := ""
	if sess := e.machine.Session(); sess != nil {
		sessionID = sess.ID
	}

	if err := types.ValidateSample(s); err != nil {
		reason := DropInvalidSample
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeInvalidCoordinate {
			reason = DropInvalidCoordinate
		}
		e.drop(s, sessionID, reason, err)
		return err
	}

	if last := e.machine.LastSampleAt(); !last.IsZero() && s.Timestamp.Before(last) {
		err := types.NewAppErrorWithDetails(types.ErrCodeInvalidSample,
			fmt.Sprintf("sample at %s precedes last sample at %s", s.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)),
			nil, map[string]any{"reason": DropOutOfOrder})
		e.drop(s, sessionID, DropOutOfOrder, err)
		return err
	}
	return nil
}

func (e *Engine) drop(s types.SensorSample, sessionID, reason string, err error) {
	at := s.Timestamp
	if at.IsZero() {
		at = e.machine.LastSampleAt()
	}
	e.deps.Log.SampleDropped(at, sessionID, reason, err)
}

// apply logs a transition and persists the records it carries.
func (e *Engine) apply(t parking.Transition, logger types.Logger) {
	e.deps.Log.Transition(t)

	if e.deps.Store == nil || t.Record == nil {
		return
	}
	var err error
	switch t.Event {
	case types.EventParkingConfirmed:
		err = e.deps.Store.SaveConfirmed(*t.Record)
	case types.EventParkingPostConfirmUnwound:
		err = e.deps.Store.SaveReversed(*t.Record)
	default:
		return
	}
	if err != nil {
		logger.Warn("Failed to queue parking record write",
			"record_id", t.Record.ID,
			"event", string(t.Event),
			"error", err,
		)
	}
}

// Expire archives a stale session as of now. It returns the number of
// transitions logged.
func (e *Engine) Expire(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.machine.Expire(now)
	for _, t := range ts {
		e.apply(t, e.logger)
	}
	if e.machine.Session() == nil {
		e.ledger = nil
	}
	return len(ts)
}
