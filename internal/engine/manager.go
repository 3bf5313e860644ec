package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"drivewatch/internal/alerts"
	"drivewatch/internal/parking"
	"drivewatch/internal/types"
)

// DefaultDeviceID routes samples that carry no device ID.
const DefaultDeviceID = "device"

// Manager owns one Engine per device. Engines are created on first sample
// and dropped by Sweep once idle.
type Manager struct {
	deps          Deps
	evaluator     *alerts.Evaluator
	defaultDevice string
	datasetSource string

	mu          sync.Mutex
	engines     map[string]*Engine
	datasetOnce sync.Once
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultDevice sets the device ID used for samples without one.
func WithDefaultDevice(id string) ManagerOption {
	return func(m *Manager) {
		if id != "" {
			m.defaultDevice = id
		}
	}
}

// WithDatasetSource names the camera source in the dataset-missing line.
func WithDatasetSource(src string) ManagerOption {
	return func(m *Manager) { m.datasetSource = src }
}

// NewManager returns a Manager sharing deps across devices.
func NewManager(deps Deps, opts ...ManagerOption) (*Manager, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	m := &Manager{
		deps:          deps,
		evaluator:     alerts.NewEvaluator(deps.Thresholds, deps.Index, deps.Scorer),
		defaultDevice: DefaultDeviceID,
		engines:       make(map[string]*Engine),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Engine returns the engine for deviceID, creating it if needed.
func (m *Manager) Engine(deviceID string) *Engine {
	if deviceID == "" {
		deviceID = m.defaultDevice
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[deviceID]
	if !ok {
		e = newEngine(deviceID, m.deps, m.evaluator)
		m.engines[deviceID] = e
	}
	return e
}

// Ingest routes s to its device engine. The first sample processed while
// the camera index is empty records camera_dataset_missing once.
func (m *Manager) Ingest(ctx context.Context, s types.SensorSample) error {
	if m.deps.Index.Len() == 0 {
		m.datasetOnce.Do(func() {
			at := s.Timestamp
			if at.IsZero() {
				at = time.Now().UTC()
			}
			m.deps.Log.DatasetMissing(at, m.datasetSource)
		})
	}
	return m.Engine(s.DeviceID).Ingest(ctx, s)
}

// Devices returns the IDs of live engines, sorted.
func (m *Manager) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep expires stale sessions as of now and forgets engines that are idle
// and have not seen a sample for the session idle timeout. It returns the
// number of transitions logged.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	idle := m.deps.Thresholds.SessionIdleTimeout()
	n := 0
	for _, e := range engines {
		n += e.Expire(now)
		if e.State() == parking.StateIdle && now.Sub(e.LastSampleAt()) >= idle {
			m.mu.Lock()
			if m.engines[e.DeviceID()] == e {
				delete(m.engines, e.DeviceID())
			}
			m.mu.Unlock()
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration, clock types.Clock) {
	if clock == nil {
		clock = types.RealClock{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(clock.Now()); n > 0 {
				m.deps.Logger.Info("Swept stale sessions", "transitions", n)
			}
		}
	}
}
