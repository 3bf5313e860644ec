// Package api is the HTTP surface of the engine. It accepts sensor samples
// from devices and exposes health and read-only session state.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"drivewatch/internal/types"
)

// DefaultMaxBatch bounds a batch POST when no limit is configured.
const DefaultMaxBatch = 500

// defaultRequestTimeout is the soft deadline applied to request contexts.
const defaultRequestTimeout = 10 * time.Second

// Ingester accepts one sample. *engine.Manager implements it.
type Ingester interface {
	Ingest(ctx context.Context, s types.SensorSample) error
}

// DeviceLister reports the devices with live engines.
type DeviceLister interface {
	Devices() []string
}

// ParkingLookup returns the latest confirmed parking record for a device.
// *db.ParkingRepository implements it.
type ParkingLookup interface {
	LatestForDevice(ctx context.Context, deviceID string) (*types.ParkingRecord, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	Ingester       Ingester
	Devices        DeviceLister  // optional
	Parking        ParkingLookup // optional
	Logger         *slog.Logger
	HealthCheckers []types.HealthChecker

	MaxBatch       int
	RequestTimeout time.Duration

	router *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithDevices mounts GET /v1/devices.
func WithDevices(d DeviceLister) Option { return func(s *Server) { s.Devices = d } }

// WithParkingLookup mounts GET /v1/devices/{deviceID}/parking.
func WithParkingLookup(p ParkingLookup) Option { return func(s *Server) { s.Parking = p } }

// WithHealthCheckers registers checks run by GET /health.
func WithHealthCheckers(checks ...types.HealthChecker) Option {
	return func(s *Server) { s.HealthCheckers = append(s.HealthCheckers, checks...) }
}

// WithMaxBatch bounds the number of samples in one batch request.
func WithMaxBatch(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.MaxBatch = n
		}
	}
}

// WithRequestTimeout sets the per-request context deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.RequestTimeout = d
		}
	}
}

// NewServer builds a Server with its routes mounted.
func NewServer(ingester Ingester, logger *slog.Logger, opts ...Option) (*Server, error) {
	if ingester == nil {
		return nil, fmt.Errorf("ingester must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Ingester:       ingester,
		Logger:         logger,
		MaxBatch:       DefaultMaxBatch,
		RequestTimeout: defaultRequestTimeout,
		router:         chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// mountRoutes registers middleware and routes.
// Recoverer is outermost. RequestID runs before the logger so access lines
// carry it.
func (s *Server) mountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.RequestScopedLogger)
	s.router.Use(DeviceIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, accessLogHeaders))

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/samples", s.HandleSamples)
		if s.Devices != nil {
			r.Get("/devices", s.HandleDevices)
		}
		if s.Parking != nil {
			r.Get("/devices/{deviceID}/parking", s.HandleLatestParking)
		}
	})
}
