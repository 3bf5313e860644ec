package db

import "context"

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports database reachability for the health endpoint.
type PingCheck struct {
	pinger Pinger
}

// NewPingCheck wraps p as a types.HealthChecker.
func NewPingCheck(p Pinger) *PingCheck {
	return &PingCheck{pinger: p}
}

// Name implements types.HealthChecker.
func (p *PingCheck) Name() string { return "database" }

// Check implements types.HealthChecker.
func (p *PingCheck) Check(ctx context.Context) error {
	return p.pinger.Ping(ctx)
}
