package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"drivewatch/internal/types"
)

// Defaults for NewCoordinator.
const (
	DefaultMaxInFlight    = 16
	DefaultAttemptTimeout = 2 * time.Second
)

// ReasonBacklog is reported when Dispatch finds every delivery slot taken.
const ReasonBacklog = "delivery backlog full"

// Coordinator runs the delivery flow for fired alerts: policy check, primary
// channel with retry, audio fallback, and outcome reporting.
type Coordinator struct {
	policy   *PolicyEngine
	primary  Channel
	fallback Channel
	sink     OutcomeSink
	metrics  Metrics
	logger   types.Logger
	retry    RetryPolicy
	timeout  time.Duration
	clock    types.Clock

	slots chan struct{}
	wg    sync.WaitGroup
}

var _ Deliverer = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the do-not-disturb policy.
func WithPolicy(p *PolicyEngine) Option { return func(c *Coordinator) { c.policy = p } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithRetryPolicy overrides the primary channel retry policy.
func WithRetryPolicy(r RetryPolicy) Option { return func(c *Coordinator) { c.retry = r } }

// WithAttemptTimeout bounds each channel attempt.
func WithAttemptTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithMaxInFlight bounds concurrent Dispatch goroutines.
func WithMaxInFlight(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.slots = make(chan struct{}, n)
		}
	}
}

// WithClock sets the clock used for latency.
func WithClock(clk types.Clock) Option { return func(c *Coordinator) { c.clock = clk } }

// NewCoordinator returns a Coordinator. Either channel may be nil, in which
// case that leg always fails.
func NewCoordinator(primary, fallback Channel, sink OutcomeSink, logger types.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = types.NopLogger{}
	}
	c := &Coordinator{
		primary:  primary,
		fallback: fallback,
		sink:     sink,
		metrics:  NopMetrics{},
		logger:   logger,
		retry:    PushRetryPolicy,
		timeout:  DefaultAttemptTimeout,
		clock:    types.RealClock{},
		slots:    make(chan struct{}, DefaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy == nil {
		c.policy = NewPolicyEngine(DNDWindow{}, logger)
	}
	return c
}

// Dispatch delivers alert in the background and returns immediately. When
// every slot is busy the alert is reported as suppressed rather than
// blocking the caller.
func (c *Coordinator) Dispatch(alert types.CameraAlertEvent) {
	select {
	case c.slots <- struct{}{}:
	default:
		c.logger.Warn("delivery backlog full, alert dropped",
			"camera_id", alert.CameraID,
			"session_id", alert.SessionID,
		)
		c.report(context.Background(), types.DeliveryOutcome{
			Alert:  alert.WithDeliveryMode(types.DeliverySuppressed),
			Mode:   types.DeliverySuppressed,
			Reason: ReasonBacklog,
		})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.slots }()
		c.Deliver(context.Background(), alert)
	}()
}

// Wait blocks until every dispatched delivery has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Deliver runs the flow synchronously and reports the outcome.
func (c *Coordinator) Deliver(ctx context.Context, alert types.CameraAlertEvent) types.DeliveryOutcome {
	start := c.clock.Now()
	var reasons []string

	mode := types.DeliverySuppressed
	decision := c.policy.Evaluate(alert)
	if decision.Decision == PolicyDeliver {
		if err := c.sendPrimary(ctx, alert); err != nil {
			reasons = append(reasons, "primary: "+err.Error())
		} else {
			mode = types.DeliveryPrimary
		}
	} else {
		reasons = append(reasons, decision.Reason)
	}

	if mode != types.DeliveryPrimary {
		if err := c.attempt(ctx, c.fallback, alert); err != nil {
			reasons = append(reasons, "fallback: "+err.Error())
			c.logger.Error("alert delivery failed on every channel",
				"camera_id", alert.CameraID,
				"session_id", alert.SessionID,
				"reason", strings.Join(reasons, "; "),
			)
		} else {
			mode = types.DeliveryFallbackAudio
		}
	}

	outcome := types.DeliveryOutcome{
		Alert:   alert.WithDeliveryMode(mode),
		Mode:    mode,
		Reason:  strings.Join(reasons, "; "),
		Latency: c.clock.Now().Sub(start),
	}
	c.report(ctx, outcome)
	return outcome
}

func (c *Coordinator) report(ctx context.Context, o types.DeliveryOutcome) {
	if c.sink != nil {
		c.sink.Delivered(o)
	}
	c.metrics.RecordDelivery(ctx, o.Mode, o.Alert.Tier)
	if o.Mode != types.DeliverySuppressed {
		c.metrics.RecordLatency(ctx, o.Mode, o.Latency)
	}
}

// sendPrimary tries the primary channel up to the retry policy's attempts.
// An open breaker is not retried.
func (c *Coordinator) sendPrimary(ctx context.Context, alert types.CameraAlertEvent) error {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if werr := sleepCtx(ctx, CalculateNextRetry(c.retry, i-1)); werr != nil {
				return errors.Join(err, werr)
			}
		}
		err = c.attempt(ctx, c.primary, alert)
		if err == nil || errors.Is(err, ErrBreakerOpen) {
			return err
		}
		c.logger.Warn("primary delivery attempt failed",
			"camera_id", alert.CameraID,
			"attempt", i+1,
			"max_attempts", attempts,
			"error", err.Error(),
		)
	}
	return err
}

func (c *Coordinator) attempt(ctx context.Context, ch Channel, alert types.CameraAlertEvent) error {
	if ch == nil {
		return errors.New("not configured")
	}
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := ch.Send(actx, alert); err != nil {
		return fmt.Errorf("%s: %w", ch.Name(), err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
