// Package delivery hands fired camera alerts to the platform. It is the
// engine's only outbound path: the primary channel pushes a visual alert,
// the fallback channel queues an audio cue, and every outcome is reported
// back as a telemetry line. Delivery errors never reach the session.
package delivery

import (
	"context"
	"time"

	"drivewatch/internal/types"
)

// PolicyDecision is the outcome of a policy evaluation.
type PolicyDecision string

const (
	// PolicyDeliver sends through the primary channel.
	PolicyDeliver PolicyDecision = "deliver"

	// PolicyAudioOnly skips the visual push and goes straight to the
	// audio fallback.
	PolicyAudioOnly PolicyDecision = "audio_only"
)

// PolicyResult carries the decision and the reason string that ends up in
// the delivery line when the primary channel is skipped.
type PolicyResult struct {
	Decision PolicyDecision
	Reason   string
}

// Channel is one way of reaching the driver.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert types.CameraAlertEvent) error
}

// Deliverer delivers one alert synchronously and reports how it went.
type Deliverer interface {
	Deliver(ctx context.Context, alert types.CameraAlertEvent) types.DeliveryOutcome
}

// OutcomeSink receives every delivery outcome. telemetry.Writer implements it.
type OutcomeSink interface {
	Delivered(o types.DeliveryOutcome)
}

// Metrics abstracts CloudWatch delivery metrics.
type Metrics interface {
	RecordDelivery(ctx context.Context, mode types.DeliveryMode, tier types.ConfidenceTier)
	RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration)
}

// NopMetrics discards metrics.
type NopMetrics struct{}

func (NopMetrics) RecordDelivery(context.Context, types.DeliveryMode, types.ConfidenceTier) {}
func (NopMetrics) RecordLatency(context.Context, types.DeliveryMode, time.Duration)        {}

// RetryPolicy defines the backoff for primary channel attempts. The total
// delay must stay well under the warning lead time.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PushRetryPolicy is the default primary channel policy.
var PushRetryPolicy = RetryPolicy{
	MaxAttempts:   2,
	BaseDelay:     200 * time.Millisecond,
	MaxDelay:      time.Second,
	BackoffFactor: 2.0,
}

// CalculateNextRetry computes the delay before the next attempt:
// min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	if d < 0 {
		d = policy.MaxDelay
	}
	return d
}
