package delivery

import (
	"fmt"
	"time"

	"drivewatch/internal/types"
)

// DNDWindow is a daily do-not-disturb period in a fixed timezone. While it
// is active, visual pushes are skipped and alerts go out as audio cues only.
type DNDWindow struct {
	Enabled  bool
	Start    string // HH:MM
	End      string // HH:MM
	Timezone string
}

// PolicyEngine decides whether an alert may use the primary channel.
type PolicyEngine struct {
	window DNDWindow
	logger types.Logger
}

// NewPolicyEngine returns a PolicyEngine for window.
func NewPolicyEngine(window DNDWindow, logger types.Logger) *PolicyEngine {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &PolicyEngine{window: window, logger: logger}
}

// Evaluate checks the do-not-disturb window at the alert's fire time.
// A window that cannot be evaluated fails open.
func (e *PolicyEngine) Evaluate(alert types.CameraAlertEvent) PolicyResult {
	if !e.window.Enabled {
		return PolicyResult{Decision: PolicyDeliver, Reason: "no policy restrictions apply"}
	}

	active, err := e.inWindow(alert.FiredAt)
	if err != nil {
		e.logger.Error("do-not-disturb evaluation failed, delivering anyway",
			"error", err.Error(),
			"camera_id", alert.CameraID,
		)
		return PolicyResult{Decision: PolicyDeliver, Reason: "do-not-disturb evaluation failed, fail-open"}
	}
	if active {
		return PolicyResult{
			Decision: PolicyAudioOnly,
			Reason:   fmt.Sprintf("do-not-disturb active (%s-%s %s)", e.window.Start, e.window.End, e.timezone()),
		}
	}
	return PolicyResult{Decision: PolicyDeliver, Reason: "outside do-not-disturb window"}
}

func (e *PolicyEngine) timezone() string {
	if e.window.Timezone == "" {
		return "UTC"
	}
	return e.window.Timezone
}

func (e *PolicyEngine) inWindow(at time.Time) (bool, error) {
	loc, err := time.LoadLocation(e.timezone())
	if err != nil {
		return false, fmt.Errorf("invalid timezone %q: %w", e.window.Timezone, err)
	}
	start, err := parseTimeOfDay(e.window.Start)
	if err != nil {
		return false, fmt.Errorf("invalid do-not-disturb start %q: %w", e.window.Start, err)
	}
	end, err := parseTimeOfDay(e.window.End)
	if err != nil {
		return false, fmt.Errorf("invalid do-not-disturb end %q: %w", e.window.End, err)
	}
	return isInWindow(at.In(loc), start, end), nil
}

// timeOfDay is a wall-clock time.
type timeOfDay struct {
	hour   int
	minute int
}

func (t timeOfDay) toMinutes() int {
	return t.hour*60 + t.minute
}

// parseTimeOfDay parses "HH:MM".
func parseTimeOfDay(s string) (timeOfDay, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}

// isInWindow handles both same-day (09:00-17:00) and overnight
// (22:00-07:00) windows. Start is inclusive, end exclusive.
func isInWindow(now time.Time, start, end timeOfDay) bool {
	nowMinutes := now.Hour()*60 + now.Minute()
	s, e := start.toMinutes(), end.toMinutes()
	if s == e {
		return false
	}
	if s < e {
		return nowMinutes >= s && nowMinutes < e
	}
	return nowMinutes >= s || nowMinutes < e
}
