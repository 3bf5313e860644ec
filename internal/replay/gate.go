package replay

import (
	"fmt"
	"strings"

	"drivewatch/internal/types"
)

// Gate holds the release ceilings. A summary passes when every rate is at or
// below its ceiling.
type Gate struct {
	MaxMissRate     float64 `json:"maxMissRate"`
	MaxUnwindRate   float64 `json:"maxUnwindRate"`
	MaxFallbackRate float64 `json:"maxFallbackRate"`
	// Strict also fails on any skipped line and on a log with no events.
	Strict bool `json:"strict"`
}

// DefaultGate returns the release ceilings.
func DefaultGate() Gate {
	return Gate{
		MaxMissRate:     0.25,
		MaxUnwindRate:   0.12,
		MaxFallbackRate: 0.4,
	}
}

// Violation names one failed check.
type Violation struct {
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
	Ceiling float64 `json:"ceiling"`
}

func (v Violation) String() string {
	if v.Value < v.Ceiling {
		return fmt.Sprintf("%s=%.4f below required %.4f", v.Metric, v.Value, v.Ceiling)
	}
	return fmt.Sprintf("%s=%.4f exceeds %.4f", v.Metric, v.Value, v.Ceiling)
}

// Evaluate returns every violated check, in a fixed order.
func (g Gate) Evaluate(s *Summary) []Violation {
	var out []Violation
	check := func(metric string, value, ceiling float64) {
		if value > ceiling {
			out = append(out, Violation{Metric: metric, Value: value, Ceiling: ceiling})
		}
	}
	check("parkingMissRate", s.ParkingMissRate, g.MaxMissRate)
	check("unwindRate", s.UnwindRate, g.MaxUnwindRate)
	check("fallbackPerAlert", s.FallbackPerAlert, g.MaxFallbackRate)

	if g.Strict {
		check("skippedLines", float64(s.Counts.Skipped), 0)
		if s.Counts.Lines-s.Counts.Skipped == 0 {
			out = append(out, Violation{Metric: "events", Value: 0, Ceiling: 1})
		}
	}
	return out
}

// Check returns a gate_failure AppError listing the violations, or nil.
func (g Gate) Check(s *Summary) error {
	violations := g.Evaluate(s)
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return types.NewAppErrorWithDetails(types.ErrCodeGateFailure,
		"release gate failed: "+strings.Join(parts, "; "), nil,
		map[string]any{"violations": violations})
}
