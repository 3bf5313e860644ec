package geo

import (
	"fmt"
	"strings"
)

var compassCodes = map[string]float64{
	"N": 0, "NE": 45, "E": 90, "SE": 135,
	"S": 180, "SW": 225, "W": 270, "NW": 315,
}

// ParseHeadingCode maps a compass approach code to degrees. Both the plain
// form ("E") and the travel-direction form ("EB", "NEB") are accepted, case
// insensitively.
func ParseHeadingCode(code string) (float64, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if deg, ok := compassCodes[c]; ok {
		return deg, nil
	}
	if strings.HasSuffix(c, "B") {
		if deg, ok := compassCodes[strings.TrimSuffix(c, "B")]; ok {
			return deg, nil
		}
	}
	return 0, fmt.Errorf("unknown heading code %q", code)
}

// HeadingCode returns the nearest eight-point compass code for deg.
func HeadingCode(deg float64) string {
	codes := [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	idx := int((NormalizeHeading(deg)+22.5)/45) % 8
	return codes[idx]
}

// Reading is a sensor value that may be unknown (negative). Every gate goes
// through these helpers so the fail-open policy for dropouts lives in one
// place: comparisons against an unknown reading report "no evidence", and
// callers decide whether no evidence passes or blocks.
type Reading float64

// Known reports whether the reading was measured.
func (r Reading) Known() bool { return r >= 0 }

// Below reports whether the reading is known and strictly below limit.
func (r Reading) Below(limit float64) bool { return r.Known() && float64(r) < limit }

// Above reports whether the reading is known and strictly above limit.
func (r Reading) Above(limit float64) bool { return r.Known() && float64(r) > limit }

// WithinOr reports whether a known reading is within tolerance of target
// (angular), and returns ifUnknown when the reading is missing.
func (r Reading) WithinOr(target, tolerance float64, ifUnknown bool) bool {
	if !r.Known() {
		return ifUnknown
	}
	return HeadingDelta(float64(r), target) <= tolerance
}
