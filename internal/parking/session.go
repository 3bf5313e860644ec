package parking

import (
	"time"

	"drivewatch/internal/types"
)

// State is the machine's position in the drive lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateDriving       State = "driving"
	StateStopCandidate State = "stop_candidate"
	StateConfirmed     State = "confirmed"
)

// Guard names a reason a ready stop candidate was held back.
type Guard string

const (
	GuardHotspot       Guard = "hotspot"
	GuardLockout       Guard = "lockout"
	GuardLowConfidence Guard = "low_confidence"
)

// Unwind reasons.
const (
	ReasonSpeed      = "speed_above_driving_min"
	ReasonAutomotive = "automotive_activity"
)

// Session is one contiguous drive. It is owned by a Machine; callers only see
// snapshots.
type Session struct {
	ID           string
	State        State
	StartedAt    time.Time
	LastMotionAt time.Time
	Candidate    *StopCandidate
	// LockoutUntil is set after a post-confirm unwind; stops before it must
	// serve the lockout dwell.
	LockoutUntil *time.Time
	Confirmed    *types.ParkingRecord
}

func (s *Session) snapshot() *Session {
	c := *s
	if s.Candidate != nil {
		cand := *s.Candidate
		cand.served = make(map[Guard]bool, len(s.Candidate.served))
		for k, v := range s.Candidate.served {
			cand.served[k] = v
		}
		c.Candidate = &cand
	}
	if s.LockoutUntil != nil {
		until := *s.LockoutUntil
		c.LockoutUntil = &until
	}
	if s.Confirmed != nil {
		rec := *s.Confirmed
		c.Confirmed = &rec
	}
	return &c
}

// StopCandidate is a stop that may become a parking confirmation.
type StopCandidate struct {
	OpenedAt time.Time
	// DwellStartedAt is the dwell clock origin. Guards restart it.
	DwellStartedAt      time.Time
	Location            types.Position
	DwellSeconds        float64
	RequiredDwell       float64
	IsAtIntersection    bool
	InHotspot           bool
	LowConfidenceStreak int
	LowConfidenceSeen   bool
	GPSCorroborated     bool

	readyLogged bool
	served      map[Guard]bool
}

// Served reports whether the candidate already served guard g's elevated
// dwell.
func (c *StopCandidate) Served(g Guard) bool { return c.served[g] }

// Transition is one state-machine event, rendered as one telemetry line.
type Transition struct {
	Event     types.EventName
	SessionID string
	At        time.Time
	From      State
	To        State
	Reason    string

	Location             types.Position
	DwellSeconds         float64
	RequiredDwellSeconds float64
	IsAtIntersection     bool
	Record               *types.ParkingRecord
}

// Places answers the location questions the guards need. *cameras.Index
// implements it.
type Places interface {
	IsIntersection(p types.Position, radiusMeters float64) bool
	InHotspot(p types.Position) bool
}

type noPlaces struct{}

func (noPlaces) IsIntersection(types.Position, float64) bool { return false }
func (noPlaces) InHotspot(types.Position) bool               { return false }
