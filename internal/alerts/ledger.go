package alerts

import "drivewatch/internal/types"

// WildcardApproach is the approach recorded when the vehicle heading is
// unknown or the camera declares no approach headings. A wildcard fire
// covers every approach of that camera.
const WildcardApproach = "*"

type tuple struct {
	cameraID string
	approach string
}

// Ledger is the per-session alert memory: which (camera, approach) tuples
// have fired, which low-tier tuples were already logged, and the last
// rejection reason per camera. A Ledger belongs to exactly one session and
// is not safe for concurrent use.
type Ledger struct {
	sessionID     string
	fired         map[tuple]struct{}
	firedByCamera map[string]int
	events        []types.CameraAlertEvent
	lowLogged     map[tuple]struct{}
	lastRejection map[string]RejectReason
}

// NewLedger returns an empty ledger for sessionID.
func NewLedger(sessionID string) *Ledger {
	return &Ledger{
		sessionID:     sessionID,
		fired:         make(map[tuple]struct{}),
		firedByCamera: make(map[string]int),
		lowLogged:     make(map[tuple]struct{}),
		lastRejection: make(map[string]RejectReason),
	}
}

// SessionID returns the owning session.
func (l *Ledger) SessionID() string { return l.sessionID }

// Fired returns the alerts fired in this session, in firing order.
func (l *Ledger) Fired() []types.CameraAlertEvent {
	out := make([]types.CameraAlertEvent, len(l.events))
	copy(out, l.events)
	return out
}

// HasFired reports whether the tuple, or any tuple it overlaps through the
// wildcard approach, has already fired.
func (l *Ledger) HasFired(cameraID, approach string) bool {
	if _, ok := l.fired[tuple{cameraID, WildcardApproach}]; ok {
		return true
	}
	if approach == WildcardApproach {
		return l.firedByCamera[cameraID] > 0
	}
	_, ok := l.fired[tuple{cameraID, approach}]
	return ok
}

func (l *Ledger) record(ev types.CameraAlertEvent) {
	l.fired[tuple{ev.CameraID, ev.Approach}] = struct{}{}
	l.firedByCamera[ev.CameraID]++
	l.events = append(l.events, ev)
}

// markLow returns true the first time a low-tier tuple is seen.
func (l *Ledger) markLow(cameraID, approach string) bool {
	k := tuple{cameraID, approach}
	if _, ok := l.lowLogged[k]; ok {
		return false
	}
	l.lowLogged[k] = struct{}{}
	return true
}

// noteRejection returns true when reason differs from the last one logged
// for the camera.
func (l *Ledger) noteRejection(cameraID string, reason RejectReason) bool {
	if l.lastRejection[cameraID] == reason {
		return false
	}
	l.lastRejection[cameraID] = reason
	return true
}

func (l *Ledger) clearRejection(cameraID string) {
	delete(l.lastRejection, cameraID)
}
