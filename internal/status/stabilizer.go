package status

import (
	"sync"
	"time"

	"github.com/trollbridge/bridgewatch/internal/geometry"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// gpsJumpResetDistance is how far a flagged jump has to be before it resets
// the flicker-damping history outright rather than just gating the current
// read: a jump this large means whatever history was accumulating is about
// a position that's no longer trustworthy.
const gpsJumpResetDistance = 500.0

// uncertainConfirmThreshold is how many consecutive reads must agree on a
// new status while the vessel's position is flagged uncertain before it's
// actually reported, per spec §4.6.
const uncertainConfirmThreshold = 2

// flickerHistorySize bounds the rolling window used to damp ordinary
// flicker once the vessel's position is no longer in question.
const flickerHistorySize = 5

// immediate is the set of transitions reported the instant they're seen,
// outside of an uncertain-position window: safety-relevant states shouldn't
// wait out a stabilisation window.
func immediate(s vessel.Status) bool {
	return s == vessel.StatusUnderBridge || s == vessel.StatusPassed
}

type pending struct {
	stable      vessel.Status
	history     []vessel.Status
	lastTarget  string
	lastCurrent string
	lastJump    float64

	uncertainCandidate vessel.Status
	uncertainCount     int
}

// Stabilizer wraps Compute with per-vessel flicker damping. Safe for
// concurrent use.
type Stabilizer struct {
	mu      sync.Mutex
	pending map[string]*pending
}

// NewStabilizer builds an empty stabilizer.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{pending: make(map[string]*pending)}
}

// Apply takes a freshly computed Decision and returns the Decision that
// should actually be reported. Per spec §4.6: while the vessel's position is
// flagged uncertain (a recent GPS jump), the previous status is held until
// two consecutive reads agree on the new one; otherwise flicker is damped by
// reporting the most common status across a short rolling history. That
// history and the uncertain-read count reset on a target or current bridge
// change, on a newly flagged GPS jump larger than gpsJumpResetDistance, or on
// invalid coordinates. d.UnderBridgeLatched is passed through unchanged.
func (s *Stabilizer) Apply(mmsi string, v vessel.View, d Decision, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[mmsi]
	if !ok {
		p = &pending{stable: d.Status, history: []vessel.Status{d.Status}, lastTarget: v.TargetBridge, lastCurrent: v.CurrentBridge, lastJump: v.LastJumpDistance}
		s.pending[mmsi] = p
		return d
	}

	reset := p.lastTarget != v.TargetBridge || p.lastCurrent != v.CurrentBridge ||
		(v.LastJumpDistance > gpsJumpResetDistance && v.LastJumpDistance != p.lastJump) ||
		!geometry.Valid(v.Lat, v.Lon)
	p.lastTarget, p.lastCurrent, p.lastJump = v.TargetBridge, v.CurrentBridge, v.LastJumpDistance
	if reset {
		p.history = p.history[:0]
		p.uncertainCount = 0
	}

	if now.Before(v.PositionUncertainUntil) {
		if d.Status == p.uncertainCandidate {
			p.uncertainCount++
		} else {
			p.uncertainCandidate = d.Status
			p.uncertainCount = 1
		}
		if p.uncertainCount < uncertainConfirmThreshold {
			out := d
			out.Status = p.stable
			return out
		}
		p.stable = d.Status
		p.history = append(p.history[:0], d.Status)
		return d
	}
	p.uncertainCount = 0

	if immediate(d.Status) {
		p.stable = d.Status
		p.history = append(p.history[:0], d.Status)
		return d
	}

	p.history = append(p.history, d.Status)
	if len(p.history) > flickerHistorySize {
		p.history = p.history[len(p.history)-flickerHistorySize:]
	}

	counts := make(map[vessel.Status]int, len(p.history))
	for _, st := range p.history {
		counts[st]++
	}
	candidate := p.stable
	bestCount := counts[p.stable]
	for i := len(p.history) - 1; i >= 0; i-- {
		st := p.history[i]
		if counts[st] > bestCount {
			bestCount = counts[st]
			candidate = st
		}
	}
	p.stable = candidate

	out := d
	out.Status = p.stable
	return out
}

// Forget drops a vessel's stabilisation state, e.g. once it's been evicted.
func (s *Stabilizer) Forget(mmsi string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, mmsi)
}
