// Package window is the single source of truth for how long a passage stays
// visible after it's anchored, and for a speed-scaled grace period that
// Manager tracks per (vessel, bridge) candidate crossing.
package window

import (
	"sync"
	"time"
)

// DisplayWindow is how long a passage remains the reported reason a bridge
// text mentions "just passed", independent of any per-status hysteresis.
const DisplayWindow = 60 * time.Second

// minGrace/maxGrace bound the internal grace period per spec §4.11: ~1
// minute for a slow vessel (little distance covered, so the line-crossing
// geometry itself is the better signal) up to ~2 minutes for a fast one
// (more likely to blow straight through a brief GPS glitch at speed, so it
// needs longer to be confirmed as a real crossing rather than noise).
const (
	minGrace = 1 * time.Minute
	maxGrace = 2 * time.Minute

	graceLowSpeed  = 2.0  // kn: at or below this, minGrace applies
	graceHighSpeed = 10.0 // kn: at or above this, maxGrace applies
)

// Manager tracks, per (mmsi, bridge), when a candidate crossing was first
// observed, so a caller can require it to persist for the grace period
// before treating it as real.
type Manager struct {
	mu        sync.Mutex
	candidate map[string]time.Time // key: mmsi+"|"+bridge
}

// NewManager builds an empty passage window manager.
func NewManager() *Manager {
	return &Manager{candidate: make(map[string]time.Time)}
}

// GraceFor returns the internal grace period for a vessel travelling at
// sogKnots: faster vessels get a longer window, slower ones a shorter one,
// linearly interpolated between graceLowSpeed and graceHighSpeed and
// clamped to [minGrace, maxGrace] outside that range.
func GraceFor(sogKnots float64) time.Duration {
	if sogKnots <= graceLowSpeed {
		return minGrace
	}
	if sogKnots >= graceHighSpeed {
		return maxGrace
	}
	frac := (sogKnots - graceLowSpeed) / (graceHighSpeed - graceLowSpeed)
	return minGrace + time.Duration(frac*float64(maxGrace-minGrace))
}

func key(mmsi, bridge string) string { return mmsi + "|" + bridge }

// Observe records that a candidate crossing is currently held for
// (mmsi, bridge) and reports whether it has now persisted through its
// speed-scaled grace period and should be anchored. Passing sogKnots<=0
// (stopped) gives the minimum grace period, not an instant anchor.
func (m *Manager) Observe(mmsi, bridge string, sogKnots float64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(mmsi, bridge)
	first, ok := m.candidate[k]
	if !ok {
		m.candidate[k] = now
		return false
	}
	if now.Sub(first) >= GraceFor(sogKnots) {
		delete(m.candidate, k)
		return true
	}
	return false
}

// Reset drops a held candidate, e.g. once the vessel moved away from the
// bridge without actually crossing.
func (m *Manager) Reset(mmsi, bridge string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.candidate, key(mmsi, bridge))
}
