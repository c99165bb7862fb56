package status

import (
	"sync"
	"time"
)

// latchKey identifies one vessel-at-one-bridge passage.
type latchKey struct {
	mmsi   string
	bridge string
}

// PassageLatchService blocks a bridge-text service or event publisher from
// re-announcing the same crossing twice inside its display window, and
// forgets crossings nobody re-confirmed, so the map can't grow forever.
type PassageLatchService struct {
	mu      sync.Mutex
	latched map[latchKey]time.Time
}

// NewPassageLatchService builds an empty latch table.
func NewPassageLatchService() *PassageLatchService {
	return &PassageLatchService{latched: make(map[latchKey]time.Time)}
}

// passageLatchOrphanAge is how long an unrefreshed latch entry survives
// before Sweep reclaims it.
const passageLatchOrphanAge = 5 * time.Minute

// TryLatch reports whether this (mmsi, bridge) passage is new within the
// display window, and latches it if so. A false return means "already
// announced, suppress".
func (s *PassageLatchService) TryLatch(mmsi, bridge string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := latchKey{mmsi, bridge}
	if last, ok := s.latched[key]; ok && now.Sub(last) < passageDisplayWindow {
		return false
	}
	s.latched[key] = now
	return true
}

// Sweep drops latch entries older than passageLatchOrphanAge. The serve
// pipeline calls it once per ingested fix.
func (s *PassageLatchService) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.latched {
		if now.Sub(t) >= passageLatchOrphanAge {
			delete(s.latched, k)
		}
	}
}
