package status

import (
	"sync"
	"time"

	"github.com/trollbridge/bridgewatch/internal/geometry"
)

// candidate is a position the gate is waiting to confirm before letting it
// through as the vessel's accepted position.
type candidate struct {
	point geometry.Point
	since time.Time
	held  time.Time // when the gate first started holding for this vessel
}

// gpsJumpConfirmWindow is how long a candidate position must keep recurring
// before it's trusted over the vessel's last accepted fix.
const gpsJumpConfirmWindow = 5 * time.Second

// gpsJumpHardTimeout caps how long the gate keeps holding candidates for one
// vessel, counted from the first candidate even if later ones replaced it:
// once reached, the candidate is discarded, so a vessel can't get stuck on a
// candidate that never stabilises.
const gpsJumpHardTimeout = 30 * time.Second

// candidateStableRadius is how close two candidate fixes must be to count
// as "the same" position recurring, rather than two different jumps.
const candidateStableRadius = 25.0

// GPSJumpGateService holds a rejected-fix candidate position until it
// either stabilises (the vessel really did move there) or times out
// (transient noise, discard and keep waiting on the old fix).
type GPSJumpGateService struct {
	mu         sync.Mutex
	candidates map[string]candidate
}

// NewGPSJumpGateService builds an empty gate.
func NewGPSJumpGateService() *GPSJumpGateService {
	return &GPSJumpGateService{candidates: make(map[string]candidate)}
}

// Offer records a new candidate position for mmsi and reports whether it
// should now be accepted as the vessel's real position, which happens once
// it has matched the held candidate for gpsJumpConfirmWindow. When
// gpsJumpHardTimeout has elapsed since holding began, the held candidate is
// discarded instead and false is returned.
func (g *GPSJumpGateService) Offer(mmsi string, p geometry.Point, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.candidates[mmsi]
	if !ok {
		g.candidates[mmsi] = candidate{point: p, since: now, held: now}
		return false
	}

	if now.Sub(c.held) >= gpsJumpHardTimeout {
		delete(g.candidates, mmsi)
		return false
	}

	if geometry.Distance(c.point, p) > candidateStableRadius {
		g.candidates[mmsi] = candidate{point: p, since: now, held: c.held}
		return false
	}

	if now.Sub(c.since) >= gpsJumpConfirmWindow {
		delete(g.candidates, mmsi)
		return true
	}
	return false
}

// Clear drops any held candidate for mmsi, e.g. once a fix was accepted
// through the normal path and there's nothing left to confirm.
func (g *GPSJumpGateService) Clear(mmsi string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.candidates, mmsi)
}
