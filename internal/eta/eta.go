// Package eta computes a smoothed, monotone-guarded time-to-bridge estimate
// from a vessel's distance-to-target and speed, rejecting single-sample
// outliers rather than reporting them.
package eta

import (
	"sync"
	"time"

	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// sample is one accepted distance/time observation used to smooth ETA.
type sample struct {
	minutes float64
	at      time.Time
}

// historySize and historyWindow bound how much each vessel's smoothing
// state remembers: enough to damp noise, not so much it reacts to an hour
// ago.
const (
	historySize   = 10
	historyWindow = 30 * time.Minute
)

// emaAlpha weights the newest raw estimate against the smoothed one; 0.3
// favours responsiveness over a longer memory, appropriate for a value
// that's displayed live.
const emaAlpha = 0.3

// outlierFactor rejects a raw estimate more than this multiple away from
// the last smoothed value, since a sudden 3x jump is almost always a
// transient SOG spike, not a vessel that re-accelerated that fast.
const outlierFactor = 2.5

// minSpeedForETA is the SOG floor below which no ETA is offered at all:
// a nearly-stationary vessel's distance/speed ratio is meaningless.
const minSpeedForETA = 0.5

// Calculator holds smoothing state per vessel. Safe for concurrent use.
type Calculator struct {
	mu      sync.Mutex
	smooth  map[string]float64
	history map[string][]sample
}

// NewCalculator builds an empty ETA calculator.
func NewCalculator() *Calculator {
	return &Calculator{smooth: make(map[string]float64), history: make(map[string][]sample)}
}

// Compute returns the minutes-to-target ETA for a vessel, or ok=false when
// no meaningful estimate can be offered: waiting at a bridge, already under
// one, already past its target, or moving too slowly to extrapolate. A
// vessel passing under the special bridge (stallbacka-waiting/passing) is
// still en route to its real target bridge, so ETA stays on per spec
// §4.10: "for intermediate bridges and stallbacka-waiting it is always the
// ETA to the TARGET bridge, never the intermediate."
func (c *Calculator) Compute(mmsi string, v vessel.View, distanceToTarget float64, now time.Time) (float64, bool) {
	switch v.Status {
	case vessel.StatusWaiting, vessel.StatusUnderBridge, vessel.StatusPassed:
		c.forget(mmsi)
		return 0, false
	}
	if v.TargetBridge == "" || v.SOG < minSpeedForETA || distanceToTarget < 0 {
		c.forget(mmsi)
		return 0, false
	}

	sogMps := v.SOG * 0.514444
	rawMinutes := distanceToTarget / sogMps / 60.0

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, hasPrev := c.smooth[mmsi]
	var next float64
	if hasPrev && prev > 0 && (rawMinutes > prev*outlierFactor || rawMinutes < prev/outlierFactor) {
		// Outlier: per spec §4.10, fall back to 70% previous + 30% raw
		// instead of the normal EMA weights, damping the jump without
		// discarding it outright.
		next = 0.7*prev + 0.3*rawMinutes
	} else if hasPrev {
		next = emaAlpha*rawMinutes + (1-emaAlpha)*prev
	} else {
		next = rawMinutes
	}

	// Monotone guard: a vessel moving toward its target shouldn't see its
	// ETA increase tick to tick, beyond what smoothing naturally allows.
	if hasPrev && next > prev+0.05 && rawMinutes <= prev {
		next = prev
	}

	c.smooth[mmsi] = next
	hist := append(c.history[mmsi], sample{minutes: next, at: now})
	cutoff := now.Add(-historyWindow)
	trimmed := hist[:0]
	for _, s := range hist {
		if s.at.After(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) > historySize {
		trimmed = trimmed[len(trimmed)-historySize:]
	}
	c.history[mmsi] = trimmed

	return next, true
}

func (c *Calculator) forget(mmsi string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.smooth, mmsi)
	delete(c.history, mmsi)
}

// Forget drops a vessel's smoothing state, e.g. once it's been evicted from
// the registry.
func (c *Calculator) Forget(mmsi string) {
	c.forget(mmsi)
}
