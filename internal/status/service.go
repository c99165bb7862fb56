// Package status turns raw proximity and passage data into the vessel's
// displayed Status, with hysteresis on every threshold so a vessel sitting
// right on a boundary doesn't flicker between states every update.
package status

import (
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// Decision is StatusService's output: what Status a vessel should report
// next, plus the hysteresis state the Registry must persist for next time.
type Decision struct {
	Status               vessel.Status
	UnderBridgeLatched    bool
	WaitingConfirmations int
}

// waitingConfirmThreshold is how many consecutive updates a vessel must
// spend inside the protection zone before "waiting" is reported, so a
// vessel merely transiting close to a bridge on the way elsewhere doesn't
// flash into "waiting" for one sample.
const waitingConfirmThreshold = 2

// maxWaitingSOG is the "SOG is low" leg of spec §4.6's waiting rule: a
// vessel transiting through a bridge's 300 m zone at speed is approaching
// or passing through, not waiting for it to open.
const maxWaitingSOG = 2.0

// passageDisplayWindow is how long after a passage is anchored the vessel
// still reports Passed, before falling back to EnRoute/Approaching toward
// whatever the next target is.
const passageDisplayWindow = 60 * time.Second

// Compute derives the next Status for one vessel from its current View and
// proximity reading. It is a pure function: all hysteresis state it needs
// is read from the View and returned in Decision for the Registry to store.
func Compute(v vessel.View, proximity vessel.ProximityResult, reg *bridges.Registry, now time.Time) Decision {
	if v.LastPassedBridge != "" && now.Sub(v.LastPassedBridgeTime) < passageDisplayWindow {
		if v.TargetBridge == "" || v.LastPassedBridge == v.TargetBridge {
			return Decision{Status: vessel.StatusPassed, UnderBridgeLatched: false, WaitingConfirmations: 0}
		}
	}

	if v.TargetBridge == "" {
		return Decision{Status: vessel.StatusEnRoute}
	}

	b, ok := reg.ByID(v.TargetBridge)
	if !ok {
		return Decision{Status: vessel.StatusEnRoute}
	}

	dist, hasDist := distanceToTarget(v, proximity)
	if !hasDist {
		return Decision{Status: v.Status, UnderBridgeLatched: v.UnderBridgeLatched, WaitingConfirmations: v.WaitingConfirmations}
	}

	// Under-bridge hysteresis: once latched, only clear above the wider
	// threshold so a vessel hovering at 55m doesn't bounce in and out.
	if v.UnderBridgeLatched {
		if dist <= vessel.DistUnderBridgeClear {
			return Decision{Status: vessel.StatusUnderBridge, UnderBridgeLatched: true}
		}
	} else if dist <= vessel.DistUnderBridgeSet {
		return Decision{Status: vessel.StatusUnderBridge, UnderBridgeLatched: true}
	}

	waitingStatus := vessel.StatusWaiting
	if b.ID == bridges.IDStallbackabron {
		waitingStatus = vessel.StatusStallbackaWaiting
	}

	lowSOG := v.SOG <= maxWaitingSOG
	inProtection := dist <= vessel.DistProtection && lowSOG
	wasWaiting := v.Status == vessel.StatusWaiting || v.Status == vessel.StatusStallbackaWaiting
	if wasWaiting && dist <= vessel.DistProtectionClear && lowSOG {
		return Decision{Status: waitingStatus, WaitingConfirmations: v.WaitingConfirmations}
	}
	if inProtection {
		count := v.WaitingConfirmations + 1
		if count >= waitingConfirmThreshold {
			return Decision{Status: waitingStatus, WaitingConfirmations: count}
		}
		return Decision{Status: approachOrEnRoute(dist, v.Status), WaitingConfirmations: count}
	}

	return Decision{Status: approachOrEnRoute(dist, v.Status)}
}

// approachOrEnRoute applies the approaching/en-route hysteresis: once
// Approaching, stay there until past the wider clear threshold.
func approachOrEnRoute(dist float64, prev vessel.Status) vessel.Status {
	if prev == vessel.StatusApproaching && dist <= vessel.DistApproachingClear {
		return vessel.StatusApproaching
	}
	if dist <= vessel.DistApproachingSet {
		return vessel.StatusApproaching
	}
	return vessel.StatusEnRoute
}

func distanceToTarget(v vessel.View, proximity vessel.ProximityResult) (float64, bool) {
	if v.CurrentBridge == v.TargetBridge {
		return v.DistanceToCurrent, true
	}
	for _, bd := range proximity.Ordered {
		if bd.BridgeID == v.TargetBridge {
			return bd.Distance, true
		}
	}
	return 0, false
}
