package vessel

import (
	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/geometry"
)

// Zone is the canonical distance band a vessel can be in relative to a
// bridge, per spec §4.4.
type Zone int

const (
	ZoneFar Zone = iota
	ZoneApproaching // <=500m (set 450, clear 550)
	ZoneProtection  // <=300m (clear 320) - also "waiting candidate"
	ZoneUnderBridge // <=50m (clear 70)
)

const (
	DistApproachingSet   = 450.0
	DistApproachingClear = 550.0
	DistApproaching      = 500.0
	DistProtection       = 300.0
	DistProtectionClear  = 320.0
	DistUnderBridgeSet   = 50.0
	DistUnderBridgeClear = 70.0
)

// BridgeDistance is one entry in ProximityService's ordered distance list.
type BridgeDistance struct {
	BridgeID        string
	Distance        float64
	BearingFromBridge float64
	HasBearing        bool
}

// ProximityResult is ProximityService's full output for a single fix.
type ProximityResult struct {
	Ordered []BridgeDistance
	Nearest BridgeDistance
	HasNearest bool
}

// ComputeProximity returns the distance to every bridge from p, ordered by
// the registry's canal order (not by distance), plus the nearest one.
func ComputeProximity(reg *bridges.Registry, p geometry.Point) ProximityResult {
	all := reg.All()
	result := ProximityResult{Ordered: make([]BridgeDistance, 0, len(all))}

	if !geometry.Valid(p.Lat, p.Lon) {
		return result
	}

	bestIdx := -1
	for i, b := range all {
		d := geometry.Distance(p, b.Point)
		brg, ok := geometry.Bearing(b.Point, p)
		entry := BridgeDistance{BridgeID: b.ID, Distance: d, BearingFromBridge: brg, HasBearing: ok}
		result.Ordered = append(result.Ordered, entry)
		if bestIdx == -1 || d < result.Ordered[bestIdx].Distance {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		result.Nearest = result.Ordered[bestIdx]
		result.HasNearest = true
	}
	return result
}

// ZoneFor classifies a distance into the canonical zone using the "set"
// threshold (the wider "clear" threshold is only relevant to a stateful
// caller applying hysteresis, see StatusService).
func ZoneFor(distance float64) Zone {
	switch {
	case distance <= DistUnderBridgeSet:
		return ZoneUnderBridge
	case distance <= DistProtection:
		return ZoneProtection
	case distance <= DistApproachingSet:
		return ZoneApproaching
	default:
		return ZoneFar
	}
}

// IsApproachingBearing implements the "heading within ±90° of bridge
// bearing" leg of the three-method "actually approaching" check.
func IsApproachingBearing(vesselCOG float64, hasCOG bool, bearingToBridge float64, hasBearing bool) bool {
	if !hasCOG || !hasBearing {
		return false
	}
	return geometry.AngleDiff(vesselCOG, bearingToBridge) <= 90
}
