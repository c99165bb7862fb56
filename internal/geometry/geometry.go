// Package geometry provides pure position math used across the tracking
// pipeline: distance, bearing, and multi-method passage detection between a
// vessel's previous and current fix and a bridge's fixed point.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point is a validated lat/lon pair. Use NewPoint to construct one; the zero
// value is not a valid point.
type Point struct {
	Lat, Lon float64
}

// Valid reports whether the coordinate pair is within range and not the
// common AIS garbage fix of exactly 0,0.
func Valid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return true
}

// NewPoint validates and constructs a Point, returning ok=false on invalid input.
func NewPoint(lat, lon float64) (Point, bool) {
	if !Valid(lat, lon) {
		return Point{}, false
	}
	return Point{Lat: lat, Lon: lon}, true
}

func (p Point) toOrb() orb.Point { return orb.Point{p.Lon, p.Lat} }

// Distance returns the great-circle distance between two points in metres,
// or -1 if either point is invalid.
func Distance(a, b Point) float64 {
	if !Valid(a.Lat, a.Lon) || !Valid(b.Lat, b.Lon) {
		return -1
	}
	return geo.Distance(a.toOrb(), b.toOrb())
}

// DistanceRaw is Distance for callers that only have lat/lon scalars; it
// returns (0, false) for invalid input instead of a sentinel distance.
func DistanceRaw(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	a, ok1 := NewPoint(lat1, lon1)
	b, ok2 := NewPoint(lat2, lon2)
	if !ok1 || !ok2 {
		return 0, false
	}
	return Distance(a, b), true
}

// Bearing returns the initial bearing from a to b in degrees [0,360), or
// (0, false) if either point is invalid.
func Bearing(a, b Point) (float64, bool) {
	if !Valid(a.Lat, a.Lon) || !Valid(b.Lat, b.Lon) {
		return 0, false
	}
	brg := geo.Bearing(a.toOrb(), b.toOrb())
	if brg < 0 {
		brg += 360
	}
	return brg, true
}

// NormalizeCourse maps the AIS 360° quirk to 0° and leaves everything else
// untouched; callers must keep "no COG reported" as a separate nil, never as 0.
func NormalizeCourse(cog float64) float64 {
	if cog == 360 {
		return 0
	}
	return cog
}

// AngleDiff returns the smallest absolute difference between two bearings in
// degrees, in [0,180].
func AngleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// PassageMethod names which of the five detection heuristics fired.
type PassageMethod int

const (
	MethodNone PassageMethod = iota
	MethodRadiusCross
	MethodLineCross
	MethodProgressiveConvergence
	MethodDirectionChange
	MethodStallbacka
)

// PassageContext carries the extra kinematic state detectPassage needs beyond
// the two raw fixes.
type PassageContext struct {
	PrevCOG, CurCOG     float64
	HasPrevCOG, HasCOG  bool
	SOG                 float64
	Maneuvering         bool // relaxes the line-crossing threshold to 300m
	SparseAIS           bool // ditto
	IsStallbacka        bool
}

// PassageResult reports whether a passage of the bridge was detected between
// prev and cur, by which method, and a confidence in [0.7,0.95].
type PassageResult struct {
	Detected   bool
	Method     PassageMethod
	Confidence float64
}

const (
	lineCrossStandard = 250.0
	lineCrossRelaxed  = 300.0
)

// DetectPassage tries, in order, the five passage-detection heuristics from
// spec §4.2 and returns the first that fires.
func DetectPassage(prev, cur, bridge Point, ctx PassageContext) PassageResult {
	if !Valid(prev.Lat, prev.Lon) || !Valid(cur.Lat, cur.Lon) || !Valid(bridge.Lat, bridge.Lon) {
		return PassageResult{}
	}

	if ctx.IsStallbacka {
		if r := detectStallbacka(prev, cur, bridge, ctx); r.Detected {
			return r
		}
	}

	if r := detectRadiusCross(prev, cur, bridge); r.Detected {
		return r
	}
	if r := detectLineCross(prev, cur, bridge, ctx); r.Detected {
		return r
	}
	if r := detectProgressiveConvergence(prev, cur, bridge); r.Detected {
		return r
	}
	if r := detectDirectionChange(prev, cur, bridge, ctx); r.Detected {
		return r
	}
	return PassageResult{}
}

// detectRadiusCross fires when both the previous and the current fix are
// within the 50m under-bridge radius.
func detectRadiusCross(prev, cur, bridge Point) PassageResult {
	const radius = 50.0
	dPrev := Distance(prev, bridge)
	dCur := Distance(cur, bridge)
	if dPrev <= radius && dCur <= radius {
		return PassageResult{Detected: true, Method: MethodRadiusCross, Confidence: 0.75}
	}
	return PassageResult{}
}

// detectLineCross checks whether the prev->cur segment passes within the
// crossing threshold of the bridge point, which approximates crossing the
// bridge's line for a canal this narrow.
func detectLineCross(prev, cur, bridge Point, ctx PassageContext) PassageResult {
	threshold := lineCrossStandard
	if ctx.Maneuvering || ctx.SparseAIS {
		threshold = lineCrossRelaxed
	}

	d := segmentPointDistance(prev, cur, bridge)
	if d <= threshold {
		return PassageResult{Detected: true, Method: MethodLineCross, Confidence: 0.85}
	}
	return PassageResult{}
}

// detectProgressiveConvergence fires when the vessel was converging on the
// bridge and is now diverging, i.e. it passed the closest-approach point
// very near the bridge.
func detectProgressiveConvergence(prev, cur, bridge Point) PassageResult {
	const nearEnough = 120.0
	dPrev := Distance(prev, bridge)
	dCur := Distance(cur, bridge)
	if dPrev <= nearEnough && dCur > dPrev {
		return PassageResult{Detected: true, Method: MethodProgressiveConvergence, Confidence: 0.7}
	}
	return PassageResult{}
}

// detectDirectionChange fires when the vessel's course over ground changed
// by 90 degrees or more between the previous and current fix while it is
// within 150m of the bridge.
func detectDirectionChange(prev, cur, bridge Point, ctx PassageContext) PassageResult {
	const closeEnough = 150.0
	if Distance(cur, bridge) > closeEnough {
		return PassageResult{}
	}
	if !ctx.HasPrevCOG || !ctx.HasCOG {
		return PassageResult{}
	}
	if AngleDiff(ctx.PrevCOG, ctx.CurCOG) >= 90 {
		return PassageResult{Detected: true, Method: MethodDirectionChange, Confidence: 0.7}
	}
	return PassageResult{}
}

// detectStallbacka applies a slightly wider radius tuned to Stallbackabron's
// geometry, where the canal bends and a tight radius under-detects passage.
func detectStallbacka(prev, cur, bridge Point, ctx PassageContext) PassageResult {
	const radius = 70.0
	dPrev := Distance(prev, bridge)
	dCur := Distance(cur, bridge)
	if dPrev <= radius && dCur <= radius && ctx.SOG > 0.3 {
		return PassageResult{Detected: true, Method: MethodStallbacka, Confidence: 0.8}
	}
	return PassageResult{}
}

// segmentPointDistance approximates the distance from p to the segment a-b
// in metres using an equirectangular local projection, which is accurate
// enough over the few-hundred-metre spans involved here.
func segmentPointDistance(a, b, p Point) float64 {
	const metresPerDegLat = 111320.0
	lat0 := a.Lat
	metresPerDegLon := metresPerDegLat * math.Cos(lat0*math.Pi/180)

	ax, ay := 0.0, 0.0
	bx := (b.Lon - a.Lon) * metresPerDegLon
	by := (b.Lat - a.Lat) * metresPerDegLat
	px := (p.Lon - a.Lon) * metresPerDegLon
	py := (p.Lat - a.Lat) * metresPerDegLat

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx := ax + t*dx
	cy := ay + t*dy
	return math.Hypot(px-cx, py-cy)
}
