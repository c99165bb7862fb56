package vessel

import (
	"time"

	"github.com/trollbridge/bridgewatch/internal/geometry"
)

// JumpAction is the GPSJumpAnalyzer's verdict on a new fix.
type JumpAction int

const (
	JumpAccept JumpAction = iota
	JumpAcceptWithCaution
	JumpReject
)

// JumpAnalysis is the full result of analysing a candidate fix against the
// vessel's previous accepted fix.
type JumpAnalysis struct {
	Action            JumpAction
	GPSJumpDetected   bool
	PositionUncertain bool
	Confidence        float64
	MovementDistance  float64
}

// speedToleranceFactor widens the "plausible at this SOG" envelope to absorb
// AIS's 10-60s update cadence and ordinary GPS noise.
const speedToleranceFactor = 1.8

// minPlausibleSpeedMps is the floor used when SOG is ~0 so a stationary
// vessel's ordinary GPS jitter isn't misread as impossible movement.
const minPlausibleSpeedMps = 1.0

// AnalyzeJump is GPSJumpAnalyzer: stateless beyond the two fixes it's given.
func AnalyzeJump(prev, cur geometry.Point, sogKnots float64, dt time.Duration) JumpAnalysis {
	if dt <= 0 {
		dt = time.Second
	}
	moved := geometry.Distance(prev, cur)
	if moved < 0 {
		return JumpAnalysis{Action: JumpReject, GPSJumpDetected: true, Confidence: 0.95}
	}

	sogMps := sogKnots * 0.514444
	if sogMps < minPlausibleSpeedMps {
		sogMps = minPlausibleSpeedMps
	}
	plausible := sogMps * dt.Seconds() * speedToleranceFactor

	switch {
	case moved <= plausible:
		return JumpAnalysis{Action: JumpAccept, MovementDistance: moved, Confidence: 0.95}
	case moved <= plausible*3:
		return JumpAnalysis{
			Action:            JumpAcceptWithCaution,
			GPSJumpDetected:   true,
			PositionUncertain: true,
			MovementDistance:  moved,
			Confidence:        0.8,
		}
	default:
		return JumpAnalysis{
			Action:            JumpReject,
			GPSJumpDetected:   true,
			PositionUncertain: true,
			MovementDistance:  moved,
			Confidence:        0.9,
		}
	}
}

// AnalyzeJumpWithCourse additionally allows a large, legitimate direction
// change (e.g. rounding a bend) to downgrade a rejection to
// accept-with-caution when SOG is consistent with the new heading.
func AnalyzeJumpWithCourse(prev, cur geometry.Point, sogKnots float64, dt time.Duration, prevCOG, curCOG float64, hasPrevCOG, hasCurCOG bool) JumpAnalysis {
	base := AnalyzeJump(prev, cur, sogKnots, dt)
	if base.Action != JumpReject {
		return base
	}
	if hasPrevCOG && hasCurCOG && geometry.AngleDiff(prevCOG, curCOG) >= 60 && sogKnots > 0.5 {
		base.Action = JumpAcceptWithCaution
		base.Confidence = 0.75
	}
	return base
}
