package vessel

import (
	"sync"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/geometry"
)

// EventKind is a closed set of state transitions the Registry can emit.
type EventKind int

const (
	VesselEntered EventKind = iota
	VesselUpdated
	VesselStatusChanged
	VesselRemoved
	GpsJumpDetected
	GpsHoldSet
)

func (k EventKind) String() string {
	switch k {
	case VesselEntered:
		return "vessel-entered"
	case VesselUpdated:
		return "vessel-updated"
	case VesselStatusChanged:
		return "vessel-status-changed"
	case VesselRemoved:
		return "vessel-removed"
	case GpsJumpDetected:
		return "gps-jump-detected"
	case GpsHoldSet:
		return "gps-hold-set"
	default:
		return "unknown"
	}
}

// Event is published on every state change a sibling package might care
// about. View is the vessel's state at the moment the event fired; for
// VesselRemoved it is the last known View before removal.
type Event struct {
	Kind   EventKind
	MMSI   string
	View   View
	Reason string
}

// eventBufferSize is generous because sends block: this is a cooperative,
// single-producer event loop, not a best-effort broadcast. A stuck
// subscriber is a bug to find, not traffic to drop.
const eventBufferSize = 256

// passageRecrossGuard rejects a second "crossing" of the same bridge within
// this window, which is how GPS jitter right on the line gets absorbed
// without manufacturing duplicate passage events.
const passageRecrossGuard = 3 * time.Minute

// gpsHoldDuration is how long a fix flagged as a GPS jump keeps the vessel
// on GPS hold (rejected fixes) and its position marked uncertain, measured
// from that fix's timestamp.
const gpsHoldDuration = 30 * time.Second

// targetReacquireMinMove is the two-reading validation distance from
// spec §4.5: a candidate target only replaces the sticky one once the
// vessel has actually moved this far toward it.
const targetReacquireMinMove = 10.0

// Registry is the single writer for all live vessel state. Every method is
// safe for concurrent use; callers never get a *Vessel, only a View.
type Registry struct {
	mu      sync.RWMutex
	bridges *bridges.Registry
	vessels map[string]*Vessel

	subsMu sync.Mutex
	subs   []chan Event

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry builds an empty registry bound to a bridge table and starts
// its background eviction loop. Call Close to stop the loop.
func NewRegistry(bridgeReg *bridges.Registry) *Registry {
	r := &Registry{
		bridges: bridgeReg,
		vessels: make(map[string]*Vessel),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go r.evictionLoop()
	return r
}

// Close stops the registry's background eviction loop.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Subscribe returns a channel of every Event the registry publishes from
// this point on, and a cancel func to stop receiving them.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBufferSize)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	cancel := func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (r *Registry) publish(ev Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, c := range r.subs {
		c <- ev
	}
}

// Snapshot returns the current View for one vessel.
func (r *Registry) Snapshot(mmsi string) (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[mmsi]
	if !ok {
		return View{}, false
	}
	return v.snapshot(), true
}

// AllViews returns a View for every live vessel, no particular order.
func (r *Registry) AllViews() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]View, 0, len(r.vessels))
	for _, v := range r.vessels {
		out = append(out, v.snapshot())
	}
	return out
}

// Upsert ingests one AIS fix: GPS-jump screening, position/target update,
// passage anchoring, and proximity bookkeeping. It returns the vessel's
// resulting View and every Event the update produced, in order.
func (r *Registry) Upsert(fix Fix) (View, []Event) {
	r.mu.Lock()

	var events []Event
	v, existed := r.vessels[fix.MMSI]
	if !existed {
		v = &Vessel{
			MMSI:      fix.MMSI,
			ShipName:  fix.ShipName,
			FirstSeen: fix.Timestamp,
			PassedAt:  make(map[string]time.Time),
		}
		r.vessels[fix.MMSI] = v
	}
	if fix.ShipName != "" {
		v.ShipName = fix.ShipName
	}

	prevPoint, hadPosition := geometry.Point{Lat: v.Lat, Lon: v.Lon}, !v.LastPositionUpdate.IsZero()
	curPoint := geometry.Point{Lat: fix.Lat, Lon: fix.Lon}

	accept := true
	if hadPosition && geometry.Valid(curPoint.Lat, curPoint.Lon) {
		dt := fix.Timestamp.Sub(v.LastPositionUpdate)
		analysis := AnalyzeJumpWithCourse(prevPoint, curPoint, fix.SOG, dt, v.COG, fix.COG, v.HasCOG, fix.HasCOG)
		switch analysis.Action {
		case JumpReject:
			accept = false
			v.CoordinationUntil = fix.Timestamp.Add(gpsHoldDuration)
			v.PositionUncertainUntil = fix.Timestamp.Add(gpsHoldDuration)
			v.LastJumpDistance = analysis.MovementDistance
			events = append(events,
				Event{Kind: GpsJumpDetected, MMSI: v.MMSI, View: v.snapshot(), Reason: "implausible movement"},
				Event{Kind: GpsHoldSet, MMSI: v.MMSI, View: v.snapshot(), Reason: "hold until re-acquire"},
			)
		case JumpAcceptWithCaution:
			v.PositionUncertainUntil = fix.Timestamp.Add(gpsHoldDuration)
			v.LastJumpDistance = analysis.MovementDistance
			events = append(events, Event{Kind: GpsJumpDetected, MMSI: v.MMSI, View: v.snapshot(), Reason: "accepted with caution"})
		}
	}

	v.LastMessage = fix.Timestamp
	if accept && geometry.Valid(curPoint.Lat, curPoint.Lon) {
		if v.Lat != fix.Lat || v.Lon != fix.Lon {
			v.LastPositionChange = fix.Timestamp
		}
		v.Lat, v.Lon = fix.Lat, fix.Lon
		v.SOG = fix.SOG
		v.COG, v.HasCOG = fix.COG, fix.HasCOG
		v.LastPositionUpdate = fix.Timestamp

		v.SpeedHistory = append(v.SpeedHistory, fix.SOG)
		if len(v.SpeedHistory) > speedHistorySize {
			v.SpeedHistory = v.SpeedHistory[len(v.SpeedHistory)-speedHistorySize:]
		}
	}

	point := geometry.Point{Lat: v.Lat, Lon: v.Lon}
	proximity := ComputeProximity(r.bridges, point)
	if proximity.HasNearest {
		v.CurrentBridge = proximity.Nearest.BridgeID
		v.DistanceToCurrent = proximity.Nearest.Distance
	}

	if accept && hadPosition {
		r.detectPassages(v, prevPoint, point, fix.Timestamp)
	}

	r.recomputeTarget(v, proximity)

	if !existed {
		events = append(events, Event{Kind: VesselEntered, MMSI: v.MMSI, View: v.snapshot()})
	}
	events = append(events, Event{Kind: VesselUpdated, MMSI: v.MMSI, View: v.snapshot()})

	out := v.snapshot()
	r.mu.Unlock()

	for _, ev := range events {
		r.publish(ev)
	}
	return out, events
}

// detectPassages checks the vessel's current nearest bridge and its target
// bridge for a passage (any of the detection methods in geometry) and
// anchors it if found. Must be called with r.mu held.
func (r *Registry) detectPassages(v *Vessel, prev, cur geometry.Point, when time.Time) {
	candidates := map[string]struct{}{}
	if v.CurrentBridge != "" {
		candidates[v.CurrentBridge] = struct{}{}
	}
	if v.TargetBridge != "" {
		candidates[v.TargetBridge] = struct{}{}
	}
	for id := range candidates {
		b, ok := r.bridges.ByID(id)
		if !ok {
			continue
		}
		ctx := geometry.PassageContext{
			PrevCOG:      v.COG,
			CurCOG:       v.COG,
			HasPrevCOG:   v.HasCOG,
			HasCOG:       v.HasCOG,
			SOG:          v.SOG,
			IsStallbacka: id == bridges.IDStallbackabron,
		}
		res := geometry.DetectPassage(prev, cur, b.Point, ctx)
		if res.Detected {
			r.anchorPassage(v, id, when)
		}
	}
}

// anchorPassage records a bridge crossing, guarded against re-triggering on
// GPS noise right at the line. Must be called with r.mu held.
func (r *Registry) anchorPassage(v *Vessel, bridgeID string, when time.Time) bool {
	if prior, ok := v.PassedAt[bridgeID]; ok && when.Sub(prior) < passageRecrossGuard {
		return false
	}
	v.PassedAt[bridgeID] = when
	v.LastPassedBridge = bridgeID
	v.LastPassedBridgeTime = when
	if bridgeID == v.TargetBridge {
		v.TargetBridge = ""
	}
	return true
}

// recomputeTarget applies spec §4.5's authoritative ordering: prefer
// stickiness over reassignment, fall back to direction-implied order, and
// only ever swap targets once the vessel has demonstrably moved toward the
// candidate. Must be called with r.mu held.
func (r *Registry) recomputeTarget(v *Vessel, proximity ProximityResult) {
	targets := r.bridges.Targets()
	if len(targets) == 0 {
		return
	}
	point := geometry.Point{Lat: v.Lat, Lon: v.Lon}
	dir := DirectionFromCOG(v.COG, v.HasCOG)

	// 1. Sticky: keep the current target if it hasn't been passed and the
	// vessel is still within its protection/approach envelope.
	if v.TargetBridge != "" {
		if _, passed := v.PassedAt[v.TargetBridge]; !passed {
			if d, ok := r.distanceTo(v.TargetBridge, point); ok && d <= DistApproachingClear {
				return
			}
		}
	}

	// 2. Build the ordered candidate list per direction of travel.
	ordered := make([]bridges.Bridge, len(targets))
	copy(ordered, targets)
	if dir == DirectionSouth {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	// 3. First not-yet-passed target in travel order; if direction is
	// unknown, fall back to nearest not-yet-passed target.
	var candidate *bridges.Bridge
	if dir != DirectionUnknown {
		for i := range ordered {
			if _, passed := v.PassedAt[ordered[i].ID]; !passed {
				candidate = &ordered[i]
				break
			}
		}
	}
	if candidate == nil {
		bestDist := -1.0
		for i := range ordered {
			if _, passed := v.PassedAt[ordered[i].ID]; passed {
				continue
			}
			d, ok := r.distanceTo(ordered[i].ID, point)
			if !ok {
				continue
			}
			if bestDist < 0 || d < bestDist {
				bestDist, candidate = d, &ordered[i]
			}
		}
	}
	if candidate == nil {
		return
	}

	// 3b. SOG acquisition gates per spec §4.5 rule 2: a slow-moving vessel
	// far from the candidate is more likely drifting or anchored than
	// actually heading for it, so acquisition needs progressively more SOG
	// the farther out it is. No gate inside 300m — a vessel can legitimately
	// be nearly stationary right before it ties up.
	if v.TargetBridge != candidate.ID {
		if d, ok := r.distanceTo(candidate.ID, point); ok {
			switch {
			case d > 500 && v.SOG <= 0.7:
				return
			case d > 300 && v.SOG <= 0.1:
				return
			}
		}
	}

	// 4. Two-reading validation: don't thrash onto a new candidate unless
	// the vessel has actually moved toward it since the last acquisition.
	if v.TargetBridge != "" && v.TargetBridge != candidate.ID && v.HasLastAcquirePoint {
		prevDist := geometry.Distance(v.LastAcquirePoint, candidate.Point)
		curDist := geometry.Distance(point, candidate.Point)
		if prevDist >= 0 && curDist >= 0 && prevDist-curDist < targetReacquireMinMove {
			return
		}
	}

	if v.TargetBridge != candidate.ID {
		v.LastTargetBridgeForHysteresis = v.TargetBridge
		v.TargetBridge = candidate.ID
		v.LastAcquirePoint = point
		v.HasLastAcquirePoint = true
	}
}

func (r *Registry) distanceTo(bridgeID string, p geometry.Point) (float64, bool) {
	b, ok := r.bridges.ByID(bridgeID)
	if !ok {
		return 0, false
	}
	d := geometry.Distance(p, b.Point)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// ForceAcceptPosition installs p as mmsi's accepted position, bypassing the
// normal jump-plausibility check. It is the only path by which a
// GPSJumpGateService confirmation (a held candidate that recurred long
// enough, per spec §4.9) actually takes effect: without it, a confirmed
// candidate position is nothing more than bookkeeping.
func (r *Registry) ForceAcceptPosition(mmsi string, p geometry.Point, now time.Time) (View, bool) {
	r.mu.Lock()
	v, ok := r.vessels[mmsi]
	if !ok {
		r.mu.Unlock()
		return View{}, false
	}

	prevPoint, hadPosition := geometry.Point{Lat: v.Lat, Lon: v.Lon}, !v.LastPositionUpdate.IsZero()

	if v.Lat != p.Lat || v.Lon != p.Lon {
		v.LastPositionChange = now
	}
	v.Lat, v.Lon = p.Lat, p.Lon
	v.LastPositionUpdate = now
	v.LastMessage = now
	v.CoordinationUntil = time.Time{}
	v.PositionUncertainUntil = time.Time{}
	v.LastJumpDistance = 0

	point := geometry.Point{Lat: v.Lat, Lon: v.Lon}
	proximity := ComputeProximity(r.bridges, point)
	if proximity.HasNearest {
		v.CurrentBridge = proximity.Nearest.BridgeID
		v.DistanceToCurrent = proximity.Nearest.Distance
	}

	// The position jump this confirms may itself have been the crossing held
	// up by the jump gate, so check for one against the frozen pre-hold point
	// exactly as Upsert would have, rather than losing it silently.
	if hadPosition {
		r.detectPassages(v, prevPoint, point, now)
	}

	r.recomputeTarget(v, proximity)

	out := v.snapshot()
	r.mu.Unlock()

	r.publish(Event{Kind: VesselUpdated, MMSI: mmsi, View: out, Reason: "gps-jump-gate confirmed"})
	return out, true
}

// ApplyStatus writes back a status decision computed by a sibling service.
// Registry remains the only writer; status.Compute only ever returns values.
func (r *Registry) ApplyStatus(mmsi string, newStatus Status, latched bool, waitingConfirmations int) (View, bool) {
	r.mu.Lock()
	v, ok := r.vessels[mmsi]
	if !ok {
		r.mu.Unlock()
		return View{}, false
	}
	changed := v.Status != newStatus
	v.Status = newStatus
	v.UnderBridgeLatched = latched
	v.WaitingConfirmations = waitingConfirmations
	out := v.snapshot()
	r.mu.Unlock()

	if changed {
		r.publish(Event{Kind: VesselStatusChanged, MMSI: mmsi, View: out})
	}
	return out, true
}

// ApplyETA writes back an ETA decision computed by the eta package.
func (r *Registry) ApplyETA(mmsi string, minutes float64, has bool) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vessels[mmsi]
	if !ok {
		return View{}, false
	}
	v.ETAMinutes, v.HasETA = minutes, has
	return v.snapshot(), true
}

// Remove deletes a vessel immediately, e.g. on an explicit deregistration
// signal rather than the eviction loop's timeout. Idempotent.
func (r *Registry) Remove(mmsi, reason string) {
	r.mu.Lock()
	v, ok := r.vessels[mmsi]
	if !ok {
		r.mu.Unlock()
		return
	}
	view := v.snapshot()
	delete(r.vessels, mmsi)
	r.mu.Unlock()

	r.publish(Event{Kind: VesselRemoved, MMSI: mmsi, View: view, Reason: reason})
}

// protectionZoneTimeout is the base stale timeout for a vessel inside a
// bridge's protection zone: it's expected to sit there waiting, possibly for
// a long time, so going quiet isn't itself suspicious.
const protectionZoneTimeout = 20 * time.Minute

// staleStationaryTimeout/staleMovingAwayTimeout bound the leash outside the
// protection zone: a vessel that has stopped reporting while stationary is
// most likely a dropped receiver nearby, while one that was last seen moving
// away is more likely to have simply left coverage.
const (
	staleStationaryTimeout = 2 * time.Minute
	staleMovingAwayTimeout = 15 * time.Minute
)

// justPassedExtensionMargin and justPassedExtensionMin extend the stale
// timeout for a vessel still inside
// its post-passage display window, so it doesn't get evicted out from under
// the "Passed" status before the display window it's entitled to has run out.
const justPassedExtensionMargin = 5 * time.Second
const justPassedExtensionMin = 60 * time.Second

// staleTimeout picks an eviction timeout based on how engaged the vessel
// currently is with a bridge, per spec §4.5's scheduleCleanup rule.
func staleTimeout(v *Vessel, now time.Time) time.Duration {
	var timeout time.Duration
	switch {
	case v.DistanceToCurrent <= DistProtection:
		timeout = protectionZoneTimeout
	case v.SOG <= maxWaitingSOGForStale:
		timeout = staleStationaryTimeout
	default:
		timeout = staleMovingAwayTimeout
	}

	if v.LastPassedBridge != "" {
		remaining := passageDisplayWindowVessel - now.Sub(v.LastPassedBridgeTime)
		if remaining > 0 {
			extension := remaining + justPassedExtensionMargin
			if extension < justPassedExtensionMin {
				extension = justPassedExtensionMin
			}
			if extension > timeout {
				timeout = extension
			}
		}
	}
	return timeout
}

// maxWaitingSOGForStale mirrors status.maxWaitingSOG without importing the
// status package (which itself depends on vessel), to decide "stationary"
// vs "moving away" for eviction purposes.
const maxWaitingSOGForStale = 2.0

// passageDisplayWindowVessel mirrors status.passageDisplayWindow for the
// same import-direction reason.
const passageDisplayWindowVessel = 60 * time.Second

// absoluteDeadAISTimeout is the hard ceiling regardless of zone: past this,
// the feed is treated as dead for this vessel no matter what it was doing.
const absoluteDeadAISTimeout = 30 * time.Minute

func (r *Registry) evictionLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := r.now()
	var toRemove []string

	r.mu.Lock()
	for mmsi, v := range r.vessels {
		age := now.Sub(v.LastMessage)
		if age >= absoluteDeadAISTimeout || age >= staleTimeout(v, now) {
			toRemove = append(toRemove, mmsi)
		}
	}
	r.mu.Unlock()

	for _, mmsi := range toRemove {
		r.Remove(mmsi, "stale")
	}
}
