// Package events turns raw proximity readings into debounced "a boat is
// near this bridge" triggers suitable for firing at a home-automation
// bridge, deduplicated so the same vessel can't retrigger the same bridge
// every few seconds while it sits in range.
package events

import (
	"sync"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// Tokens is the set of substitution values a bridge-text template or
// automation rule is allowed to reference. Fields are validated before use
// so nothing from an AIS feed (ship names are free text) makes it through
// unescaped. Matches the flow trigger contract in spec.md §6: every
// declared token is always present and of its declared type — in
// particular ETAMinutes is -1 (never omitted) when no estimate exists.
type Tokens struct {
	ShipName   string
	BridgeName string
	Direction  string
	ETAMinutes int
}

// dedupWindow bounds how often the same vessel can retrigger the same
// bridge: long enough that a vessel sitting in the protection zone for ten
// minutes doesn't spam the automation, short enough that a second distinct
// approach later in the day still fires.
const dedupWindow = 10 * time.Minute

type key struct {
	mmsi   string
	bridge string
}

// Service tracks recent boat-near triggers per (mmsi, bridge) and answers
// "is any boat currently near bridge X".
type Service struct {
	mu       sync.Mutex
	lastFire map[key]time.Time
	near     map[string]map[string]time.Time // bridge -> mmsi -> last seen near
}

// NewService builds an empty proximity-events service.
func NewService() *Service {
	return &Service{
		lastFire: make(map[key]time.Time),
		near:     make(map[string]map[string]time.Time),
	}
}

// Evaluate checks whether v is within protection range of b and, if so,
// whether it's time to fire a new boat-near trigger for it. It always
// updates the "currently near" bookkeeping regardless of whether a trigger
// fires, so AnyNear stays accurate even between dedup windows.
func (s *Service) Evaluate(b bridges.Bridge, v vessel.View, distance float64, now time.Time) (Tokens, bool) {
	if distance > vessel.DistProtectionClear {
		s.clearNear(b.ID, v.MMSI)
		return Tokens{}, false
	}
	s.markNear(b.ID, v.MMSI, now)

	k := key{mmsi: v.MMSI, bridge: b.ID}
	s.mu.Lock()
	last, fired := s.lastFire[k]
	shouldFire := !fired || now.Sub(last) >= dedupWindow
	if shouldFire {
		s.lastFire[k] = now
	}
	s.mu.Unlock()

	if !shouldFire {
		return Tokens{}, false
	}
	return tokensFor(v, b), true
}

func (s *Service) markNear(bridgeID, mmsi string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lane, ok := s.near[bridgeID]
	if !ok {
		lane = make(map[string]time.Time)
		s.near[bridgeID] = lane
	}
	lane[mmsi] = now
}

func (s *Service) clearNear(bridgeID, mmsi string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lane, ok := s.near[bridgeID]; ok {
		delete(lane, mmsi)
	}
}

// nearStaleAfter is how long a "near" mark survives without a fresh
// Evaluate call before AnyNear stops counting it — guards against a vessel
// that went silent without ever reporting it moved out of range.
const nearStaleAfter = 2 * time.Minute

// AnyNear reports whether any vessel is currently considered near bridgeID.
func (s *Service) AnyNear(bridgeID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range s.near[bridgeID] {
		if now.Sub(seen) < nearStaleAfter {
			return true
		}
	}
	return false
}

// etaUnknownSentinel is what spec.md §6 requires in place of omitting
// eta_minutes entirely: "-1 means unknown".
const etaUnknownSentinel = -1

func tokensFor(v vessel.View, b bridges.Bridge) Tokens {
	eta := etaUnknownSentinel
	if v.HasETA && v.ETAMinutes >= 0 {
		eta = int(v.ETAMinutes + 0.5)
	}
	name := v.ShipName
	if name == "" {
		name = "Okänt fartyg"
	}
	return Tokens{
		ShipName:   sanitize(name),
		BridgeName: b.Name,
		Direction:  v.Direction().String(),
		ETAMinutes: eta,
	}
}

// sanitize strips characters that have no business in a ship name token
// going into an automation template: AIS text fields are free-form and
// occasionally corrupted.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == '<' || r == '>' || r == '{' || r == '}' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
