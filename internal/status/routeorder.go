package status

import (
	"sync"

	"github.com/trollbridge/bridgewatch/internal/bridges"
)

// routeHistorySize bounds how many passages a vessel's order history keeps;
// only recent sequence matters for detecting an out-of-order crossing.
const routeHistorySize = 10

// RouteOrderValidator flags a passage whose bridge order doesn't follow the
// vessel's established direction of travel — e.g. a crossing at Olidebron
// right after one at Stridsbergsbron, which is either a reversed vessel
// (legitimate) or a misattributed fix (not).
type RouteOrderValidator struct {
	mu      sync.Mutex
	history map[string][]int // mmsi -> recent bridge Order values, oldest first
}

// NewRouteOrderValidator builds an empty validator.
func NewRouteOrderValidator() *RouteOrderValidator {
	return &RouteOrderValidator{history: make(map[string][]int)}
}

// Validate records a passage at the given bridge and reports whether it's
// consistent with the vessel's established direction. The first two
// passages for a vessel are always accepted since there's no established
// direction yet.
func (r *RouteOrderValidator) Validate(mmsi string, b bridges.Bridge) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.history[mmsi]
	ok := true
	if len(h) >= 2 {
		establishedNorth := h[len(h)-1] > h[len(h)-2]
		movingNorth := b.Order > h[len(h)-1]
		movingSouth := b.Order < h[len(h)-1]
		if establishedNorth && movingSouth {
			ok = false
		} else if !establishedNorth && movingNorth {
			ok = false
		}
	}

	h = append(h, b.Order)
	if len(h) > routeHistorySize {
		h = h[len(h)-routeHistorySize:]
	}
	r.history[mmsi] = h
	return ok
}

// Forget drops a vessel's history, e.g. once it's been evicted from the
// registry.
func (r *RouteOrderValidator) Forget(mmsi string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, mmsi)
}
