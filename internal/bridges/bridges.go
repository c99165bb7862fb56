// Package bridges owns the immutable ordered list of the five Trollhätte
// canal bridges: their coordinates, classification, and the inter-bridge
// gap table. This is the single source of truth spec.md §9 calls for —
// no other package may duplicate these numbers.
package bridges

import "github.com/trollbridge/bridgewatch/internal/geometry"

// Classification is a closed set, not a free string.
type Classification int

const (
	Intermediate Classification = iota
	Target
	Special
)

func (c Classification) String() string {
	switch c {
	case Target:
		return "target"
	case Special:
		return "special"
	default:
		return "intermediate"
	}
}

// Bridge is one static entry in the canal's ordered chain.
type Bridge struct {
	ID             string
	Name           string
	Point          geometry.Point
	Classification Classification
	Order          int // 0 = south ... 4 = north
}

// Canonical bridge IDs, south to north.
const (
	IDOlidebron         = "olidebron"
	IDJarnvagsbron      = "jarnvagsbron"
	IDKlaffbron         = "klaffbron"
	IDStridsbergsbron   = "stridsbergsbron"
	IDStallbackabron    = "stallbackabron"
)

// Registry is the immutable, ordered bridge list plus the gap table between
// consecutive bridges. Construct with New; it is safe for concurrent readers
// because nothing in it is ever mutated after construction.
type Registry struct {
	ordered []Bridge
	byID    map[string]Bridge
	gaps    map[[2]string]float64 // ordered pair -> metres
}

// New builds the registry for the Trollhätte canal. Coordinates are
// approximate public positions of the real structures; the gap table is
// derived from those same coordinates so the two never disagree.
func New() *Registry {
	ordered := []Bridge{
		{ID: IDOlidebron, Name: "Olidebron", Point: geometry.Point{Lat: 58.26890, Lon: 12.28715}, Classification: Intermediate, Order: 0},
		{ID: IDJarnvagsbron, Name: "Järnvägsbron", Point: geometry.Point{Lat: 58.27137, Lon: 12.28556}, Classification: Intermediate, Order: 1},
		{ID: IDKlaffbron, Name: "Klaffbron", Point: geometry.Point{Lat: 58.27551, Lon: 12.28581}, Classification: Target, Order: 2},
		{ID: IDStridsbergsbron, Name: "Stridsbergsbron", Point: geometry.Point{Lat: 58.28730, Lon: 12.29793}, Classification: Target, Order: 3},
		{ID: IDStallbackabron, Name: "Stallbackabron", Point: geometry.Point{Lat: 58.30509, Lon: 12.32122}, Classification: Special, Order: 4},
	}

	r := &Registry{
		ordered: ordered,
		byID:    make(map[string]Bridge, len(ordered)),
		gaps:    make(map[[2]string]float64),
	}
	for _, b := range ordered {
		r.byID[b.ID] = b
	}
	for i := 0; i < len(ordered)-1; i++ {
		a, b := ordered[i], ordered[i+1]
		d := geometry.Distance(a.Point, b.Point)
		r.gaps[[2]string{a.ID, b.ID}] = d
		r.gaps[[2]string{b.ID, a.ID}] = d
	}
	return r
}

// All returns the bridges in canal order, south to north.
func (r *Registry) All() []Bridge {
	out := make([]Bridge, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByID looks up a bridge, returning ok=false if unknown.
func (r *Registry) ByID(id string) (Bridge, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// Targets returns the two opening bridges, in canal order.
func (r *Registry) Targets() []Bridge {
	var out []Bridge
	for _, b := range r.ordered {
		if b.Classification == Target {
			out = append(out, b)
		}
	}
	return out
}

// Gap returns the metre distance between two bridges anywhere in the chain,
// computed as the sum of consecutive-pair gaps along the route between them.
// ok is false if either ID is unknown.
func (r *Registry) Gap(fromID, toID string) (float64, bool) {
	from, ok1 := r.byID[fromID]
	to, ok2 := r.byID[toID]
	if !ok1 || !ok2 {
		return 0, false
	}
	lo, hi := from.Order, to.Order
	if lo > hi {
		lo, hi = hi, lo
	}
	total := 0.0
	for i := lo; i < hi; i++ {
		total += r.gaps[[2]string{r.ordered[i].ID, r.ordered[i+1].ID}]
	}
	return total, true
}

// Between returns the bridges strictly between from and to (exclusive),
// in the direction of travel implied by their order.
func (r *Registry) Between(fromID, toID string) []Bridge {
	from, ok1 := r.byID[fromID]
	to, ok2 := r.byID[toID]
	if !ok1 || !ok2 {
		return nil
	}
	lo, hi := from.Order, to.Order
	reverse := lo > hi
	if reverse {
		lo, hi = hi, lo
	}
	var out []Bridge
	for i := lo + 1; i < hi; i++ {
		out = append(out, r.ordered[i])
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Nearest returns the closest bridge to a point and the distance to it in
// metres. ok is false only if the registry has no bridges (never, in
// practice) or the point is invalid.
func (r *Registry) Nearest(p geometry.Point) (Bridge, float64, bool) {
	if !geometry.Valid(p.Lat, p.Lon) || len(r.ordered) == 0 {
		return Bridge{}, 0, false
	}
	best := r.ordered[0]
	bestDist := geometry.Distance(p, best.Point)
	for _, b := range r.ordered[1:] {
		d := geometry.Distance(p, b.Point)
		if d < bestDist {
			bestDist, best = d, b
		}
	}
	return best, bestDist, true
}
