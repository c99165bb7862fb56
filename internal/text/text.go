// Package text renders the Swedish-language bridge_text capability from the
// set of vessels currently known to the registry. Apart from the last valid
// text that Service keeps for the GPS-hold fallback, generation depends only
// on the vessels passed in and now.
package text

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// tier is the 8-step phrase-selection priority, highest first. Only the
// highest tier present among a group's vessels is ever rendered; lower
// tiers never leak into the same sentence.
type tier int

const (
	tierJustPassed tier = iota
	tierUnderBridgeTarget
	tierUnderBridgeIntermediate
	tierWaitingTarget
	tierWaitingIntermediate
	tierStallbacka
	tierApproaching
	tierEnRoute
	tierNone
)

// displayWindow is how long after a passage is anchored it still counts as
// "just passed" for text purposes, mirroring window.DisplayWindow without
// importing that package (text has no business depending on the window
// manager just for one constant).
const displayWindow = 60 * time.Second

// DefaultMessage is returned when no vessel is currently relevant to either
// opening bridge — spec's BRIDGE_TEXT_CONSTANTS.DEFAULT_MESSAGE.
const DefaultMessage = "Inga båtar är på väg mot broarna just nu."

// forbiddenSubstrings must never appear in generated text: each is either a
// template leftover or a phrasing that reads as broken Swedish.
var forbiddenSubstrings = []string{
	"<", ">", "{{", "}}", "NaN", "undefined", "null",
	" 0 minuter", // "0 minutes" reads as nonsensical precision, omit instead
}

// Service renders bridge text and remembers the last valid text so a GPS
// hold (position untrustworthy) can fall back to it instead of describing a
// vessel that may not really be where it last reported.
type Service struct {
	lastValid map[string]string
}

// NewService builds an empty text service.
func NewService() *Service {
	return &Service{lastValid: make(map[string]string)}
}

// combinedLaneKey is the lastValid cache key for Render's whole-canal
// sentence, distinct from any real bridge ID.
const combinedLaneKey = "__combined__"

// Render produces the single bridge_text sentence for the whole canal:
// the Klaffbron group and the Stridsbergsbron group, in that fixed order,
// joined by "; ", or DefaultMessage if neither group has a relevant vessel.
// Vessels on GPS hold are left out; when every vessel is on hold, the
// previous text is returned if there is one.
func (s *Service) Render(all []vessel.View, now time.Time, reg *bridges.Registry) string {
	active := all
	if anyOnHold(all, now) {
		active = nil
		for _, v := range all {
			if !v.CoordinationUntil.After(now) {
				active = append(active, v)
			}
		}
		if len(active) == 0 {
			if prev, ok := s.lastValid[combinedLaneKey]; ok {
				return prev
			}
		}
	}

	var parts []string
	for _, targetID := range []string{bridges.IDKlaffbron, bridges.IDStridsbergsbron} {
		b, ok := reg.ByID(targetID)
		if !ok {
			continue
		}
		if part := s.renderGroup(b, active, now, reg); part != "" {
			parts = append(parts, part)
		}
	}

	line := guard(strings.Join(parts, "; "))
	if line == "" {
		line = DefaultMessage
	}
	s.lastValid[combinedLaneKey] = line
	return line
}

// Generate returns the status line for one bridge's group alone, used by the
// debug snapshot to show a per-bridge breakdown. now is used for GPS-hold
// checks and for the just-passed display window.
func (s *Service) Generate(b bridges.Bridge, all []vessel.View, now time.Time) string {
	relevant := groupFor(b.ID, all, now)
	if anyOnHold(relevant, now) {
		if prev, ok := s.lastValid[b.ID]; ok {
			return prev
		}
	}
	line := guard(s.phraseFor(b, relevant, now, nil))
	if line != "" {
		s.lastValid[b.ID] = line
	}
	return line
}

func anyOnHold(vs []vessel.View, now time.Time) bool {
	for _, v := range vs {
		if v.CoordinationUntil.After(now) {
			return true
		}
	}
	return false
}

// isOpeningBridge reports whether id is one of the two bridges that ever
// actually opens, as opposed to an intermediate or the special bridge.
func isOpeningBridge(id string) bool {
	return id == bridges.IDKlaffbron || id == bridges.IDStridsbergsbron
}

// groupKeyFor returns the single bridge ID a vessel's text belongs under:
// the bridge it just passed (within the display window, only when that
// bridge actually opens) takes priority over its current target; a vessel
// with neither is excluded from every group.
func groupKeyFor(v vessel.View, now time.Time) (string, bool) {
	if v.LastPassedBridge != "" && isOpeningBridge(v.LastPassedBridge) && now.Sub(v.LastPassedBridgeTime) < displayWindow {
		return v.LastPassedBridge, true
	}
	if v.TargetBridge != "" {
		return v.TargetBridge, true
	}
	return "", false
}

func groupFor(bridgeID string, all []vessel.View, now time.Time) []vessel.View {
	var out []vessel.View
	for _, v := range all {
		if key, ok := groupKeyFor(v, now); ok && key == bridgeID {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) renderGroup(b bridges.Bridge, all []vessel.View, now time.Time, reg *bridges.Registry) string {
	group := groupFor(b.ID, all, now)
	return s.phraseFor(b, group, now, reg)
}

// tierOf classifies v relative to anchor, the bridge its group is keyed on.
func tierOf(anchorID string, v vessel.View, now time.Time) tier {
	if v.LastPassedBridge == anchorID && isOpeningBridge(anchorID) && now.Sub(v.LastPassedBridgeTime) < displayWindow {
		return tierJustPassed
	}
	if v.TargetBridge != anchorID {
		return tierNone
	}
	switch v.Status {
	case vessel.StatusUnderBridge:
		switch {
		case v.CurrentBridge == bridges.IDStallbackabron:
			return tierStallbacka
		case v.CurrentBridge == anchorID:
			return tierUnderBridgeTarget
		default:
			return tierUnderBridgeIntermediate
		}
	case vessel.StatusStallbackaWaiting:
		return tierStallbacka
	case vessel.StatusWaiting:
		if v.CurrentBridge == anchorID {
			return tierWaitingTarget
		}
		return tierWaitingIntermediate
	case vessel.StatusApproaching:
		return tierApproaching
	default:
		return tierEnRoute
	}
}

// phraseFor picks the winning tier among group's vessels (relative to b) and
// renders its phrase. reg is used to look up bridge names besides b itself;
// it may be nil (Generate passes nil), in which case other bridges are
// rendered by their ID and the just-passed phrase omits its next target.
func (s *Service) phraseFor(b bridges.Bridge, group []vessel.View, now time.Time, reg *bridges.Registry) string {
	best := tierNone
	var winners []vessel.View
	for _, v := range group {
		t := tierOf(b.ID, v, now)
		if t == tierNone {
			continue
		}
		if t < best {
			best, winners = t, []vessel.View{v}
		} else if t == best {
			winners = append(winners, v)
		}
	}
	if best == tierNone || len(winners) == 0 {
		return ""
	}

	lead := winners[0]
	n := len(winners)

	switch best {
	case tierJustPassed:
		next := ""
		if reg != nil && lead.TargetBridge != "" {
			if nb, ok := reg.ByID(lead.TargetBridge); ok {
				next = nb.Name
			}
		}
		var base string
		if next != "" {
			base = fmt.Sprintf("En båt har precis passerat %s på väg mot %s", b.Name, next)
		} else {
			base = fmt.Sprintf("En båt har precis passerat %s", b.Name)
		}
		return withExtra(withETA(lead, base), n)

	case tierUnderBridgeTarget:
		return withExtra(fmt.Sprintf("Broöppning pågår vid %s", b.Name), n)

	case tierUnderBridgeIntermediate:
		intermediate := bridgeName(reg, lead.CurrentBridge)
		base := fmt.Sprintf("Broöppning pågår vid %s", intermediate)
		if eta, ok := etaMinutes(lead); ok {
			base = fmt.Sprintf("%s, beräknad broöppning av %s om %d minuter", base, b.Name, eta)
		}
		return withExtra(base, n)

	case tierWaitingTarget:
		return fmt.Sprintf("%s %s inväntar broöppning vid %s", countWord(n), boatWord(n), b.Name)

	case tierWaitingIntermediate:
		intermediate := bridgeName(reg, lead.CurrentBridge)
		base := fmt.Sprintf("%s %s inväntar broöppning av %s på väg mot %s", countWord(n), boatWord(n), intermediate, b.Name)
		return withETA(lead, base)

	case tierStallbacka:
		if lead.Status == vessel.StatusUnderBridge {
			base := fmt.Sprintf("En båt passerar Stallbackabron på väg mot %s", b.Name)
			return withExtra(withETA(lead, base), n)
		}
		base := fmt.Sprintf("%s %s åker strax under Stallbackabron på väg mot %s", countWord(n), boatWord(n), b.Name)
		return withETA(lead, base)

	case tierApproaching:
		base := fmt.Sprintf("En båt närmar sig %s", b.Name)
		if lead.CurrentBridge != "" && lead.CurrentBridge != b.ID && !isOpeningBridge(lead.CurrentBridge) && lead.CurrentBridge != bridges.IDStallbackabron {
			base = fmt.Sprintf("%s vid %s", base, bridgeName(reg, lead.CurrentBridge))
		}
		return withExtra(withETA(lead, base), n)

	default: // tierEnRoute
		base := fmt.Sprintf("En båt på väg mot %s", b.Name)
		return withExtra(withETA(lead, base), n)
	}
}

func bridgeName(reg *bridges.Registry, id string) string {
	if reg == nil || id == "" {
		return id
	}
	if b, ok := reg.ByID(id); ok {
		return b.Name
	}
	return id
}

// countWord renders spec's counting text: 1→"En", 2→"Två", 3→"Tre", ≥4 digits.
func countWord(n int) string {
	switch n {
	case 1:
		return "En"
	case 2:
		return "Två"
	case 3:
		return "Tre"
	default:
		return strconv.Itoa(n)
	}
}

func boatWord(n int) string {
	if n == 1 {
		return "båt"
	}
	return "båtar"
}

// withExtra appends the ", ytterligare <N> båtar på väg" tail for tiers
// whose base phrase always describes a single lead vessel.
func withExtra(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s, ytterligare %d båtar på väg", base, n-1)
}

// etaMinutes returns v's ETA rounded to whole minutes, or ok=false if it's
// absent, invalid, or would round to zero.
func etaMinutes(v vessel.View) (int, bool) {
	if !v.HasETA || v.ETAMinutes < 0 {
		return 0, false
	}
	minutes := int(v.ETAMinutes + 0.5)
	if minutes <= 0 {
		return 0, false
	}
	return minutes, true
}

// withETA appends the minute estimate unless it's invalid, in which case the
// sentence is used as-is rather than printing a broken number.
func withETA(v vessel.View, base string) string {
	minutes, ok := etaMinutes(v)
	if !ok {
		return base
	}
	return fmt.Sprintf("%s, beräknad broöppning om %d minuter", base, minutes)
}

// guard rejects any text that slipped through with a forbidden substring,
// returning "" rather than ever surfacing broken output.
func guard(line string) string {
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(line, bad) {
			return ""
		}
	}
	return line
}
