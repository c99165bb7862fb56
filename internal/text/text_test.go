package text

import (
	"strings"
	"testing"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

func klaff(t *testing.T) bridges.Bridge {
	b, ok := bridges.New().ByID(bridges.IDKlaffbron)
	if !ok {
		t.Fatal("missing klaffbron fixture")
	}
	return b
}

func TestRenderApproachingKlaffbron(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, Status: vessel.StatusApproaching, HasETA: true, ETAMinutes: 6},
	}
	line := s.Render(vs, now, reg)
	want := "En båt närmar sig Klaffbron, beräknad broöppning om 6 minuter"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
}

func TestRenderUnderBridgeTarget(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, Status: vessel.StatusUnderBridge},
	}
	line := s.Render(vs, now, reg)
	want := "Broöppning pågår vid Klaffbron"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
}

func TestRenderJustPassed(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{
			ShipName:             "M/S Alfa",
			TargetBridge:         bridges.IDStridsbergsbron,
			LastPassedBridge:     bridges.IDKlaffbron,
			LastPassedBridgeTime: now.Add(-5 * time.Second),
			HasETA:               true,
			ETAMinutes:           5,
		},
	}
	line := s.Render(vs, now, reg)
	want := "En båt har precis passerat Klaffbron på väg mot Stridsbergsbron, beräknad broöppning om 5 minuter"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
}

func TestRenderCountsMultipleWaiting(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, Status: vessel.StatusWaiting, SOG: 0.2},
		{ShipName: "M/S Beta", TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, Status: vessel.StatusWaiting, SOG: 0.3},
	}
	line := s.Render(vs, now, reg)
	want := "Två båtar inväntar broöppning vid Klaffbron"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
}

func TestRenderJoinsBothTargetGroups(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, Status: vessel.StatusWaiting, SOG: 0.1},
		{ShipName: "M/S Beta", TargetBridge: bridges.IDStridsbergsbron, Status: vessel.StatusApproaching, HasETA: true, ETAMinutes: 4},
	}
	line := s.Render(vs, now, reg)
	want := "En båt inväntar broöppning vid Klaffbron; En båt närmar sig Stridsbergsbron, beräknad broöppning om 4 minuter"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
}

func TestRenderStallbackaWaitingNeverSaysInvantar(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDStridsbergsbron, CurrentBridge: bridges.IDStallbackabron, Status: vessel.StatusUnderBridge, HasETA: true, ETAMinutes: 8},
	}
	line := s.Render(vs, now, reg)
	want := "En båt passerar Stallbackabron på väg mot Stridsbergsbron, beräknad broöppning om 8 minuter"
	if line != want {
		t.Errorf("got %q want %q", line, want)
	}
	if strings.Contains(line, "inväntar broöppning") {
		t.Errorf("stallbacka bridge must never render 'inväntar broöppning': %q", line)
	}
}

func TestRenderDefaultMessageWhenNoRelevantVessel(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	line := s.Render(nil, time.Now(), reg)
	if line != DefaultMessage {
		t.Errorf("got %q want default message %q", line, DefaultMessage)
	}
	if line == "" {
		t.Error("bridge_text must never be empty")
	}
}

func TestRenderOmitsInvalidETA(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()
	vs := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, Status: vessel.StatusApproaching, HasETA: true, ETAMinutes: -1},
	}
	line := s.Render(vs, now, reg)
	if strings.Contains(line, "minuter") {
		t.Errorf("expected no ETA phrase for invalid estimate, got %q", line)
	}
}

func TestRenderGPSHoldFallsBackToPrevious(t *testing.T) {
	reg := bridges.New()
	s := NewService()
	now := time.Now()

	first := s.Render([]vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, Status: vessel.StatusUnderBridge},
	}, now, reg)
	if first == "" || first == DefaultMessage {
		t.Fatal("expected initial text")
	}

	onHold := []vessel.View{
		{ShipName: "M/S Alfa", TargetBridge: bridges.IDKlaffbron, Status: vessel.StatusEnRoute, CoordinationUntil: now.Add(10 * time.Second)},
	}
	held := s.Render(onHold, now, reg)
	if held != first {
		t.Errorf("expected fallback to previous text during GPS hold, got %q want %q", held, first)
	}
}

func TestGenerateUnderBridge(t *testing.T) {
	b := klaff(t)
	s := NewService()
	vs := []vessel.View{{ShipName: "M/S Alfa", CurrentBridge: b.ID, TargetBridge: b.ID, Status: vessel.StatusUnderBridge}}
	line := s.Generate(b, vs, time.Now())
	if !strings.Contains(line, "Broöppning pågår") {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestGenerateNoVesselsIsEmpty(t *testing.T) {
	b := klaff(t)
	s := NewService()
	line := s.Generate(b, nil, time.Now())
	if line != "" {
		t.Errorf("expected empty text with no vessels, got %q", line)
	}
}
