package events

import (
	"testing"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

func TestEvaluateFiresOnceThenDedups(t *testing.T) {
	s := NewService()
	b, _ := bridges.New().ByID(bridges.IDKlaffbron)
	v := vessel.View{MMSI: "265001", ShipName: "M/S Alfa", COG: 10, HasCOG: true}
	now := time.Now()

	_, fired := s.Evaluate(b, v, 100, now)
	if !fired {
		t.Fatal("expected first approach to fire")
	}
	_, firedAgain := s.Evaluate(b, v, 100, now.Add(time.Minute))
	if firedAgain {
		t.Error("expected dedup to suppress a retrigger within the window")
	}
	_, firedLater := s.Evaluate(b, v, 100, now.Add(11*time.Minute))
	if !firedLater {
		t.Error("expected retrigger after dedup window elapses")
	}
}

func TestEvaluateOutOfRangeNeverFires(t *testing.T) {
	s := NewService()
	b, _ := bridges.New().ByID(bridges.IDKlaffbron)
	v := vessel.View{MMSI: "265002"}
	_, fired := s.Evaluate(b, v, 5000, time.Now())
	if fired {
		t.Error("expected out-of-range vessel not to fire")
	}
}

func TestAnyNearReflectsRecentEvaluate(t *testing.T) {
	s := NewService()
	b, _ := bridges.New().ByID(bridges.IDKlaffbron)
	v := vessel.View{MMSI: "265003"}
	now := time.Now()

	if s.AnyNear(b.ID, now) {
		t.Fatal("expected no vessels near before any Evaluate call")
	}
	s.Evaluate(b, v, 100, now)
	if !s.AnyNear(b.ID, now) {
		t.Error("expected AnyNear true right after Evaluate within range")
	}
}

func TestEvaluateSendsETASentinelWhenUnknown(t *testing.T) {
	s := NewService()
	b, _ := bridges.New().ByID(bridges.IDKlaffbron)
	v := vessel.View{MMSI: "265004", ShipName: "M/S Beta"}
	tokens, fired := s.Evaluate(b, v, 100, time.Now())
	if !fired {
		t.Fatal("expected trigger to fire")
	}
	if tokens.ETAMinutes != -1 {
		t.Errorf("expected -1 ETA sentinel when no estimate exists, got %d", tokens.ETAMinutes)
	}
	if tokens.BridgeName != b.Name {
		t.Errorf("expected bridge name %q, got %q", b.Name, tokens.BridgeName)
	}
}

func TestSanitizeStripsTemplateCharacters(t *testing.T) {
	got := sanitize("M/S <Alfa>{{x}}")
	if got != "M/S Alfax" {
		t.Errorf("unexpected sanitize result: %q", got)
	}
}
