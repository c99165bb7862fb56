package status

import (
	"testing"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/geometry"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

func TestComputeUnderBridge(t *testing.T) {
	reg := bridges.New()
	v := vessel.View{TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, DistanceToCurrent: 30}
	prox := vessel.ProximityResult{Ordered: []vessel.BridgeDistance{{BridgeID: bridges.IDKlaffbron, Distance: 30}}}
	d := Compute(v, prox, reg, time.Now())
	if d.Status != vessel.StatusUnderBridge || !d.UnderBridgeLatched {
		t.Errorf("expected under-bridge, got %+v", d)
	}
}

func TestComputeWaitingRequiresConfirmations(t *testing.T) {
	reg := bridges.New()
	v := vessel.View{TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDKlaffbron, DistanceToCurrent: 200}
	prox := vessel.ProximityResult{Ordered: []vessel.BridgeDistance{{BridgeID: bridges.IDKlaffbron, Distance: 200}}}

	d1 := Compute(v, prox, reg, time.Now())
	if d1.Status == vessel.StatusWaiting {
		t.Fatal("should not latch waiting on first sample")
	}
	v.WaitingConfirmations = d1.WaitingConfirmations
	d2 := Compute(v, prox, reg, time.Now())
	if d2.Status != vessel.StatusWaiting {
		t.Errorf("expected waiting after second confirmation, got %v", d2.Status)
	}
}

func TestComputeEnRouteFarFromTarget(t *testing.T) {
	reg := bridges.New()
	v := vessel.View{TargetBridge: bridges.IDKlaffbron, CurrentBridge: bridges.IDOlidebron, DistanceToCurrent: 900}
	prox := vessel.ProximityResult{Ordered: []vessel.BridgeDistance{
		{BridgeID: bridges.IDOlidebron, Distance: 900},
		{BridgeID: bridges.IDKlaffbron, Distance: 2000},
	}}
	d := Compute(v, prox, reg, time.Now())
	if d.Status != vessel.StatusEnRoute {
		t.Errorf("expected en-route, got %v", d.Status)
	}
}

func TestStabilizerDampensFlicker(t *testing.T) {
	s := NewStabilizer()
	now := time.Now()
	v := vessel.View{Lat: 58.27, Lon: 12.28}

	first := s.Apply("m1", v, Decision{Status: vessel.StatusEnRoute}, now)
	if first.Status != vessel.StatusEnRoute {
		t.Fatalf("expected en-route, got %v", first.Status)
	}
	flicker := s.Apply("m1", v, Decision{Status: vessel.StatusApproaching}, now)
	if flicker.Status != vessel.StatusEnRoute {
		t.Errorf("expected damped en-route, got %v", flicker.Status)
	}
	s.Apply("m1", v, Decision{Status: vessel.StatusApproaching}, now)
	settled := s.Apply("m1", v, Decision{Status: vessel.StatusApproaching}, now)
	if settled.Status != vessel.StatusApproaching {
		t.Errorf("expected approaching to settle after repeats, got %v", settled.Status)
	}
}

func TestStabilizerImmediateForUnderBridge(t *testing.T) {
	s := NewStabilizer()
	now := time.Now()
	v := vessel.View{Lat: 58.27, Lon: 12.28}

	s.Apply("m2", v, Decision{Status: vessel.StatusEnRoute}, now)
	d := s.Apply("m2", v, Decision{Status: vessel.StatusUnderBridge, UnderBridgeLatched: true}, now)
	if d.Status != vessel.StatusUnderBridge {
		t.Errorf("expected immediate under-bridge, got %v", d.Status)
	}
}

func TestStabilizerHoldsPreviousStatusWhileUncertain(t *testing.T) {
	s := NewStabilizer()
	now := time.Now()
	v := vessel.View{Lat: 58.27, Lon: 12.28}

	s.Apply("m3", v, Decision{Status: vessel.StatusEnRoute}, now)

	uncertain := v
	uncertain.PositionUncertainUntil = now.Add(30 * time.Second)
	uncertain.LastJumpDistance = 600
	held := s.Apply("m3", uncertain, Decision{Status: vessel.StatusApproaching}, now)
	if held.Status != vessel.StatusEnRoute {
		t.Errorf("expected previous status held on first uncertain read, got %v", held.Status)
	}
	confirmed := s.Apply("m3", uncertain, Decision{Status: vessel.StatusApproaching}, now)
	if confirmed.Status != vessel.StatusApproaching {
		t.Errorf("expected status to confirm after two agreeing uncertain reads, got %v", confirmed.Status)
	}
}

func TestPassageLatchSuppressesRepeat(t *testing.T) {
	latch := NewPassageLatchService()
	now := time.Now()
	if !latch.TryLatch("m1", bridges.IDKlaffbron, now) {
		t.Fatal("expected first latch to succeed")
	}
	if latch.TryLatch("m1", bridges.IDKlaffbron, now.Add(time.Second)) {
		t.Fatal("expected repeat within window to be suppressed")
	}
	if !latch.TryLatch("m1", bridges.IDKlaffbron, now.Add(2*time.Minute)) {
		t.Fatal("expected latch to reopen after display window")
	}
}

func TestRouteOrderValidatorFlagsReversal(t *testing.T) {
	v := NewRouteOrderValidator()
	reg := bridges.New()
	olide, _ := reg.ByID(bridges.IDOlidebron)
	jarn, _ := reg.ByID(bridges.IDJarnvagsbron)
	klaff, _ := reg.ByID(bridges.IDKlaffbron)

	if ok := v.Validate("m1", olide); !ok {
		t.Fatal("first passage should always validate")
	}
	if ok := v.Validate("m1", jarn); !ok {
		t.Fatal("northbound second passage should validate")
	}
	if ok := v.Validate("m1", olide); ok {
		t.Error("expected a southward jump after northbound history to be flagged")
	}
	_ = klaff
}

func TestGPSJumpGateConfirmsAfterStableWindow(t *testing.T) {
	g := NewGPSJumpGateService()
	p := geometry.Point{Lat: 58.27, Lon: 12.286}
	now := time.Now()

	if g.Offer("m1", p, now) {
		t.Fatal("first offer should not confirm")
	}
	if g.Offer("m1", p, now.Add(2*time.Second)) {
		t.Fatal("should not confirm before window elapses")
	}
	if !g.Offer("m1", p, now.Add(6*time.Second)) {
		t.Error("expected confirmation once stable beyond window")
	}
}
