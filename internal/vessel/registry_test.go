package vessel

import (
	"testing"
	"time"

	"github.com/trollbridge/bridgewatch/internal/bridges"
)

func TestUpsertCreatesVesselAndEmitsEntered(t *testing.T) {
	reg := NewRegistry(bridges.New())
	defer reg.Close()

	events, cancel := reg.Subscribe()
	defer cancel()

	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	view, _ := reg.Upsert(Fix{
		MMSI: "265001", ShipName: "TESTA",
		Lat: 58.2700, Lon: 12.2860, SOG: 5, COG: 10, HasCOG: true,
		Timestamp: base,
	})
	if view.MMSI != "265001" {
		t.Fatalf("unexpected view: %+v", view)
	}

	select {
	case ev := <-events:
		if ev.Kind != VesselEntered {
			t.Errorf("expected VesselEntered first, got %v", ev.Kind)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestUpsertRejectsImplausibleJump(t *testing.T) {
	reg := NewRegistry(bridges.New())
	defer reg.Close()

	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	reg.Upsert(Fix{MMSI: "265002", Lat: 58.2700, Lon: 12.2860, SOG: 5, COG: 10, HasCOG: true, Timestamp: base})

	// 2km in 5s at 5 knots is not plausible.
	view, events := reg.Upsert(Fix{MMSI: "265002", Lat: 58.2900, Lon: 12.3100, SOG: 5, COG: 10, HasCOG: true, Timestamp: base.Add(5 * time.Second)})

	if view.Lat != 58.2700 {
		t.Errorf("expected position held at prior fix, got %v", view.Lat)
	}
	foundJump := false
	for _, ev := range events {
		if ev.Kind == GpsJumpDetected {
			foundJump = true
		}
	}
	if !foundJump {
		t.Error("expected a GpsJumpDetected event")
	}
}

func TestUpsertAcceptsPlausibleMovement(t *testing.T) {
	reg := NewRegistry(bridges.New())
	defer reg.Close()

	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	reg.Upsert(Fix{MMSI: "265003", Lat: 58.2700, Lon: 12.2860, SOG: 8, COG: 10, HasCOG: true, Timestamp: base})
	view, _ := reg.Upsert(Fix{MMSI: "265003", Lat: 58.27015, Lon: 12.28605, SOG: 8, COG: 10, HasCOG: true, Timestamp: base.Add(10 * time.Second)})

	if view.Lat != 58.27015 {
		t.Errorf("expected position to update, got %v", view.Lat)
	}
}

func TestRecomputeTargetPicksNearestUnpassedTarget(t *testing.T) {
	reg := NewRegistry(bridges.New())
	defer reg.Close()

	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	// Near Klaffbron, heading north.
	view, _ := reg.Upsert(Fix{MMSI: "265004", Lat: 58.2740, Lon: 12.2858, SOG: 5, COG: 10, HasCOG: true, Timestamp: base})
	if view.TargetBridge != bridges.IDKlaffbron {
		t.Errorf("expected Klaffbron as target, got %q", view.TargetBridge)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry(bridges.New())
	defer reg.Close()

	reg.Upsert(Fix{MMSI: "265005", Lat: 58.27, Lon: 12.286, Timestamp: time.Now()})
	reg.Remove("265005", "test")
	reg.Remove("265005", "test") // must not panic

	if _, ok := reg.Snapshot("265005"); ok {
		t.Error("expected vessel to be gone")
	}
}
