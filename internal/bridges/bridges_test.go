package bridges

import "testing"

func TestRegistryOrderAndTargets(t *testing.T) {
	r := New()
	all := r.All()
	if len(all) != 5 {
		t.Fatalf("expected 5 bridges, got %d", len(all))
	}
	for i, b := range all {
		if b.Order != i {
			t.Errorf("bridge %s has order %d, expected %d", b.ID, b.Order, i)
		}
	}

	targets := r.Targets()
	if len(targets) != 2 {
		t.Fatalf("expected 2 target bridges, got %d", len(targets))
	}
	if targets[0].ID != IDKlaffbron || targets[1].ID != IDStridsbergsbron {
		t.Errorf("unexpected target order: %v, %v", targets[0].ID, targets[1].ID)
	}
}

func TestGapTableSymmetric(t *testing.T) {
	r := New()
	a, ok1 := r.Gap(IDKlaffbron, IDStridsbergsbron)
	b, ok2 := r.Gap(IDStridsbergsbron, IDKlaffbron)
	if !ok1 || !ok2 {
		t.Fatal("expected both directions to resolve")
	}
	if a != b {
		t.Errorf("gap table not symmetric: %v vs %v", a, b)
	}
	if a <= 0 {
		t.Errorf("expected positive gap, got %v", a)
	}
}

func TestGapUnknownID(t *testing.T) {
	r := New()
	if _, ok := r.Gap("nope", IDKlaffbron); ok {
		t.Error("expected unknown ID to fail")
	}
}

func TestBetween(t *testing.T) {
	r := New()
	mid := r.Between(IDOlidebron, IDKlaffbron)
	if len(mid) != 1 || mid[0].ID != IDJarnvagsbron {
		t.Errorf("unexpected Between result: %+v", mid)
	}

	// reversed direction should return the same bridges in reverse order
	midRev := r.Between(IDKlaffbron, IDOlidebron)
	if len(midRev) != 1 || midRev[0].ID != IDJarnvagsbron {
		t.Errorf("unexpected reversed Between result: %+v", midRev)
	}
}
