package window

import (
	"testing"
	"time"
)

func TestGraceForScalesWithSpeed(t *testing.T) {
	fast := GraceFor(16)
	slow := GraceFor(2)
	if fast <= slow {
		t.Errorf("expected faster vessel to get longer grace: fast=%v slow=%v", fast, slow)
	}
	if fast < minGrace || slow > maxGrace || fast > maxGrace || slow < minGrace {
		t.Errorf("grace out of bounds: fast=%v slow=%v", fast, slow)
	}
}

func TestObserveAnchorsAfterGrace(t *testing.T) {
	m := NewManager()
	now := time.Now()
	if m.Observe("m1", "klaffbron", 16, now) {
		t.Fatal("should not anchor on first observation")
	}
	if m.Observe("m1", "klaffbron", 16, now.Add(30*time.Second)) {
		t.Fatal("should not anchor before grace elapses")
	}
	if !m.Observe("m1", "klaffbron", 16, now.Add(2*time.Minute+time.Second)) {
		t.Error("expected anchor once grace period elapsed")
	}
}

func TestResetClearsCandidate(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Observe("m1", "klaffbron", 16, now)
	m.Reset("m1", "klaffbron")
	if m.Observe("m1", "klaffbron", 16, now.Add(2*time.Minute+time.Second)) {
		t.Error("expected reset candidate to require a fresh grace period")
	}
}
