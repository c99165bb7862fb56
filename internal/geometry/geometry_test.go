package geometry

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{58.275, 12.285, true},
		{0, 0, false},
		{91, 0, false},
		{0, 181, false},
		{-90, -180, true},
	}
	for _, c := range cases {
		if got := Valid(c.lat, c.lon); got != c.want {
			t.Errorf("Valid(%v,%v) = %v, want %v", c.lat, c.lon, got, c.want)
		}
	}
}

func TestDistanceKnownPoints(t *testing.T) {
	// Klaffbron and Stridsbergsbron are roughly 1.5km apart in Trollhättan.
	klaffbron := Point{Lat: 58.2755, Lon: 12.2858}
	stridsbergsbron := Point{Lat: 58.2873, Lon: 12.2979}
	d := Distance(klaffbron, stridsbergsbron)
	if d <= 0 || d > 5000 {
		t.Errorf("unexpected distance %v", d)
	}
}

func TestDistanceInvalid(t *testing.T) {
	if d := Distance(Point{0, 0}, Point{1, 1}); d != -1 {
		t.Errorf("expected -1 for invalid point, got %v", d)
	}
}

func TestNormalizeCourse(t *testing.T) {
	if NormalizeCourse(360) != 0 {
		t.Error("360 should normalize to 0")
	}
	if NormalizeCourse(45) != 45 {
		t.Error("45 should be unchanged")
	}
}

func TestAngleDiff(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{10, 350, 20},
		{0, 180, 180},
		{90, 90, 0},
	}
	for _, c := range cases {
		if got := AngleDiff(c.a, c.b); got != c.want {
			t.Errorf("AngleDiff(%v,%v)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestDetectPassageRadiusCross(t *testing.T) {
	bridge := Point{Lat: 58.2755, Lon: 12.2858}
	prev := Point{Lat: 58.2755, Lon: 12.28575}
	cur := Point{Lat: 58.2755, Lon: 12.28585}
	r := DetectPassage(prev, cur, bridge, PassageContext{})
	if !r.Detected {
		t.Fatal("expected passage detected")
	}
	if r.Confidence < 0.7 || r.Confidence > 0.95 {
		t.Errorf("confidence out of range: %v", r.Confidence)
	}
}

func TestDetectPassageInvalidInput(t *testing.T) {
	r := DetectPassage(Point{0, 0}, Point{1, 1}, Point{2, 2}, PassageContext{})
	if r.Detected {
		t.Fatal("invalid input must never detect a passage")
	}
}
