package eta

import (
	"math"
	"testing"
	"time"

	"github.com/trollbridge/bridgewatch/internal/vessel"
)

func TestComputeBasicEstimate(t *testing.T) {
	c := NewCalculator()
	v := vessel.View{TargetBridge: "klaffbron", Status: vessel.StatusEnRoute, SOG: 10}
	minutes, ok := c.Compute("m1", v, 1000, time.Now())
	if !ok {
		t.Fatal("expected an estimate")
	}
	if minutes <= 0 {
		t.Errorf("expected positive ETA, got %v", minutes)
	}
}

func TestComputeSuppressedWhileWaiting(t *testing.T) {
	c := NewCalculator()
	v := vessel.View{TargetBridge: "klaffbron", Status: vessel.StatusWaiting, SOG: 10}
	_, ok := c.Compute("m1", v, 100, time.Now())
	if ok {
		t.Error("expected no ETA while waiting")
	}
}

func TestComputeRejectsOutlier(t *testing.T) {
	c := NewCalculator()
	v := vessel.View{TargetBridge: "klaffbron", Status: vessel.StatusEnRoute, SOG: 10}
	now := time.Now()
	first, _ := c.Compute("m1", v, 1000, now)

	// Same distance, SOG crashes to near zero for one sample: the implied
	// raw ETA would spike far beyond outlierFactor*first, so the result
	// falls back to 70% of the previous estimate plus 30% of the raw one.
	spiky := v
	spiky.SOG = 0.6
	next, ok := c.Compute("m1", spiky, 1000, now.Add(10*time.Second))
	if !ok {
		t.Fatal("expected an estimate")
	}
	raw := 1000 / (0.6 * 0.514444) / 60.0
	want := 0.7*first + 0.3*raw
	if math.Abs(next-want) > 1e-6 {
		t.Errorf("expected outlier blended to %v, got %v from %v", want, next, first)
	}
}

func TestComputeNotSuppressedWhileStallbackaWaiting(t *testing.T) {
	c := NewCalculator()
	v := vessel.View{TargetBridge: "stridsbergsbron", Status: vessel.StatusStallbackaWaiting, SOG: 6}
	_, ok := c.Compute("m1", v, 1000, time.Now())
	if !ok {
		t.Error("expected an ETA to the target bridge while passing under the special bridge")
	}
}

func TestComputeNoETABelowMinSpeed(t *testing.T) {
	c := NewCalculator()
	v := vessel.View{TargetBridge: "klaffbron", Status: vessel.StatusEnRoute, SOG: 0.1}
	_, ok := c.Compute("m1", v, 1000, time.Now())
	if ok {
		t.Error("expected no ETA below minimum speed")
	}
}
