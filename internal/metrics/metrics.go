// Package metrics wires up Prometheus counters/gauges for the pipeline and
// an OpenTelemetry MeterProvider exporting to the same registry, mirroring
// how the teacher engine initialises its metrics at startup.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every Prometheus collector the pipeline touches. Built once
// at startup and shared by value (it's all pointers) across goroutines.
type Metrics struct {
	FixesIngested      *prometheus.CounterVec
	GPSJumpsDetected    *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	PassagesAnchored   *prometheus.CounterVec
	TextsPublished     *prometheus.CounterVec
	LiveVessels        prometheus.Gauge
	AISConnected       *prometheus.GaugeVec
	CoalescerQueueDepth prometheus.Gauge

	Meter metric.Meter
}

// New registers every collector against a fresh registry and builds an
// OpenTelemetry MeterProvider that exports into the same registry, so both
// the classic /metrics scrape and any otel-instrumented library share one
// source of truth.
func New() (*Metrics, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		FixesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgewatch", Name: "fixes_ingested_total", Help: "AIS fixes accepted into the vessel registry.",
		}, []string{"source"}),
		GPSJumpsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgewatch", Name: "gps_jumps_detected_total", Help: "Fixes flagged as implausible movement.",
		}, []string{"action"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgewatch", Name: "status_transitions_total", Help: "Vessel status changes by resulting status.",
		}, []string{"status"}),
		PassagesAnchored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgewatch", Name: "passages_anchored_total", Help: "Bridge crossings anchored, by bridge.",
		}, []string{"bridge"}),
		TextsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridgewatch", Name: "texts_published_total", Help: "Bridge status texts published, by bridge.",
		}, []string{"bridge"}),
		LiveVessels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgewatch", Name: "live_vessels", Help: "Vessels currently tracked.",
		}),
		AISConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bridgewatch", Name: "ais_connected", Help: "1 if the named AIS source is currently connected.",
		}, []string{"source"}),
		CoalescerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridgewatch", Name: "coalescer_queue_depth", Help: "Lanes currently dirty in the coalescer.",
		}),
	}

	collectors := []prometheus.Collector{
		m.FixesIngested, m.GPSJumpsDetected, m.StatusTransitions, m.PassagesAnchored,
		m.TextsPublished, m.LiveVessels, m.AISConnected, m.CoalescerQueueDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, nil, fmt.Errorf("register collector: %w", err)
		}
	}

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("otel prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m.Meter = provider.Meter("bridgewatch")

	return m, reg, nil
}

// Handler returns the standard Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
