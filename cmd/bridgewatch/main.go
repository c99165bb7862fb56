// Command bridgewatch ingests AIS traffic for the Trollhätte canal, tracks
// vessels against the five bridges, and publishes Swedish-language status
// text for each one through a configurable HostBridge adapter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trollbridge/bridgewatch/internal/ais"
	"github.com/trollbridge/bridgewatch/internal/bridges"
	"github.com/trollbridge/bridgewatch/internal/cli"
	"github.com/trollbridge/bridgewatch/internal/coalesce"
	"github.com/trollbridge/bridgewatch/internal/config"
	"github.com/trollbridge/bridgewatch/internal/eta"
	"github.com/trollbridge/bridgewatch/internal/events"
	"github.com/trollbridge/bridgewatch/internal/geometry"
	"github.com/trollbridge/bridgewatch/internal/host"
	"github.com/trollbridge/bridgewatch/internal/logging"
	"github.com/trollbridge/bridgewatch/internal/metrics"
	"github.com/trollbridge/bridgewatch/internal/status"
	"github.com/trollbridge/bridgewatch/internal/text"
	"github.com/trollbridge/bridgewatch/internal/tui"
	"github.com/trollbridge/bridgewatch/internal/vessel"
	"github.com/trollbridge/bridgewatch/internal/window"
)

func main() {
	root := cli.Root(runServe)
	root.AddCommand(watchLocalCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipeline bundles every stateful service the serve loop drives.
type pipeline struct {
	bridgeReg   *bridges.Registry
	vessels     *vessel.Registry
	stabilizer  *status.Stabilizer
	latch       *status.PassageLatchService
	routeOrder  *status.RouteOrderValidator
	jumpGate    *status.GPSJumpGateService
	etaCalc     *eta.Calculator
	windowMgr   *window.Manager
	textSvc     *text.Service
	proximityEv *events.Service
	coalescer   *coalesce.Coalescer
	bridge      host.HostBridge
	m           *metrics.Metrics
}

func newPipeline(bridgeHost host.HostBridge, m *metrics.Metrics) *pipeline {
	bridgeReg := bridges.New()
	p := &pipeline{
		bridgeReg:   bridgeReg,
		vessels:     vessel.NewRegistry(bridgeReg),
		stabilizer:  status.NewStabilizer(),
		latch:       status.NewPassageLatchService(),
		routeOrder:  status.NewRouteOrderValidator(),
		jumpGate:    status.NewGPSJumpGateService(),
		etaCalc:     eta.NewCalculator(),
		windowMgr:   window.NewManager(),
		textSvc:     text.NewService(),
		proximityEv: events.NewService(),
		bridge:      bridgeHost,
		m:           m,
	}
	p.coalescer = coalesce.New(textPublisher{p: p})
	return p
}

// textPublisher adapts the pipeline's HostBridge into coalesce.Publisher.
type textPublisher struct{ p *pipeline }

func (t textPublisher) Publish(ctx context.Context, lane string, line string) error {
	if t.p.m != nil {
		t.p.m.TextsPublished.WithLabelValues(lane).Inc()
	}
	// alarm_generic is true iff the published text isn't the default
	// sentence AND at least one vessel is relevant (spec §8) — since Render
	// only ever departs from DefaultMessage when some vessel was relevant
	// to produce that departure, the two conditions collapse to one check.
	alarm := line != text.DefaultMessage
	return t.p.bridge.PublishCapabilities(ctx, line, alarm, true)
}

// ingest handles one accepted Fix end to end: registry upsert, status
// computation, ETA, proximity events, and bridge-text regeneration for
// every bridge the vessel touched.
func (p *pipeline) ingest(fix vessel.Fix) {
	view, vevents := p.vessels.Upsert(fix)
	if p.m != nil {
		p.m.FixesIngested.WithLabelValues("ais").Inc()
	}
	now := fix.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	for _, ev := range vevents {
		switch ev.Kind {
		case vessel.GpsJumpDetected:
			if p.m != nil {
				p.m.GPSJumpsDetected.WithLabelValues("detected").Inc()
			}
		case vessel.VesselRemoved:
			p.etaCalc.Forget(ev.MMSI)
			p.stabilizer.Forget(ev.MMSI)
			p.routeOrder.Forget(ev.MMSI)
			p.jumpGate.Clear(ev.MMSI)
		}
	}

	// While on hold, keep offering the candidate position to the gate: once
	// it's recurred long enough to be trusted (spec §4.9), force it through
	// immediately instead of waiting for Upsert's own plausibility check to
	// eventually agree on its own.
	if view.CoordinationUntil.After(now) && geometry.Valid(fix.Lat, fix.Lon) {
		if p.jumpGate.Offer(view.MMSI, geometry.Point{Lat: fix.Lat, Lon: fix.Lon}, now) {
			if forced, ok := p.vessels.ForceAcceptPosition(view.MMSI, geometry.Point{Lat: fix.Lat, Lon: fix.Lon}, now); ok {
				view = forced
			}
			p.jumpGate.Clear(view.MMSI)
		}
	} else {
		p.jumpGate.Clear(view.MMSI)
	}

	proximity := vessel.ComputeProximity(p.bridgeReg, view.Point())
	decision := status.Compute(view, proximity, p.bridgeReg, now)
	decision = p.stabilizer.Apply(view.MMSI, view, decision, now)
	newView, ok := p.vessels.ApplyStatus(view.MMSI, decision.Status, decision.UnderBridgeLatched, decision.WaitingConfirmations)
	if !ok {
		return
	}
	if p.m != nil {
		p.m.StatusTransitions.WithLabelValues(newView.Status.String()).Inc()
	}

	if newView.TargetBridge != "" {
		if dist, ok := distanceTo(proximity, newView.TargetBridge); ok {
			minutes, hasETA := p.etaCalc.Compute(newView.MMSI, newView, dist, now)
			newView, _ = p.vessels.ApplyETA(newView.MMSI, minutes, hasETA)
		}
	}

	p.latch.Sweep(now)
	if newView.LastPassedBridge != "" {
		if b, ok := p.bridgeReg.ByID(newView.LastPassedBridge); ok {
			// A geographically impossible sequence (§4.8) is counted under
			// the route-order-reversal metric label but not latched or
			// counted as a confirmed passage: it's more likely a
			// misattributed fix than a real crossing.
			if p.routeOrder.Validate(newView.MMSI, b) {
				if p.latch.TryLatch(newView.MMSI, b.ID, now) && p.m != nil {
					p.m.PassagesAnchored.WithLabelValues(b.ID).Inc()
				}
			} else if p.m != nil {
				p.m.GPSJumpsDetected.WithLabelValues("route-order-reversal").Inc()
			}
		}
	}

	for _, bd := range proximity.Ordered {
		b, ok := p.bridgeReg.ByID(bd.BridgeID)
		if !ok {
			continue
		}
		if tokens, fire := p.proximityEv.Evaluate(b, newView, bd.Distance, now); fire {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = p.bridge.TriggerBoatNear(ctx, b.ID, tokens)
			cancel()
		}
	}

	p.regenerateText(touchedBridges(newView, p.bridgeReg), now)
}

func distanceTo(proximity vessel.ProximityResult, bridgeID string) (float64, bool) {
	for _, bd := range proximity.Ordered {
		if bd.BridgeID == bridgeID {
			return bd.Distance, true
		}
	}
	return 0, false
}

// touchedBridges returns the set of bridges whose text might need regenerating
// after this update: current, target, and last-passed.
func touchedBridges(v vessel.View, reg *bridges.Registry) []bridges.Bridge {
	ids := map[string]struct{}{}
	for _, id := range []string{v.CurrentBridge, v.TargetBridge, v.LastPassedBridge} {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	out := make([]bridges.Bridge, 0, len(ids))
	for id := range ids {
		if b, ok := reg.ByID(id); ok {
			out = append(out, b)
		}
	}
	return out
}

// laneFor picks the coalescer lane for a text regeneration per spec §4.13:
// the single target bridge touched, or "global" when both are, or when
// neither opening bridge is among the touched set.
func laneFor(touched []bridges.Bridge) string {
	targets := map[string]struct{}{}
	for _, b := range touched {
		if b.ID == bridges.IDKlaffbron || b.ID == bridges.IDStridsbergsbron {
			targets[b.ID] = struct{}{}
		}
	}
	if len(targets) == 1 {
		for id := range targets {
			return id
		}
	}
	return "global"
}

// regenerateText re-renders the single combined bridge_text sentence and
// schedules it for publish on whichever lane the touched bridges select.
// The published text is always the full current rendering — lanes only
// partition the coalescer's debounce cadence, never the payload.
func (p *pipeline) regenerateText(touched []bridges.Bridge, now time.Time) {
	all := p.vessels.AllViews()
	line := p.textSvc.Render(all, now, p.bridgeReg)

	tier := coalesce.TierLow
	for _, b := range touched {
		for _, v := range all {
			if v.CurrentBridge == b.ID && v.Status == vessel.StatusUnderBridge {
				tier = coalesce.TierCritical
				continue
			}
			// Just-passed, while still inside its display window: reuse the
			// window manager's grace period to decide whether this is a
			// fresh crossing (escalate) or has already settled.
			if v.LastPassedBridge == b.ID && now.Sub(v.LastPassedBridgeTime) < window.DisplayWindow {
				if !p.windowMgr.Observe(v.MMSI, b.ID, v.SOG, now) {
					tier = coalesce.TierCritical
				} else if tier != coalesce.TierCritical {
					tier = coalesce.TierHigh
				}
			}
			if v.TargetBridge == b.ID && (v.Status == vessel.StatusWaiting || v.Status == vessel.StatusStallbackaWaiting) {
				if tier != coalesce.TierCritical {
					tier = coalesce.TierHigh
				}
			} else if v.TargetBridge == b.ID && v.Status == vessel.StatusApproaching && tier != coalesce.TierHigh && tier != coalesce.TierCritical {
				tier = coalesce.TierMedium
			}
		}
	}
	p.coalescer.Mark(laneFor(touched), tier, line)
}

func (p *pipeline) snapshot() host.Snapshot {
	all := p.vessels.AllViews()
	texts := make(map[string]string, 5)
	now := time.Now()
	for _, b := range p.bridgeReg.All() {
		texts[b.ID] = p.textSvc.Generate(b, all, now)
	}
	return host.Snapshot{BridgeText: texts, Vessels: all}
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load("bridgewatch.yaml", ".env")
	if err != nil {
		return err
	}

	pretty := logging.IsTerminal(os.Stdout)
	logger := logging.New(settings.LogLevel, os.Stdout, pretty)

	m, promReg, err := metrics.New()
	if err != nil {
		return err
	}

	bridgeHost := host.NewLoggingBridge(logger)
	p := newPipeline(bridgeHost, m)
	defer p.coalescer.Stop()
	defer p.vessels.Close()

	debug := &host.DebugServer{
		Addr:           settings.DebugAddr,
		Snapshot:       p.snapshot,
		Logger:         logger,
		Open:           settings.OpenBrowser,
		MetricsHandler: metrics.Handler(promReg),
	}
	go func() {
		if err := debug.Start(ctx); err != nil {
			logger.Error("debug server stopped", "error", err)
		}
	}()

	for _, src := range settings.Sources {
		src := src
		client := ais.NewClient(ais.Config{URL: src.URL, APIKey: os.Getenv(src.APIKeyEnv), BoundingBox: src.BoundingBox}, logger)
		client.Sink = p.ingest
		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("ais source stopped", "source", src.Name, "error", err)
			}
		}()
	}

	<-ctx.Done()
	return nil
}

func watchLocalCmd() *cobra.Command {
	var interval time.Duration
	var debugAddr string
	c := &cobra.Command{
		Use:   "tui",
		Short: "Open the local bubbletea dashboard against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(func() tui.Snapshot {
				snap, _ := fetchForTUI(debugAddr)
				return tui.Snapshot{Vessels: snap.Vessels, BridgeText: snap.BridgeText}
			}, interval)
		},
	}
	c.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	c.Flags().StringVar(&debugAddr, "debug-addr", "http://localhost:8090", "address of a running instance's debug endpoint")
	return c
}

func fetchForTUI(debugAddr string) (host.Snapshot, error) {
	resp, err := http.Get(debugAddr + "/api/snapshot")
	if err != nil {
		return host.Snapshot{}, err
	}
	defer resp.Body.Close()

	var snap host.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return host.Snapshot{}, err
	}
	return snap, nil
}
