// Package coalesce batches rapid-fire bridge text updates into a single
// publish per lane, the way engine.Consumer batches entity changes: a
// priority-tiered dirty set plus a non-blocking signal channel feeding one
// reducer goroutine, so a burst of AIS updates collapses into one publish
// instead of one per fix.
package coalesce

import (
	"context"
	"sync"
	"time"
)

// Tier is the significance of a pending update: how long it's allowed to
// wait before being sent, so a safety-relevant change goes out immediately
// while a cosmetic one gets batched with whatever else arrives in the next
// few milliseconds.
type Tier int

const (
	TierCritical Tier = iota // under-bridge / just-passed: no grace
	TierHigh                 // waiting: 15ms (widened to 25ms under load)
	TierMedium               // approaching: 25ms
	TierLow                  // en-route / cosmetic refresh: 40ms
	tierCount
)

// graceFor is each tier's micro-grace window before it's eligible to send.
// tierHigh's second number is what it widens to when widened is set, i.e.
// when the lane was marked again mid-publish and is queued for a rerun.
func graceFor(t Tier, widened bool) time.Duration {
	switch t {
	case TierCritical:
		return 0
	case TierHigh:
		if widened {
			return 25 * time.Millisecond
		}
		return 15 * time.Millisecond
	case TierMedium:
		return 25 * time.Millisecond
	default:
		return 40 * time.Millisecond
	}
}

// watchdogTimeout force-publishes a lane that's been dirty this long
// without ever clearing, so a publisher wedged on some downstream error
// can't silently starve a bridge's text forever.
const watchdogTimeout = 90 * time.Second

// Publisher is the sink a Coalescer drains into — satisfied by
// host.HostBridge in this system, but kept decoupled so the Coalescer
// itself has no dependency on that package.
type Publisher interface {
	Publish(ctx context.Context, lane string, text string) error
}

type laneStatus int

const (
	laneIdle laneStatus = iota
	lanePublishing
	laneRerun
)

type pending struct {
	tier    Tier
	text    string
	since   time.Time
	version uint64
}

// Coalescer owns one dirty set per tier, keyed by lane (a caller-chosen
// name, e.g. one per bridge plus a global one), and a single background loop that drains them in priority order.
type Coalescer struct {
	publisher Publisher

	mu      sync.Mutex
	dirty   [tierCount]map[string]pending
	status  map[string]laneStatus
	version map[string]uint64
	oldest  map[string]time.Time

	signal chan struct{}
	stop   chan struct{}
	once   sync.Once

	now func() time.Time
}

// New builds a Coalescer publishing through p and starts its drain loop.
// Call Stop to shut it down.
func New(p Publisher) *Coalescer {
	c := &Coalescer{
		publisher: p,
		status:    make(map[string]laneStatus),
		version:   make(map[string]uint64),
		oldest:    make(map[string]time.Time),
		signal:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
	for i := range c.dirty {
		c.dirty[i] = make(map[string]pending)
	}
	go c.loop()
	return c
}

// Stop halts the drain loop. Safe to call more than once.
func (c *Coalescer) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Mark schedules lane for publish with text at the given tier. Rapid
// repeated marks for the same lane coalesce into the latest text; only the
// highest tier seen since the last publish governs the grace window.
func (c *Coalescer) Mark(lane string, tier Tier, text string) {
	c.mu.Lock()
	c.version[lane]++
	v := c.version[lane]
	if _, ok := c.oldest[lane]; !ok {
		c.oldest[lane] = c.now()
	}
	for i := range c.dirty {
		if _, ok := c.dirty[i][lane]; ok && Tier(i) < tier {
			tier = Tier(i)
		}
	}
	for i := range c.dirty {
		if Tier(i) != tier {
			delete(c.dirty[i], lane)
		}
	}
	c.dirty[tier][lane] = pending{tier: tier, text: text, since: c.now(), version: v}

	if c.status[lane] == lanePublishing {
		c.status[lane] = laneRerun
	}
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Coalescer) loop() {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-c.signal:
			c.drain()
		case <-ticker.C:
			c.drain()
		}
	}
}

// drain pops the highest-priority ready item across all lanes and publishes
// it, one at a time, so a burst never fans out into concurrent publishes
// for the same lane.
func (c *Coalescer) drain() {
	for {
		lane, p, ok := c.popNext()
		if !ok {
			return
		}
		go c.publish(lane, p)
	}
}

func (c *Coalescer) popNext() (string, pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for tier := Tier(0); tier < tierCount; tier++ {
		for lane, p := range c.dirty[tier] {
			if c.status[lane] == lanePublishing {
				continue
			}
			widened := c.status[lane] == laneRerun
			grace := graceFor(p.tier, widened)
			watchdogDue := now.Sub(c.oldest[lane]) >= watchdogTimeout
			if now.Sub(p.since) < grace && !watchdogDue {
				continue
			}
			delete(c.dirty[tier], lane)
			delete(c.oldest, lane)
			c.status[lane] = lanePublishing
			return lane, p, true
		}
	}
	return "", pending{}, false
}

func (c *Coalescer) publish(lane string, p pending) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.publisher.Publish(ctx, lane, p.text)

	c.mu.Lock()
	rerun := c.status[lane] == laneRerun
	c.status[lane] = laneIdle
	c.mu.Unlock()

	if rerun {
		select {
		case c.signal <- struct{}{}:
		default:
		}
	}
}
