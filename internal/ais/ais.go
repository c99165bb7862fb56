// Package ais is the upstream AIS ingestion boundary: an AISstream.io-style
// JSON-over-WebSocket client, plus a raw NMEA/AIVDM fallback decoder for
// feeds that only speak the wire format directly (a local receiver, a relay
// with no JSON layer). Both paths converge on the same vessel.Fix so
// nothing downstream needs to know which one produced a given update.
package ais

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	goais "github.com/BertoldVdb/go-ais"
	"github.com/adrianmo/go-nmea"
	"golang.org/x/net/websocket"

	"github.com/trollbridge/bridgewatch/internal/geometry"
	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// Config describes one upstream AIS source.
type Config struct {
	URL         string     // e.g. wss://stream.aisstream.io/v0/stream
	APIKey      string
	BoundingBox [2][2]float64 // [[latMin,lonMin],[latMax,lonMax]]
	MMSIFilter  []uint32       // empty means no filter
}

// reconnectBackoffTable is the delay schedule between dial attempts; it
// holds at the last entry rather than growing unbounded.
var reconnectBackoffTable = []time.Duration{
	1 * time.Second, 2 * time.Second, 5 * time.Second,
	10 * time.Second, 20 * time.Second, 30 * time.Second, 60 * time.Second,
}

// maxReconnectAttempts is when the client gives up and reports
// MaxReconnectsReached rather than retrying forever against a source that
// may simply be gone.
const maxReconnectAttempts = 50

// keepAliveInterval re-sends the subscription frame periodically: some
// upstreams silently drop a subscription that isn't refreshed even though
// the socket itself stays open.
const keepAliveInterval = 3 * time.Minute

// Stats is a snapshot of the client's connection health, exported for the
// debug dashboard and metrics.
type Stats struct {
	Connected            bool
	ConnectedSince       time.Time
	ReconnectCount        int
	LastMessageAt         time.Time
	MaxReconnectsReached  bool
}

// Client streams position reports from one AIS source and hands each
// accepted fix to Sink.
type Client struct {
	cfg    Config
	logger *slog.Logger
	Sink   func(vessel.Fix)

	mu    sync.Mutex
	stats Stats
}

// NewClient builds a client. Sink is set by the caller before Run; nil is
// tolerated (fixes are simply dropped), useful in tests that only check
// connection bookkeeping.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Stats returns a snapshot of the client's current connection health.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run dials, subscribes, and reads until ctx is cancelled or the reconnect
// budget is exhausted. It always returns a non-nil error: ctx.Err() on
// cancellation, otherwise the give-up error. Only consecutive failed
// connections count against maxReconnectAttempts, and each delay from
// reconnectBackoffTable gets ±20% random jitter.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			c.logger.Warn("ais stream disconnected", "error", err, "attempt", attempt)
		}

		c.mu.Lock()
		if c.stats.Connected {
			attempt = 0
		}
		attempt++
		c.stats.Connected = false
		c.stats.ReconnectCount = attempt
		if attempt >= maxReconnectAttempts {
			c.stats.MaxReconnectsReached = true
			c.mu.Unlock()
			return fmt.Errorf("ais: giving up after %d reconnect attempts", attempt)
		}
		c.mu.Unlock()

		delay := reconnectBackoffTable[len(reconnectBackoffTable)-1]
		if attempt-1 < len(reconnectBackoffTable) {
			delay = reconnectBackoffTable[attempt-1]
		}
		delay += time.Duration((rand.Float64()*0.4 - 0.2) * float64(delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, err := websocket.Dial(c.cfg.URL, "", "https://bridgewatch.local")
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	c.stats.Connected = true
	c.stats.ConnectedSince = time.Now()
	c.mu.Unlock()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	msgCh := make(chan []byte, 64)
	errCh := make(chan error, 1)
	go func() {
		for {
			var buf []byte
			if err := websocket.Message.Receive(conn, &buf); err != nil {
				errCh <- err
				return
			}
			msgCh <- buf
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-keepAlive.C:
			if err := c.subscribe(conn); err != nil {
				return fmt.Errorf("resubscribe: %w", err)
			}
		case raw := <-msgCh:
			c.mu.Lock()
			c.stats.LastMessageAt = time.Now()
			c.mu.Unlock()
			if fix, ok := parseStreamMessage(raw); ok {
				if c.Sink != nil {
					c.Sink(fix)
				}
			}
		}
	}
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	req := map[string]any{
		"APIKey":             c.cfg.APIKey,
		"FilterMessageTypes": []string{"PositionReport", "ShipStaticData"},
	}
	if c.cfg.BoundingBox != ([2][2]float64{}) {
		req["BoundingBoxes"] = [][][2]float64{{c.cfg.BoundingBox[0], c.cfg.BoundingBox[1]}}
	}
	if len(c.cfg.MMSIFilter) > 0 {
		req["FiltersShipMMSI"] = c.cfg.MMSIFilter
	}
	return websocket.JSON.Send(conn, req)
}

// streamEnvelope is the tolerant shape of an AISstream.io-style frame:
// only the fields this system needs are named, everything else is ignored.
type streamEnvelope struct {
	MessageType string `json:"MessageType"`
	MetaData    struct {
		MMSI     json.Number `json:"MMSI"`
		ShipName string      `json:"ShipName"`
		Time     string      `json:"time_utc"`
	} `json:"MetaData"`
	Message struct {
		PositionReport *struct {
			Latitude  float64     `json:"Latitude"`
			Longitude float64     `json:"Longitude"`
			Sog       float64     `json:"Sog"`
			Cog       *float64    `json:"Cog"`
			UserID    json.Number `json:"UserID"`
		} `json:"PositionReport"`
	} `json:"Message"`
}

func parseStreamMessage(raw []byte) (vessel.Fix, bool) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return vessel.Fix{}, false
	}
	pr := env.Message.PositionReport
	if pr == nil {
		return vessel.Fix{}, false
	}
	mmsi := pr.UserID.String()
	if mmsi == "" || mmsi == "0" {
		mmsi = env.MetaData.MMSI.String()
	}
	if mmsi == "" || mmsi == "0" {
		return vessel.Fix{}, false
	}
	if !geometry.Valid(pr.Latitude, pr.Longitude) {
		return vessel.Fix{}, false
	}

	ts := time.Now()
	if parsed, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", env.MetaData.Time); err == nil {
		ts = parsed
	}

	cog, hasCOG := 0.0, false
	if pr.Cog != nil && *pr.Cog >= 0 && *pr.Cog <= 360 {
		cog, hasCOG = geometry.NormalizeCourse(*pr.Cog), true
	}

	return vessel.Fix{
		MMSI:      mmsi,
		ShipName:  strings.TrimSpace(env.MetaData.ShipName),
		Lat:       pr.Latitude,
		Lon:       pr.Longitude,
		SOG:       pr.Sog,
		COG:       cog,
		HasCOG:    hasCOG,
		Timestamp: ts,
	}, true
}

// --- Raw NMEA/AIVDM fallback path, for sources with no JSON layer. ---

// fragment holds a multi-part !AIVDM sentence until every part arrives.
type fragment struct {
	parts    map[int64][]byte
	numParts int64
	started  time.Time
}

// fragmentMaxAge discards a stalled multi-part message rather than holding
// it forever if a fragment never arrives.
const fragmentMaxAge = 30 * time.Second

// RawDecoder reassembles !AIVDM/!AIVDO fragments and decodes completed
// payloads into vessel.Fix. Not safe for concurrent use from multiple
// goroutines on the same line source; one per connection.
type RawDecoder struct {
	codec     *goais.Codec
	mu        sync.Mutex
	fragments map[int64]*fragment
}

// NewRawDecoder builds a decoder for a single NMEA stream.
func NewRawDecoder() *RawDecoder {
	codec := goais.CodecNew(false, false)
	codec.DropSpace = true
	return &RawDecoder{codec: codec, fragments: make(map[int64]*fragment)}
}

// DecodeLine parses one line of raw NMEA text, returning a Fix if it
// completed a position report (possibly by completing a multi-fragment
// message spanning earlier calls).
func (d *RawDecoder) DecodeLine(line string) (vessel.Fix, bool) {
	if idx := strings.IndexAny(line, "!$"); idx >= 0 {
		line = line[idx:]
	} else {
		return vessel.Fix{}, false
	}

	s, err := nmea.Parse(line)
	if err != nil {
		return vessel.Fix{}, false
	}
	vdm, ok := s.(nmea.VDMVDO)
	if !ok {
		return vessel.Fix{}, false
	}

	payload := vdm.Payload
	if vdm.NumFragments > 1 {
		var ok bool
		payload, ok = d.reassemble(vdm)
		if !ok {
			return vessel.Fix{}, false
		}
	}

	packet := d.codec.DecodePacket(payload)
	if packet == nil {
		return vessel.Fix{}, false
	}
	return decodePacket(packet)
}

func (d *RawDecoder) reassemble(vdm nmea.VDMVDO) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, f := range d.fragments {
		if now.Sub(f.started) > fragmentMaxAge {
			delete(d.fragments, id)
		}
	}

	f, ok := d.fragments[vdm.MessageID]
	if !ok {
		f = &fragment{parts: make(map[int64][]byte), numParts: vdm.NumFragments, started: now}
		d.fragments[vdm.MessageID] = f
	}
	f.parts[vdm.FragmentNumber] = vdm.Payload
	if int64(len(f.parts)) < f.numParts {
		return nil, false
	}

	var complete []byte
	for i := int64(1); i <= f.numParts; i++ {
		part, ok := f.parts[i]
		if !ok {
			return nil, false
		}
		complete = append(complete, part...)
	}
	delete(d.fragments, vdm.MessageID)
	return complete, true
}

func decodePacket(packet goais.Packet) (vessel.Fix, bool) {
	now := time.Now()
	switch msg := packet.(type) {
	case goais.PositionReport:
		return fixFromReport(msg.UserID, float64(msg.Latitude), float64(msg.Longitude), float64(msg.Sog), float64(msg.Cog), now)
	case goais.StandardClassBPositionReport:
		return fixFromReport(msg.UserID, float64(msg.Latitude), float64(msg.Longitude), float64(msg.Sog), float64(msg.Cog), now)
	case goais.ExtendedClassBPositionReport:
		return fixFromReport(msg.UserID, float64(msg.Latitude), float64(msg.Longitude), float64(msg.Sog), float64(msg.Cog), now)
	default:
		return vessel.Fix{}, false
	}
}

func fixFromReport(mmsi uint32, lat, lon, sog, cog float64, ts time.Time) (vessel.Fix, bool) {
	if mmsi == 0 || !geometry.Valid(lat, lon) {
		return vessel.Fix{}, false
	}
	return vessel.Fix{
		MMSI:      fmt.Sprintf("%d", mmsi),
		Lat:       lat,
		Lon:       lon,
		SOG:       sog,
		COG:       geometry.NormalizeCourse(cog),
		HasCOG:    cog >= 0 && cog <= 360,
		Timestamp: ts,
	}, true
}

// ReadLines feeds every line on conn through decode, forwarding each
// accepted Fix to sink. Grounded on the teacher's scanner-based read loop:
// a bufio.Scanner over a raw TCP connection. No read deadline is set, so a
// silent connection blocks until it is closed; ctx is checked between lines.
func ReadLines(ctx context.Context, conn net.Conn, decode *RawDecoder, sink func(vessel.Fix)) error {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if fix, ok := decode.DecodeLine(scanner.Text()); ok && sink != nil {
			sink(fix)
		}
	}
	return scanner.Err()
}
