package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/trollbridge/bridgewatch/internal/vessel"
)

// Snapshot is what the debug dashboard renders: the current bridge texts
// and every live vessel's View.
type Snapshot struct {
	BridgeText map[string]string `json:"bridge_text"`
	Vessels    []vessel.View     `json:"vessels"`
}

// DebugServer exposes a tiny read-only dashboard over plain HTTP/2 (h2c, no
// TLS needed on a LAN) for watching the pipeline live during development.
type DebugServer struct {
	Addr            string
	Snapshot        func() Snapshot
	Logger          *slog.Logger
	Open            bool // auto-open a browser tab on Start
	MetricsHandler  http.Handler // optional: served at /metrics if set
}

// Start builds the mux and serves until ctx is cancelled.
func (s *DebugServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	if s.MetricsHandler != nil {
		mux.Handle("/metrics", s.MetricsHandler)
	}

	handler := cors.Default().Handler(mux)
	h2s := &http2.Server{}
	server := &http.Server{
		Addr:    s.Addr,
		Handler: h2c.NewHandler(handler, h2s),
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("debug server listen: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/snapshot", ln.Addr().String())
	color.Green("bridgewatch debug server listening at %s", url)
	if s.Open {
		go func() {
			time.Sleep(300 * time.Millisecond)
			_ = browser.OpenURL(url)
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
