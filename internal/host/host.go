// Package host defines the boundary to whatever home-automation system
// actually flips a display or fires an automation rule. Nothing in this
// module knows about a concrete vendor SDK; HostBridge is the only contract
// the rest of the system depends on.
package host

import (
	"context"
	"log/slog"

	"github.com/trollbridge/bridgewatch/internal/events"
)

// HostBridge is the adapter boundary: implementations live outside this
// module and translate these two calls into whatever a specific
// home-automation platform needs.
type HostBridge interface {
	// PublishCapabilities pushes the current bridge text to the display
	// surface, along with whether an alarm condition is active (the text
	// is something other than the default message) and whether the
	// upstream AIS feed is connected.
	PublishCapabilities(ctx context.Context, bridgeText string, alarm, connected bool) error

	// TriggerBoatNear fires a named automation for a boat approaching a
	// bridge, with the tokens the automation's template is allowed to
	// reference.
	TriggerBoatNear(ctx context.Context, bridgeID string, tokens events.Tokens) error
}

// LoggingBridge is the HostBridge used when no real adapter is configured:
// it just logs what would have been sent, so the rest of the pipeline can
// run and be observed standalone.
type LoggingBridge struct {
	Logger *slog.Logger
}

// NewLoggingBridge builds a HostBridge that only logs.
func NewLoggingBridge(logger *slog.Logger) *LoggingBridge {
	return &LoggingBridge{Logger: logger}
}

func (b *LoggingBridge) PublishCapabilities(_ context.Context, bridgeText string, alarm, connected bool) error {
	b.Logger.Info("publish capabilities", "text", bridgeText, "alarm", alarm, "connected", connected)
	return nil
}

func (b *LoggingBridge) TriggerBoatNear(_ context.Context, bridgeID string, tokens events.Tokens) error {
	b.Logger.Info("trigger boat-near", "bridge", bridgeID, "ship", tokens.ShipName, "direction", tokens.Direction, "eta", tokens.ETAMinutes)
	return nil
}
