// Package logging builds the process-wide slog.Logger, coloured with
// lmittmann/tint for a terminal and plain JSON otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a logger at the given level ("debug", "info", "warn",
// "error"; unrecognised values fall back to "info"). pretty selects tint's
// coloured, human-readable format (for a terminal); otherwise output is
// plain JSON suitable for log aggregation.
func New(level string, w io.Writer, pretty bool) *slog.Logger {
	lvl := parseLevel(level)

	if pretty {
		handler := tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
		return slog.New(handler)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// IsTerminal is a thin wrapper so callers can decide prettiness from the
// same place they pick their output writer, without this package reaching
// into os.Stdin/Stdout itself.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
