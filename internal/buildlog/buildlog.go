// Package buildlog wraps log/slog with the five text levels spec.md's CLI
// surface exposes (debug, info, warning, error, critical), layered the way
// jinterlante1206-AleutianLocal/pkg/logging wraps slog: a thin struct around
// *slog.Logger, constructed from a level string, defaulting to stderr.
package buildlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LevelCritical sits above slog's built-in levels (slog.LevelError+4); the
// text handler renders critical records as "level=ERROR+4", which keeps them
// distinguishable from plain errors.
const LevelCritical = slog.Level(12)

// ParseLevel maps the CLI's --log choices onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("buildlog: unknown log level %q", s)
	}
}

// New builds a text-handler logger writing to w (stderr by default) at the
// given minimum level.
func New(level slog.Level, w *os.File) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Critical logs msg at the engine's highest severity: a fatal action error,
// or the shutdown sequence itself.
func Critical(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelCritical, msg, args...)
}
