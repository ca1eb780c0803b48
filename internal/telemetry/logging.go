// Package telemetry wires the ambient observability stack: structured
// logging via log/slog, Prometheus counters/histograms, and OpenTelemetry
// tracing spans around the decision pipeline.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger, with level controlled by
// AEGIS_LOG_LEVEL (debug|info|warn|error, default info).
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
