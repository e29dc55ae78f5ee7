// Package logger provides the application-wide slog setup and attr helpers.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the shared *slog.Logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates the root logger. Level comes from LOG_LEVEL
// (debug/info/warn/error, case-insensitive, defaults to info).
// GO_ENV=production switches to the JSON handler.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Scope returns a "scope" attribute used to tag a logger with the
// component it belongs to, e.g. log.With(logger.Scope("graph.repo")).
func Scope(scope string) slog.Attr {
	return slog.Attr{Key: "scope", Value: slog.StringValue(scope)}
}

// Error returns an "error" attribute.
func Error(err error) slog.Attr {
	return slog.Attr{Key: "error", Value: slog.AnyValue(err)}
}
