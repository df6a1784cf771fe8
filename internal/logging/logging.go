// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs a text or JSON handler as the slog default, writing to w
// (os.Stderr when omitted). Debug level also records the source position.
func Init(level slog.Level, format string, w ...io.Writer) {
	var out io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		out = w[0]
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}

// ParseLevel maps a CLI/config level name to a slog.Level.
// Empty input yields Info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (debug, info, warn, error)", s)
}
