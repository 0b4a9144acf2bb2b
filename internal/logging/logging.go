// Package logging builds the process-wide slog logger.
//
// LOG_FORMAT selects the handler: "json" (default, for log shipping) or
// "text" (colored tint output for local development). LOG_LEVEL is one of
// debug, info, warn, error.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a logger writing to w and installs it as the slog default.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
