package toggle

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps a level name to an slog.Level. It accepts debug,
// info, warn/warning and error in any case; anything else is info.
//
// This is useful for wiring a LOG_LEVEL setting into the handler used by
// the provider:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: toggle.ParseLogLevel(os.Getenv("LOG_LEVEL")),
//	}))
//	provider, _ := toggle.New(cfg, toggle.WithLogger(logger))
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace", "verbose":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// componentLogger derives the logger handed to an internal component.
// A nil base falls back to slog.Default().
func componentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", component)
}
