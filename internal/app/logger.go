package app

import (
	"io"
	"log/slog"

	"github.com/vk/calcgrid/internal/config"
)

// newLogger creates a slog.Logger for the logging settings. It does not set
// the global logger, allowing for isolated logger instances. Unknown levels
// fall back to info, unknown formats to text.
func newLogger(cfg config.Logging, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(outW, handlerOpts)
	default:
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
