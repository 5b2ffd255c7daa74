package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler for a process logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "text" (human-readable) or "json" (structured)
	Quiet  bool   // discard everything
}

// New builds the process logger. Output goes to stderr; stdout is left to
// program output such as ktsctl tables.
func New(opts Options) *slog.Logger {
	return NewWithWriter(opts, os.Stderr)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(opts Options, w io.Writer) *slog.Logger {
	if opts.Quiet {
		return slog.New(slog.DiscardHandler)
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
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
