// Package log builds the slog loggers used across kagaj.
//
// Loggers are dependency-injected: every component takes a *slog.Logger in
// its constructor and may derive a child via logger.With("component", ...).
// Nothing in the codebase logs through a package-level global.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Config controls handler construction.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// AddSource attaches source file/line to each record.
	AddSource bool
}

// New returns a logger writing to stderr with the given configuration.
// Stderr keeps stdout free for command output.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter returns a logger writing to w. Tests pass a bytes.Buffer
// here to assert on emitted records.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test use only.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
