// Package logging configures Edison's process-wide slog logger and
// hands out component-scoped loggers for the long-lived actors
// (orchestrator, runner, event bus) so every line carries which part
// of the iteration pipeline emitted it.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options selects the handler for the process logger.
type Options struct {
	// Debug lowers the level from Info to Debug.
	Debug bool

	// Format is "text" (default, human-readable, for interactive runs)
	// or "json" (for ingestion when Edison runs as a service).
	Format string

	// Output defaults to stderr, keeping stdout free for reports.
	Output io.Writer
}

// Configure installs the process logger. Call once, before the first
// iteration starts.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// ForComponent returns the process logger scoped to one pipeline
// component ("orchestrator", "runner", "eventbus", ...). The component
// name rides every record as a "component" attribute.
func ForComponent(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
