// Package logging provides JSON-lines structured logging for singleselect.
//
// Records look like:
//
//	{"ts":"2026-01-15T10:30:00Z","level":"INFO","msg":"lookup server started","addr":":8080"}
//
// Log levels:
//   - debug: option rebuilds, stale lookup responses (SINGLESELECT_DEBUG=1)
//   - info: startup, shutdown, catalog imports
//   - warn: recoverable configuration problems
//   - error: selection service failures
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool

	// Text switches from JSON lines to logfmt-style text.
	Text bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
	}
}

// New creates a structured logger.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "ts"
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Text {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level. The empty string is info.
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
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// LogStartup logs a host process starting.
func LogStartup(logger *slog.Logger, component, version, configPath string) {
	logger.Info(component+" started",
		"version", version,
		"config_path", configPath,
		"pid", os.Getpid(),
	)
}

// LogShutdown logs a host process stopping.
func LogShutdown(logger *slog.Logger, component, reason string) {
	logger.Info(component+" shutting down", "reason", reason)
}
