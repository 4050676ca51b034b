// Package observability provides structured logging, run correlation and
// dependency health probes for moosbridge processes.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName is attached to every record.
const ServiceName = "moosbridge"

// LogConfig selects the handler behind a logger.
type LogConfig struct {
	Level  slog.Level
	JSON   bool
	Source bool
	// Output defaults to os.Stderr.
	Output io.Writer
	// Version is attached to every record when set.
	Version string
}

// LogConfigFor builds a configuration from an environment name, a level
// name and a format ("text" or "json"). Production writes JSON with source
// locations to stdout. An empty or unknown level means info; an empty format
// keeps the environment's choice.
func LogConfigFor(env, level, format string) LogConfig {
	cfg := LogConfig{Level: slog.LevelInfo}
	if env == "production" {
		cfg.JSON, cfg.Source, cfg.Output = true, true, os.Stdout
	}
	if level != "" {
		if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
			cfg.Level = slog.LevelInfo
		}
	}
	switch strings.ToLower(format) {
	case "json":
		cfg.JSON = true
	case "text":
		cfg.JSON = false
	}
	return cfg
}

// NewLogger creates a logger that tags records with the service, the
// version and the run id and app name found in the record's context.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.Source}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.JSON {
		h = slog.NewJSONHandler(out, opts)
	}

	attrs := []slog.Attr{slog.String("service", ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return slog.New(runHandler{h.WithAttrs(attrs)})
}

// LoggerFromEnv creates a logger from MOOSBRIDGE_ENV, MOOSBRIDGE_LOG_LEVEL
// and MOOSBRIDGE_LOG_FORMAT without loading the full configuration.
func LoggerFromEnv() *slog.Logger {
	return NewLogger(LogConfigFor(
		os.Getenv("MOOSBRIDGE_ENV"),
		os.Getenv("MOOSBRIDGE_LOG_LEVEL"),
		os.Getenv("MOOSBRIDGE_LOG_FORMAT"),
	))
}

// runHandler copies the run id and app name from the context onto each
// record.
type runHandler struct {
	slog.Handler
}

func (h runHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(RunIDKey, id))
	}
	if app := AppFromContext(ctx); app != "" {
		r.AddAttrs(slog.String(AppKey, app))
	}
	return h.Handler.Handle(ctx, r)
}

func (h runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runHandler{h.Handler.WithAttrs(attrs)}
}

func (h runHandler) WithGroup(name string) slog.Handler {
	return runHandler{h.Handler.WithGroup(name)}
}
