// Package logging builds the process-wide slog logger.
//
// Output format comes from LOG_FORMAT (text/json) and falls back to text on a
// terminal and JSON elsewhere. LOG_LEVEL selects the minimum level.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options controls handler construction.
type Options struct {
	Format string // "text", "json" or "" for auto-detect
	Level  string
	Writer io.Writer
	Source bool
}

// OptionsFromEnv reads logger options from the environment.
func OptionsFromEnv() Options {
	return Options{
		Format: os.Getenv("LOG_FORMAT"),
		Level:  os.Getenv("LOG_LEVEL"),
		Writer: os.Stdout,
		Source: os.Getenv("LOG_SOURCE") != "false",
	}
}

// New creates a logger from opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	useText := opts.Format == "text"
	if opts.Format == "" {
		if f, ok := w.(*os.File); ok {
			useText = isatty(f)
		}
	}

	wd, _ := os.Getwd()
	hopts := &slog.HandlerOptions{
		Level:     parseLogLevel(opts.Level),
		AddSource: opts.Source,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.SourceKey {
				return a
			}
			if src, ok := a.Value.Any().(*slog.Source); ok {
				if rel, err := filepath.Rel(wd, src.File); err == nil && !strings.HasPrefix(rel, "..") {
					src.File = rel
				} else {
					src.File = filepath.Base(src.File)
				}
			}
			return a
		},
	}

	if useText {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// SetDefault creates a logger from the environment and installs it as the slog default.
func SetDefault() *slog.Logger {
	logger := New(OptionsFromEnv())
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

type ctxKey string

const stageIDKey ctxKey = "log_stage_id"

// WithStageID returns a context that carries the stage id for log correlation.
func WithStageID(ctx context.Context, stageID string) context.Context {
	return context.WithValue(ctx, stageIDKey, stageID)
}

// FromContext returns logger enriched with any ids carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(stageIDKey).(string); ok && id != "" {
		return logger.With("stage_id", id)
	}
	return logger
}
