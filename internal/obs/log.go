package obs

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig selects level, format (json or console) and destination.
type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

var (
	logMu  sync.RWMutex
	logger = newLogger(LogConfig{Level: "info", Format: "json", Output: os.Stdout})
)

type ctxKey struct{}

// InitLogger replaces the shared logger. Safe to call more than once.
func InitLogger(cfg LogConfig) zerolog.Logger {
	l := newLogger(cfg)
	logMu.Lock()
	logger = l
	logMu.Unlock()
	return l
}

func newLogger(cfg LogConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "ts"

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the shared structured logger used across the service.
func Logger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Component tags log lines with the emitting subsystem.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger, or the shared one.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Logger()
}
