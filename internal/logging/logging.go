// Package logging wraps zap behind a small key/value Logger interface.
package logging

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/diewo77/go-quotes/internal/config"
)

// A Logger writes structured logs. kv holds alternating keys and values.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// With returns a child logger carrying kv on every entry.
	With(kv ...any) Logger
	Sync() error
}

type zapLogger struct {
	zap *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.zap.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.zap.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.zap.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.zap.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{zap: l.zap.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.zap.Sync() }

// New builds a logger writing to stderr. Format "console" selects the
// human readable development encoder, anything else JSON.
func New(cfg config.LogConfig) (Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}

	z, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return FromZap(z), nil
}

// FromZap adapts an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	return &zapLogger{zap: z.Sugar()}
}

// Nop returns a logger discarding everything.
func Nop() Logger {
	return FromZap(zap.NewNop())
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return fallback
}
