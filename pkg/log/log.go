// Package log provides the per-package structured logger used across the
// file service. It wraps zerolog so every component logs with a consistent
// set of fields instead of reaching for fmt.Println.
package log

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.CallerSkipFrameCount = 3
}

// Out is the log output writer.
var Out io.Writer = os.Stderr

// Mode "dev" prints console format, anything else prints JSON.
var Mode = "dev"

// Logger is a package-scoped structured logger.
type Logger struct {
	pkg string
	zl  *zerolog.Logger
}

// New builds a Logger for the given package name.
func New(pkg string) *Logger {
	zlog := zerolog.New(Out).With().Str("pkg", pkg).Timestamp().Logger()
	if Mode == "" || Mode == "dev" {
		zlog = zlog.Output(zerolog.ConsoleWriter{Out: Out})
	}
	return &Logger{pkg: pkg, zl: &zlog}
}

type ctxKey struct{}

// WithTenant returns a context carrying the tenant id for later log calls.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, ctxKey{}, tenant)
}

func tenantFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Info starts an info-level event, pre-populated with the context's tenant.
func (l *Logger) Info(ctx context.Context) *zerolog.Event {
	return l.zl.Info().Str("tenant", tenantFrom(ctx))
}

// Error starts an error-level event, pre-populated with the context's tenant.
func (l *Logger) Error(ctx context.Context) *zerolog.Event {
	return l.zl.Error().Str("tenant", tenantFrom(ctx))
}

// Warn starts a warn-level event, pre-populated with the context's tenant.
func (l *Logger) Warn(ctx context.Context) *zerolog.Event {
	return l.zl.Warn().Str("tenant", tenantFrom(ctx))
}

// Debug starts a debug-level event, pre-populated with the context's tenant.
func (l *Logger) Debug(ctx context.Context) *zerolog.Event {
	return l.zl.Debug().Str("tenant", tenantFrom(ctx))
}

// Err logs err at error level with the given operation name, a no-op if err is nil.
func (l *Logger) Err(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	l.Error(ctx).Str("op", op).Err(err).Msg("operation failed")
}
