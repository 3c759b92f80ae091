// Package logger wraps zerolog with context-scoped fields. Request and account
// code attaches identifiers to a context once and every later entry written
// through that context carries them.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealerhub/showroom/pkg/env"
)

// Options configures the structured logger. Format "console" switches to the
// human readable writer; anything else writes JSON lines. An empty Format
// falls back to LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("LOG_FORMAT", "json")
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return &Logger{
		base: zerolog.New(out).Level(opts.Level).With().
			Timestamp().
			Str("service", opts.ServiceName).
			Logger(),
		warnStack: opts.WarnStack,
	}
}

// Nop discards everything. Used by tests and optional wiring.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// from returns the context scoped logger, or the base logger when ctx carries
// none of ours.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped := zerolog.Ctx(ctx); scoped != zerolog.DefaultContextLogger && scoped.GetLevel() != zerolog.Disabled {
			return scoped
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := build(l.from(ctx).With()).Logger()
	return scoped.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("request_id", requestID) })
}

// WithUserID tags entries with the signed-in account.
func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("user_id", userID) })
}

// WithVisitorID tags entries produced on behalf of a guest device.
func (l *Logger) WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("visitor_id", visitorID) })
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Str("actor_role", role) })
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

// Error always records the goroutine stack alongside err.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
