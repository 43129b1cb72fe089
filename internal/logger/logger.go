// Package logger provides structured, context-aware logging for all services.
// Log records carry the active trace ID when one is present on the context,
// so log lines can be correlated with spans in the APM backend.
package logger

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Level represents the minimum severity a Logger will emit.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// TraceIDFn extracts a trace identifier from the context. When nil, the
// logger falls back to the OpenTelemetry span context.
type TraceIDFn func(ctx context.Context) string

// LoggerInterface is the logging port consumed by application and infra code.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
}

// Logger is the default LoggerInterface implementation.
type Logger struct {
	log       zerolog.Logger
	traceIDFn TraceIDFn
}

// New constructs a Logger writing to w, filtered to minLevel, tagged with the
// service name. traceIDFn may be nil.
func New(w io.Writer, minLevel Level, service string, traceIDFn TraceIDFn) *Logger {
	zl := zerolog.New(w).
		Level(toZerolog(minLevel)).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &Logger{log: zl, traceIDFn: traceIDFn}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.write(ctx, l.log.Debug(), msg, args)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.write(ctx, l.log.Info(), msg, args)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.write(ctx, l.log.Warn(), msg, args)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.write(ctx, l.log.Error(), msg, args)
}

func (l *Logger) write(ctx context.Context, ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}

	if id := l.traceID(ctx); id != "" {
		ev = ev.Str("trace_id", id)
	}

	// args are alternating key/value pairs; a trailing key without a value
	// is logged as-is so the mistake is visible rather than dropped.
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(args) {
			ev = ev.Str(key, "<missing>")
			break
		}
		switch v := args[i+1].(type) {
		case string:
			ev = ev.Str(key, v)
		case error:
			if v != nil {
				ev = ev.Str(key, v.Error())
			} else {
				ev = ev.Str(key, "<nil>")
			}
		case fmt.Stringer:
			ev = ev.Str(key, v.String())
		default:
			ev = ev.Interface(key, v)
		}
	}

	ev.Msg(msg)
}

func (l *Logger) traceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if l.traceIDFn != nil {
		return l.traceIDFn(ctx)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
