package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel tracer so callers get the narrowed Span back
// instead of trace.Span.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
}

type openTracer struct {
	tracer trace.Tracer
}

// NewTracer resolves a tracer from the global provider installed by
// NewTraceProvider.
func NewTracer(name string) Tracer {
	return &openTracer{
		otel.Tracer(name),
	}
}

func (t *openTracer) StartSpanFromContext(
	ctx context.Context, name string, opts ...trace.SpanStartOption,
) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, NewSpan(span)
}

func (t *openTracer) SpanFromContext(ctx context.Context) Span {
	return NewSpan(trace.SpanFromContext(ctx))
}
