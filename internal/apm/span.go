package apm

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span narrows trace.Span to what the trading path needs. NoticeError
// records the error and marks the span failed in one call.
type Span interface {
	SetAttributes(values ...attribute.KeyValue)
	AddEvent(name string, options ...trace.EventOption)
	NoticeError(err error)
	End(options ...trace.SpanEndOption)
}

type traceSpan struct {
	span trace.Span
}

func NewSpan(span trace.Span) Span {
	return &traceSpan{
		span,
	}
}

func (t *traceSpan) SetAttributes(values ...attribute.KeyValue) {
	t.span.SetAttributes(values...)
}

func (t *traceSpan) AddEvent(name string, options ...trace.EventOption) {
	t.span.AddEvent(name, options...)
}

func (t *traceSpan) NoticeError(err error) {
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

func (t *traceSpan) End(options ...trace.SpanEndOption) {
	t.span.End(options...)
}
