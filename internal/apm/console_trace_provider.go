package apm

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleTraceProvider is the no-op fallback when tracing is disabled or
// misconfigured; spans still resolve through the otel global but go nowhere.
type ConsoleTraceProvider struct {
	tp *sdktrace.TracerProvider
}

func NewEmptyTraceProvider() TraceProvider {
	return ConsoleTraceProvider{}
}

func (ctp ConsoleTraceProvider) Stop() error {
	return nil
}
