// Package tracing starts and ends spans of agents, models and connectors on OpenTelemetry.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the name of tracers created by this package.
const InstrumentationName = "github.com/opst/mlcommons"

type Tracer struct {
	tracer  trace.Tracer
	enabled bool
}

// New creates a Tracer on the provider.
func New(provider trace.TracerProvider) *Tracer {
	_, isNoop := provider.(noop.TracerProvider)
	return &Tracer{tracer: provider.Tracer(InstrumentationName), enabled: !isNoop}
}

// Noop creates a Tracer which records nothing.
func Noop() *Tracer {
	return New(noop.NewTracerProvider())
}

func (t *Tracer) IsEnabled() bool {
	return t.enabled
}

func attributes(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}

// StartSpan starts a span as a child of the span in ctx, if any.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attributes(attrs)...))
}

// StartRootSpan starts a span of a new trace, regardless of the span in ctx.
func (t *Tracer) StartRootSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithNewRoot(), trace.WithAttributes(attributes(attrs)...))
}

// EndSpan ends span. When err is not nil, it is recorded and the span is marked as error.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
