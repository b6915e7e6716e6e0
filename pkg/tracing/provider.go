package tracing

import (
	"context"
	"time"

	configs "github.com/opst/mlcommons/pkg/configs/node"
	xe "github.com/opst/mlcommons/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExportTimeout limits time to export a batch of spans.
const ExportTimeout = 30 * time.Second

// NewProvider builds a TracerProvider exporting spans in OTLP over HTTP.
//
// When tracing is disabled, it returns a no-op provider.
// The returned function flushes and stops the provider.
func NewProvider(ctx context.Context, conf *configs.TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	if conf == nil || !conf.Enabled() {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(conf.Endpoint()),
		otlptracehttp.WithTimeout(ExportTimeout),
	}
	if conf.Insecure() {
		options = append(options, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(options...))
	if err != nil {
		return nil, nil, xe.Wrap(err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(conf.ServiceName()),
		)),
	)
	return provider, provider.Shutdown, nil
}
