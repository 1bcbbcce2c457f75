// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup exports spans over OTLP/HTTP when tracing is enabled. The
// collector endpoint comes from OTEL_EXPORTER_OTLP_ENDPOINT; without it
// tracing stays disabled.
func Setup(ctx context.Context, cfg domain.TracingConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop, nil
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Warn("tracing enabled but OTEL_EXPORTER_OTLP_ENDPOINT is not set; spans are dropped")
		return noop, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := NewProvider(cfg.ServiceName, exp)
	slog.Info("tracing enabled", "endpoint", endpoint, "service", cfg.ServiceName)
	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider around exp and installs it as the
// global provider.
func NewProvider(serviceName string, exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	if serviceName == "" {
		serviceName = "radiowatch"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp
}
