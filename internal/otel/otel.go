package otel

import (
	"context"
	"log/slog"

	"github.com/corray333/backend-labs/bakery/internal/jaeger"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// OtelController owns the tracer provider of one binary.
type OtelController struct {
	traceProvider *sdktrace.TracerProvider
}

// MustInitOtel installs the global tracer provider and the W3C propagator.
// With otel.enabled false the global no-op provider is kept and spans are discarded.
func MustInitOtel(serviceName string) *OtelController {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !viper.GetBool("otel.enabled") {
		slog.Info("Tracing disabled")

		return &OtelController{}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(jaeger.MustNewJaeger()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	slog.Info("Tracing enabled", "service", serviceName)

	return &OtelController{
		traceProvider: tp,
	}
}

// Shutdown flushes pending spans.
func (o *OtelController) Shutdown(ctx context.Context) error {
	if o.traceProvider == nil {
		return nil
	}

	return o.traceProvider.Shutdown(ctx)
}
