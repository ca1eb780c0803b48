package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider wires a stdout-exporting trace provider, matching the
// ambient observability stack's "trace everything, ship nowhere fancy"
// posture for a single-node deployment. Swapping in an OTLP exporter for
// a real backend is a one-line change at the call site, not a code shape
// change.
func NewTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "aegis-gateway"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the package-scoped tracer used around the decision
// pipeline's suspension points (scan, evaluator call, upstream forward,
// sandbox run).
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/aegis-gate/aegis")
}
