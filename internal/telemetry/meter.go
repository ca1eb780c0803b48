package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// NewMeterProvider wires a stdout-exporting meter provider alongside the
// trace provider, same single-node posture: periodic export to stdout, an
// OTLP reader is a call-site swap.
func NewMeterProvider(ctx context.Context) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "aegis-gateway"),
	))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(30*time.Second),
		)),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns the package-scoped meter.
func Meter() metric.Meter {
	return otel.Meter("github.com/aegis-gate/aegis")
}

// RegisterStateGauges registers observable gauges over the in-memory
// decision state that the Prometheus counters cannot see: counters count
// events, these observe residency. The callbacks run on the provider's
// export interval, so they must be cheap and lock briefly.
func RegisterStateGauges(preparedRecords, bufferedThreats func() int64) error {
	meter := Meter()

	prepared, err := meter.Int64ObservableGauge("aegis.prepared_records",
		metric.WithDescription("PrepareRecords currently resident in memory."))
	if err != nil {
		return err
	}
	threats, err := meter.Int64ObservableGauge("aegis.threats_buffered",
		metric.WithDescription("Threats currently held in the ring buffer."))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(prepared, preparedRecords())
		o.ObserveInt64(threats, bufferedThreats())
		return nil
	}, prepared, threats)
	return err
}
