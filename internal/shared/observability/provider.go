// Package observability wires the OpenTelemetry tracer used to span
// the coordinator's request dispatch, the host's RPC handling, and
// each task run, exporting to whichever backend the deployment
// configures. It has no single teacher source file to adapt from —
// the teacher's go.mod carries the same exporter set
// (jaeger/otlptracehttp/zipkin/prometheus) but its bootstrap file was
// not part of the retrieval pack — so this is wired fresh against that
// dependency list and the span-naming convention its surviving
// `react/tracing_test.go` demonstrates (`otel.Tracer(name).Start`).
package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ExporterKind selects which tracing backend Init configures.
type ExporterKind string

const (
	ExporterNone   ExporterKind = ""
	ExporterJaeger ExporterKind = "jaeger"
	ExporterOTLP   ExporterKind = "otlp"
	ExporterZipkin ExporterKind = "zipkin"
)

// exporterEnvVar selects the tracing backend at process startup; unset
// or unrecognized disables tracing (spans become no-ops).
const exporterEnvVar = "SLOPCOORD_TRACE_EXPORTER"

// Shutdown flushes and tears down whatever exporter Init configured.
type Shutdown func(context.Context) error

// Init configures the global TracerProvider and MeterProvider for
// serviceName, selecting the trace exporter from SLOPCOORD_TRACE_EXPORTER
// ("jaeger", "otlp", "zipkin", or unset for none). The metrics side
// always registers a Prometheus collector on the default registerer
// alongside the coordinator/host's own client_golang counters, since
// the OTel SDK's instrument set (histograms, exemplars) covers
// latency distributions the hand-rolled gauges don't.
func Init(serviceName string) (Shutdown, error) {
	shutdowns := make([]Shutdown, 0, 2)

	tp, tracerShutdown, err := newTracerProvider(ExporterKind(os.Getenv(exporterEnvVar)))
	if err != nil {
		return nil, fmt.Errorf("init tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tracerShutdown)

	mp, err := newMeterProvider()
	if err != nil {
		return nil, fmt.Errorf("init meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdowns = append(shutdowns, mp.Shutdown)

	return func(ctx context.Context) error {
		var firstErr error
		for _, s := range shutdowns {
			if err := s(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

func newTracerProvider(kind ExporterKind) (*sdktrace.TracerProvider, Shutdown, error) {
	noop := func(context.Context) error { return nil }
	switch kind {
	case ExporterJaeger:
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint())
		if err != nil {
			return nil, nil, err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		return tp, tp.Shutdown, nil
	case ExporterOTLP:
		exp, err := otlptracehttp.New(context.Background())
		if err != nil {
			return nil, nil, err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		return tp, tp.Shutdown, nil
	case ExporterZipkin:
		exp, err := zipkin.New("")
		if err != nil {
			return nil, nil, err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		return tp, tp.Shutdown, nil
	default:
		// No exporter configured: spans are created but go nowhere,
		// cheaper than special-casing every call site on "is tracing on".
		return sdktrace.NewTracerProvider(), noop, nil
	}
}

func newMeterProvider() (*sdkmetric.MeterProvider, error) {
	exp, err := otelprometheus.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}

// Tracer is the package-wide tracer every span-producing call site
// starts spans from.
var Tracer = otel.Tracer("slopcoordinator")

// StartSpan starts a span named name under Tracer, a thin helper so
// call sites don't each re-import go.opentelemetry.io/otel/trace.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name)
}

// Meter is the package-wide meter instrument-producing call sites use.
var Meter metric.Meter = otel.Meter("slopcoordinator")
