package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider bundles the tracer and meter providers installed as otel globals
type Provider struct {
	tracer   *trace.TracerProvider
	meter    *metric.MeterProvider
	registry *prometheus.Registry
}

// Options configures Setup
type Options struct {
	ServiceName string
	// TraceOutput receives stdout-exported spans; nil disables tracing export
	TraceOutput io.Writer
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
}

// Setup installs a tracer provider (stdout exporter) and a meter provider
// backed by a dedicated prometheus registry
func Setup(opts Options) (*Provider, error) {
	res, err := newResource(opts.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	if opts.TraceOutput != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceOutput))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
		}
		traceOpts = append(traceOpts, trace.WithBatcher(exp))
	}
	tp := trace.NewTracerProvider(traceOpts...)

	registry := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(metric.WithReader(exp), metric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Provider{tracer: tp, meter: mp, registry: registry}, nil
}

// MetricsHandler exposes the registry in the prometheus text format
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending spans and metrics
func (p *Provider) Shutdown(ctx context.Context) error {
	terr := p.tracer.Shutdown(ctx)
	merr := p.meter.Shutdown(ctx)
	if terr != nil {
		return terr
	}
	return merr
}
