package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry owns the SDK providers and the Prometheus registry the engine's
// metrics are exported to.
type Telemetry struct {
	// Metrics are the engine instruments, bound to this telemetry's meter
	// provider.
	Metrics *Metrics

	registry *prometheus.Registry
	shutdown []func(context.Context) error
}

type telemetryOptions struct {
	serviceName    string
	serviceVersion string
	traceExporter  sdktrace.SpanExporter
	global         bool
}

// TelemetryOption configures [Setup].
type TelemetryOption func(*telemetryOptions)

// WithService sets the service name and version reported on every metric and
// span.
func WithService(name, version string) TelemetryOption {
	return func(o *telemetryOptions) {
		if name != "" {
			o.serviceName = name
		}
		o.serviceVersion = version
	}
}

// WithTraceExporter batches finished spans to exp. Without one spans are
// sampled and dropped, which still yields trace ids for log correlation.
func WithTraceExporter(exp sdktrace.SpanExporter) TelemetryOption {
	return func(o *telemetryOptions) { o.traceExporter = exp }
}

// AsGlobal installs the providers and the W3C propagator as the otel
// globals, so [StartSpan] and [DefaultMetrics] use them.
func AsGlobal() TelemetryOption {
	return func(o *telemetryOptions) { o.global = true }
}

// Setup builds the meter and tracer providers. Metrics land in a private
// registry that also carries the Go runtime and process collectors.
func Setup(ctx context.Context, opts ...TelemetryOption) (*Telemetry, error) {
	o := telemetryOptions{serviceName: "vozbraille"}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if o.traceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.traceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	if o.global {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	}

	metrics, err := NewMetrics(mp)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return &Telemetry{
		Metrics:  metrics,
		registry: reg,
		shutdown: []func(context.Context) error{mp.Shutdown, tp.Shutdown},
	}, nil
}

// Handler serves the registry in the Prometheus text and OpenMetrics
// formats.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
