// Package telemetry provides OpenTelemetry tracing, metrics and log export
// initialization for mailhook.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted in Options.Exporter.
const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// Options configures the OpenTelemetry providers.
type Options struct {
	// Enabled controls whether telemetry is active. When false, no-op
	// providers are installed and the shutdown function is a no-op.
	Enabled bool

	// ServiceName is the service.name resource attribute. Default: "mailhook".
	ServiceName string

	// ServiceVersion is the service.version resource attribute.
	ServiceVersion string

	// Exporter selects where signals go:
	//   "otlp" (default): traces, metrics and logs over OTLP gRPC.
	//   "prometheus": metrics through a Prometheus registry, traces sampled but not exported.
	//   "none": SDK providers with nothing exported.
	Exporter string

	// Endpoint is the OTLP collector endpoint (e.g. "otel-collector:4317").
	Endpoint string

	// Insecure disables TLS for the OTLP gRPC connections.
	Insecure bool

	// SamplingRate is the probability of sampling a trace (0.0-1.0).
	SamplingRate float64

	// Logger is used for internal diagnostics.
	Logger *slog.Logger
}

// Providers are the initialized signal providers.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// LoggerProvider is nil unless logs are exported.
	LoggerProvider otellog.LoggerProvider
	// Registry is non-nil with the prometheus exporter.
	Registry *prometheus.Registry

	flushers []func(context.Context) error
}

// ForceFlush exports pending telemetry. Call it before a Lambda invocation
// returns, since the execution environment may be frozen afterwards.
func (p *Providers) ForceFlush(ctx context.Context) error {
	var errs []error
	for _, f := range p.flushers {
		errs = append(errs, f(ctx))
	}
	return errors.Join(errs...)
}

// ShutdownFunc flushes and stops every provider.
type ShutdownFunc func(ctx context.Context) error

// Init builds the providers described by opts and installs them globally.
func Init(ctx context.Context, opts Options) (*Providers, ShutdownFunc, error) {
	if !opts.Enabled {
		p := &Providers{
			TracerProvider: tracenoop.NewTracerProvider(),
			MeterProvider:  metricnoop.NewMeterProvider(),
		}
		otel.SetTracerProvider(p.TracerProvider)
		otel.SetMeterProvider(p.MeterProvider)
		return p, func(context.Context) error { return nil }, nil
	}

	if opts.ServiceName == "" {
		opts.ServiceName = "mailhook"
	}
	if opts.Exporter == "" {
		opts.Exporter = ExporterOTLP
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.SamplingRate < 0 || opts.SamplingRate > 1.0 {
		log.Warn("OTel sampling rate out of range, clamping to 1.0", slog.Float64("provided", opts.SamplingRate))
		opts.SamplingRate = 1.0
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRate))),
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	var (
		lp       *sdklog.LoggerProvider
		registry *prometheus.Registry
	)

	switch opts.Exporter {
	case ExporterOTLP:
		traceExp, metricExp, logExp, err := newOTLPExporters(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExp))
		mpOpts = append(mpOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		lp = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		)
		log.Info("OTel OTLP exporters initialized",
			slog.String("endpoint", opts.Endpoint),
			slog.Bool("insecure", opts.Insecure),
		)

	case ExporterPrometheus:
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reader, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("creating Prometheus exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		log.Info("OTel Prometheus exporter initialized")

	case ExporterNone:
		log.Info("OTel enabled with no exporter", slog.String("note", "signals are recorded but not exported"))

	default:
		return nil, nil, fmt.Errorf("unknown OTel exporter %q: supported values are otlp, prometheus, none", opts.Exporter)
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn("OpenTelemetry internal error", slog.String("error", err.Error()))
	}))

	p := &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Registry:       registry,
		flushers:       []func(context.Context) error{tp.ForceFlush, mp.ForceFlush},
	}
	stops := []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	if lp != nil {
		p.LoggerProvider = lp
		p.flushers = append(p.flushers, lp.ForceFlush)
		stops = append(stops, lp.Shutdown)
	}

	log.Info("OpenTelemetry initialized",
		slog.String("service_name", opts.ServiceName),
		slog.String("exporter", opts.Exporter),
		slog.Float64("sampling_rate", opts.SamplingRate),
	)

	shutdown := func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var errs []error
		for _, stop := range stops {
			errs = append(errs, stop(shutdownCtx))
		}
		return errors.Join(errs...)
	}
	return p, shutdown, nil
}

// OTLP exporter constructors, replaced in tests.
var (
	newTraceExporter = func(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, traceGRPCOptions(opts)...)
	}
	newMetricExporter = func(ctx context.Context, opts Options) (sdkmetric.Exporter, error) {
		return otlpmetricgrpc.New(ctx, metricGRPCOptions(opts)...)
	}
	newLogExporter = func(ctx context.Context, opts Options) (sdklog.Exporter, error) {
		return otlploggrpc.New(ctx, logGRPCOptions(opts)...)
	}
)

// newOTLPExporters creates the three OTLP exporters. On failure the ones
// already created are shut down.
func newOTLPExporters(ctx context.Context, opts Options) (sdktrace.SpanExporter, sdkmetric.Exporter, sdklog.Exporter, error) {
	traceExp, err := newTraceExporter(ctx, opts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	metricExp, err := newMetricExporter(ctx, opts)
	if err != nil {
		return nil, nil, nil, errors.Join(
			fmt.Errorf("creating OTLP metric exporter: %w", err),
			traceExp.Shutdown(ctx),
		)
	}
	logExp, err := newLogExporter(ctx, opts)
	if err != nil {
		return nil, nil, nil, errors.Join(
			fmt.Errorf("creating OTLP log exporter: %w", err),
			traceExp.Shutdown(ctx),
			metricExp.Shutdown(ctx),
		)
	}
	return traceExp, metricExp, logExp, nil
}

func traceGRPCOptions(opts Options) []otlptracegrpc.Option {
	o := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		o = append(o, otlptracegrpc.WithInsecure())
	}
	return o
}

func metricGRPCOptions(opts Options) []otlpmetricgrpc.Option {
	o := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		o = append(o, otlpmetricgrpc.WithInsecure())
	}
	return o
}

func logGRPCOptions(opts Options) []otlploggrpc.Option {
	o := []otlploggrpc.Option{otlploggrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		o = append(o, otlploggrpc.WithInsecure())
	}
	return o
}
