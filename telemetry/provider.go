package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/itsneelabh/storefront/core"
)

const instrumentationName = "github.com/itsneelabh/storefront"

// Provider owns the trace and meter providers for the process.
// A disabled Provider hands out no-op tracers and metrics.
type Provider struct {
	tracerProvider trace.TracerProvider
	sdkTracer      *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        core.Metrics
}

// SetupOption customizes Setup
type SetupOption func(*setupOptions)

type setupOptions struct {
	stdout       io.Writer
	metricReader sdkmetric.Reader
}

// WithStdoutWriter redirects the stdout span exporter
func WithStdoutWriter(w io.Writer) SetupOption {
	return func(o *setupOptions) { o.stdout = w }
}

// WithMetricReader replaces the exporter-backed metric reader
func WithMetricReader(r sdkmetric.Reader) SetupOption {
	return func(o *setupOptions) { o.metricReader = r }
}

// Setup creates the providers described by cfg and installs them globally.
//
// The otlp exporter sends spans over gRPC and metrics over HTTP to
// cfg.Endpoint. The stdout exporter prints spans and keeps metrics in
// memory.
func Setup(ctx context.Context, cfg core.TelemetryConfig, serviceName string, logger core.Logger, opts ...SetupOption) (*Provider, error) {
	logger = core.LoggerOrNoOp(logger)
	if !cfg.Enabled {
		return &Provider{
			tracerProvider: noop.NewTracerProvider(),
			metrics:        &core.NoOpMetrics{},
		}, nil
	}

	o := &setupOptions{stdout: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.ServiceName != "" {
		serviceName = cfg.ServiceName
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(core.Version),
	)

	var spanExporter sdktrace.SpanExporter
	reader := o.metricReader
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		spanExporter = exp
		if reader == nil {
			reader = sdkmetric.NewManualReader()
		}
	case "otlp", "":
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		spanExporter = exp

		if reader == nil {
			metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
			if cfg.Insecure {
				metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
			}
			metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
			if err != nil {
				_ = exp.Shutdown(ctx)
				return nil, fmt.Errorf("failed to create metric exporter: %w", err)
			}
			reader = sdkmetric.NewPeriodicReader(metricExp)
		}
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry enabled", map[string]interface{}{
		"exporter": cfg.Exporter,
		"endpoint": cfg.Endpoint,
		"service":  serviceName,
	})

	instruments := NewMetricInstrumentsWithMeter(mp.Meter(instrumentationName))
	return &Provider{
		tracerProvider: tp,
		sdkTracer:      tp,
		meterProvider:  mp,
		metrics:        NewRecorder(instruments, logger),
	}, nil
}

// Tracer returns the storefront tracer
func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(instrumentationName)
}

// Metrics returns the core.Metrics recorder
func (p *Provider) Metrics() core.Metrics {
	return p.metrics
}

// Enabled reports whether real exporters are installed
func (p *Provider) Enabled() bool {
	return p.sdkTracer != nil
}

// Shutdown flushes and stops the exporters
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.sdkTracer != nil {
		errs = append(errs, p.sdkTracer.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
