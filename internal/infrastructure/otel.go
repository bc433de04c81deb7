package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ethvaluation/internal/config"
)

// InstrumentationName names the tracer and meter of this module.
const InstrumentationName = "ethvaluation"

// Telemetry bundles the tracing and metrics providers of a process.
type Telemetry struct {
	Tracer  trace.Tracer
	Meter   metric.Meter
	Metrics *AnalysisMetrics

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsHandler http.Handler
	logger         *slog.Logger
}

// NewTelemetry sets up tracing and a Prometheus-backed meter. With telemetry
// disabled every instrument is a no-op and the metrics handler answers 404.
func NewTelemetry(cfg config.TelemetryConfig, version string, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telemetry{
		Tracer:         tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:          metricnoop.NewMeterProvider().Meter(InstrumentationName),
		metricsHandler: http.NotFoundHandler(),
		logger:         logger.With(slog.String("component", "telemetry")),
	}

	if cfg.Enabled {
		res := resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("service.instance.id", instanceID()),
		)
		if err := t.initTracing(cfg, res); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		if err := t.initMetrics(res, version); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	metrics, err := NewAnalysisMetrics(t.Meter)
	if err != nil {
		return nil, err
	}
	t.Metrics = metrics

	t.logger.Info("telemetry initialized",
		slog.Bool("enabled", cfg.Enabled),
		slog.String("trace_exporter", cfg.TraceExporter))
	return t, nil
}

func (t *Telemetry) initTracing(cfg config.TelemetryConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case "none", "":
		// spans are still created so log records carry trace IDs
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	t.tracerProvider = tp
	t.Tracer = tp.Tracer(InstrumentationName)
	otel.SetTracerProvider(tp)
	return nil
}

func (t *Telemetry) initMetrics(res *resource.Resource, version string) error {
	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	t.meterProvider = mp
	t.Meter = mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(version))
	t.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	otel.SetMeterProvider(mp)
	return nil
}

// MetricsHandler serves the Prometheus exposition format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// StartSpan starts a span named name with the given attributes.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AnalysisMetrics holds the instruments recorded by analysis runs.
type AnalysisMetrics struct {
	runs          metric.Int64Counter
	stepDuration  metric.Float64Histogram
	stepFailures  metric.Int64Counter
	windows       metric.Int64Counter
	windowFailure metric.Int64Counter
}

// NewAnalysisMetrics creates the analysis instruments on meter.
func NewAnalysisMetrics(meter metric.Meter) (*AnalysisMetrics, error) {
	var (
		m   AnalysisMetrics
		err error
	)
	if m.runs, err = meter.Int64Counter("analysis_runs",
		metric.WithDescription("Analysis runs by final status"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	if m.stepDuration, err = meter.Float64Histogram("analysis_step_duration",
		metric.WithDescription("Duration of analysis steps"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300)); err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}
	if m.stepFailures, err = meter.Int64Counter("analysis_step_failures",
		metric.WithDescription("Analysis steps that recorded an error")); err != nil {
		return nil, fmt.Errorf("failed to create step failure counter: %w", err)
	}
	if m.windows, err = meter.Int64Counter("oos_windows",
		metric.WithDescription("Walk-forward windows evaluated")); err != nil {
		return nil, fmt.Errorf("failed to create window counter: %w", err)
	}
	if m.windowFailure, err = meter.Int64Counter("oos_window_failures",
		metric.WithDescription("Walk-forward windows that produced no prediction")); err != nil {
		return nil, fmt.Errorf("failed to create window failure counter: %w", err)
	}
	return &m, nil
}

// RecordRun counts a finished run.
func (m *AnalysisMetrics) RecordRun(ctx context.Context, status string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordStep records the duration of a step and counts it as failed when
// failed is set.
func (m *AnalysisMetrics) RecordStep(ctx context.Context, step string, d time.Duration, failed bool) {
	attrs := metric.WithAttributes(attribute.String("step", step))
	m.stepDuration.Record(ctx, d.Seconds(), attrs)
	if failed {
		m.stepFailures.Add(ctx, 1, attrs)
	}
}

// RecordWindow counts one walk-forward window.
func (m *AnalysisMetrics) RecordWindow(ctx context.Context, failed bool) {
	m.windows.Add(ctx, 1)
	if failed {
		m.windowFailure.Add(ctx, 1)
	}
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
