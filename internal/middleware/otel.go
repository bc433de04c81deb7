package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"ethvaluation/internal/infrastructure"
)

// OTelMiddleware traces every request and records HTTP metrics.
type OTelMiddleware struct {
	tracer trace.Tracer

	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter

	logger *slog.Logger
}

// NewOTelMiddleware creates the HTTP instruments on the telemetry meter.
func NewOTelMiddleware(tel *infrastructure.Telemetry, logger *slog.Logger) (*OTelMiddleware, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &OTelMiddleware{tracer: tel.Tracer, logger: logger}
	var err error
	if m.requests, err = tel.Meter.Int64Counter("http_requests",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.duration, err = tel.Meter.Float64Histogram("http_request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.active, err = tel.Meter.Int64UpDownCounter("http_requests_active",
		metric.WithDescription("HTTP requests in flight")); err != nil {
		return nil, fmt.Errorf("failed to create active request counter: %w", err)
	}
	return m, nil
}

// Handler returns the middleware handler function
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPathKey.String(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				semconv.ClientAddressKey.String(r.RemoteAddr),
			),
		)
		defer span.End()

		if span.SpanContext().IsValid() {
			ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		}
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		span.SetName(r.Method + " " + route)

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.Int("status_code", status),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, elapsed.Seconds(), attrs)

		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(status),
			semconv.HTTPResponseBodySizeKey.Int(ww.BytesWritten()),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// routePattern keeps metric cardinality bounded by using the chi pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}
