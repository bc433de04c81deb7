package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
)

func newTestTelemetry(t *testing.T, enabled bool) *Telemetry {
	t.Helper()
	cfg := config.TelemetryConfig{Enabled: enabled, ServiceName: "ethvaluation-test", TraceExporter: "none"}
	tel, err := NewTelemetry(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func scrape(t *testing.T, h http.Handler) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestTelemetry_MetricsExposition(t *testing.T) {
	tel := newTestTelemetry(t, true)
	ctx := context.Background()

	tel.Metrics.RecordRun(ctx, "completed")
	tel.Metrics.RecordStep(ctx, "vecm", 250*time.Millisecond, false)
	tel.Metrics.RecordStep(ctx, "ardl", time.Second, true)
	tel.Metrics.RecordWindow(ctx, false)
	tel.Metrics.RecordWindow(ctx, true)

	code, body := scrape(t, tel.MetricsHandler())
	require.Equal(t, http.StatusOK, code)
	for _, name := range []string{
		"analysis_runs_total",
		"analysis_step_duration_seconds_bucket",
		"analysis_step_failures_total",
		"oos_windows_total",
		"oos_window_failures_total",
	} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `status="completed"`)
	assert.Contains(t, body, `step="ardl"`)
}

func TestTelemetry_Disabled(t *testing.T) {
	tel := newTestTelemetry(t, false)

	tel.Metrics.RecordRun(context.Background(), "completed")
	code, _ := scrape(t, tel.MetricsHandler())
	assert.Equal(t, http.StatusNotFound, code)

	ctx, span := tel.StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))
}

func TestTelemetry_SpanTraceIDReachesLogs(t *testing.T) {
	tel := newTestTelemetry(t, true)

	ctx, span := tel.StartSpan(context.Background(), "analysis")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())

	var buf bytes.Buffer
	slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).InfoContext(ctx, "step")
	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0]["trace_id"])

	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
}

func TestNewTelemetry_UnsupportedExporter(t *testing.T) {
	_, err := NewTelemetry(config.TelemetryConfig{Enabled: true, ServiceName: "x", TraceExporter: "zipkin"}, "test", nil)
	assert.Error(t, err)
}
