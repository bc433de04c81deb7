package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"ethvaluation/internal/config"
)

type contextKey string

const (
	// TraceIDContextKey stores the request or run trace ID in a context.
	TraceIDContextKey contextKey = "trace_id"
	// RunIDContextKey stores the analysis run ID in a context.
	RunIDContextKey contextKey = "run_id"
)

// NewLogger builds a JSON slog logger writing to stdout, a file, or both,
// depending on cfg.Output. The returned closer releases the log file and is
// never nil.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.LoggingConfig, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     ParseLogLevel(cfg.Level),
	}

	var (
		output io.Writer = stdout
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "file", "both":
		file, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		closer = file
		output = file
		if strings.EqualFold(cfg.Output, "both") {
			output = io.MultiWriter(stdout, file)
		}
	}

	handler := NewTraceHandler(slog.NewJSONHandler(output, opts))
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TraceHandler adds trace_id and run_id attributes taken from the context.
// An active OpenTelemetry span wins over a trace ID stored with WithTraceID.
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	if runID := GetRunID(ctx); runID != "" {
		r.AddAttrs(slog.String("run_id", runID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLogLevel converts a configured level name, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the trace ID of the active span, or the one stored with
// WithTraceID.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if traceID, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

// WithRunID tags the context with an analysis run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDContextKey, runID)
}

// GetRunID returns the run ID stored with WithRunID.
func GetRunID(ctx context.Context) string {
	runID, _ := ctx.Value(RunIDContextKey).(string)
	return runID
}

func openLogFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}
	return file, nil
}
