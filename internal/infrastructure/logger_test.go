package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line %q", line)
		out = append(out, entry)
	}
	return out
}

func TestNewLogger_Outputs(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantStdout bool
		wantFile   bool
	}{
		{"stdout", "stdout", true, false},
		{"file", "file", false, true},
		{"both", "both", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logFile := filepath.Join(t.TempDir(), "nested", "test.log")
			var stdout bytes.Buffer

			logger, closer, err := newLogger(config.LoggingConfig{Level: "info", Output: tt.output, FilePath: logFile}, &stdout)
			require.NoError(t, err)
			logger.Info("test message", "key", "value")
			require.NoError(t, closer.Close())

			if tt.wantStdout {
				entries := decodeLines(t, stdout.Bytes())
				require.Len(t, entries, 1)
				assert.Equal(t, "test message", entries[0]["msg"])
				assert.Equal(t, "value", entries[0]["key"])
				assert.Equal(t, "INFO", entries[0]["level"])
			} else {
				assert.Zero(t, stdout.Len())
			}

			content, err := os.ReadFile(logFile)
			if tt.wantFile {
				require.NoError(t, err)
				assert.Len(t, decodeLines(t, content), 1)
			} else {
				assert.True(t, os.IsNotExist(err))
			}
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(config.LoggingConfig{Level: "warn", Output: "stdout"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	assert.Len(t, decodeLines(t, buf.Bytes()), 2)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("bogus"))
}

func TestTraceHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	ctx := WithRunID(WithTraceID(context.Background(), "trace-123"), "run-7")
	logger.InfoContext(ctx, "with ids")
	logger.Info("without ids")

	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-123", entries[0]["trace_id"])
	assert.Equal(t, "run-7", entries[0]["run_id"])
	assert.Equal(t, "test", entries[0]["component"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRunID(ctx))

	ctx = EnsureTraceID(ctx)
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)), "EnsureTraceID keeps an existing ID")

	var buf bytes.Buffer
	LoggerWithContext(WithRunID(ctx, "r1"), slog.New(slog.NewJSONHandler(&buf, nil))).Info("x")
	entries := decodeLines(t, buf.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0]["trace_id"])
	assert.Equal(t, "r1", entries[0]["run_id"])
}
