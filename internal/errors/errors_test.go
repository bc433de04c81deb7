package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewDataInsufficientError("Insufficient observations."),
			expected: "[DATA_INSUFFICIENT] Insufficient observations.",
		},
		{
			name:     "with cause",
			err:      NewNumericalError("fit failed", errors.New("singular design matrix")),
			expected: "[NUMERICAL] fit failed: singular design matrix",
		},
		{
			name:     "not found",
			err:      NewNotFoundError("column price_usd"),
			expected: "[NOT_FOUND] column price_usd not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_UnwrapAndType(t *testing.T) {
	cause := errors.New("root")
	err := fmt.Errorf("run step: %w", NewExtractionError("Normalization failed", cause))

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrTypeExtraction, TypeOf(err))
	assert.True(t, IsType(err, ErrTypeExtraction))
	assert.False(t, IsType(errors.New("plain"), ErrTypeExtraction))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewIterationError("window failed", nil).WithContext("window_end", "2021-01-31")
	assert.Equal(t, "2021-01-31", err.Context["window_end"])

	bare := &AppError{Type: ErrTypeStorage}
	bare.WithContext("path", "out.json")
	assert.Equal(t, "out.json", bare.Context["path"])
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	h := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	req := httptest.NewRequest(http.MethodGet, "/api/analysis/runs/x", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"api conflict", ErrRunNotFinished, http.StatusConflict, TypeConflict},
		{"app not found", NewNotFoundError("analysis run x"), http.StatusNotFound, TypeNotFound},
		{"insufficient data", NewDataInsufficientError("too short"), http.StatusUnprocessableEntity, TypeDataInsufficient},
		{"validation", NewAppValidationError("bad quantile"), http.StatusBadRequest, TypeValidation},
		{"wrapped numerical", fmt.Errorf("step: %w", NewNumericalError("svd", nil)), http.StatusUnprocessableEntity, TypeNumerical},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
		})
	}
}

func TestErrorHandler_HandleErrorWritesProblem(t *testing.T) {
	h := NewErrorHandler(nil, false)
	req := httptest.NewRequest(http.MethodGet, "/api/analysis/runs/abc", nil)
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, NewWithDetails(http.StatusNotFound, "RUN_NOT_FOUND", "analysis run abc not found", "abc"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RUN_NOT_FOUND", body["error_code"])
	assert.Equal(t, "/api/analysis/runs/abc", body["instance"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	h := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), true)
	rec := httptest.NewRecorder()

	h.HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/", nil), "kaboom")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "kaboom")
	assert.Contains(t, rec.Body.String(), "trace_id")
}

func TestErrorHandler_RouteProblems(t *testing.T) {
	h := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "PATCH")
}
