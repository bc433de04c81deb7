package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
	apierrors "ethvaluation/internal/errors"
	"ethvaluation/internal/exporter"
	"ethvaluation/internal/files"
	"ethvaluation/internal/middleware"
	"ethvaluation/internal/pipeline"
	"ethvaluation/internal/services"
	"ethvaluation/internal/shared/testutil"
)

type fixedClients int

func (c fixedClients) ClientCount() int { return int(c) }

type testServer struct {
	router http.Handler
	paths  config.Paths
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.Bounds.Replications = 40
	cfg.Analysis.OOS.WindowSize = 36
	cfg.Server.RunTimeout = time.Minute
	cfg.Export.Formats = []string{"json", "csv"}

	paths := cfg.Paths.Resolve(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	logger, _ := testutil.NewTestLogger(t)

	loader := files.NewLoader(paths, logger)
	analysis := services.NewAnalysisService(cfg, paths, loader, logger)
	t.Cleanup(func() { _ = analysis.Shutdown(context.Background()) })
	health := services.NewHealthService("test", "now", paths, analysis, fixedClients(0), logger)

	eh := apierrors.NewErrorHandler(logger, false)
	runs := NewAnalysisHandler(analysis, middleware.NewValidator(eh, logger), eh, nil, logger)
	inputs := NewInputsHandler(loader, eh, logger)
	hh := NewHealthHandler(health, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(eh.NotFound)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/analysis/runs", runs.Routes())
		r.Get("/inputs", inputs.ListInputs)
		r.Get("/health", hh.HealthCheck)
		r.Get("/health/ready", hh.ReadinessCheck)
		r.Get("/version", hh.Version)
	})
	return testServer{router: r, paths: paths}
}

func (s testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAnalysisHandler_RunLifecycle(t *testing.T) {
	s := newTestServer(t)
	monthly := filepath.Base(testutil.WriteMonthlyCSV(t, s.paths.DataDir, 60, 4))

	rec := s.do(t, http.MethodPost, "/api/analysis/runs", `{"monthly_path":"`+monthly+`","window_size":40}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[services.RunInfo](t, rec)
	require.NotEmpty(t, started.ID)
	assert.Equal(t, "/api/analysis/runs/"+started.ID, rec.Header().Get("Location"))

	var info services.RunInfo
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/analysis/runs/"+started.ID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		info = decode[services.RunInfo](t, rec)
		return info.Status.Terminal() && (len(info.Outputs) > 0 || info.ExportError != "")
	}, 60*time.Second, 50*time.Millisecond)
	require.Equal(t, pipeline.RunStatusCompleted, info.Status)
	assert.NotEmpty(t, info.Steps)

	rec = s.do(t, http.MethodGet, "/api/analysis/runs/"+started.ID+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[map[string]any](t, rec)
	assert.Contains(t, results, "ols")

	rec = s.do(t, http.MethodGet, "/api/analysis/runs/"+started.ID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Network Value Analysis Summary")

	rec = s.do(t, http.MethodGet, "/api/analysis/runs/"+started.ID+"/files/"+exporter.FinalResultsFile, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), exporter.FinalResultsFile)

	rec = s.do(t, http.MethodGet, "/api/analysis/runs/"+started.ID+"/files/"+exporter.WorkbookFile, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "xlsx was not requested")

	rec = s.do(t, http.MethodGet, "/api/analysis/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Runs  []services.RunInfo `json:"runs"`
		Count int                `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = s.do(t, http.MethodDelete, "/api/analysis/runs/"+started.ID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "cancelling a finished run is a no-op")
}

func TestAnalysisHandler_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"unknown run", http.MethodGet, "/api/analysis/runs/nope", "", http.StatusNotFound},
		{"unknown run results", http.MethodGet, "/api/analysis/runs/nope/results", "", http.StatusNotFound},
		{"cancel unknown run", http.MethodDelete, "/api/analysis/runs/nope", "", http.StatusNotFound},
		{"path traversal", http.MethodPost, "/api/analysis/runs", `{"monthly_path":"../../etc/passwd.csv"}`, http.StatusBadRequest},
		{"bad format", http.MethodPost, "/api/analysis/runs", `{"formats":["pdf"]}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/analysis/runs", `{"window_size":`, http.StatusBadRequest},
		{"missing input", http.MethodPost, "/api/analysis/runs", `{"monthly_path":"absent.csv"}`, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			problem := decode[map[string]any](t, rec)
			assert.EqualValues(t, tt.wantStatus, problem["status"])
		})
	}
}

func TestServiceError(t *testing.T) {
	assert.Equal(t, apierrors.ErrRunNotFinished, serviceError(services.ErrRunNotFinished))
	assert.Equal(t, apierrors.ErrRunLimitReached, serviceError(services.ErrTooManyRuns))

	var apiErr *apierrors.APIError
	require.ErrorAs(t, serviceError(services.ErrShuttingDown), &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	other := apierrors.NewNotFoundError("x")
	assert.Equal(t, error(other), serviceError(other))
}

func TestInputsHandler_ListInputs(t *testing.T) {
	s := newTestServer(t)
	testutil.WriteMonthlyCSV(t, s.paths.DataDir, 30, 1)

	rec := s.do(t, http.MethodGet, "/api/inputs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Files []struct {
			Name    string `json:"name"`
			Monthly bool   `json:"monthly"`
		} `json:"files"`
		Count int `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.True(t, strings.HasSuffix(body.Files[0].Name, ".csv"))
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[services.HealthStatus](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/api/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[map[string]any](t, rec)["version"])
}
