package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/exporter"
	"ethvaluation/internal/files"
	"ethvaluation/internal/pipeline"
	"ethvaluation/internal/shared/testutil"
	"ethvaluation/internal/timetable"
)

func newTestService(t *testing.T, opts ...pipeline.Option) (*AnalysisService, config.Paths) {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.Bounds.Replications = 40
	cfg.Analysis.OOS.WindowSize = 36
	cfg.Server.RunTimeout = time.Minute
	cfg.Server.MaxRuns = 3
	cfg.Export.Formats = []string{"json"}

	paths := cfg.Paths.Resolve(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	logger, _ := testutil.NewTestLogger(t)

	svc := NewAnalysisService(cfg, paths, files.NewLoader(paths, logger), logger, opts...)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, paths
}

func TestAnalysisService_RunToCompletion(t *testing.T) {
	var (
		mu     sync.Mutex
		events []pipeline.Event
	)
	observer := pipeline.ObserverFunc(func(_ context.Context, ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	svc, paths := newTestService(t, pipeline.WithObserver(observer))
	monthly := testutil.WriteMonthlyCSV(t, t.TempDir(), 60, 4)

	ctx := context.Background()
	info, err := svc.StartRun(ctx, RunRequest{MonthlyPath: monthly, WindowSize: 40})
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, monthly, info.MonthlyPath)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	done, err := svc.Wait(waitCtx, info.ID)
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunStatusCompleted, done.Status)
	assert.Empty(t, done.ExportError)
	runDir := filepath.Join(paths.OutputDir, info.ID)
	assert.Contains(t, done.Outputs, filepath.Join(runDir, exporter.FinalResultsFile))
	assert.FileExists(t, filepath.Join(runDir, exporter.AnalysisResultsFile))

	out, err := svc.OutputFile(ctx, info.ID, exporter.FinalResultsFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runDir, exporter.FinalResultsFile), out)
	_, err = svc.OutputFile(ctx, info.ID, "missing.csv")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	res, err := svc.Results(ctx, info.ID)
	require.NoError(t, err)
	require.NotNil(t, res.OOS.Result)
	assert.Len(t, res.OOS.TestPoints, 60-40, "the request window overrides the configured one")

	summary, err := svc.Summary(ctx, info.ID)
	require.NoError(t, err)
	assert.Contains(t, summary.Interpretation, "Network Value Analysis Summary")

	mu.Lock()
	require.NotEmpty(t, events)
	assert.Equal(t, info.ID, events[0].RunID)
	mu.Unlock()

	runs := svc.ListRuns(ctx)
	require.Len(t, runs, 1)
	assert.Equal(t, info.ID, runs[0].ID)
}

func TestAnalysisService_RequestErrors(t *testing.T) {
	svc, _ := newTestService(t)
	monthly := testutil.WriteMonthlyCSV(t, t.TempDir(), 30, 1)

	tests := []struct {
		name     string
		req      RunRequest
		wantType apperrors.ErrorType
	}{
		{"window too small", RunRequest{MonthlyPath: monthly, WindowSize: 2}, apperrors.ErrTypeValidation},
		{"unknown format", RunRequest{MonthlyPath: monthly, Formats: []string{"pdf"}}, apperrors.ErrTypeValidation},
		{"missing input", RunRequest{MonthlyPath: "absent.csv"}, apperrors.ErrTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartRun(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
	assert.Empty(t, svc.ListRuns(context.Background()), "rejected requests must not create runs")
}

func TestAnalysisService_UnknownRun(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetRun(ctx, "nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	_, err = svc.Results(ctx, "nope")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	assert.True(t, apperrors.IsType(svc.CancelRun(ctx, "nope"), apperrors.ErrTypeNotFound))
}

func TestAnalysisService_ShutdownRejectsRuns(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.StartRun(context.Background(), RunRequest{MonthlyPath: testutil.WriteMonthlyCSV(t, t.TempDir(), 30, 1)})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func pendingRecord(t *testing.T, id string, created time.Time, finished bool) *runRecord {
	t.Helper()
	p := pipeline.New(config.Default().Analysis, nil)
	tbl, err := timetable.FromColumns([]time.Time{created}, []string{"price_usd"}, [][]float64{{1}})
	require.NoError(t, err)
	run, err := p.NewRun(pipeline.Input{RunID: id, Monthly: tbl})
	require.NoError(t, err)

	rec := &runRecord{id: id, createdAt: created, run: run, cancel: func() {}, done: make(chan struct{})}
	if finished {
		close(rec.done)
	}
	return rec
}

func TestRunStore_Eviction(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewRunStore(2)

	require.NoError(t, store.add(pendingRecord(t, "old", base, true)))
	require.NoError(t, store.add(pendingRecord(t, "running", base.Add(time.Minute), false)))
	require.NoError(t, store.add(pendingRecord(t, "new", base.Add(2*time.Minute), false)))

	_, ok := store.get("old")
	assert.False(t, ok, "the oldest finished run is evicted")

	err := store.add(pendingRecord(t, "overflow", base.Add(3*time.Minute), false))
	assert.ErrorIs(t, err, ErrTooManyRuns)

	var ids []string
	for _, r := range store.list() {
		ids = append(ids, r.id)
	}
	assert.Equal(t, []string{"new", "running"}, ids)
	assert.Equal(t, map[string]int{"total": 2, "pending": 2}, store.Stats())
}

func TestAnalysisService_ResultsBeforeFinish(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.store.add(pendingRecord(t, "busy", time.Now(), false)))

	_, err := svc.Results(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrRunNotFinished)
	assert.Equal(t, 1, svc.ActiveRuns())
}
