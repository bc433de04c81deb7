package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/shared/testutil"
	"ethvaluation/internal/timetable"
	"ethvaluation/internal/validation"
)

func testConfig() config.AnalysisConfig {
	cfg := config.Default().Analysis
	cfg.Bounds.Replications = 40
	cfg.Bounds.Workers = 2
	cfg.OOS.WindowSize = 36
	cfg.OOS.Workers = 2
	return cfg
}

type recordingMetrics struct {
	mu      sync.Mutex
	runs    []string
	steps   map[string]bool
	windows int
}

func (m *recordingMetrics) RecordRun(_ context.Context, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func (m *recordingMetrics) RecordStep(_ context.Context, step string, _ time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps == nil {
		m.steps = map[string]bool{}
	}
	m.steps[step] = failed
}

func (m *recordingMetrics) RecordWindow(context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows++
}

func TestPipeline_FullRun(t *testing.T) {
	logger, _ := testutil.NewTestLogger(nil)
	metrics := &recordingMetrics{}
	var (
		mu     sync.Mutex
		events []Event
	)
	observer := ObserverFunc(func(_ context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	monthly := testutil.SyntheticMonthly(t, 84, 11)
	p := New(testConfig(), logger, WithMetrics(metrics), WithObserver(observer))

	run, err := p.Run(context.Background(), Input{RunID: "run-1", Monthly: monthly})
	require.NoError(t, err)

	snap := run.State.Snapshot()
	assert.Equal(t, RunStatusCompleted, snap.Status)
	assert.Equal(t, "run-1", snap.ID)
	assert.Equal(t, monthly.Digest(), snap.InputDigest)
	require.Len(t, snap.Steps, len(p.Steps()))
	for _, st := range snap.Steps {
		assert.Contains(t, []StepStatus{StepStatusCompleted, StepStatusFailed, StepStatusSkipped}, st.Status, st.ID)
	}
	prep, _ := run.State.Step(StepPrepare)
	assert.Equal(t, StepStatusCompleted, prep.Status)

	res := run.Results
	assert.Equal(t, 84, res.DataSummary.MonthlyRows)
	assert.Len(t, res.Stationarity, 3)
	require.NotNil(t, res.OLS)
	assert.True(t, res.OLS.Extended.Fit.OK())
	assert.Empty(t, res.Diagnostics.Error)
	assert.NotZero(t, res.Diagnostics.Values.Len())
	require.NotNil(t, res.VECM)
	require.NotNil(t, res.ARDL)
	require.NotNil(t, res.OOS.Result)
	assert.Len(t, res.OOS.TestPoints, 84-36)
	assert.Equal(t, 84-36, metrics.windows)

	assert.True(t, run.ModelFrame.Has(validation.PredictionColumn))
	assert.True(t, run.OLSFrame.Has("fair_value_extended"))
	assert.False(t, monthly.Has("fair_value_extended"), "input table must not be annotated")

	require.NotNil(t, res.Summary)
	f := res.Summary.Final
	assert.InDelta(t, 2.0, f.OLSExtBetaActive.Value(), 0.2)
	require.NotNil(t, f.LastDate)
	assert.Equal(t, monthly.Index()[83].Format(time.DateOnly), *f.LastDate)
	assert.False(t, f.LastPredPriceOOS.IsNA())
	assert.Contains(t, res.Summary.Interpretation, "Network Value Analysis Summary")
	assert.Equal(t, []string{"break_1", "break_2"}, f.BreakChowP.Keys())

	assert.Equal(t, []string{"completed"}, metrics.runs)
	assert.Contains(t, metrics.steps, StepSummary)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, EventRun, events[0].Type)
	assert.Equal(t, RunStatusRunning, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, EventRun, last.Type)
	assert.Equal(t, RunStatusCompleted, last.Status)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ols_diagnostics"`)
}

func TestPipeline_MissingColumnsAreLocal(t *testing.T) {
	monthly := testutil.SyntheticMonthly(t, 72, 3)
	idx := monthly.Index()
	keep := []string{"price_usd", "active_addr", "tx_count", "supply"}
	values := make([][]float64, len(keep))
	for i, c := range keep {
		values[i], _ = monthly.Column(c)
	}
	reduced, err := timetable.FromColumns(idx, keep, values)
	require.NoError(t, err)

	run, err := New(testConfig(), nil).Run(context.Background(), Input{Monthly: reduced})
	require.NoError(t, err)

	res := run.Results
	assert.Contains(t, res.VECM.Error, "Missing columns: [nasdaq]")
	assert.Contains(t, res.ARDL.Error, "Missing columns: [nasdaq]")
	assert.Contains(t, res.OOS.Error, "Missing columns: [nasdaq]")
	assert.NotEmpty(t, res.OLS.Error)
	assert.Equal(t, ExtendedOLSFailed, res.Diagnostics.Error)
	assert.Equal(t, ExtendedOLSFailed, res.Breaks.Error)

	diag, _ := run.State.Step(StepDiagnostics)
	assert.Equal(t, StepStatusSkipped, diag.Status)
	vecm, _ := run.State.Step(StepVECM)
	assert.Equal(t, StepStatusFailed, vecm.Status)
	assert.Equal(t, RunStatusCompleted, run.State.Status())

	data, err := json.Marshal(res.Diagnostics)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Extended OLS failed"}`, string(data))
	assert.Nil(t, res.Summary.Final.OOSNPredictions)
}

func TestPipeline_FatalAndCancelled(t *testing.T) {
	_, err := New(testConfig(), nil).Run(context.Background(), Input{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	monthly := testutil.SyntheticMonthly(t, 72, 5)
	nan := make([]float64, monthly.Len())
	for i := range nan {
		nan[i] = math.NaN()
	}
	empty := monthly.Clone()
	require.NoError(t, empty.SetColumn("price_usd", nan))

	run, err := New(testConfig(), nil).Run(context.Background(), Input{Monthly: empty})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataInsufficient))
	assert.Equal(t, RunStatusFailed, run.State.Status())
	st, _ := run.State.Step(StepVECM)
	assert.Equal(t, StepStatusPending, st.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err = New(testConfig(), nil).Run(ctx, Input{Monthly: monthly})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunStatusCancelled, run.State.Status())
}

func TestPipeline_OOSUsesWinsorizedFrame(t *testing.T) {
	logger, _ := testutil.NewTestLogger(nil)
	cfg := testConfig()
	p := New(cfg, logger)

	run, err := p.Run(context.Background(), Input{RunID: "run-oos", Monthly: testutil.SyntheticMonthly(t, 72, 4)})
	require.NoError(t, err)
	require.NotNil(t, run.Results.OOS.Result)
	require.NotNil(t, run.Winsorized)

	want, err := validation.NewValidator(logger).Run(context.Background(), run.Winsorized, cfg.OOS)
	require.NoError(t, err)

	got := run.Results.OOS.Result
	assert.Equal(t, want.TestPoints, got.TestPoints)
	assert.Equal(t, want.NValidPredictions, got.NValidPredictions)
	assert.InDelta(t, want.RMSE.Value(), got.RMSE.Value(), 1e-12)
}
