package validation

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/timetable"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func monthEnds(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, i+1, -1)
	}
	return out
}

// linearTable returns y = 1 + 2x + noise*e with x drawn uniformly on [1, 11).
func linearTable(t *testing.T, n int, noise float64) *timetable.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 7))
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = 1 + 10*rng.Float64()
		y[i] = 1 + 2*x[i] + noise*rng.NormFloat64()
	}
	tbl, err := timetable.FromColumns(monthEnds(n), []string{"y", "x"}, [][]float64{y, x})
	require.NoError(t, err)
	return tbl
}

func baseOptions() Options {
	return Options{
		Endog:       "y",
		Exog:        []string{"x"},
		WindowSize:  10,
		AddConstant: true,
		Workers:     4,
	}
}

func TestRun_ExactRelationPredictsPerfectly(t *testing.T) {
	tbl := linearTable(t, 30, 0)

	res, err := NewValidator(quiet).Run(context.Background(), tbl, baseOptions())
	require.NoError(t, err)

	require.Len(t, res.Predictions, 20)
	for i := range res.Predictions {
		assert.InDelta(t, res.Actuals[i].Value(), res.Predictions[i].Value(), 1e-8)
		require.NotNil(t, res.FittedModels[i])
		assert.InDelta(t, 2.0, res.FittedModels[i].Params.Value("x"), 1e-8)
	}
	assert.Equal(t, 20, res.NValidPredictions)
	assert.InDelta(t, 0, res.RMSE.Value(), 1e-8)
	assert.InDelta(t, 0, res.MAE.Value(), 1e-8)
	assert.Equal(t, tbl.Index()[10], res.TestPoints[0])
	assert.Equal(t, IndexRange{From: 0, To: 10, Start: tbl.Index()[0], End: tbl.Index()[9]}, res.TrainWindows[0])
}

func TestRun_LengthInvariantWithFailures(t *testing.T) {
	tbl := linearTable(t, 30, 0.1)
	y, _ := tbl.Column("y")
	x, _ := tbl.Column("x")
	y[3] = math.NaN()
	x[20] = math.NaN()
	require.NoError(t, tbl.SetColumn("y", y))
	require.NoError(t, tbl.SetColumn("x", x))

	res, err := NewValidator(quiet).Run(context.Background(), tbl, baseOptions())
	require.NoError(t, err)

	for _, l := range []int{len(res.Predictions), len(res.Actuals), len(res.Residuals), len(res.FittedModels), len(res.TrainWindows), len(res.TestPoints)} {
		assert.Equal(t, 20, l)
	}
	// Row 3 is in the training slice of test rows 10..13.
	for k := 0; k < 4; k++ {
		assert.True(t, res.Predictions[k].IsNA(), "window %d", k)
		assert.Nil(t, res.FittedModels[k])
		assert.Equal(t, y[10+k], res.Actuals[k].Value(), "actual still recorded")
	}
	assert.False(t, res.Predictions[4].IsNA())

	// Row 20 has no regressor for the test point, and poisons later training windows.
	assert.True(t, res.Predictions[10].IsNA())
	assert.True(t, res.Residuals[10].IsNA())
	assert.Nil(t, res.FittedModels[10])

	assert.LessOrEqual(t, res.NValidPredictions, 20)
	assert.Equal(t, 20-4-10, res.NValidPredictions)
}

func TestRun_TestRowIsNotWinsorized(t *testing.T) {
	n := 11
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < 10; i++ {
		x[i] = float64(i + 1)
		y[i] = 2 * x[i]
	}
	x[10], y[10] = 1000, 2000
	tbl, err := timetable.FromColumns(monthEnds(n), []string{"y", "x"}, [][]float64{y, x})
	require.NoError(t, err)

	opts := baseOptions()
	opts.WinsorizeColumns = []string{"x"}
	opts.WinsorizeQuantile = 0.9
	res, err := NewValidator(quiet).Run(context.Background(), tbl, opts)
	require.NoError(t, err)

	require.Len(t, res.Predictions, 1)
	assert.Greater(t, res.Predictions[0].Value(), 1000.0, "prediction must use the raw test regressor")
	assert.Equal(t, 10.0, tbl.At("x", 9), "input table is not modified")
	assert.Equal(t, 1000.0, tbl.At("x", 10))
}

func TestRun_InsufficientData(t *testing.T) {
	res, err := NewValidator(quiet).Run(context.Background(), linearTable(t, 10, 0), baseOptions())
	require.NoError(t, err)

	assert.Empty(t, res.Predictions)
	assert.Empty(t, res.TestPoints)
	assert.Equal(t, 0, res.NValidPredictions)
	assert.True(t, res.RMSE.IsNA())
	assert.True(t, res.MAE.IsNA())
	assert.True(t, res.DirectionalAccuracy.IsNA())
}

func TestRun_MissingColumnSkipsEveryWindow(t *testing.T) {
	opts := baseOptions()
	opts.Exog = []string{"x", "absent"}
	res, err := NewValidator(quiet).Run(context.Background(), linearTable(t, 15, 0), opts)
	require.NoError(t, err)

	require.Len(t, res.Predictions, 5)
	for i := range res.Predictions {
		assert.True(t, res.Predictions[i].IsNA())
		assert.False(t, res.Actuals[i].IsNA())
	}
	assert.Equal(t, 0, res.NValidPredictions)
	assert.True(t, res.RMSE.IsNA())
}

func TestRun_InvalidOptions(t *testing.T) {
	tbl := linearTable(t, 20, 0)
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero window", func(o *Options) { o.WindowSize = 0 }},
		{"quantile out of range", func(o *Options) {
			o.WinsorizeColumns = []string{"x"}
			o.WinsorizeQuantile = 1.5
		}},
		{"no dependent", func(o *Options) { o.Endog = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions()
			tt.modify(&opts)
			_, err := NewValidator(quiet).Run(context.Background(), tbl, opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
		})
	}
}

func TestRun_OrderIndependentOfWorkers(t *testing.T) {
	tbl := linearTable(t, 40, 0.5)
	opts := baseOptions()

	opts.Workers = 1
	seq, err := NewValidator(quiet).Run(context.Background(), tbl, opts)
	require.NoError(t, err)
	opts.Workers = 8
	par, err := NewValidator(quiet).Run(context.Background(), tbl, opts)
	require.NoError(t, err)

	assert.Equal(t, seq.Predictions, par.Predictions)
	assert.Equal(t, seq.TestPoints, par.TestPoints)
	assert.Equal(t, seq.RMSE, par.RMSE)
}

type countingRecorder struct {
	mu              sync.Mutex
	windows, failed int
}

func (c *countingRecorder) RecordWindow(_ context.Context, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows++
	if failed {
		c.failed++
	}
}

func TestRun_RecordsWindows(t *testing.T) {
	tbl := linearTable(t, 16, 0.1)
	y, _ := tbl.Column("y")
	y[15] = math.NaN()
	require.NoError(t, tbl.SetColumn("y", y))

	rec := &countingRecorder{}
	_, err := NewValidator(quiet).WithRecorder(rec).Run(context.Background(), tbl, baseOptions())
	require.NoError(t, err)
	assert.Equal(t, 6, rec.windows)
	assert.Equal(t, 0, rec.failed, "a missing actual does not fail the fit")
}

func TestDirectionalAccuracy(t *testing.T) {
	tests := []struct {
		name   string
		actual []float64
		pred   []float64
		want   float64
	}{
		// Moves of +1, 0, -1 against +1, 0, +1: the tie is excluded.
		{"ties excluded", []float64{0, 1, 1, 0}, []float64{0, 1, 1, 2}, 0.5},
		{"all agree", []float64{1, 2, 3}, []float64{5, 6, 7}, 1},
		{"single point", []float64{1}, []float64{1}, math.NaN()},
		{"only ties", []float64{1, 1, 1}, []float64{2, 3, 4}, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DirectionalAccuracy(tt.actual, tt.pred)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestMergePredictions(t *testing.T) {
	tbl := linearTable(t, 14, 0)
	res, err := NewValidator(quiet).Run(context.Background(), tbl, baseOptions())
	require.NoError(t, err)

	require.NoError(t, MergePredictions(tbl, res))
	for i := 0; i < 10; i++ {
		assert.True(t, math.IsNaN(tbl.At(PredictionColumn, i)))
	}
	for i := 10; i < 14; i++ {
		assert.InDelta(t, tbl.At("y", i), tbl.At(PredictionColumn, i), 1e-8)
	}
}
