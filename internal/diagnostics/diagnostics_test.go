package diagnostics

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/ols"
	"ethvaluation/internal/timetable"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func monthEnds(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, i+1, -1)
	}
	return out
}

// fitted returns an HAC fit of y = 1 + 2x + e, with the slope shifted by
// shift from row breakAt onwards.
func fitted(t *testing.T, n, breakAt int, shift float64) *ols.ModelFitResult {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 4))
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
		slope := 2.0
		if i >= breakAt {
			slope += shift
		}
		y[i] = 1 + slope*x[i] + 0.5*rng.NormFloat64()
	}
	tbl, err := timetable.FromColumns(monthEnds(n), []string{"y", "x"}, [][]float64{y, x})
	require.NoError(t, err)
	res := ols.NewFitter(quiet).FitHAC(context.Background(), tbl, "y", []string{"x"}, ols.DefaultFitOptions())
	require.True(t, res.OK(), res.Error)
	return res
}

func TestResidual_ReportsAllKeys(t *testing.T) {
	res := NewRunner(quiet).Residual(context.Background(), fitted(t, 80, 80, 0))

	assert.Equal(t, []string{KeyDurbinWatson, KeyBreuschGodfrey, KeyBreuschPagan, KeyWhite, KeyJarqueBera}, res.Keys())
	for _, k := range res.Keys() {
		v := res.Value(k)
		assert.False(t, math.IsNaN(v), k)
		if k != KeyDurbinWatson {
			assert.GreaterOrEqual(t, v, 0.0, k)
			assert.LessOrEqual(t, v, 1.0, k)
		}
	}
	assert.InDelta(t, 2.0, res.Value(KeyDurbinWatson), 0.7)
}

func TestResidual_SkipsSmallOrFailedFits(t *testing.T) {
	r := NewRunner(quiet)
	assert.Equal(t, 0, r.Residual(context.Background(), fitted(t, 14, 14, 0)).Len())
	assert.Equal(t, 0, r.Residual(context.Background(), &ols.ModelFitResult{Error: "Insufficient observations."}).Len())
	assert.Equal(t, 0, r.Residual(context.Background(), nil).Len())
}

func TestStatistics(t *testing.T) {
	assert.InDelta(t, 3.0, DurbinWatson([]float64{1, -1, 1, -1}), 1e-12)

	jb, p := JarqueBera([]float64{-1, 1, -1, 1})
	assert.InDelta(t, 4.0/6.0, jb, 1e-12)
	assert.InDelta(t, math.Exp(-jb/2), p, 1e-9)

	sup, cp := CUSUMOLSResid([]float64{1, 1, 1, 1})
	assert.InDelta(t, 2.0, sup, 1e-12)
	assert.Less(t, cp, 0.001)

	sup, _ = CUSUMOLSResid([]float64{0, 0})
	assert.True(t, math.IsNaN(sup))
}

func TestStructuralBreaks_PerDateIsolation(t *testing.T) {
	n := 60
	fit := fitted(t, n, 30, 3)
	idx := fit.Index
	breaks := []Break{
		{Name: "break_1", Date: idx[30]},
		{Name: "late", Date: idx[n-2]},
		{Name: "early", Date: idx[0]},
	}

	res := NewRunner(quiet).StructuralBreaks(context.Background(), fit, breaks)

	assert.Equal(t, []string{KeyCUSUM, "Chow_break_1_p", "Chow_late_p", "Chow_early_p"}, res.Keys())
	assert.Less(t, res.Value("Chow_break_1_p"), 0.01, "a slope shift of 3 is a clear break")
	assert.True(t, math.IsNaN(res.Value("Chow_late_p")), "post-period has only 2 rows")
	assert.True(t, math.IsNaN(res.Value("Chow_early_p")), "pre-period is empty")
	assert.False(t, math.IsNaN(res.Value(KeyCUSUM)))
}

func TestStructuralBreaks_RequiresObservations(t *testing.T) {
	fit := fitted(t, 11, 11, 0)
	res := NewRunner(quiet).StructuralBreaks(context.Background(), fit, []Break{{Name: "b", Date: fit.Index[5]}})
	assert.Equal(t, 0, res.Len())
}

func TestChow_ClampsNegativeF(t *testing.T) {
	fit := fitted(t, 40, 40, 0)
	f, p, err := Chow(fit.Response, fit.Design, fit.Index, fit.Index[20], 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f)
	assert.Equal(t, 1.0, p)
	assert.Equal(t, "Chow_x_p", ChowKey("x"))
}
