package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/tsmodels"
	"ethvaluation/internal/validation"
)

func TestSummarize_EmptyResults(t *testing.T) {
	s := Summarize(&Results{}, nil, nil)

	f := s.Final
	assert.True(t, f.OLSBaseBetaActive.IsNA())
	assert.True(t, f.DiagDW.IsNA())
	assert.True(t, f.VECMAlphaValue.IsNA())
	assert.Nil(t, f.ARDLCointegrated5pct)
	assert.Nil(t, f.OOSNPredictions)
	assert.Nil(t, f.LastDate)
	assert.Contains(t, s.Interpretation, "Inconclusive")
	assert.Contains(t, s.Interpretation, "Valuation as of N/A")
}

func TestSummarize_PicksSectionValues(t *testing.T) {
	verdict := true
	res := &Results{
		Diagnostics: TestSection{Values: numeric.NamedFrom([]string{"DW", "JB_p"}, []float64{1.8, 0.0004})},
		Breaks:      TestSection{Values: numeric.NamedFrom([]string{"CUSUM_p", "Chow_break_1_p"}, []float64{0.2, 0.01})},
		ARDL: &tsmodels.ARDLResult{
			BoundsTestStatistic:        7.5,
			BoundsLowerPValue:          0.01,
			ErrorCorrectionCoefficient: -0.2,
			CointegratedAt5pct:         &verdict,
		},
		OOS: OOSSection{Result: &validation.Result{RMSE: 120, MAE: 80, DirectionalAccuracy: 0.6, NValidPredictions: 24}},
	}

	s := Summarize(res, nil, nil)
	f := s.Final
	assert.Equal(t, 1.8, f.DiagDW.Value())
	assert.Equal(t, 0.0004, f.DiagJBP.Value())
	assert.True(t, f.DiagBGP.IsNA())
	assert.Equal(t, []string{"break_1"}, f.BreakChowP.Keys())
	assert.Equal(t, 0.01, f.BreakChowP.Value("break_1"))
	require.NotNil(t, f.OOSNPredictions)
	assert.Equal(t, 24, *f.OOSNPredictions)

	assert.Contains(t, s.Interpretation, "Cointegrated (F-stat=7.50, p_lower=0.010)")
	assert.Contains(t, s.Interpretation, "Jarque-Bera p=<0.001")
	assert.Contains(t, s.Interpretation, "Chow break_1 p=0.010")
	assert.Contains(t, s.Interpretation, "RMSE $120")
}

func TestFormatting(t *testing.T) {
	nan := numeric.NA().Value()
	assert.Equal(t, "N/A", formatValue(nan, 2))
	assert.Equal(t, "3.14", formatValue(3.14159, 2))
	assert.Equal(t, "<0.001", formatP(0.0001))
	assert.Equal(t, "0.043", formatP(0.0432))
	assert.Equal(t, "$1,234,568", formatUSD(1234567.8))
	assert.Equal(t, "significant", significance(0.01))
	assert.Equal(t, "not significant", significance(nan))

	name, ok := chowName("Chow_merge_p")
	assert.True(t, ok)
	assert.Equal(t, "merge", name)
	_, ok = chowName("CUSUM_p")
	assert.False(t, ok)
}

func TestValuationGap(t *testing.T) {
	tests := []struct {
		name         string
		actual, fair float64
		want         string
	}{
		{"close", 1000, 980, "close to the fair value"},
		{"premium", 1200, 1000, "20.0% premium"},
		{"discount", 800, 1000, "20.0% discount"},
		{"missing", 800, numeric.NA().Value(), "cannot be compared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := valuationGap(FinalResults{LastActualPrice: numeric.Float(tt.actual), LastFairPriceExt: numeric.Float(tt.fair)})
			assert.Contains(t, got, tt.want)
		})
	}
}
