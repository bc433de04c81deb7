package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
)

// ADFResult is an augmented Dickey-Fuller test with a constant.
type ADFResult struct {
	Statistic float64
	PValue    float64
	UsedLag   int
	NObs      int
	// CriticalValues at the 1%, 5% and 10% levels.
	CriticalValues [3]float64
}

// MacKinnon (1994, 2010) surface coefficients for one series with a constant.
var (
	tauMaxC    = 2.74
	tauMinC    = -18.83
	tauStarC   = -1.61
	tauSmallPC = []float64{2.1659, 1.4412, 0.038269}
	tauLargePC = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	tauCritC   = [3][4]float64{
		{-3.43035, -6.5393, -16.786, -79.433},
		{-2.86154, -2.8903, -4.234, -40.04},
		{-2.56677, -1.5384, -2.809, 0},
	}
)

// ADF runs the augmented Dickey-Fuller test with a constant, choosing the lag
// length by AIC over 0..maxlag where maxlag = ceil(12*(n/100)^(1/4)).
func ADF(x []float64) (ADFResult, error) {
	n := len(x)
	if n == 0 {
		return ADFResult{}, errors.New("empty series")
	}
	if floats.Max(x) == floats.Min(x) {
		return ADFResult{}, errors.New("series is constant")
	}

	maxlag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	maxlag = min(n/2-2, maxlag)
	if maxlag < 0 {
		return ADFResult{}, errors.New("sample size is too short for the ADF regression")
	}
	xdiff := make([]float64, n-1)
	for i := range xdiff {
		xdiff[i] = x[i+1] - x[i]
	}

	// Candidate lags share the sample trimmed by maxlag so their AICs compare.
	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxlag; lag++ {
		y, design := adfRegression(x, xdiff, maxlag, lag)
		fit, err := numeric.OLSPinv(y, design)
		if err != nil {
			return ADFResult{}, fmt.Errorf("adf lag %d: %w", lag, err)
		}
		if aic := fit.AIC(); aic < bestAIC {
			bestAIC, bestLag = aic, lag
		}
	}

	y, design := adfRegression(x, xdiff, bestLag, bestLag)
	fit, err := numeric.OLSPinv(y, design)
	if err != nil {
		return ADFResult{}, fmt.Errorf("adf regression: %w", err)
	}
	stat := fit.TValues(fit.ClassicCov())[1]

	res := ADFResult{
		Statistic: stat,
		PValue:    MacKinnonP(stat),
		UsedLag:   bestLag,
		NObs:      len(y),
	}
	invT := 1 / float64(len(y))
	for i, c := range tauCritC {
		res.CriticalValues[i] = c[0] + c[1]*invT + c[2]*invT*invT + c[3]*invT*invT*invT
	}
	return res, nil
}

// adfRegression builds Δx_t on [1, x_t, Δx_{t-1}..Δx_{t-lags}] over the rows
// left after dropping the first trim differences.
func adfRegression(x, xdiff []float64, trim, lags int) ([]float64, *mat.Dense) {
	rows := len(xdiff) - trim
	k := 2 + lags
	design := mat.NewDense(rows, k, nil)
	y := make([]float64, rows)
	for r := 0; r < rows; r++ {
		t := trim + r
		y[r] = xdiff[t]
		design.Set(r, 0, 1)
		design.Set(r, 1, x[t])
		for l := 1; l <= lags; l++ {
			design.Set(r, 1+l, xdiff[t-l])
		}
	}
	return y, design
}

// MacKinnonP is the approximate p-value of an ADF statistic (constant, one series).
func MacKinnonP(stat float64) float64 {
	switch {
	case math.IsNaN(stat):
		return math.NaN()
	case stat > tauMaxC:
		return 1
	case stat < tauMinC:
		return 0
	}
	coef := tauLargePC
	if stat <= tauStarC {
		coef = tauSmallPC
	}
	var poly, pow float64 = 0, 1
	for _, c := range coef {
		poly += c * pow
		pow *= stat
	}
	return numeric.NormalCDF(poly)
}
