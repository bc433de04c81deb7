package diagnostics

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
)

// Keys of the residual diagnostics result.
const (
	KeyDurbinWatson   = "DW"
	KeyBreuschGodfrey = "BG_p"
	KeyBreuschPagan   = "BP_p"
	KeyWhite          = "White_p"
	KeyJarqueBera     = "JB_p"
)

// MinResiduals is the smallest sample the residual tests run on.
const MinResiduals = 15

// Residual runs the residual diagnostics of fit. DW is reported as the raw
// statistic, the other tests as p-values. The result is empty when fit failed
// or has fewer than MinResiduals residuals or no more residuals than regressors.
func (r *Runner) Residual(ctx context.Context, fit *ols.ModelFitResult) numeric.Named {
	var out numeric.Named
	if !fit.OK() || fit.Design == nil {
		r.logger.WarnContext(ctx, "skipping diagnostics: no valid model fit")
		return out
	}
	resid := fit.Residuals.Values
	n, k := fit.Design.Dims()
	if len(resid) < MinResiduals || len(resid) <= k {
		r.logger.WarnContext(ctx, "skipping diagnostics: insufficient residuals", slog.Int("residuals", len(resid)))
		return out
	}

	r.record(ctx, &out, KeyDurbinWatson, func() (float64, error) {
		return DurbinWatson(resid), nil
	})
	r.record(ctx, &out, KeyBreuschGodfrey, func() (float64, error) {
		lags := min(12, n/4)
		if lags <= 0 {
			return 0, errors.New("not enough observations for lags")
		}
		_, p, err := BreuschGodfrey(fit.Response, fit.Design, lags)
		return p, err
	})
	r.record(ctx, &out, KeyBreuschPagan, func() (float64, error) {
		_, p, err := BreuschPagan(resid, fit.Design)
		return p, err
	})
	r.record(ctx, &out, KeyWhite, func() (float64, error) {
		_, p, err := White(resid, fit.Design)
		return p, err
	})
	r.record(ctx, &out, KeyJarqueBera, func() (float64, error) {
		_, p := JarqueBera(resid)
		return p, nil
	})
	return out
}

// DurbinWatson is Σ(e_t - e_{t-1})² / Σe_t²; values near 2 indicate no
// first-order autocorrelation.
func DurbinWatson(resid []float64) float64 {
	var num float64
	for i := 1; i < len(resid); i++ {
		d := resid[i] - resid[i-1]
		num += d * d
	}
	return num / floats.Dot(resid, resid)
}

// BreuschGodfrey refits y on x and regresses the residuals on x, an intercept
// and lags 1..lags of the residuals (pre-sample lags set to zero). The LM
// statistic n·R² is chi-squared with lags degrees of freedom.
func BreuschGodfrey(y []float64, x *mat.Dense, lags int) (lm, p float64, err error) {
	base, err := numeric.OLSPinv(y, x)
	if err != nil {
		return 0, 0, err
	}
	e := base.Resid
	n, k := x.Dims()
	aux := mat.NewDense(n, k+1+lags, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			aux.Set(i, j, x.At(i, j))
		}
		aux.Set(i, k, 1)
		for l := 1; l <= lags; l++ {
			if i-l >= 0 {
				aux.Set(i, k+l, e[i-l])
			}
		}
	}
	fit, err := numeric.OLSPinv(e, aux)
	if err != nil {
		return 0, 0, err
	}
	lm = float64(n) * fit.RSquared()
	return lm, numeric.ChiSquareSF(lm, float64(lags)), nil
}

// BreuschPagan is the studentized (Koenker) test: n·R² of e² on x, with
// k-1 degrees of freedom.
func BreuschPagan(resid []float64, x *mat.Dense) (lm, p float64, err error) {
	if !numeric.HasConstantColumn(x) {
		return 0, 0, errors.New("Breusch-Pagan test requires an intercept column")
	}
	_, k := x.Dims()
	fit, err := numeric.OLSPinv(squares(resid), x)
	if err != nil {
		return 0, 0, err
	}
	lm = float64(len(resid)) * fit.RSquared()
	return lm, numeric.ChiSquareSF(lm, float64(k-1)), nil
}

// White regresses e² on every product x_i·x_j (i <= j) of the regressors,
// which includes the levels through the intercept. Degrees of freedom are the
// auxiliary rank minus one.
func White(resid []float64, x *mat.Dense) (lm, p float64, err error) {
	if !numeric.HasConstantColumn(x) {
		return 0, 0, errors.New("White test requires an intercept column")
	}
	n, k := x.Dims()
	cols := k * (k + 1) / 2
	aux := mat.NewDense(n, cols, nil)
	c := 0
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			for row := 0; row < n; row++ {
				aux.Set(row, c, x.At(row, i)*x.At(row, j))
			}
			c++
		}
	}
	fit, err := numeric.OLSPinv(squares(resid), aux)
	if err != nil {
		return 0, 0, err
	}
	df := fit.Rank - 1
	if df <= 0 {
		return 0, 0, errors.New("White auxiliary regression has no slope terms")
	}
	lm = float64(n) * fit.RSquared()
	return lm, numeric.ChiSquareSF(lm, float64(df)), nil
}

// JarqueBera tests residual normality from the biased sample skewness and
// kurtosis; the statistic is chi-squared with 2 degrees of freedom.
func JarqueBera(resid []float64) (jb, p float64) {
	n := float64(len(resid))
	mean := floats.Sum(resid) / n
	var m2, m3, m4 float64
	for _, v := range resid {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2, m3, m4 = m2/n, m3/n, m4/n
	skew := m3 / (m2 * math.Sqrt(m2))
	kurt := m4 / (m2 * m2)
	jb = n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	return jb, numeric.ChiSquareSF(jb, 2)
}

func squares(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * x
	}
	return out
}
