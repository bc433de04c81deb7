package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
)

// KeyCUSUM is the CUSUM p-value key of a break test result.
const KeyCUSUM = "CUSUM_p"

// Break is a named candidate break date.
type Break struct {
	Name string    `json:"name" yaml:"name" validate:"required"`
	Date time.Time `json:"date" yaml:"date" validate:"required"`
}

// ChowKey is the result key of the Chow test for a break name.
func ChowKey(name string) string {
	return fmt.Sprintf("Chow_%s_p", name)
}

// StructuralBreaks runs the OLS-residual CUSUM test and a Chow test for each
// break date against fit's design. It needs at least k+10 observations. Each
// Chow test fails independently: a sub-period with fewer than k+1 rows or a
// non-positive denominator df gives NaN for that date only.
func (r *Runner) StructuralBreaks(ctx context.Context, fit *ols.ModelFitResult, breaks []Break) numeric.Named {
	var out numeric.Named
	if !fit.OK() || fit.Design == nil {
		r.logger.WarnContext(ctx, "skipping structural break tests: no valid model fit")
		return out
	}
	n, k := fit.Design.Dims()
	if n < k+10 {
		r.logger.WarnContext(ctx, "skipping structural break tests: insufficient observations", slog.Int("observations", n))
		return out
	}

	full, err := numeric.OLSPinv(fit.Response, fit.Design)
	if err != nil {
		r.logger.ErrorContext(ctx, "could not fit full model for break tests", slog.String("error", err.Error()))
		out.Set(KeyCUSUM, math.NaN())
		for _, b := range breaks {
			out.Set(ChowKey(b.Name), math.NaN())
		}
		return out
	}

	r.record(ctx, &out, KeyCUSUM, func() (float64, error) {
		_, p := CUSUMOLSResid(full.Resid)
		return p, nil
	})
	for _, b := range breaks {
		r.record(ctx, &out, ChowKey(b.Name), func() (float64, error) {
			_, p, err := Chow(fit.Response, fit.Design, fit.Index, b.Date, full.SSR)
			return p, err
		})
	}
	return out
}

// CUSUMOLSResid is the Ploberger-Krämer test on OLS residuals: the supremum
// of |cumsum(e)/sqrt(Σe²)| against the Kolmogorov distribution.
func CUSUMOLSResid(resid []float64) (sup, p float64) {
	scale := math.Sqrt(floats.Dot(resid, resid))
	var cum float64
	for _, e := range resid {
		cum += e
		sup = math.Max(sup, math.Abs(cum/scale))
	}
	if scale == 0 {
		return math.NaN(), math.NaN()
	}
	return sup, numeric.KolmogorovSF(sup)
}

// Chow splits the sample into index < date and index >= date, refits each
// half and returns the F statistic (clamped at zero) and its F(k, n-2k) p-value.
func Chow(y []float64, x *mat.Dense, index []time.Time, date time.Time, ssrFull float64) (f, p float64, err error) {
	n, k := x.Dims()
	if len(index) != n {
		return 0, 0, errors.New("index does not match the design")
	}
	var pre, post []int
	for i, ts := range index {
		if ts.Before(date) {
			pre = append(pre, i)
		} else {
			post = append(post, i)
		}
	}
	if min(len(pre), len(post)) < k+1 {
		return 0, 0, fmt.Errorf("insufficient observations in sub-period (pre %d, post %d, vars %d)", len(pre), len(post), k)
	}
	dfDen := len(pre) + len(post) - 2*k
	if dfDen <= 0 {
		return 0, 0, fmt.Errorf("non-positive denominator degrees of freedom (%d)", dfDen)
	}

	ssrPre, err := subsampleSSR(y, x, pre)
	if err != nil {
		return 0, 0, fmt.Errorf("fit pre-break sample: %w", err)
	}
	ssrPost, err := subsampleSSR(y, x, post)
	if err != nil {
		return 0, 0, fmt.Errorf("fit post-break sample: %w", err)
	}
	ssrSplit := ssrPre + ssrPost
	f = ((ssrFull - ssrSplit) / float64(k)) / (ssrSplit / float64(dfDen))
	if f < 0 {
		f = 0
	}
	return f, numeric.FSF(f, float64(k), float64(dfDen)), nil
}

func subsampleSSR(y []float64, x *mat.Dense, rows []int) (float64, error) {
	_, k := x.Dims()
	sy := make([]float64, len(rows))
	sx := mat.NewDense(len(rows), k, nil)
	for r, i := range rows {
		sy[r] = y[i]
		sx.SetRow(r, x.RawRowView(i))
	}
	fit, err := numeric.OLSPinv(sy, sx)
	if err != nil {
		return 0, err
	}
	return fit.SSR, nil
}
