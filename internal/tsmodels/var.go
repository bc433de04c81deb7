package tsmodels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultVARLag is used when the lag search cannot run on the sample.
const DefaultVARLag = 2

// LagOrderSelection is the outcome of an AIC search over VAR lag orders.
type LagOrderSelection struct {
	Selected int
	AIC      []float64 // AIC[p-1] is the criterion for lag order p
}

// SelectVAROrder fits VAR(p) for p = 1..maxLag on y (rows are time) with an
// intercept and the contemporaneous exog columns, and returns the order with
// the smallest AIC. Every order is estimated on the same sample, the last
// n-maxLag rows, so the criteria are comparable.
func SelectVAROrder(y, exog *mat.Dense, maxLag int) (LagOrderSelection, error) {
	if y == nil || y.IsEmpty() {
		return LagOrderSelection{}, fmt.Errorf("no endogenous data")
	}
	n, k := y.Dims()
	kx := 0
	if exog != nil && !exog.IsEmpty() {
		var rows int
		rows, kx = exog.Dims()
		if rows != n {
			return LagOrderSelection{}, fmt.Errorf("exogenous data has %d rows, endogenous has %d", rows, n)
		}
	}
	if maxLag < 1 {
		return LagOrderSelection{}, fmt.Errorf("maximum lag must be positive, got %d", maxLag)
	}
	if maxEstimable := (n - k - 1) / (1 + k); maxLag > maxEstimable {
		return LagOrderSelection{}, fmt.Errorf("maxlags is too large for the number of observations and the number of equations (max estimable %d)", maxEstimable)
	}

	nobs := n - maxLag
	target := rowsOf(y, maxLag, n)
	sel := LagOrderSelection{AIC: make([]float64, maxLag)}
	best := math.Inf(1)
	for p := 1; p <= maxLag; p++ {
		z := varDesign(y, exog, maxLag, p)
		resid, err := residualize(target, z)
		if err != nil {
			return LagOrderSelection{}, fmt.Errorf("VAR(%d): %w", p, err)
		}
		_, cols := z.Dims()
		ld := math.Inf(-1)
		if nobs-cols > 0 {
			ld, err = logDetSym(crossProduct(resid, resid, float64(nobs)))
			if err != nil {
				return LagOrderSelection{}, fmt.Errorf("VAR(%d) residual covariance: %w", p, err)
			}
		}
		freeParams := p*k*k + k*(1+kx)
		aic := ld + 2/float64(nobs)*float64(freeParams)
		sel.AIC[p-1] = aic
		if aic < best {
			best = aic
			sel.Selected = p
		}
	}
	if sel.Selected == 0 {
		return LagOrderSelection{}, fmt.Errorf("no lag order produced a finite AIC")
	}
	return sel, nil
}

// varDesign builds [1, exog_t, y_{t-1}, ..., y_{t-p}] for t = start..n-1.
func varDesign(y, exog *mat.Dense, start, p int) *mat.Dense {
	n, k := y.Dims()
	kx := 0
	if exog != nil && !exog.IsEmpty() {
		_, kx = exog.Dims()
	}
	rows := n - start
	z := mat.NewDense(rows, 1+kx+p*k, nil)
	for r := 0; r < rows; r++ {
		t := start + r
		z.Set(r, 0, 1)
		for j := 0; j < kx; j++ {
			z.Set(r, 1+j, exog.At(t, j))
		}
		for l := 1; l <= p; l++ {
			for j := 0; j < k; j++ {
				z.Set(r, 1+kx+(l-1)*k+j, y.At(t-l, j))
			}
		}
	}
	return z
}
