package tsmodels

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
)

// Deterministic trend specifications for ARDL and UECM models.
const (
	TrendNone      = "n"
	TrendConst     = "c"
	TrendTime      = "t"
	TrendConstTime = "ct"
)

// LinearModel is an OLS-estimated dynamic regression with named regressors.
type LinearModel struct {
	Names     []string
	Fit       *numeric.LeastSquares
	StdErrors []float64
	PValues   []float64
	Start     int // first row of the input used as an observation
	Dependent string
	levelCols []int
	constCol  int
	trendCol  int
	design    *mat.Dense
	response  []float64
}

// Params returns the coefficients keyed by regressor name.
func (m *LinearModel) Params() numeric.Named {
	return numeric.NamedFrom(m.Names, m.Fit.Params)
}

type regressor struct {
	name  string
	value func(t int) float64
}

func trendRegressors(trend string) ([]regressor, error) {
	constant := regressor{name: "const", value: func(int) float64 { return 1 }}
	// The time trend counts observations from 1 over the full input.
	timeTrend := regressor{name: "trend", value: func(t int) float64 { return float64(t + 1) }}
	switch trend {
	case TrendNone:
		return nil, nil
	case TrendConst:
		return []regressor{constant}, nil
	case TrendTime:
		return []regressor{timeTrend}, nil
	case TrendConstTime:
		return []regressor{constant, timeTrend}, nil
	default:
		return nil, fmt.Errorf("unknown trend %q, want one of n, c, t, ct", trend)
	}
}

func fitLinear(dependent string, response func(t int) float64, regs []regressor, start, n int) (*LinearModel, error) {
	rows := n - start
	if rows <= len(regs) {
		return nil, fmt.Errorf("%d usable observations are too few for %d regressors", rows, len(regs))
	}
	x := mat.NewDense(rows, len(regs), nil)
	y := make([]float64, rows)
	names := make([]string, len(regs))
	for j, r := range regs {
		names[j] = r.name
	}
	for i := 0; i < rows; i++ {
		t := start + i
		y[i] = response(t)
		for j, r := range regs {
			x.Set(i, j, r.value(t))
		}
	}
	fit, err := numeric.OLSPinv(y, x)
	if err != nil {
		return nil, err
	}
	cov := fit.ClassicCov()
	se := numeric.StdErrors(cov)
	tv := fit.TValues(cov)
	p := make([]float64, len(tv))
	for i, v := range tv {
		p[i] = numeric.StudentTTwoSided(v, float64(fit.DFResid()))
	}
	m := &LinearModel{
		Names:     names,
		Fit:       fit,
		StdErrors: se,
		PValues:   p,
		Start:     start,
		Dependent: dependent,
		constCol:  -1,
		trendCol:  -1,
		design:    x,
		response:  y,
	}
	for j, name := range names {
		switch name {
		case "const":
			m.constCol = j
		case "trend":
			m.trendCol = j
		}
	}
	return m, nil
}

func checkSeries(y []float64, x [][]float64, xNames []string) error {
	if len(y) == 0 {
		return errors.New("empty dependent series")
	}
	if len(x) != len(xNames) {
		return fmt.Errorf("%d exogenous series but %d names", len(x), len(xNames))
	}
	for j, col := range x {
		if len(col) != len(y) {
			return fmt.Errorf("exogenous series %q has %d values, want %d", xNames[j], len(col), len(y))
		}
	}
	return nil
}

// FitARDL estimates ARDL(p, q) by OLS:
// y_t = trend + Σ_{i=1..p} φ_i y_{t-i} + Σ_j Σ_{l=0..q_j} θ_jl x_{j,t-l} + e_t.
// Parameters are named "const", "trend", "<y>.L<i>" and "<x>.L<l>", in that order.
func FitARDL(y []float64, x [][]float64, yName string, xNames []string, p int, q []int, trend string) (*LinearModel, error) {
	if err := checkSeries(y, x, xNames); err != nil {
		return nil, err
	}
	if p < 1 {
		return nil, fmt.Errorf("autoregressive order must be positive, got %d", p)
	}
	if len(q) != len(x) {
		return nil, fmt.Errorf("%d exogenous orders for %d series", len(q), len(x))
	}
	regs, err := trendRegressors(trend)
	if err != nil {
		return nil, err
	}
	hold := p
	for i := 1; i <= p; i++ {
		lag := i
		regs = append(regs, regressor{name: fmt.Sprintf("%s.L%d", yName, lag), value: func(t int) float64 { return y[t-lag] }})
	}
	for j, col := range x {
		if q[j] < 0 {
			return nil, fmt.Errorf("exogenous order for %q must be non-negative", xNames[j])
		}
		hold = max(hold, q[j])
		for l := 0; l <= q[j]; l++ {
			lag, series := l, col
			regs = append(regs, regressor{name: fmt.Sprintf("%s.L%d", xNames[j], lag), value: func(t int) float64 { return series[t-lag] }})
		}
	}
	return fitLinear(yName, func(t int) float64 { return y[t] }, regs, hold, len(y))
}

// FitUECM estimates the unrestricted error-correction form of an ARDL model:
// Δy_t = trend + π_y y_{t-1} + Σ_j π_j x_{j,t-1} + Σ_{i=1..lags} γ_i Δy_{t-i}
// + Σ_j Σ_{l=0..q_j-1} δ_jl Δx_{j,t-l} + e_t.
// Level terms are named "<y>.L1" and "<x>.L1", differences "D.<name>.L<i>".
func FitUECM(y []float64, x [][]float64, yName string, xNames []string, lags int, q []int, trend string) (*LinearModel, error) {
	if err := checkSeries(y, x, xNames); err != nil {
		return nil, err
	}
	if lags < 1 {
		return nil, fmt.Errorf("UECM lags must be a positive integer, got %d", lags)
	}
	if len(q) != len(x) {
		return nil, fmt.Errorf("%d exogenous orders for %d series", len(q), len(x))
	}
	regs, err := trendRegressors(trend)
	if err != nil {
		return nil, err
	}
	diff := func(s []float64, t int) float64 { return s[t] - s[t-1] }

	var levels []int
	levels = append(levels, len(regs))
	regs = append(regs, regressor{name: yName + ".L1", value: func(t int) float64 { return y[t-1] }})
	for j, col := range x {
		if q[j] < 1 {
			return nil, fmt.Errorf("UECM order for %q must be at least 1", xNames[j])
		}
		series := col
		levels = append(levels, len(regs))
		regs = append(regs, regressor{name: xNames[j] + ".L1", value: func(t int) float64 { return series[t-1] }})
	}
	hold := lags + 1
	for i := 1; i <= lags; i++ {
		lag := i
		regs = append(regs, regressor{name: fmt.Sprintf("D.%s.L%d", yName, lag), value: func(t int) float64 { return diff(y, t-lag) }})
	}
	for j, col := range x {
		hold = max(hold, q[j])
		for l := 0; l < q[j]; l++ {
			lag, series := l, col
			regs = append(regs, regressor{name: fmt.Sprintf("D.%s.L%d", xNames[j], lag), value: func(t int) float64 { return diff(series, t-lag) }})
		}
	}

	m, err := fitLinear("D."+yName, func(t int) float64 { return diff(y, t) }, regs, hold, len(y))
	if err != nil {
		return nil, err
	}
	m.levelCols = levels
	return m, nil
}
