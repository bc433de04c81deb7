package ols

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// ModelFitResult is one OLS fit with HAC standard errors.
type ModelFitResult struct {
	Coefficients numeric.Named `json:"params"`
	HACPValues   numeric.Named `json:"pvals_hac"`
	HACStdErrors numeric.Named `json:"se_hac"`
	RSquared     numeric.Float `json:"r2"`
	RSquaredAdj  numeric.Float `json:"r2_adj"`
	NObs         int           `json:"n_obs"`
	Formula      string        `json:"model_formula"`
	Error        string        `json:"error,omitempty"`

	Residuals    timetable.Series `json:"-"`
	FittedValues timetable.Series `json:"-"`

	// Fitting sample, kept so diagnostics can refit the same design.
	Response   []float64   `json:"-"`
	Design     *mat.Dense  `json:"-"`
	Regressors []string    `json:"-"`
	Index      []time.Time `json:"-"`
}

func failedFit(msg string) *ModelFitResult {
	return &ModelFitResult{
		RSquared:    numeric.NA(),
		RSquaredAdj: numeric.NA(),
		Error:       msg,
	}
}

// OK reports whether the fit succeeded.
func (r *ModelFitResult) OK() bool {
	return r != nil && r.Error == ""
}

// Param returns a coefficient, NaN when the fit failed or the name is unknown.
func (r *ModelFitResult) Param(name string) float64 {
	if !r.OK() {
		return math.NaN()
	}
	return r.Coefficients.Value(name)
}

// PValue returns a HAC p-value, NaN when unavailable.
func (r *ModelFitResult) PValue(name string) float64 {
	if !r.OK() {
		return math.NaN()
	}
	return r.HACPValues.Value(name)
}

// Spec is one benchmark specification with its in-sample price error.
type Spec struct {
	Fit     *ModelFitResult `json:"fit"`
	RMSEUSD numeric.Float   `json:"RMSE_USD"`
}

// Constrained evaluates the base intercept with a fixed network exponent.
type Constrained struct {
	Alpha   numeric.Float `json:"alpha"`
	Beta    numeric.Float `json:"beta"`
	RMSEUSD numeric.Float `json:"RMSE_USD"`
}

// BenchmarkResult collects the three static specifications.
type BenchmarkResult struct {
	Base        Spec        `json:"monthly_base"`
	Extended    Spec        `json:"monthly_extended"`
	Constrained Constrained `json:"monthly_constrained"`
	Error       string      `json:"error,omitempty"`
}
