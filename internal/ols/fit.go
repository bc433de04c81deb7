package ols

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// ConstName is the label of the intercept regressor.
const ConstName = "const"

// FitOptions controls FitHAC.
type FitOptions struct {
	AddConstant bool
	MaxLag      int
}

// DefaultFitOptions adds an intercept and uses 12 Newey-West lags.
func DefaultFitOptions() FitOptions {
	return FitOptions{AddConstant: true, MaxLag: 12}
}

// Fitter fits OLS regressions with HAC standard errors.
type Fitter struct {
	logger  *slog.Logger
	hacLags int
}

// NewFitter creates a fitter. A nil logger falls back to slog.Default().
func NewFitter(logger *slog.Logger) *Fitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fitter{
		logger:  logger.With(slog.String("component", "ols")),
		hacLags: DefaultFitOptions().MaxLag,
	}
}

// WithHACLags sets the Newey-West lag count RunBenchmarks uses.
func (f *Fitter) WithHACLags(lags int) *Fitter {
	f.hacLags = lags
	return f
}

// FitHAC regresses column y on columns x of t. Rows with a missing value in
// any of them are dropped first; at least k+2 complete rows are required,
// where k counts the intercept. Coefficients are plain OLS; standard errors
// and p-values use a Bartlett-kernel Newey-West covariance with opts.MaxLag
// lags and a Student-t reference distribution with n-k degrees of freedom.
func (f *Fitter) FitHAC(ctx context.Context, t *timetable.Table, y string, x []string, opts FitOptions) *ModelFitResult {
	if t == nil {
		return failedFit("Input data is None.")
	}
	if opts.MaxLag < 0 {
		return failedFit(fmt.Sprintf("invalid HAC lag count %d", opts.MaxLag))
	}
	if missing := t.Missing(append([]string{y}, x...)...); len(missing) > 0 {
		f.logger.ErrorContext(ctx, "OLS input columns missing", slog.Any("missing", missing))
		return failedFit(fmt.Sprintf("Missing columns: %v", missing))
	}

	clean := t.DropMissing(append([]string{y}, x...)...)
	k := len(x)
	if opts.AddConstant {
		k++
	}
	if need := k + 2; clean.Len() < need {
		f.logger.WarnContext(ctx, "skipping OLS: insufficient observations",
			slog.String("y", y),
			slog.Int("observations", clean.Len()),
			slog.Int("required", need))
		return failedFit("Insufficient observations.")
	}

	response, _ := clean.Column(y)
	columns := make([][]float64, len(x))
	for j, name := range x {
		columns[j], _ = clean.Column(name)
	}
	names := x
	if opts.AddConstant {
		names = append([]string{ConstName}, x...)
	}

	design, err := numeric.Design(columns, opts.AddConstant)
	if err != nil {
		return failedFit(err.Error())
	}
	fit, err := numeric.OLS(response, design)
	if err != nil {
		appErr := apperrors.NewNumericalError("OLS fit failed", err).WithContext("y", y)
		f.logger.ErrorContext(ctx, appErr.Message,
			slog.String("error", err.Error()),
			slog.String("error_type", string(appErr.Type)),
			slog.Any("context", appErr.Context))
		return failedFit(err.Error())
	}

	cov := fit.HACCov(opts.MaxLag)
	se := numeric.StdErrors(cov)
	df := float64(fit.DFResid())

	res := &ModelFitResult{
		RSquared:    numeric.Float(fit.RSquared()),
		RSquaredAdj: numeric.Float(fit.RSquaredAdj()),
		NObs:        fit.NObs,
		Formula:     fmt.Sprintf("%s ~ %s (HAC lags=%d)", y, strings.Join(names, " + "), opts.MaxLag),
		Response:    response,
		Design:      design,
		Regressors:  append([]string(nil), names...),
		Index:       clean.Index(),
	}
	for i, name := range names {
		res.Coefficients.Set(name, fit.Params[i])
		res.HACStdErrors.Set(name, se[i])
		res.HACPValues.Set(name, numeric.StudentTTwoSided(fit.Params[i]/se[i], df))
	}
	res.Residuals = timetable.Series{Name: "resid", Index: res.Index, Values: fit.Resid}
	res.FittedValues = timetable.Series{Name: "fittedvalues", Index: res.Index, Values: fit.Fitted}

	f.logger.DebugContext(ctx, "OLS fitted",
		slog.String("formula", res.Formula),
		slog.Int("n_obs", res.NObs),
		slog.Float64("r2", fit.RSquared()))
	return res
}
