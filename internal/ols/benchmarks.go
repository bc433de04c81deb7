package ols

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// Monthly column contract of the benchmark specifications.
const (
	ColLogMarketCap = "log_marketcap"
	ColLogActive    = "log_active"
	ColLogNasdaq    = "log_nasdaq"
	ColLogGas       = "log_gas"
	ColPrice        = "price_usd"
	ColSupply       = "supply"

	ColFairValueBase        = "fair_value_base"
	ColFairValueExtended    = "fair_value_extended"
	ColFairValueConstrained = "fair_value_constrained"
)

// ConstrainedBeta is the network exponent implied by Metcalfe's law.
const ConstrainedBeta = 2.0

// RequiredMonthlyColumns lists the columns RunBenchmarks needs.
var RequiredMonthlyColumns = []string{ColLogMarketCap, ColLogActive, ColLogNasdaq, ColLogGas, ColPrice, ColSupply}

// RunBenchmarks fits the base (log_marketcap ~ log_active) and extended
// (~ log_active + log_nasdaq + log_gas) specifications with HAC errors (12
// lags unless WithHACLags says otherwise) and evaluates the constrained form
// that reuses the base intercept with exponent 2. Each specification's implied
// fair price exp(fitted)/supply is written into monthly as a new column and
// scored by RMSE against price_usd over the rows where both are present. daily
// is accepted for call-site symmetry with the other analyses and is not read.
func (f *Fitter) RunBenchmarks(ctx context.Context, daily, monthly *timetable.Table) *BenchmarkResult {
	res := &BenchmarkResult{
		Base:        Spec{Fit: failedFit("not run"), RMSEUSD: numeric.NA()},
		Extended:    Spec{Fit: failedFit("not run"), RMSEUSD: numeric.NA()},
		Constrained: Constrained{Alpha: numeric.NA(), Beta: numeric.NA(), RMSEUSD: numeric.NA()},
	}
	if monthly == nil {
		res.Error = "monthly table is nil"
		return res
	}
	if missing := monthly.Missing(RequiredMonthlyColumns...); len(missing) > 0 {
		f.logger.ErrorContext(ctx, "monthly table missing required columns for OLS", slog.Any("missing", missing))
		res.Error = fmt.Sprintf("Missing required monthly columns: %v", missing)
		return res
	}
	f.logger.InfoContext(ctx, "running static OLS benchmarks", slog.Int("months", monthly.Len()))

	opts := FitOptions{AddConstant: true, MaxLag: f.hacLags}
	base := f.FitHAC(ctx, monthly, ColLogMarketCap, []string{ColLogActive}, opts)
	res.Base.Fit = base
	if base.OK() {
		res.Base.RMSEUSD = f.fairValue(ctx, monthly, ColFairValueBase, base.Coefficients)
	}

	ext := f.FitHAC(ctx, monthly, ColLogMarketCap, []string{ColLogActive, ColLogNasdaq, ColLogGas}, opts)
	res.Extended.Fit = ext
	if ext.OK() {
		res.Extended.RMSEUSD = f.fairValue(ctx, monthly, ColFairValueExtended, ext.Coefficients)
	}

	alpha := base.Param(ConstName)
	if !base.OK() || math.IsNaN(alpha) {
		f.logger.WarnContext(ctx, "skipping constrained OLS: base model failed or intercept unavailable")
		return res
	}
	var constrained numeric.Named
	constrained.Set(ConstName, alpha)
	constrained.Set(ColLogActive, ConstrainedBeta)
	res.Constrained = Constrained{
		Alpha:   numeric.Float(alpha),
		Beta:    ConstrainedBeta,
		RMSEUSD: f.fairValue(ctx, monthly, ColFairValueConstrained, constrained),
	}
	return res
}

// fairValue writes exp(const + Σ b_j x_j)/supply into column and returns the
// RMSE against price over rows where both are finite (NaN when none are).
func (f *Fitter) fairValue(ctx context.Context, monthly *timetable.Table, column string, params numeric.Named) numeric.Float {
	n := monthly.Len()
	logValue := make([]float64, n)
	for _, name := range params.Keys() {
		coef := params.Value(name)
		if name == ConstName {
			for i := range logValue {
				logValue[i] += coef
			}
			continue
		}
		for i := range logValue {
			logValue[i] += coef * monthly.At(name, i)
		}
	}

	fair := make([]float64, n)
	for i := range fair {
		fair[i] = math.Exp(logValue[i]) / monthly.At(ColSupply, i)
	}
	if err := monthly.SetColumn(column, fair); err != nil {
		f.logger.ErrorContext(ctx, "write fair value column", slog.String("column", column), slog.String("error", err.Error()))
		return numeric.NA()
	}

	rmse := RMSE(monthly, ColPrice, column)
	if math.IsNaN(rmse) {
		f.logger.WarnContext(ctx, "no valid price pairs for RMSE", slog.String("column", column))
	} else {
		f.logger.InfoContext(ctx, "fair value computed", slog.String("column", column), slog.Float64("rmse_usd", rmse))
	}
	return numeric.Float(rmse)
}

// RMSE is the root mean squared difference of two columns over rows where both
// are finite, NaN when there are none.
func RMSE(t *timetable.Table, actual, predicted string) float64 {
	var sum float64
	var count int
	for i := 0; i < t.Len(); i++ {
		a, p := t.At(actual, i), t.At(predicted, i)
		if numeric.IsFinite(a) && numeric.IsFinite(p) {
			d := a - p
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(count))
}
