package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/timetable"
)

type windowOutcome struct {
	prediction float64
	actual     float64
	residual   float64
	model      *WindowModel
}

func skipped(actual float64) windowOutcome {
	return windowOutcome{prediction: math.NaN(), actual: actual, residual: math.NaN()}
}

// window fits the model on rows [i-window, i) and predicts row i. It never
// panics or fails; problems produce a skipped outcome.
func (v *Validator) window(ctx context.Context, t *timetable.Table, i int, opts Options) (out windowOutcome) {
	actual := math.NaN()
	if t.Has(opts.Endog) {
		actual = t.At(opts.Endog, i)
	}
	log := v.logger.With(slog.Int("test_index", i))
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "OOS window failed", slog.Any("panic", r))
			out = skipped(actual)
		}
	}()

	if missing := t.Missing(append([]string{opts.Endog}, opts.Exog...)...); len(missing) > 0 {
		log.ErrorContext(ctx, "missing column during OOS data preparation, skipping window",
			slog.Any("missing", missing))
		return skipped(actual)
	}

	train := t.Slice(i-opts.WindowSize, i)
	winsorized := train
	if len(opts.WinsorizeColumns) > 0 {
		w, err := v.prep.Winsorize(ctx, train, opts.WinsorizeColumns, opts.WinsorizeQuantile, nil)
		if err != nil {
			log.ErrorContext(ctx, "winsorizing OOS window failed", slog.String("error", err.Error()))
			return skipped(actual)
		}
		winsorized = w
	}

	if len(opts.StationarityColumns) > 0 {
		idx := train.Index()
		windowEnd := idx[len(idx)-1].Format("2006-01-02")
		if st, err := v.prep.StationarityTest(ctx, winsorized, opts.StationarityColumns, nil); err != nil {
			log.WarnContext(ctx, "stationarity test failed for OOS window",
				slog.String("window_end", windowEnd),
				slog.String("error", err.Error()))
		} else {
			log.DebugContext(ctx, "OOS window stationarity",
				slog.String("window_end", windowEnd),
				slog.Any("results", st))
		}
	}

	y, _ := winsorized.Column(opts.Endog)
	xs := make([][]float64, len(opts.Exog))
	for j, name := range opts.Exog {
		xs[j], _ = winsorized.Column(name)
	}
	if !allFinite(y) || !allFinite(xs...) {
		log.WarnContext(ctx, "missing values in OOS training data, skipping window")
		return skipped(actual)
	}

	names := opts.Exog
	row := make([]float64, 0, len(opts.Exog)+1)
	if opts.AddConstant {
		names = append([]string{ols.ConstName}, opts.Exog...)
		row = append(row, 1)
	}
	for _, name := range opts.Exog {
		row = append(row, t.At(name, i))
	}
	if !allFinite(row) {
		log.WarnContext(ctx, "missing regressor in OOS test row, skipping window")
		return skipped(actual)
	}

	design, err := numeric.Design(xs, opts.AddConstant)
	if err != nil {
		log.ErrorContext(ctx, "building OOS design failed", slog.String("error", err.Error()))
		return skipped(actual)
	}
	fit, err := numeric.OLSPinv(y, design)
	if err != nil {
		appErr := apperrors.NewIterationError("OOS fit failed", err).WithContext("test_index", i)
		log.ErrorContext(ctx, appErr.Message,
			slog.String("error", err.Error()),
			slog.String("error_type", string(appErr.Type)))
		return skipped(actual)
	}
	if len(fit.Params) != len(names) {
		log.ErrorContext(ctx, "fitted parameters do not match test regressors, skipping prediction",
			slog.Int("params", len(fit.Params)),
			slog.Int("regressors", len(names)))
		return skipped(actual)
	}
	prediction, err := fit.Predict(row)
	if err != nil {
		log.ErrorContext(ctx, "OOS prediction failed", slog.String("error", err.Error()))
		return skipped(actual)
	}

	residual := math.NaN()
	if numeric.IsFinite(prediction) && numeric.IsFinite(actual) {
		residual = actual - prediction
	}
	return windowOutcome{
		prediction: prediction,
		actual:     actual,
		residual:   residual,
		model: &WindowModel{
			Params:   numeric.NamedFrom(names, fit.Params),
			NObs:     fit.NObs,
			RSquared: numeric.Float(fit.RSquared()),
			Formula:  fmt.Sprintf("%s ~ %v", opts.Endog, names),
		},
	}
}

func allFinite(cols ...[]float64) bool {
	for _, c := range cols {
		for _, v := range c {
			if !numeric.IsFinite(v) {
				return false
			}
		}
	}
	return true
}
