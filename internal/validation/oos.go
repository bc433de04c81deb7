package validation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/preprocess"
	"ethvaluation/internal/timetable"
)

// Options configures a walk-forward run.
type Options struct {
	Endog               string   `yaml:"endog" validate:"required"`
	Exog                []string `yaml:"exog" validate:"min=1,dive,required"`
	WinsorizeColumns    []string `yaml:"winsorize_columns"`
	WinsorizeQuantile   float64  `yaml:"winsorize_quantile" validate:"gt=0,lt=1"`
	StationarityColumns []string `yaml:"stationarity_columns"`
	WindowSize          int      `yaml:"window_size" validate:"min=2"`
	AddConstant         bool     `yaml:"add_constant"`
	Workers             int      `yaml:"workers" validate:"min=0"`
}

// DefaultOptions uses a five-year window of monthly data.
func DefaultOptions() Options {
	return Options{
		Endog:               "price_usd",
		Exog:                []string{"active_addr", "tx_count", "nasdaq"},
		WinsorizeColumns:    []string{"active_addr", "tx_count"},
		WinsorizeQuantile:   0.99,
		StationarityColumns: []string{"price_usd", "active_addr", "tx_count"},
		WindowSize:          60,
		AddConstant:         true,
		Workers:             runtime.NumCPU(),
	}
}

func (o Options) validate() error {
	if o.Endog == "" {
		return apperrors.NewAppValidationError("OOS validation needs a dependent column")
	}
	if o.WindowSize < 1 {
		return apperrors.NewAppValidationError(fmt.Sprintf("window size must be positive, got %d", o.WindowSize))
	}
	if len(o.WinsorizeColumns) > 0 && (o.WinsorizeQuantile <= 0 || o.WinsorizeQuantile >= 1) {
		return apperrors.NewAppValidationError(fmt.Sprintf("winsorize quantile must be in (0, 1), got %g", o.WinsorizeQuantile))
	}
	return nil
}

// WindowRecorder is notified once per completed window.
type WindowRecorder interface {
	RecordWindow(ctx context.Context, failed bool)
}

// Validator runs walk-forward validation.
type Validator struct {
	logger   *slog.Logger
	prep     *preprocess.Preprocessor
	recorder WindowRecorder
}

// NewValidator creates a validator. A nil logger falls back to slog.Default().
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		logger: logger.With(slog.String("component", "oos")),
		prep:   preprocess.NewPreprocessor(logger),
	}
}

// WithRecorder attaches a window recorder, typically a metrics sink.
func (v *Validator) WithRecorder(r WindowRecorder) *Validator {
	v.recorder = r
	return v
}

// Run trains on rows [i-window, i) and predicts row i for every i in
// [window, n). Per-window failures leave null placeholders so every sequence
// in the result has length max(0, n-window). Invalid options are returned as
// errors; everything else is reported through the result.
func (v *Validator) Run(ctx context.Context, t *timetable.Table, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.NewAppValidationError("OOS validation needs a table")
	}
	res := newResult()
	n := t.Len()
	v.logger.InfoContext(ctx, "starting OOS validation",
		slog.String("endog", opts.Endog),
		slog.Any("exog", opts.Exog),
		slog.Int("window_size", opts.WindowSize))

	if n < opts.WindowSize+1 {
		v.logger.ErrorContext(ctx, "insufficient data for OOS validation",
			slog.Int("observations", n),
			slog.Int("required", opts.WindowSize+1))
		return res, nil
	}

	outcomes := make([]windowOutcome, n-opts.WindowSize)
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := opts.WindowSize; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := v.window(gctx, t, i, opts)
			outcomes[i-opts.WindowSize] = out
			if v.recorder != nil {
				v.recorder.RecordWindow(gctx, out.model == nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run OOS windows: %w", err)
	}

	idx := t.Index()
	for k, out := range outcomes {
		i := opts.WindowSize + k
		res.TrainWindows = append(res.TrainWindows, IndexRange{
			From: i - opts.WindowSize, To: i,
			Start: idx[i-opts.WindowSize], End: idx[i-1],
		})
		res.TestPoints = append(res.TestPoints, idx[i])
		res.Predictions = append(res.Predictions, numeric.Float(out.prediction))
		res.Actuals = append(res.Actuals, numeric.Float(out.actual))
		res.Residuals = append(res.Residuals, numeric.Float(out.residual))
		res.FittedModels = append(res.FittedModels, out.model)
	}
	res.computeMetrics()
	res.PredictionsSeries = timetable.Series{
		Name:   PredictionColumn,
		Index:  append([]time.Time(nil), res.TestPoints...),
		Values: floatValues(res.Predictions),
	}

	v.logger.InfoContext(ctx, "OOS validation complete",
		slog.Int("windows", len(outcomes)),
		slog.Int("valid_predictions", res.NValidPredictions),
		slog.Float64("rmse", res.RMSE.Value()),
		slog.Float64("mae", res.MAE.Value()),
		slog.Float64("directional_accuracy", res.DirectionalAccuracy.Value()))
	return res, nil
}

func floatValues(in []numeric.Float) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = v.Value()
	}
	return out
}
