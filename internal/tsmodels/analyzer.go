package tsmodels

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// Fixed ARDL lag structure. The orders are not searched so runs on the same
// data always estimate the same model.
const (
	ARDLAROrder   = 2
	ARDLExogOrder = 1
)

// minExtraRows is added to the maximum lag to get the smallest usable sample.
const minExtraRows = 10

// VECMOptions configures the VECM analysis.
type VECMOptions struct {
	Endog     []string `yaml:"endog" validate:"min=1,dive,required"`
	Exog      []string `yaml:"exog" validate:"dive,required"`
	MaxLag    int      `yaml:"max_lag" validate:"min=1"`
	CointRank int      `yaml:"coint_rank" validate:"min=1"`
	DetOrder  int      `yaml:"det_order" validate:"min=-1,max=1"`
}

// DefaultVECMOptions models price and activity with the Nasdaq as exogenous driver.
func DefaultVECMOptions() VECMOptions {
	return VECMOptions{
		Endog:     []string{"price_usd", "active_addr"},
		Exog:      []string{"nasdaq"},
		MaxLag:    6,
		CointRank: 1,
		DetOrder:  0,
	}
}

// ARDLOptions configures the ARDL analysis.
type ARDLOptions struct {
	Endog  string        `yaml:"endog" validate:"required"`
	Exog   []string      `yaml:"exog" validate:"min=1,dive,required"`
	Trend  string        `yaml:"trend" validate:"oneof=n c t ct"`
	MaxLag int           `yaml:"max_lag" validate:"min=1"`
	Bounds BoundsOptions `yaml:"-"`
}

// DefaultARDLOptions explains price with activity, transactions and the Nasdaq.
func DefaultARDLOptions() ARDLOptions {
	return ARDLOptions{
		Endog:  "price_usd",
		Exog:   []string{"active_addr", "tx_count", "nasdaq"},
		Trend:  TrendConst,
		MaxLag: 6,
		Bounds: DefaultBoundsOptions(),
	}
}

// Analyzer runs the cointegration analyses on a monthly table.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil logger falls back to slog.Default().
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger.With(slog.String("component", "tsmodels"))}
}

// prepare keeps the complete finite rows of cols. It returns a non-empty
// message when the analysis cannot run.
func (a *Analyzer) prepare(ctx context.Context, analysis string, t *timetable.Table, cols []string, maxLag int) (*timetable.Table, string) {
	if t == nil {
		return nil, "Input data is None."
	}
	if missing := t.Missing(cols...); len(missing) > 0 {
		msg := fmt.Sprintf("Monthly table missing required columns for %s: %v", analysis, missing)
		a.logger.ErrorContext(ctx, msg)
		return nil, msg
	}
	sel, err := t.Select(cols...)
	if err != nil {
		return nil, fmt.Sprintf("Data preparation error: %v", err)
	}
	clean := sel.DropMissing(cols...)
	if need := maxLag + minExtraRows; clean.Len() < need {
		a.logger.WarnContext(ctx, "skipping analysis: insufficient observations",
			slog.String("analysis", analysis),
			slog.Int("observations", clean.Len()),
			slog.Int("required", need))
		return nil, "Insufficient observations."
	}
	return clean, ""
}

func matrixOf(t *timetable.Table, cols []string) *mat.Dense {
	data := make([][]float64, len(cols))
	for j, name := range cols {
		data[j], _ = t.Column(name)
	}
	return columns(data)
}

// VECM selects a VAR lag order by AIC, runs the Johansen rank test and fits a
// VECM with the requested rank. Stage failures before the fit degrade to
// defaults; a failed fit is reported in Error.
func (a *Analyzer) VECM(ctx context.Context, t *timetable.Table, opts VECMOptions) *VECMResult {
	res := newVECMResult(opts.Endog, opts.Exog)
	res.CointRank = opts.CointRank
	a.logger.InfoContext(ctx, "running VECM analysis",
		slog.Any("endog", opts.Endog),
		slog.Any("exog", opts.Exog),
		slog.Int("max_lag", opts.MaxLag))

	clean, msg := a.prepare(ctx, "VECM", t, append(append([]string{}, opts.Endog...), opts.Exog...), opts.MaxLag)
	if msg != "" {
		res.Error = msg
		return res
	}
	res.NObs = clean.Len()
	y := matrixOf(clean, opts.Endog)
	var x *mat.Dense
	if len(opts.Exog) > 0 {
		x = matrixOf(clean, opts.Exog)
	}

	lag := DefaultVARLag
	if sel, err := SelectVAROrder(y, x, opts.MaxLag); err != nil {
		a.logger.WarnContext(ctx, "VAR lag order selection failed, using default",
			slog.Int("default_lag", DefaultVARLag),
			slog.String("error", err.Error()))
	} else {
		lag = sel.Selected
		res.VARLagAIC = numeric.Floats(sel.AIC)
	}
	res.SelectedLagOrder = lag
	res.VECMLagOrder = max(lag-1, 0)
	a.logger.InfoContext(ctx, "VAR lag order selected",
		slog.Int("var_aic_lag", lag),
		slog.Int("k_ar_diff", res.VECMLagOrder))

	if jo, err := Johansen(y, opts.DetOrder, res.VECMLagOrder); err != nil {
		a.logger.WarnContext(ctx, "Johansen test failed", slog.String("error", err.Error()))
		res.JohansenError = JohansenErrorSentinel
	} else {
		rank := jo.SuggestedRank()
		res.JohansenTraceStatistics = numeric.Floats(jo.TraceStat)
		res.Johansen5pctCriticalValues = numeric.Floats(jo.Trace5pct())
		res.JohansenMaxEigStatistics = numeric.Floats(jo.MaxEigStat)
		res.JohansenMaxEig5pct = numeric.Floats(jo.MaxEig5pct())
		res.JohansenSuggestedRank = &rank
		a.logger.InfoContext(ctx, "Johansen test complete", slog.Int("suggested_rank", rank))
	}

	det, ok := DeterministicFor(opts.DetOrder)
	if !ok {
		a.logger.WarnContext(ctx, "invalid deterministic order, using restricted constant",
			slog.Int("det_order", opts.DetOrder))
	}
	res.Deterministic = det

	fit, err := FitVECM(y, x, opts.Endog, opts.Exog, res.VECMLagOrder, opts.CointRank, det)
	if err != nil {
		a.logger.ErrorContext(ctx, "VECM analysis failed", slog.String("error", err.Error()))
		res.Error = err.Error()
		return res
	}
	res.Summary = fit.Summary()
	a.logger.DebugContext(ctx, "VECM fit summary", slog.String("summary", res.Summary))

	if opts.CointRank == 1 && len(opts.Endog) >= 2 {
		a.extractVECM(ctx, fit, res)
	}
	a.logger.InfoContext(ctx, "VECM fitting complete")
	return res
}

// extractVECM fills the rank-one parameter fields. Each extraction is
// isolated so a failure leaves only its own fields at the null default.
func (a *Analyzer) extractVECM(ctx context.Context, fit *VECMFit, res *VECMResult) {
	a.extract(ctx, "cointegrating vector", func() {
		vec, err := fit.CointegratingVector()
		if err != nil {
			a.logger.WarnContext(ctx, "first loading of the cointegrating vector is near zero, cannot normalize",
				slog.String("error_type", string(apperrors.TypeOf(err))))
			res.CointegratingVectorNormalized = CointVector{Failed: true}
			return
		}
		res.CointegratingVectorNormalized = CointVector{Values: vec}
		res.BetaActivity = numeric.Float(vec[1])
	})
	a.extract(ctx, "adjustment coefficients", func() {
		k, _ := fit.Alpha.Dims()
		coef := make([]float64, k)
		pvals := make([]float64, k)
		for i := 0; i < k; i++ {
			coef[i] = fit.Alpha.At(i, 0)
			pvals[i] = fit.AlphaP.At(i, 0)
		}
		res.AdjustmentCoefficients = numeric.Floats(coef)
		res.AdjustmentPValues = numeric.Floats(pvals)
		res.AlphaValue = numeric.Float(coef[0])
		res.AlphaValueP = numeric.Float(pvals[0])
		res.AlphaActivityP = numeric.Float(pvals[1])
	})
}

func (a *Analyzer) extract(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.WarnContext(ctx, "could not extract VECM parameters",
				slog.String("parameters", what),
				slog.Any("panic", r))
		}
	}()
	fn()
}

// ARDL fits ARDL(2, 1, ..., 1) and runs the bounds test on its error
// correction form. A bounds test failure leaves the ARDL coefficients set.
func (a *Analyzer) ARDL(ctx context.Context, t *timetable.Table, opts ARDLOptions) *ARDLResult {
	res := newARDLResult(opts.Endog, opts.Exog, opts.Trend)
	a.logger.InfoContext(ctx, "running ARDL analysis",
		slog.String("endog", opts.Endog),
		slog.Any("exog", opts.Exog),
		slog.String("trend", opts.Trend))

	clean, msg := a.prepare(ctx, "ARDL", t, append([]string{opts.Endog}, opts.Exog...), opts.MaxLag)
	if msg != "" {
		res.Error = msg
		return res
	}

	res.ARLagOrder = ARDLAROrder
	res.ExogLagOrders = make(map[string]int, len(opts.Exog))
	orders := make([]int, len(opts.Exog))
	xs := make([][]float64, len(opts.Exog))
	for j, name := range opts.Exog {
		res.ExogLagOrders[name] = ARDLExogOrder
		orders[j] = ARDLExogOrder
		xs[j], _ = clean.Column(name)
	}
	y, _ := clean.Column(opts.Endog)

	model, err := FitARDL(y, xs, opts.Endog, opts.Exog, ARDLAROrder, orders, opts.Trend)
	if err != nil {
		a.logger.ErrorContext(ctx, "ARDL analysis failed", slog.String("error", err.Error()))
		res.Error = err.Error()
		return res
	}
	res.Coefficients = model.Params()
	res.PValues = numeric.NamedFrom(model.Names, model.PValues)
	res.NObs = model.Fit.NObs
	res.Summary = model.Summary(fmt.Sprintf("ARDL(%d, %d) results", ARDLAROrder, ARDLExogOrder))
	a.logger.DebugContext(ctx, "ARDL fit summary", slog.String("summary", res.Summary))

	ectName := opts.Endog + ".L1"
	if v, ok := res.Coefficients.Get(ectName); ok {
		res.ErrorCorrectionCoefficient = numeric.Float(v)
	} else {
		a.logger.WarnContext(ctx, "ECT coefficient not found", slog.String("parameter", ectName))
	}

	res.BoundsCase = PSSCase(opts.Trend)
	bt, err := a.bounds(ctx, y, xs, opts, orders, res.BoundsCase)
	if err != nil {
		a.logger.WarnContext(ctx, "bounds test failed", slog.String("error", err.Error()))
		return res
	}
	res.BoundsTestStatistic = numeric.Float(bt.Statistic)
	res.BoundsLowerPValue = numeric.Float(bt.LowerP)
	res.BoundsUpperPValue = numeric.Float(bt.UpperP)
	res.BoundsSummary = bt.Summary()
	res.CointegratedAt5pct = CointegrationVerdict(bt.LowerP)
	if res.CointegratedAt5pct == nil {
		a.logger.WarnContext(ctx, "bounds test lower p-value unavailable, verdict inconclusive")
	}
	a.logger.InfoContext(ctx, "ARDL fitting complete",
		slog.Float64("bounds_stat", bt.Statistic),
		slog.Float64("bounds_p_lower", bt.LowerP))
	return res
}

func (a *Analyzer) bounds(ctx context.Context, y []float64, xs [][]float64, opts ARDLOptions, orders []int, bcase int) (bt *BoundsTest, err error) {
	defer func() {
		if r := recover(); r != nil {
			bt, err = nil, fmt.Errorf("bounds test panicked: %v", r)
		}
	}()
	uecm, err := FitUECM(y, xs, opts.Endog, opts.Exog, ARDLAROrder-1, orders, opts.Trend)
	if err != nil {
		return nil, fmt.Errorf("fit UECM: %w", err)
	}
	bt, err = BoundsTestUECM(ctx, uecm, opts.Trend, bcase, opts.Bounds)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(bt.Statistic) {
		return nil, fmt.Errorf("bounds statistic is not finite")
	}
	return bt, nil
}
