package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/tsmodels"
	"ethvaluation/internal/validation"
)

func missingColumns(missing []string) string {
	return fmt.Sprintf("Missing columns: %v", missing)
}

func (p *Pipeline) prepare(ctx context.Context, run *Run) error {
	run.Results.DataSummary = summarizeData(run.Daily, run.Monthly)
	w := p.cfg.Winsorize
	winsorized, err := p.prep.Winsorize(ctx, run.Monthly, w.Columns, w.Quantile, nil)
	if err != nil {
		return fmt.Errorf("winsorize monthly data: %w", err)
	}
	run.Winsorized = winsorized.ReplaceInf()
	return nil
}

func (p *Pipeline) stationarity(ctx context.Context, run *Run) error {
	table, err := p.prep.StationarityTest(ctx, run.Winsorized, p.cfg.Stationarity.Columns, nil)
	run.Results.Stationarity = table
	return err
}

// modelFrame keeps the winsorized rows complete in the ARDL columns that
// exist. Absent columns are reported by the analyses that need them.
func (p *Pipeline) modelFrame(ctx context.Context, run *Run) error {
	cols := append([]string{p.cfg.ARDL.Endog}, p.cfg.ARDL.Exog...)
	missing := run.Winsorized.Missing(cols...)
	present := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(missing, c) {
			present = append(present, c)
		}
	}

	frame := run.Winsorized.Clone()
	if len(present) > 0 {
		frame = run.Winsorized.DropMissing(present...)
	}
	if frame.Len() == 0 {
		return apperrors.NewDataInsufficientError("No data left after NaN drop.")
	}
	run.ModelFrame = frame
	p.logger.DebugContext(ctx, "model frame built",
		slog.String("run_id", run.ID()),
		slog.Int("rows", frame.Len()),
		slog.Any("missing", missing))
	return nil
}

func (p *Pipeline) benchmarks(ctx context.Context, run *Run) error {
	run.OLSFrame = run.Monthly.Clone()
	res := p.fitter.RunBenchmarks(ctx, run.Daily, run.OLSFrame)
	run.Results.OLS = res
	switch {
	case res.Error != "":
		return errors.New(res.Error)
	case !res.Extended.Fit.OK():
		return fmt.Errorf("extended OLS: %s", res.Extended.Fit.Error)
	}
	return nil
}

func (p *Pipeline) diagnostics(ctx context.Context, run *Run) error {
	var ext *ols.ModelFitResult
	if run.Results.OLS != nil {
		ext = run.Results.OLS.Extended.Fit
	}
	if !ext.OK() {
		run.Results.Diagnostics = TestSection{Error: ExtendedOLSFailed}
		run.Results.Breaks = TestSection{Error: ExtendedOLSFailed}
		return skipped(ExtendedOLSFailed)
	}
	run.Results.Diagnostics = TestSection{Values: p.diag.Residual(ctx, ext)}
	run.Results.Breaks = TestSection{Values: p.diag.StructuralBreaks(ctx, ext, p.cfg.Breaks)}
	return nil
}

func (p *Pipeline) vecm(ctx context.Context, run *Run) error {
	opts := p.cfg.VECM
	if missing := run.ModelFrame.Missing(append(append([]string{}, opts.Endog...), opts.Exog...)...); len(missing) > 0 {
		run.Results.VECM = tsmodels.FailedVECM(opts, missingColumns(missing))
		return errors.New(run.Results.VECM.Error)
	}
	run.Results.VECM = p.analyzer.VECM(ctx, run.ModelFrame, opts)
	if msg := run.Results.VECM.Error; msg != "" {
		return errors.New(msg)
	}
	return nil
}

func (p *Pipeline) ardl(ctx context.Context, run *Run) error {
	opts := p.cfg.ARDL
	opts.Bounds = p.cfg.Bounds.BoundsOptions()
	if missing := run.ModelFrame.Missing(append([]string{opts.Endog}, opts.Exog...)...); len(missing) > 0 {
		run.Results.ARDL = tsmodels.FailedARDL(opts, missingColumns(missing))
		return errors.New(run.Results.ARDL.Error)
	}
	run.Results.ARDL = p.analyzer.ARDL(ctx, run.ModelFrame, opts)
	if msg := run.Results.ARDL.Error; msg != "" {
		return errors.New(msg)
	}
	return nil
}

func (p *Pipeline) oos(ctx context.Context, run *Run) error {
	opts := p.cfg.OOS
	req := append(append([]string{opts.Endog}, opts.Exog...), ols.ColPrice, ols.ColSupply)
	if missing := run.Winsorized.Missing(req...); len(missing) > 0 {
		run.Results.OOS = OOSSection{Error: missingColumns(missing)}
		return errors.New(run.Results.OOS.Error)
	}
	// Full-sample winsorized frame; each window re-winsorizes its training rows.
	res, err := p.validator.Run(ctx, run.Winsorized, opts)
	if err != nil {
		run.Results.OOS = OOSSection{Error: err.Error()}
		return err
	}
	run.Results.OOS = OOSSection{Result: res}
	if len(res.TestPoints) == 0 {
		return skipped("not enough rows for one window")
	}
	return nil
}

// mergePredictions writes the OOS predictions onto the model frame.
func (p *Pipeline) mergePredictions(ctx context.Context, run *Run) {
	res := run.Results.OOS.Result
	if res == nil || run.ModelFrame == nil {
		return
	}
	if err := validation.MergePredictions(run.ModelFrame, res); err != nil {
		p.logger.WarnContext(ctx, "could not merge OOS predictions",
			slog.String("run_id", run.ID()),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) summary(ctx context.Context, run *Run) error {
	run.Results.Summary = Summarize(run.Results, run.OLSFrame, run.ModelFrame)
	return nil
}
