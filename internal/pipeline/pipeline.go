package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ethvaluation/internal/config"
	"ethvaluation/internal/diagnostics"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/preprocess"
	"ethvaluation/internal/timetable"
	"ethvaluation/internal/tsmodels"
	"ethvaluation/internal/validation"
)

// Input is the data of one run. RunID is generated when empty.
type Input struct {
	RunID   string
	Monthly *timetable.Table
	Daily   *timetable.Table
}

// Pipeline runs the full analysis over a monthly table.
type Pipeline struct {
	cfg      config.AnalysisConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  Metrics
	observer Observer

	prep      *preprocess.Preprocessor
	fitter    *ols.Fitter
	diag      *diagnostics.Runner
	analyzer  *tsmodels.Analyzer
	validator *validation.Validator
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracer sets the tracer spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithMetrics records run, step and window outcomes on m.
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithObserver streams progress events to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a pipeline. A nil logger falls back to slog.Default().
func New(cfg config.AnalysisConfig, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "pipeline")),
		tracer:    otel.Tracer("ethvaluation/pipeline"),
		prep:      preprocess.NewPreprocessor(logger),
		fitter:    ols.NewFitter(logger).WithHACLags(cfg.OLS.HACLags),
		diag:      diagnostics.NewRunner(logger),
		analyzer:  tsmodels.NewAnalyzer(logger),
		validator: validation.NewValidator(logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics != nil {
		p.validator.WithRecorder(p.metrics)
	}
	return p
}

// Steps lists the steps of a run in execution order. OLS with its
// diagnostics, VECM, ARDL and OOS run concurrently.
func (p *Pipeline) Steps() []Step {
	return []Step{
		&funcStep{id: StepPrepare, name: "Winsorize monthly data", fatal: true, fn: p.prepare},
		&funcStep{id: StepStationarity, name: "Stationarity tests", fn: p.stationarity},
		&funcStep{id: StepModelFrame, name: "Build model frame", fatal: true, fn: p.modelFrame},
		&funcStep{id: StepOLS, name: "OLS benchmarks", fn: p.benchmarks},
		&funcStep{id: StepDiagnostics, name: "Residual and break diagnostics", fn: p.diagnostics},
		&funcStep{id: StepVECM, name: "VECM analysis", fn: p.vecm},
		&funcStep{id: StepARDL, name: "ARDL analysis", fn: p.ardl},
		&funcStep{id: StepOOS, name: "Walk-forward validation", fn: p.oos},
		&funcStep{id: StepSummary, name: "Summary", fn: p.summary},
	}
}

// Run executes every step over in. The returned Run is non-nil whenever
// in.Monthly is; the error reports a fatal step failure or cancellation, while
// the failures of individual analyses are recorded in their results.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Run, error) {
	run, err := p.NewRun(in)
	if err != nil {
		return nil, err
	}
	return run, p.Execute(ctx, run)
}

// NewRun creates a pending run over in without executing it. Its State may be
// read while Execute is in progress; its Results only once Execute returned.
func (p *Pipeline) NewRun(in Input) (*Run, error) {
	if in.Monthly == nil {
		return nil, apperrors.NewAppValidationError("monthly table is required")
	}
	id := in.RunID
	if id == "" {
		id = uuid.NewString()
	}
	return &Run{
		State:   NewRunState(id, p.Steps()),
		Results: &Results{},
		Daily:   in.Daily,
		Monthly: in.Monthly,
	}, nil
}

// Execute runs every step of a run created by NewRun.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	steps := p.Steps()
	byID := make(map[string]Step, len(steps))
	for _, s := range steps {
		byID[s.ID()] = s
	}
	id := run.ID()
	digest := run.Monthly.Digest()

	ctx, span := p.tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.String("run.id", id),
		attribute.String("input.digest", digest),
		attribute.Int("monthly.rows", run.Monthly.Len()),
	))
	defer span.End()

	logger := p.logger.With(slog.String("run_id", id))
	logger.InfoContext(ctx, "analysis run started", slog.String("input_digest", digest), slog.Int("months", run.Monthly.Len()))
	run.State.start(digest)
	p.notifyRun(ctx, run)

	err := p.execute(ctx, run, byID)

	status := RunStatusCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = RunStatusCancelled
	default:
		status = RunStatusFailed
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	run.State.finish(status, err)
	if p.metrics != nil {
		p.metrics.RecordRun(ctx, string(status))
	}
	p.notifyRun(ctx, run)

	snap := run.State.Snapshot()
	logger.InfoContext(ctx, "analysis run finished",
		slog.String("status", string(status)),
		slog.Duration("duration", snap.Duration()))
	return err
}

func (p *Pipeline) execute(ctx context.Context, run *Run, steps map[string]Step) error {
	for _, id := range []string{StepPrepare, StepStationarity, StepModelFrame} {
		if err := p.runStep(ctx, run, steps[id]); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	chains := [][]string{
		{StepOLS, StepDiagnostics},
		{StepVECM},
		{StepARDL},
		{StepOOS},
	}
	for _, chain := range chains {
		g.Go(func() error {
			for _, id := range chain {
				if err := p.runStep(gctx, run, steps[id]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.mergePredictions(ctx, run)
	return p.runStep(ctx, run, steps[StepSummary])
}

// runStep executes one step and records its outcome. It returns an error
// only for cancellation or the failure of a fatal step.
func (p *Pipeline) runStep(ctx context.Context, run *Run, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := p.tracer.Start(ctx, "analysis.step."+step.ID(), trace.WithAttributes(
		attribute.String("run.id", run.ID()),
		attribute.String("step.id", step.ID()),
	))
	defer span.End()

	st, _ := run.State.updateStep(step.ID(), func(s *StepState) {
		now := time.Now()
		s.StartTime = &now
		s.Status = StepStatusActive
	})
	p.notifyStep(ctx, run, st)
	p.logger.DebugContext(ctx, "step started", slog.String("run_id", run.ID()), slog.String("step", step.ID()))

	err := step.Execute(ctx, run)

	st, _ = run.State.updateStep(step.ID(), func(s *StepState) {
		now := time.Now()
		s.EndTime = &now
		switch {
		case err == nil:
			s.Status = StepStatusCompleted
		case errors.Is(err, ErrSkipped):
			s.Status = StepStatusSkipped
			s.Message = err.Error()
		default:
			s.Status = StepStatusFailed
			s.Error = err.Error()
		}
	})
	failed := st.Status == StepStatusFailed
	if p.metrics != nil {
		p.metrics.RecordStep(ctx, step.ID(), st.Duration(), failed)
	}
	p.notifyStep(ctx, run, st)

	attrs := []any{slog.String("run_id", run.ID()), slog.String("step", step.ID()), slog.Duration("duration", st.Duration())}
	switch st.Status {
	case StepStatusFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.WarnContext(ctx, "step failed", append(attrs, slog.String("error", err.Error()))...)
	case StepStatusSkipped:
		p.logger.InfoContext(ctx, "step skipped", append(attrs, slog.String("reason", err.Error()))...)
	default:
		p.logger.InfoContext(ctx, "step completed", attrs...)
	}

	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if failed {
		if fs, ok := step.(*funcStep); ok && fs.fatal {
			return fmt.Errorf("step %s: %w", step.ID(), err)
		}
	}
	return nil
}

func (p *Pipeline) notifyRun(ctx context.Context, run *Run) {
	if p.observer == nil {
		return
	}
	snap := run.State.Snapshot()
	p.observer.Notify(ctx, Event{
		Type:      EventRun,
		RunID:     snap.ID,
		Status:    snap.Status,
		Error:     snap.Error,
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) notifyStep(ctx context.Context, run *Run, st StepState) {
	if p.observer == nil {
		return
	}
	p.observer.Notify(ctx, Event{
		Type:      EventStep,
		RunID:     run.ID(),
		Step:      &st,
		Error:     st.Error,
		Timestamp: time.Now(),
	})
}
