package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ethvaluation/internal/config"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/exporter"
	"ethvaluation/internal/files"
	"ethvaluation/internal/pipeline"
)

// RunRequest starts an analysis run. Empty paths fall back to the configured
// inputs; a zero WindowSize keeps the configured walk-forward window.
type RunRequest struct {
	MonthlyPath string   `json:"monthly_path,omitempty"`
	DailyPath   string   `json:"daily_path,omitempty"`
	WindowSize  int      `json:"window_size,omitempty" validate:"omitempty,min=6,max=600"`
	Formats     []string `json:"formats,omitempty" validate:"omitempty,dive,oneof=json csv xlsx"`
}

// RunInfo describes a submitted run.
type RunInfo struct {
	pipeline.Snapshot
	CreatedAt   time.Time  `json:"created_at"`
	Request     RunRequest `json:"request"`
	MonthlyPath string     `json:"monthly_path"`
	DailyPath   string     `json:"daily_path,omitempty"`
	Outputs     []string   `json:"outputs,omitempty"`
	ExportError string     `json:"export_error,omitempty"`
}

// AnalysisService runs analyses in the background and keeps their results.
type AnalysisService struct {
	analysis   config.AnalysisConfig
	export     config.ExportConfig
	runTimeout time.Duration
	outputDir  string

	loader   *files.Loader
	store    *RunStore
	opts     []pipeline.Option
	logger   *slog.Logger
	validate *validator.Validate

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	mu      sync.Mutex
}

// NewAnalysisService creates the service. opts are applied to the pipeline of
// every run, typically the tracer, metrics and the websocket observer.
func NewAnalysisService(cfg *config.Config, paths config.Paths, loader *files.Loader, logger *slog.Logger, opts ...pipeline.Option) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &AnalysisService{
		analysis:   cfg.Analysis,
		export:     cfg.Export,
		runTimeout: cfg.Server.RunTimeout,
		outputDir:  paths.OutputDir,
		loader:     loader,
		store:      NewRunStore(cfg.Server.MaxRuns),
		opts:       opts,
		logger:     logger.With(slog.String("service", "analysis")),
		validate:   validator.New(),
		baseCtx:    ctx,
		stop:       stop,
	}
}

// Store exposes the run store for health reporting.
func (s *AnalysisService) Store() *RunStore { return s.store }

// StartRun validates req, loads its inputs and starts the run in the
// background. Input problems are reported here, before the run is created.
func (s *AnalysisService) StartRun(ctx context.Context, req RunRequest) (RunInfo, error) {
	if err := s.validate.Struct(req); err != nil {
		return RunInfo{}, apperrors.NewAppError(apperrors.ErrTypeValidation, "invalid run request", err)
	}
	formats, err := s.formats(req.Formats)
	if err != nil {
		return RunInfo{}, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return RunInfo{}, ErrShuttingDown
	}

	in, err := s.loader.Load(ctx, req.MonthlyPath, req.DailyPath)
	if err != nil {
		return RunInfo{}, err
	}

	cfg := s.analysis
	if req.WindowSize > 0 {
		cfg.OOS.WindowSize = req.WindowSize
	}
	p := pipeline.New(cfg, s.logger, s.opts...)
	run, err := p.NewRun(pipeline.Input{RunID: uuid.NewString(), Monthly: in.Monthly, Daily: in.Daily})
	if err != nil {
		return RunInfo{}, err
	}

	runCtx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	rec := &runRecord{
		id:          run.ID(),
		createdAt:   time.Now(),
		request:     req,
		monthlyPath: in.MonthlyPath,
		dailyPath:   in.DailyPath,
		run:         run,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if err := s.store.add(rec); err != nil {
		cancel()
		return RunInfo{}, err
	}

	s.wg.Add(1)
	go s.execute(runCtx, p, rec, formats)

	s.logger.InfoContext(ctx, "analysis run submitted",
		slog.String("run_id", rec.id),
		slog.String("monthly_path", in.MonthlyPath),
		slog.Int("window_size", cfg.OOS.WindowSize))
	return rec.info(), nil
}

func (s *AnalysisService) execute(ctx context.Context, p *pipeline.Pipeline, rec *runRecord, formats []exporter.Format) {
	defer s.wg.Done()
	defer close(rec.done)
	defer rec.cancel()

	if err := p.Execute(ctx, rec.run); err != nil {
		s.logger.WarnContext(ctx, "analysis run did not complete",
			slog.String("run_id", rec.id),
			slog.String("error", err.Error()))
		return
	}

	// Export with a fresh deadline so a slow run still gets its files written.
	exportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	exp := exporter.New(filepath.Join(s.outputDir, rec.id), s.export.BOM, s.logger)
	paths, err := exp.Export(exportCtx, rec.run, formats)
	if err != nil {
		s.logger.ErrorContext(ctx, "export failed", slog.String("run_id", rec.id), slog.String("error", err.Error()))
	}
	rec.setOutputs(paths, err)
}

func (s *AnalysisService) formats(requested []string) ([]exporter.Format, error) {
	if len(requested) == 0 {
		requested = s.export.Formats
	}
	return exporter.ParseFormats(strings.Join(requested, ","))
}

func (s *AnalysisService) record(id string) (*runRecord, error) {
	rec, ok := s.store.get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("analysis run %s", id)).WithContext("run_id", id)
	}
	return rec, nil
}

// GetRun returns the current state of a run.
func (s *AnalysisService) GetRun(_ context.Context, id string) (RunInfo, error) {
	rec, err := s.record(id)
	if err != nil {
		return RunInfo{}, err
	}
	return rec.info(), nil
}

// ListRuns returns every stored run, newest first.
func (s *AnalysisService) ListRuns(_ context.Context) []RunInfo {
	recs := s.store.list()
	out := make([]RunInfo, len(recs))
	for i, r := range recs {
		out[i] = r.info()
	}
	return out
}

// Results returns the results of a finished run.
func (s *AnalysisService) Results(_ context.Context, id string) (*pipeline.Results, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	if !rec.finished() {
		return nil, ErrRunNotFinished
	}
	return rec.run.Results, nil
}

// Summary returns the headline values of a finished run.
func (s *AnalysisService) Summary(ctx context.Context, id string) (*pipeline.Summary, error) {
	res, err := s.Results(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Summary == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("summary of analysis run %s", id))
	}
	return res.Summary, nil
}

// OutputFile returns the path of the exported file called name of run id.
func (s *AnalysisService) OutputFile(_ context.Context, id, name string) (string, error) {
	rec, err := s.record(id)
	if err != nil {
		return "", err
	}
	if !rec.finished() {
		return "", ErrRunNotFinished
	}
	for _, p := range rec.info().Outputs {
		if filepath.Base(p) == name {
			return p, nil
		}
	}
	return "", apperrors.NewNotFoundError(fmt.Sprintf("output %s of analysis run %s", name, id))
}

// CancelRun cancels a run. Cancelling a finished run is a no-op.
func (s *AnalysisService) CancelRun(ctx context.Context, id string) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}
	rec.cancel()
	s.logger.InfoContext(ctx, "analysis run cancel requested", slog.String("run_id", id))
	return nil
}

// Wait blocks until the run finished or ctx is done.
func (s *AnalysisService) Wait(ctx context.Context, id string) (RunInfo, error) {
	rec, err := s.record(id)
	if err != nil {
		return RunInfo{}, err
	}
	select {
	case <-rec.done:
		return rec.info(), nil
	case <-ctx.Done():
		return rec.info(), ctx.Err()
	}
}

// ActiveRuns counts the runs that have not finished.
func (s *AnalysisService) ActiveRuns() int {
	n := 0
	for _, r := range s.store.list() {
		if !r.finished() {
			n++
		}
	}
	return n
}

// Shutdown stops accepting runs, cancels the running ones and waits for them
// to stop or for ctx to expire.
func (s *AnalysisService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(ErrShuttingDown, ctx.Err())
	}
}
