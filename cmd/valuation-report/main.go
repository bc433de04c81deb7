// Command valuation-report runs the full network value analysis over a
// monthly CSV and writes the result files.
//
//	valuation-report -monthly data/eth_monthly.csv -out output -formats json,xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ethvaluation/internal/config"
	"ethvaluation/internal/exporter"
	"ethvaluation/internal/files"
	"ethvaluation/internal/infrastructure"
	"ethvaluation/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	monthly    string
	daily      string
	configPath string
	outDir     string
	formats    string
	window     int
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("valuation-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.monthly, "monthly", "", "monthly CSV input (defaults to the configured monthly file)")
	fs.StringVar(&o.daily, "daily", "", "optional daily CSV input")
	fs.StringVar(&o.configPath, "config", "", "YAML config file (defaults to ./config.yaml when present)")
	fs.StringVar(&o.outDir, "out", "", "output directory (defaults to the configured output directory)")
	fs.StringVar(&o.formats, "formats", "", "comma-separated output formats: json,csv,xlsx")
	fs.IntVar(&o.window, "window", 0, "walk-forward training window in months (overrides the config)")
	fs.BoolVar(&o.verbose, "verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

// run returns the process exit code: 0 when the analysis ran, 1 when the
// inputs, configuration or output could not be handled, 2 on bad flags.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.window > 0 {
		cfg.Analysis.OOS.WindowSize = opts.window
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "configuration error: %v\n", err)
			return 1
		}
	}

	logger, closer, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return 1
	}
	defer closer.Close()

	formatList := opts.formats
	if formatList == "" {
		formatList = strings.Join(cfg.Export.Formats, ",")
	}
	formats, err := exporter.ParseFormats(formatList)
	if err != nil {
		logger.Error("invalid output formats", slog.String("error", err.Error()))
		return 1
	}

	wd, err := os.Getwd()
	if err != nil {
		logger.Error("failed to get working directory", slog.String("error", err.Error()))
		return 1
	}
	paths := cfg.Paths.Resolve(wd)
	outDir := paths.OutputDir
	if opts.outDir != "" {
		outDir = absPath(wd, opts.outDir)
	}

	loader := files.NewLoader(paths, logger)
	if err := loader.ValidateOutputDirectory(outDir); err != nil {
		logger.Error("output directory unusable", slog.String("error", err.Error()))
		return 1
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	logger = infrastructure.WithComponent(logger, "valuation-report")
	in, err := loader.Load(ctx, absPath(wd, opts.monthly), absPath(wd, opts.daily))
	if err != nil {
		logger.ErrorContext(ctx, "failed to load inputs", slog.String("error", err.Error()))
		return 1
	}

	p := pipeline.New(cfg.Analysis, logger)
	res, err := p.Run(ctx, pipeline.Input{Monthly: in.Monthly, Daily: in.Daily})
	if err != nil {
		logger.ErrorContext(ctx, "analysis failed", slog.String("error", err.Error()))
		return 1
	}
	for _, st := range res.State.Snapshot().Steps {
		if st.Status == pipeline.StepStatusFailed {
			logger.WarnContext(ctx, "analysis step failed",
				slog.String("step", st.ID),
				slog.String("error", st.Error))
		}
	}

	written, err := exporter.New(outDir, cfg.Export.BOM, logger).Export(ctx, res, formats)
	if err != nil {
		logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
		return 1
	}

	if res.Results.Summary != nil {
		fmt.Fprintln(stdout, res.Results.Summary.Interpretation)
	}
	fmt.Fprintf(stdout, "\nRun %s wrote %d files to %s\n", res.ID(), len(written), outDir)
	for _, w := range written {
		fmt.Fprintf(stdout, "  %s\n", filepath.Base(w))
	}
	return 0
}

// absPath anchors a user-supplied relative path at the working directory.
func absPath(wd, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(wd, p)
}
