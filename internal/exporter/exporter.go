package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/pipeline"
	"ethvaluation/internal/timetable"
)

// Format is an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Output file names.
const (
	FinalResultsFile    = "final_results.json"
	AnalysisResultsFile = "analysis_results.json"
	SummaryTextFile     = "summary.txt"
	ModelFrameFile      = "monthly_model_frame.csv"
	FairValueFile       = "monthly_fair_values.csv"
	PredictionsFile     = "oos_predictions.csv"
	WorkbookFile        = "valuation_report.xlsx"
)

// ParseFormats parses a comma-separated format list such as "json,csv".
func ParseFormats(s string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case "":
			continue
		case FormatJSON, FormatCSV, FormatXLSX:
		default:
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("unknown export format %q", part))
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.NewAppValidationError("no export format given")
	}
	return out, nil
}

// Exporter writes the results of a run to a directory.
type Exporter struct {
	dir    string
	bom    bool
	csv    *CSVWriter
	logger *slog.Logger
}

// New creates an exporter writing below dir. CSV files get a UTF-8 BOM when
// bom is set.
func New(dir string, bom bool, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		dir:    dir,
		bom:    bom,
		csv:    NewCSVWriter(dir, logger),
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Export writes run in each format and returns the paths written.
func (e *Exporter) Export(ctx context.Context, run *pipeline.Run, formats []Format) ([]string, error) {
	if run == nil || run.Results == nil {
		return nil, apperrors.NewAppValidationError("nothing to export")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, apperrors.NewStorageError("create output directory", err)
	}

	var paths []string
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		var (
			written []string
			err     error
		)
		switch f {
		case FormatJSON:
			written, err = e.writeJSON(run)
		case FormatCSV:
			written, err = e.writeCSV(run)
		case FormatXLSX:
			var path string
			path, err = WriteWorkbook(filepath.Join(e.dir, WorkbookFile), run)
			written = []string{path}
		default:
			err = fmt.Errorf("unknown export format %q", f)
		}
		if err != nil {
			return paths, apperrors.NewStorageError(fmt.Sprintf("export %s", f), err)
		}
		paths = append(paths, written...)
	}
	e.logger.InfoContext(ctx, "results exported", slog.String("run_id", run.ID()), slog.Any("files", paths))
	return paths, nil
}

func (e *Exporter) writeJSON(run *pipeline.Run) ([]string, error) {
	var paths []string
	if s := run.Results.Summary; s != nil {
		path, err := WriteJSON(filepath.Join(e.dir, FinalResultsFile), s.Final)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)

		text := filepath.Join(e.dir, SummaryTextFile)
		if err := os.WriteFile(text, []byte(s.Interpretation), 0o644); err != nil {
			return nil, fmt.Errorf("write summary text: %w", err)
		}
		paths = append(paths, text)
	}
	report := struct {
		Run     pipeline.Snapshot `json:"run"`
		Results *pipeline.Results `json:"results"`
	}{run.State.Snapshot(), run.Results}
	path, err := WriteJSON(filepath.Join(e.dir, AnalysisResultsFile), report)
	if err != nil {
		return nil, err
	}
	return append(paths, path), nil
}

// WriteJSON writes v as indented JSON; NaN values render as null.
func WriteJSON(path string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func (e *Exporter) writeCSV(run *pipeline.Run) ([]string, error) {
	var paths []string
	for _, t := range []struct {
		name  string
		table *timetable.Table
	}{
		{ModelFrameFile, run.ModelFrame},
		{FairValueFile, run.OLSFrame},
	} {
		if t.table == nil {
			continue
		}
		header, records := t.table.Records()
		path, err := e.csv.WriteCSV(t.name, WriteOptions{Headers: header, Records: records, BOMPrefix: e.bom})
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	if res := run.Results.OOS.Result; res != nil {
		path, err := e.writePredictions(run)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Exporter) writePredictions(run *pipeline.Run) (string, error) {
	res := run.Results.OOS.Result
	sw, err := e.csv.CreateStreamWriter(PredictionsFile, []string{"date", "actual", "predicted", "residual", "train_start", "train_end"}, e.bom)
	if err != nil {
		return "", err
	}
	for i, ts := range res.TestPoints {
		win := res.TrainWindows[i]
		record := []string{
			ts.Format(time.DateOnly),
			formatFloat(res.Actuals[i].Value()),
			formatFloat(res.Predictions[i].Value()),
			formatFloat(res.Residuals[i].Value()),
			win.Start.Format(time.DateOnly),
			win.End.Format(time.DateOnly),
		}
		if err := sw.WriteRecord(record); err != nil {
			sw.Close()
			return "", fmt.Errorf("write prediction %d: %w", i, err)
		}
	}
	return sw.Path(), sw.Close()
}
