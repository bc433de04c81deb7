package files

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ethvaluation/internal/config"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/timetable"
)

// MonthlyPattern matches monthly input files when none is configured.
const MonthlyPattern = "*monthly*.csv"

// Inputs are the tables of one analysis run and where they came from.
type Inputs struct {
	Monthly     *timetable.Table
	Daily       *timetable.Table
	MonthlyPath string
	DailyPath   string
}

// Loader resolves, validates and reads input CSV files.
type Loader struct {
	paths     config.Paths
	discovery *Discovery
	logger    *slog.Logger
}

// NewLoader creates a loader resolving relative paths inside paths.DataDir.
func NewLoader(paths config.Paths, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		paths:     paths,
		discovery: NewDiscovery(paths.DataDir),
		logger:    logger.With(slog.String("component", "input_loader")),
	}
}

// Discovery returns the discovery rooted at the data directory.
func (l *Loader) Discovery() *Discovery { return l.discovery }

// Resolve anchors a relative path at the data directory.
func (l *Loader) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.paths.DataDir, path)
}

// ValidateFile checks that path is an existing, non-empty CSV file.
func (l *Loader) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return apperrors.NewNotFoundError(fmt.Sprintf("input file %s", path))
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("stat %s", path), err)
	}
	if info.IsDir() {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is a directory, not a file", path))
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is not a CSV file", path))
	}
	if info.Size() == 0 {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is empty", path))
	}
	return nil
}

// ValidateOutputDirectory creates dir if needed and checks it is writable.
func (l *Loader) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("create output directory %s", dir), err)
	}
	probe, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// Load reads the monthly table and the optional daily table. An empty
// monthlyPath falls back to the configured monthly file when it exists and
// then to the newest file matching MonthlyPattern in the data directory. An
// empty dailyPath uses the configured daily file only when it exists.
func (l *Loader) Load(ctx context.Context, monthlyPath, dailyPath string) (*Inputs, error) {
	monthlyPath, err := l.monthlyPath(monthlyPath)
	if err != nil {
		return nil, err
	}
	if dailyPath == "" && config.FileExists(l.paths.DailyFile) {
		dailyPath = l.paths.DailyFile
	}

	in := &Inputs{MonthlyPath: monthlyPath}
	in.Monthly, err = l.read(ctx, monthlyPath)
	if err != nil {
		return nil, err
	}
	if missing := in.Monthly.Missing(ols.RequiredMonthlyColumns...); len(missing) > 0 {
		l.logger.WarnContext(ctx, "monthly input lacks model columns",
			slog.String("file", monthlyPath),
			slog.Any("missing", missing))
	}

	if dailyPath = l.Resolve(dailyPath); dailyPath != "" {
		in.DailyPath = dailyPath
		if in.Daily, err = l.read(ctx, dailyPath); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (l *Loader) monthlyPath(path string) (string, error) {
	if path != "" {
		return l.Resolve(path), nil
	}
	if config.FileExists(l.paths.MonthlyFile) {
		return l.paths.MonthlyFile, nil
	}
	found, err := l.discovery.FindByPattern("", MonthlyPattern)
	if err != nil {
		return "", apperrors.NewStorageError("search data directory", err)
	}
	latest, ok := GetLatestFile(found)
	if !ok {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("monthly input in %s", l.paths.DataDir))
	}
	return latest.Path, nil
}

func (l *Loader) read(ctx context.Context, path string) (*timetable.Table, error) {
	if err := l.ValidateFile(path); err != nil {
		return nil, err
	}
	t, err := timetable.ReadCSV(path)
	if err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}
	l.logger.InfoContext(ctx, "input loaded",
		slog.String("file", path),
		slog.Int("rows", t.Len()),
		slog.Int("columns", len(t.Columns())))
	return t, nil
}
