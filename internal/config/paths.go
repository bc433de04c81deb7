package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the resolved, absolute locations used by a run.
type Paths struct {
	BaseDir     string
	DataDir     string
	OutputDir   string
	LogsDir     string
	MonthlyFile string
	DailyFile   string
}

// ExecutableDir returns the directory of the running binary with symlinks
// resolved. Relative paths are anchored there rather than at the working
// directory, so the tools behave the same wherever they are started from.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}

// Resolve anchors the configured relative paths at base. Input files are
// resolved inside the data directory.
func (p PathsConfig) Resolve(base string) Paths {
	abs := func(root, path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(root, path)
	}
	data := abs(base, p.DataDir)
	return Paths{
		BaseDir:     base,
		DataDir:     data,
		OutputDir:   abs(base, p.OutputDir),
		LogsDir:     abs(base, p.LogsDir),
		MonthlyFile: abs(data, p.MonthlyFile),
		DailyFile:   abs(data, p.DailyFile),
	}
}

// EnsureDirectories creates the data, output and log directories if they do
// not exist.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.OutputDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		slog.Debug("ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
