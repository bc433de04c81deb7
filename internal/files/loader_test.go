package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/shared/testutil"
)

func testPaths(dir string) config.Paths {
	return config.PathsConfig{
		DataDir:     "data",
		OutputDir:   "output",
		LogsDir:     "logs",
		MonthlyFile: "monthly.csv",
		DailyFile:   "daily.csv",
	}.Resolve(dir)
}

func TestLoader_LoadConfiguredMonthly(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))
	require.Equal(t, paths.MonthlyFile, testutil.WriteMonthlyCSV(t, paths.DataDir, 24, 3))

	logger, handler := testutil.NewTestLogger(t)
	in, err := NewLoader(paths, logger).Load(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, paths.MonthlyFile, in.MonthlyPath)
	assert.Equal(t, 24, in.Monthly.Len())
	assert.Nil(t, in.Daily, "a missing default daily file is not an error")
	assert.Empty(t, in.DailyPath)
	assert.True(t, handler.ContainsMessage("input loaded"))
}

func TestLoader_DiscoversNewestMonthly(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))

	older := testutil.WriteMonthlyCSV(t, paths.DataDir, 24, 1)
	oldName := filepath.Join(paths.DataDir, "eth_monthly_2023.csv")
	require.NoError(t, os.Rename(older, oldName))
	newer := testutil.WriteMonthlyCSV(t, paths.DataDir, 30, 2)
	newName := filepath.Join(paths.DataDir, "eth_monthly_2024.csv")
	require.NoError(t, os.Rename(newer, newName))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldName, past, past))

	in, err := NewLoader(paths, nil).Load(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, newName, in.MonthlyPath)
	assert.Equal(t, 30, in.Monthly.Len())
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	paths := testPaths(dir)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.DataDir, "empty.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(paths.DataDir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(paths.DataDir, "broken.csv"), []byte("date,x\nnope,1\n"), 0o644))

	tests := []struct {
		name     string
		monthly  string
		daily    string
		wantType apperrors.ErrorType
	}{
		{"nothing to discover", "", "", apperrors.ErrTypeNotFound},
		{"missing file", "absent.csv", "", apperrors.ErrTypeNotFound},
		{"empty file", "empty.csv", "", apperrors.ErrTypeValidation},
		{"not csv", "notes.txt", "", apperrors.ErrTypeValidation},
		{"unparseable", "broken.csv", "", apperrors.ErrTypeValidation},
		{"directory", paths.DataDir, "", apperrors.ErrTypeValidation},
		{"explicit daily missing", "", "absent_daily.csv", apperrors.ErrTypeNotFound},
	}

	loader := NewLoader(paths, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monthly := tt.monthly
			if tt.name == "explicit daily missing" {
				monthly = testutil.WriteMonthlyCSV(t, t.TempDir(), 24, 1)
			}
			_, err := loader.Load(context.Background(), monthly, tt.daily)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestLoader_ValidateOutputDirectory(t *testing.T) {
	loader := NewLoader(testPaths(t.TempDir()), nil)

	out := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, loader.ValidateOutputDirectory(out))
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "the write probe must be removed")

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	err = loader.ValidateOutputDirectory(filepath.Join(blocker, "out"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestLoader_Resolve(t *testing.T) {
	paths := testPaths(t.TempDir())
	loader := NewLoader(paths, nil)

	assert.Equal(t, filepath.Join(paths.DataDir, "x.csv"), loader.Resolve("x.csv"))
	assert.Equal(t, "/abs/x.csv", loader.Resolve("/abs/x.csv"))
	assert.Empty(t, loader.Resolve(""))
}
