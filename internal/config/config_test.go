package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ethvaluation/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	a := cfg.Analysis
	assert.Equal(t, 0.99, a.Winsorize.Quantile)
	assert.Equal(t, 12, a.OLS.HACLags)
	assert.Equal(t, 60, a.OOS.WindowSize)
	assert.Equal(t, 1, a.VECM.CointRank)
	assert.Equal(t, "c", a.ARDL.Trend)
	require.Len(t, a.Breaks, 2)
	assert.Equal(t, time.Date(2017, time.November, 1, 0, 0, 0, 0, time.UTC), a.Breaks[0].Date)
	assert.Equal(t, []string{"json", "csv", "xlsx"}, cfg.Export.Formats)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("ETHVAL_SERVER_PORT", "9090")
	t.Setenv("ETHVAL_ANALYSIS_WINSORIZE_QUANTILE", "0.95")
	t.Setenv("ETHVAL_ANALYSIS_BOUNDS_REPLICATIONS", "200")

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.95, cfg.Analysis.Winsorize.Quantile)
	assert.Equal(t, 200, cfg.Analysis.Bounds.Replications)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("ETHVAL_SERVER_PORT", "9090")

	cfg, err := Load(writeConfig(t, "server:\n  port: 7000\n  read_timeout: 5s\n"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_ModelSections(t *testing.T) {
	body := `
analysis:
  breaks:
    - name: merge
      date: 2022-09-15
  vecm:
    endog: [price_usd, active_addr, tx_count]
    exog: []
    max_lag: 4
    coint_rank: 2
    det_order: -1
  oos:
    endog: price_usd
    exog: [active_addr]
    winsorize_quantile: 0.9
    window_size: 24
    add_constant: true
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	a := cfg.Analysis
	require.Len(t, a.Breaks, 1)
	assert.Equal(t, "merge", a.Breaks[0].Name)
	assert.Equal(t, 2022, a.Breaks[0].Date.Year())
	assert.Equal(t, time.September, a.Breaks[0].Date.Month())
	assert.Equal(t, 2, a.VECM.CointRank)
	assert.Equal(t, -1, a.VECM.DetOrder)
	assert.Equal(t, 24, a.OOS.WindowSize)
	assert.Equal(t, []string{"active_addr"}, a.OOS.Exog)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "servr:\n  port: 1\n"},
		{"bad log level", "logging:\n  level: chatty\n"},
		{"quantile out of range", "analysis:\n  winsorize:\n    quantile: 1.5\n"},
		{"window too small", "analysis:\n  oos:\n    endog: price_usd\n    exog: [a, b, c]\n    winsorize_quantile: 0.99\n    window_size: 4\n    add_constant: true\n"},
		{"rank above endog count", "analysis:\n  vecm:\n    endog: [a, b]\n    max_lag: 2\n    coint_rank: 3\n"},
		{"duplicate break", "analysis:\n  breaks:\n    - {name: b, date: 2018-01-01}\n    - {name: b, date: 2019-01-01}\n"},
		{"bad trace exporter", "telemetry:\n  trace_exporter: jaeger\n"},
		{"unknown export format", "export:\n  formats: [json, parquet]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPathsResolve(t *testing.T) {
	base := t.TempDir()
	p := PathsConfig{DataDir: "data", OutputDir: "/abs/out", LogsDir: "logs", MonthlyFile: "m.csv"}.Resolve(base)

	assert.Equal(t, filepath.Join(base, "data"), p.DataDir)
	assert.Equal(t, "/abs/out", p.OutputDir)
	assert.Equal(t, filepath.Join(base, "data", "m.csv"), p.MonthlyFile)
	assert.Empty(t, p.DailyFile)

	p.OutputDir = filepath.Join(base, "out")
	require.NoError(t, p.EnsureDirectories())
	assert.True(t, FileExists(p.DataDir))
	assert.True(t, FileExists(p.OutputDir))
	assert.True(t, FileExists(p.LogsDir))
}

func TestBoundsOptions_DefaultsWorkers(t *testing.T) {
	opts := BoundsConfig{Replications: 10, Seed: 7}.BoundsOptions()
	assert.Equal(t, 10, opts.Replications)
	assert.Equal(t, uint64(7), opts.Seed)
	assert.Positive(t, opts.Workers)
}
