package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"ethvaluation/internal/diagnostics"
	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/tsmodels"
	"ethvaluation/internal/validation"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "ETHVAL"

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/ethvaluation.log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RunTimeout      time.Duration   `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" default:"30m" validate:"gt=0"`
	MaxRuns         int             `yaml:"max_runs" envconfig:"MAX_RUNS" default:"100" validate:"min=1"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig limits how fast clients may start analysis runs.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"1" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"5" validate:"min=1"`
}

// PathsConfig contains file system paths configuration. Relative paths are
// resolved against the base directory passed to Resolve.
type PathsConfig struct {
	DataDir     string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data" validate:"required"`
	OutputDir   string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output" validate:"required"`
	LogsDir     string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	MonthlyFile string `yaml:"monthly_file" envconfig:"MONTHLY_FILE" default:"monthly.csv" validate:"required"`
	DailyFile   string `yaml:"daily_file" envconfig:"DAILY_FILE" default:"daily.csv"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	ServiceName   string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"ethvaluation" validate:"required"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=none stdout"`
}

// ExportConfig selects the result files written for each run.
type ExportConfig struct {
	Formats []string `yaml:"formats" envconfig:"FORMATS" default:"json,csv,xlsx" validate:"min=1,dive,oneof=json csv xlsx"`
	BOM     bool     `yaml:"bom" envconfig:"BOM"`
}

// AnalysisConfig parameterises every step of an analysis run. The nested
// model options are configured through the YAML file only.
type AnalysisConfig struct {
	Winsorize    WinsorizeConfig      `yaml:"winsorize" envconfig:"WINSORIZE"`
	Stationarity StationarityConfig   `yaml:"stationarity" envconfig:"STATIONARITY"`
	OLS          OLSConfig            `yaml:"ols" envconfig:"OLS"`
	Breaks       []diagnostics.Break  `yaml:"breaks" ignored:"true" validate:"dive"`
	VECM         tsmodels.VECMOptions `yaml:"vecm" ignored:"true"`
	ARDL         tsmodels.ARDLOptions `yaml:"ardl" ignored:"true"`
	Bounds       BoundsConfig         `yaml:"bounds" envconfig:"BOUNDS"`
	OOS          validation.Options   `yaml:"oos" ignored:"true"`
}

// WinsorizeConfig caps the upper tail of the listed columns.
type WinsorizeConfig struct {
	Columns  []string `yaml:"columns" envconfig:"COLUMNS"`
	Quantile float64  `yaml:"quantile" envconfig:"QUANTILE" validate:"gt=0,lt=1"`
}

// StationarityConfig lists the columns tested for unit roots.
type StationarityConfig struct {
	Columns []string `yaml:"columns" envconfig:"COLUMNS"`
}

// OLSConfig sets the Newey-West lag count of the benchmark regressions.
type OLSConfig struct {
	HACLags int `yaml:"hac_lags" envconfig:"HAC_LAGS" validate:"min=0"`
}

// BoundsConfig controls the simulated bounds test distributions.
type BoundsConfig struct {
	Replications int    `yaml:"replications" envconfig:"REPLICATIONS" validate:"min=1"`
	Seed         uint64 `yaml:"seed" envconfig:"SEED"`
	Workers      int    `yaml:"workers" envconfig:"WORKERS" validate:"min=0"`
}

// BoundsOptions converts the section into model options.
func (b BoundsConfig) BoundsOptions() tsmodels.BoundsOptions {
	workers := b.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return tsmodels.BoundsOptions{Replications: b.Replications, Seed: b.Seed, Workers: workers}
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	bounds := tsmodels.DefaultBoundsOptions()
	return &Config{
		Logging: LoggingConfig{Level: "info", Output: "stdout", FilePath: "logs/ethvaluation.log"},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RunTimeout:      30 * time.Minute,
			MaxRuns:         100,
			AllowedOrigins:  []string{"http://localhost:8080"},
			RateLimit:       RateLimitConfig{Enabled: true, RPS: 1, Burst: 5},
		},
		Paths: PathsConfig{
			DataDir:     "data",
			OutputDir:   "output",
			LogsDir:     "logs",
			MonthlyFile: "monthly.csv",
			DailyFile:   "daily.csv",
		},
		Telemetry: TelemetryConfig{Enabled: true, ServiceName: "ethvaluation", TraceExporter: "none"},
		Export:    ExportConfig{Formats: []string{"json", "csv", "xlsx"}},
		Analysis: AnalysisConfig{
			Winsorize:    WinsorizeConfig{Columns: []string{"active_addr", "tx_count"}, Quantile: 0.99},
			Stationarity: StationarityConfig{Columns: []string{"price_usd", "active_addr", "tx_count"}},
			OLS:          OLSConfig{HACLags: 12},
			Breaks: []diagnostics.Break{
				{Name: "break_1", Date: time.Date(2017, time.November, 1, 0, 0, 0, 0, time.UTC)},
				{Name: "break_2", Date: time.Date(2020, time.May, 1, 0, 0, 0, 0, time.UTC)},
			},
			VECM:   tsmodels.DefaultVECMOptions(),
			ARDL:   tsmodels.DefaultARDLOptions(),
			Bounds: BoundsConfig{Replications: bounds.Replications, Seed: bounds.Seed},
			OOS:    validation.DefaultOptions(),
		},
	}
}

// Load builds the configuration from defaults, then ETHVAL_* environment
// variables, then the YAML file at path (or the first config.yaml found when
// path is empty), and validates the result. Unknown YAML keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).WithContext("path", path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// findConfigFile returns the first config file found in the usual locations.
func findConfigFile() string {
	for _, location := range []string{"config.yaml", "configs/config.yaml", "../configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules the struct
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}

	a := c.Analysis
	regressors := len(a.OOS.Exog)
	if a.OOS.AddConstant {
		regressors++
	}
	if a.OOS.WindowSize <= regressors+1 {
		return apperrors.NewConfigError(fmt.Sprintf("oos window %d must exceed the regressor count plus one (%d)", a.OOS.WindowSize, regressors+1), nil)
	}
	if a.VECM.CointRank > len(a.VECM.Endog) {
		return apperrors.NewConfigError(fmt.Sprintf("vecm coint_rank %d exceeds the %d endogenous series", a.VECM.CointRank, len(a.VECM.Endog)), nil)
	}
	seen := make(map[string]bool, len(a.Breaks))
	for _, b := range a.Breaks {
		if seen[b.Name] {
			return apperrors.NewConfigError(fmt.Sprintf("duplicate break name %q", b.Name), nil)
		}
		seen[b.Name] = true
	}
	return nil
}
