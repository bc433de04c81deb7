package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"ethvaluation/internal/numeric"
)

// Runner executes diagnostic tests against fitted models.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger falls back to slog.Default().
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger.With(slog.String("component", "diagnostics"))}
}

// record runs one test and stores its value, or NaN when it fails or panics.
func (r *Runner) record(ctx context.Context, out *numeric.Named, key string, test func() (float64, error)) {
	v, err := safely(test)
	if err != nil {
		r.logger.WarnContext(ctx, "diagnostic test failed", slog.String("test", key), slog.String("error", err.Error()))
		v = math.NaN()
	} else {
		r.logger.InfoContext(ctx, "diagnostic test", slog.String("test", key), slog.Float64("value", v))
	}
	out.Set(key, v)
}

func safely(test func() (float64, error)) (v float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v, err = math.NaN(), fmt.Errorf("panic: %v", rec)
		}
	}()
	return test()
}
