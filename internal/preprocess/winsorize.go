package preprocess

import (
	"context"
	"log/slog"
	"math"
	"sort"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// Preprocessor applies winsorization and stationarity checks.
type Preprocessor struct {
	logger *slog.Logger
}

// NewPreprocessor creates a preprocessor. A nil logger falls back to slog.Default().
func NewPreprocessor(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{logger: logger.With(slog.String("component", "preprocess"))}
}

// Winsorize returns a copy of t in which each listed column is capped at its
// quantile q, computed only over the masked finite values. Only masked rows
// are capped; values outside the mask are left untouched. Missing columns are
// skipped with a warning.
func (p *Preprocessor) Winsorize(ctx context.Context, t *timetable.Table, columns []string, q float64, mask timetable.Mask) (*timetable.Table, error) {
	if !(q > 0 && q < 1) {
		return nil, apperrors.NewAppValidationError("winsorize quantile must lie in (0, 1)").WithContext("quantile", q)
	}
	rows, err := timetable.ResolveMask(t, mask)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, "resolve winsorize mask", err)
	}

	out := t.Clone()
	for _, name := range columns {
		col, ok := out.Column(name)
		if !ok {
			p.logger.WarnContext(ctx, "winsorize column not found, skipping", slog.String("column", name))
			continue
		}

		var window []float64
		for i, v := range col {
			if rows[i] && numeric.IsFinite(v) {
				window = append(window, v)
			}
		}
		if len(window) == 0 {
			p.logger.WarnContext(ctx, "no finite values in window, column left as is", slog.String("column", name))
			continue
		}

		upper := Quantile(window, q)
		capped := 0
		for i, v := range col {
			if rows[i] && v > upper {
				col[i] = upper
				capped++
			}
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
		p.logger.DebugContext(ctx, "winsorized column",
			slog.String("column", name),
			slog.Float64("cap", upper),
			slog.Int("capped", capped))
	}
	return out, nil
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks at position q*(n-1). NaN for empty input.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
