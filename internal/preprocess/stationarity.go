package preprocess

import (
	"context"
	"log/slog"
	"math"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// StationarityRow holds the unit root p-values of one series.
type StationarityRow struct {
	Series string        `json:"series"`
	ADFP   numeric.Float `json:"ADF p"`
	KPSSP  numeric.Float `json:"KPSS p"`
}

// StationarityTable lists rows in the order the columns were requested.
type StationarityTable []StationarityRow

// Header returns the display column names.
func (st StationarityTable) Header() []string {
	return []string{"series", "ADF p", "KPSS p"}
}

// Lookup returns the row for a series.
func (st StationarityTable) Lookup(series string) (StationarityRow, bool) {
	for _, r := range st {
		if r.Series == series {
			return r, true
		}
	}
	return StationarityRow{}, false
}

// StationarityTest runs ADF and KPSS on the masked, non-missing values of each
// column. A column that is absent, empty in the window, or rejected by a test
// yields NaN for that test; the failure is logged, never returned.
func (p *Preprocessor) StationarityTest(ctx context.Context, t *timetable.Table, columns []string, mask timetable.Mask) (StationarityTable, error) {
	rows, err := timetable.ResolveMask(t, mask)
	if err != nil {
		return nil, err
	}

	out := make(StationarityTable, 0, len(columns))
	for _, name := range columns {
		row := StationarityRow{Series: name, ADFP: numeric.NA(), KPSSP: numeric.NA()}
		col, ok := t.Column(name)
		if !ok {
			p.logger.WarnContext(ctx, "stationarity column not found", slog.String("column", name))
			out = append(out, row)
			continue
		}

		var series []float64
		for i, v := range col {
			if rows[i] && !math.IsNaN(v) {
				series = append(series, v)
			}
		}
		if len(series) == 0 {
			p.logger.WarnContext(ctx, "skipping stationarity tests: no non-NaN data in window", slog.String("column", name))
			out = append(out, row)
			continue
		}

		if adf, err := ADF(series); err != nil {
			p.logger.WarnContext(ctx, "ADF test failed", slog.String("column", name), slog.String("error", err.Error()))
		} else {
			row.ADFP = numeric.Float(adf.PValue)
		}
		if kpss, err := KPSS(series); err != nil {
			p.logger.WarnContext(ctx, "KPSS test failed", slog.String("column", name), slog.String("error", err.Error()))
		} else {
			row.KPSSP = numeric.Float(kpss.PValue)
		}
		p.logger.DebugContext(ctx, "stationarity tested",
			slog.String("column", name),
			slog.Int("observations", len(series)),
			slog.Any("adf_p", row.ADFP),
			slog.Any("kpss_p", row.KPSSP))
		out = append(out, row)
	}
	return out, nil
}
