package pipeline

import (
	"encoding/json"
	"time"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/preprocess"
	"ethvaluation/internal/timetable"
	"ethvaluation/internal/tsmodels"
	"ethvaluation/internal/validation"
)

// ExtendedOLSFailed marks the diagnostics sections when the extended
// benchmark could not be fitted.
const ExtendedOLSFailed = "Extended OLS failed"

// DataSummary describes the input tables.
type DataSummary struct {
	DailyRows    int        `json:"daily_rows"`
	DailyCols    int        `json:"daily_cols"`
	MonthlyRows  int        `json:"monthly_rows"`
	MonthlyCols  int        `json:"monthly_cols"`
	MonthlyStart *time.Time `json:"monthly_start"`
	MonthlyEnd   *time.Time `json:"monthly_end"`
}

func summarizeData(daily, monthly *timetable.Table) DataSummary {
	var ds DataSummary
	if daily != nil {
		ds.DailyRows, ds.DailyCols = daily.Len(), len(daily.Columns())
	}
	if monthly != nil && monthly.Len() > 0 {
		ds.MonthlyRows, ds.MonthlyCols = monthly.Len(), len(monthly.Columns())
		idx := monthly.Index()
		start, end := idx[0], idx[len(idx)-1]
		ds.MonthlyStart, ds.MonthlyEnd = &start, &end
	}
	return ds
}

// TestSection holds named test results, or the reason they were not run.
type TestSection struct {
	Values numeric.Named
	Error  string
}

// Get returns a value, NaN when the section failed or the key is absent.
func (s TestSection) Get(key string) float64 {
	if s.Error != "" {
		return numeric.NA().Value()
	}
	return s.Values.Value(key)
}

// MarshalJSON renders the values, or {"error": ...} for a failed section.
func (s TestSection) MarshalJSON() ([]byte, error) {
	if s.Error != "" {
		return json.Marshal(map[string]string{"error": s.Error})
	}
	return json.Marshal(s.Values)
}

// OOSSection is the walk-forward result, or the reason it was not run.
type OOSSection struct {
	*validation.Result
	Error string `json:"error,omitempty"`
}

// Results collects the output of every analysis of a run.
type Results struct {
	DataSummary  DataSummary                  `json:"data_summary"`
	Stationarity preprocess.StationarityTable `json:"stationarity"`
	OLS          *ols.BenchmarkResult         `json:"ols"`
	Diagnostics  TestSection                  `json:"ols_diagnostics"`
	Breaks       TestSection                  `json:"ols_structural_breaks"`
	VECM         *tsmodels.VECMResult         `json:"vecm"`
	ARDL         *tsmodels.ARDLResult         `json:"ardl"`
	OOS          OOSSection                   `json:"oos"`
	Summary      *Summary                     `json:"summary,omitempty"`
}

// Run carries the tables and results of one analysis run between steps.
type Run struct {
	State   *RunState
	Results *Results

	Daily   *timetable.Table
	Monthly *timetable.Table

	// Winsorized is the whole-sample winsorized monthly table with infinities
	// replaced by NaN.
	Winsorized *timetable.Table
	// OLSFrame is a copy of the raw monthly table carrying the fair value
	// columns of the benchmarks.
	OLSFrame *timetable.Table
	// ModelFrame holds the winsorized rows complete in the ARDL columns and,
	// once the run finished, the out-of-sample predictions.
	ModelFrame *timetable.Table
}

// ID returns the run ID.
func (r *Run) ID() string { return r.State.ID() }
