package validation

import (
	"math"
	"time"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/timetable"
)

// PredictionColumn is the table column MergePredictions writes.
const PredictionColumn = "predicted_price_oos"

// IndexRange is a training window: rows [From, To) spanning Start..End.
type IndexRange struct {
	From  int       `json:"from"`
	To    int       `json:"to"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowModel is the OLS fit of one training window.
type WindowModel struct {
	Params   numeric.Named `json:"params"`
	NObs     int           `json:"nobs"`
	RSquared numeric.Float `json:"r_squared"`
	Formula  string        `json:"formula"`
}

// Result holds one entry per test point in ascending time order. Metrics use
// only the points where both prediction and actual are finite and are null
// when there are none.
type Result struct {
	Predictions         []numeric.Float  `json:"predictions"`
	Actuals             []numeric.Float  `json:"actuals"`
	Residuals           []numeric.Float  `json:"residuals"`
	FittedModels        []*WindowModel   `json:"models"`
	TrainWindows        []IndexRange     `json:"train_windows"`
	TestPoints          []time.Time      `json:"test_points"`
	RMSE                numeric.Float    `json:"oos_rmse"`
	MAE                 numeric.Float    `json:"oos_mae"`
	DirectionalAccuracy numeric.Float    `json:"oos_directional_accuracy"`
	NValidPredictions   int              `json:"N_OOS"`
	PredictionsSeries   timetable.Series `json:"predictions_series"`
}

func newResult() *Result {
	return &Result{
		Predictions:         []numeric.Float{},
		Actuals:             []numeric.Float{},
		Residuals:           []numeric.Float{},
		FittedModels:        []*WindowModel{},
		TrainWindows:        []IndexRange{},
		TestPoints:          []time.Time{},
		RMSE:                numeric.NA(),
		MAE:                 numeric.NA(),
		DirectionalAccuracy: numeric.NA(),
		PredictionsSeries:   timetable.Series{Name: PredictionColumn},
	}
}

func (r *Result) computeMetrics() {
	var actual, pred []float64
	for i := range r.Predictions {
		p, a := r.Predictions[i], r.Actuals[i]
		if p.IsNA() || a.IsNA() {
			continue
		}
		actual = append(actual, a.Value())
		pred = append(pred, p.Value())
	}
	r.NValidPredictions = len(actual)
	if len(actual) == 0 {
		return
	}
	var se, ae float64
	for i := range actual {
		d := actual[i] - pred[i]
		se += d * d
		ae += math.Abs(d)
	}
	n := float64(len(actual))
	r.RMSE = numeric.Float(math.Sqrt(se / n))
	r.MAE = numeric.Float(ae / n)
	r.DirectionalAccuracy = numeric.Float(DirectionalAccuracy(actual, pred))
}

// DirectionalAccuracy is the share of consecutive moves where actual and
// predicted changes have the same sign. Moves where either change is zero
// are left out. NaN when fewer than two points or no comparable moves.
func DirectionalAccuracy(actual, pred []float64) float64 {
	if len(actual) < 2 || len(actual) != len(pred) {
		return math.NaN()
	}
	var hits, total int
	for i := 1; i < len(actual); i++ {
		da := sign(actual[i] - actual[i-1])
		dp := sign(pred[i] - pred[i-1])
		if da == 0 || dp == 0 {
			continue
		}
		total++
		if da == dp {
			hits++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(hits) / float64(total)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// MergePredictions writes the OOS predictions into t as PredictionColumn,
// aligned on the test points. Rows without a prediction are NaN.
func MergePredictions(t *timetable.Table, r *Result) error {
	return t.SetSeries(PredictionColumn, r.PredictionsSeries)
}
