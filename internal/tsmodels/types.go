package tsmodels

import (
	"encoding/json"

	"ethvaluation/internal/numeric"
)

// NormalizationFailed is reported in place of the cointegrating vector when
// its first loading is too close to zero.
const NormalizationFailed = "Normalization failed"

// JohansenErrorSentinel marks Johansen fields when the rank test could not run.
const JohansenErrorSentinel = "Error"

// CointVector is a normalized cointegrating vector or the failure sentinel.
type CointVector struct {
	Values []float64
	Failed bool
}

// MarshalJSON renders the sentinel string on failure and null when unset.
func (c CointVector) MarshalJSON() ([]byte, error) {
	if c.Failed {
		return json.Marshal(NormalizationFailed)
	}
	if c.Values == nil {
		return []byte("null"), nil
	}
	return json.Marshal(numeric.Floats(c.Values))
}

// VECMResult is the outcome of the VECM analysis. Error is empty on success.
// The extraction fields stay at their null defaults unless the model has
// rank one and at least two endogenous series.
type VECMResult struct {
	Endog            []string        `json:"endog"`
	Exog             []string        `json:"exog,omitempty"`
	SelectedLagOrder int             `json:"var_aic_lag"`
	VECMLagOrder     int             `json:"k_ar_diff"`
	VARLagAIC        []numeric.Float `json:"var_aic_values,omitempty"`

	JohansenTraceStatistics    []numeric.Float `json:"johansen_trace_stat"`
	Johansen5pctCriticalValues []numeric.Float `json:"johansen_crit_5pct"`
	JohansenMaxEigStatistics   []numeric.Float `json:"johansen_max_eig_stat"`
	JohansenMaxEig5pct         []numeric.Float `json:"johansen_max_eig_crit_5pct"`
	JohansenSuggestedRank      *int            `json:"johansen_suggested_rank"`
	JohansenError              string          `json:"johansen_error,omitempty"`

	CointRank     int    `json:"coint_rank"`
	Deterministic string `json:"deterministic"`
	NObs          int    `json:"nobs"`

	CointegratingVectorNormalized CointVector     `json:"coint_vector_norm"`
	AdjustmentCoefficients        []numeric.Float `json:"alpha_coeffs"`
	AdjustmentPValues             []numeric.Float `json:"alpha_pvals"`

	// Convenience values for the first two endogenous series.
	AlphaValue     numeric.Float `json:"alpha_value"`
	AlphaValueP    numeric.Float `json:"alpha_value_p"`
	BetaActivity   numeric.Float `json:"beta_activity_coint"`
	AlphaActivityP numeric.Float `json:"alpha_activity_p"`

	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newVECMResult(endog, exog []string) *VECMResult {
	return &VECMResult{
		Endog:          endog,
		Exog:           exog,
		AlphaValue:     numeric.NA(),
		AlphaValueP:    numeric.NA(),
		BetaActivity:   numeric.NA(),
		AlphaActivityP: numeric.NA(),
	}
}

// FailedVECM returns a result that records msg as the analysis error.
func FailedVECM(opts VECMOptions, msg string) *VECMResult {
	res := newVECMResult(opts.Endog, opts.Exog)
	res.Error = msg
	return res
}

// ARDLResult is the outcome of the ARDL analysis. A failed bounds test leaves
// the bounds fields at NaN and CointegratedAt5pct nil while the ARDL
// coefficients remain set.
type ARDLResult struct {
	Endog                      string         `json:"endog"`
	Exog                       []string       `json:"exog"`
	Trend                      string         `json:"trend"`
	ARLagOrder                 int            `json:"order_p"`
	ExogLagOrders              map[string]int `json:"order_q"`
	Coefficients               numeric.Named  `json:"params"`
	PValues                    numeric.Named  `json:"pvalues"`
	NObs                       int            `json:"nobs"`
	ErrorCorrectionCoefficient numeric.Float  `json:"ect_coeff"`

	BoundsCase          int           `json:"bounds_case"`
	BoundsTestStatistic numeric.Float `json:"bounds_stat"`
	BoundsUpperPValue   numeric.Float `json:"bounds_p_upper"`
	BoundsLowerPValue   numeric.Float `json:"bounds_p_lower"`
	BoundsSummary       string        `json:"bounds_test_summary,omitempty"`
	CointegratedAt5pct  *bool         `json:"cointegrated_5pct"`

	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newARDLResult(endog string, exog []string, trend string) *ARDLResult {
	return &ARDLResult{
		Endog:                      endog,
		Exog:                       exog,
		Trend:                      trend,
		ErrorCorrectionCoefficient: numeric.NA(),
		BoundsTestStatistic:        numeric.NA(),
		BoundsUpperPValue:          numeric.NA(),
		BoundsLowerPValue:          numeric.NA(),
	}
}

// FailedARDL returns a result that records msg as the analysis error.
func FailedARDL(opts ARDLOptions, msg string) *ARDLResult {
	res := newARDLResult(opts.Endog, opts.Exog, opts.Trend)
	res.Error = msg
	return res
}

// CointegrationVerdict maps the lower-bound p-value onto true/false, or nil
// when the p-value is unavailable.
func CointegrationVerdict(lowerP float64) *bool {
	if !numeric.IsFinite(lowerP) {
		return nil
	}
	v := lowerP < 0.05
	return &v
}
