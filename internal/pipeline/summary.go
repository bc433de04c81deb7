package pipeline

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ethvaluation/internal/diagnostics"
	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/timetable"
	"ethvaluation/internal/validation"
)

// NotAvailable renders a missing value in the interpretation text.
const NotAvailable = "N/A"

// FinalResults is the flat headline dictionary of a run. Every value that
// could not be computed is null.
type FinalResults struct {
	OLSBaseBetaActive     numeric.Float `json:"ols_base_beta_active"`
	OLSBaseBetaActivePVal numeric.Float `json:"ols_base_beta_active_pval"`
	OLSBaseR2             numeric.Float `json:"ols_base_r2"`
	OLSBaseRMSEUSD        numeric.Float `json:"ols_base_rmse_usd"`

	OLSExtBetaActive numeric.Float `json:"ols_ext_beta_active"`
	OLSExtBetaNasdaq numeric.Float `json:"ols_ext_beta_nasdaq"`
	OLSExtBetaGas    numeric.Float `json:"ols_ext_beta_gas"`
	OLSExtR2         numeric.Float `json:"ols_ext_r2"`
	OLSExtRMSEUSD    numeric.Float `json:"ols_ext_rmse_usd"`
	OLSExtPValsHAC   numeric.Named `json:"ols_ext_pvals_hac"`

	OLSConstrRMSEUSD numeric.Float `json:"ols_constr_rmse_usd"`

	DiagDW     numeric.Float `json:"diag_dw"`
	DiagBGP    numeric.Float `json:"diag_bg_p"`
	DiagBPP    numeric.Float `json:"diag_bp_p"`
	DiagJBP    numeric.Float `json:"diag_jb_p"`
	DiagWhiteP numeric.Float `json:"diag_white_p"`

	BreakCUSUMP numeric.Float `json:"break_cusum_p"`
	BreakChowP  numeric.Named `json:"break_chow_p"`

	ARDLCointegrated5pct *bool         `json:"ardl_cointegrated_5pct"`
	ARDLBoundsStat       numeric.Float `json:"ardl_bounds_stat"`
	ARDLBoundsPLower     numeric.Float `json:"ardl_bounds_p_lower"`
	ARDLECTCoeff         numeric.Float `json:"ardl_ect_coeff"`

	VECMBetaActivityCoint numeric.Float `json:"vecm_beta_activity_coint"`
	VECMAlphaValue        numeric.Float `json:"vecm_alpha_value"`
	VECMAlphaValueP       numeric.Float `json:"vecm_alpha_value_p"`
	VECMAlphaActivityP    numeric.Float `json:"vecm_alpha_activity_p"`

	OOSRMSEUSD             numeric.Float `json:"oos_rmse_usd"`
	OOSMAEUSD              numeric.Float `json:"oos_mae_usd"`
	OOSDirectionalAccuracy numeric.Float `json:"oos_directional_accuracy"`
	OOSNPredictions        *int          `json:"oos_n_predictions"`

	LastDate         *string       `json:"last_date"`
	LastActualPrice  numeric.Float `json:"last_actual_price"`
	LastFairPriceExt numeric.Float `json:"last_fair_price_ext"`
	LastPredPriceOOS numeric.Float `json:"last_pred_price_oos"`
}

// Summary is the headline dictionary plus a plain-text interpretation.
type Summary struct {
	Final          FinalResults `json:"final"`
	Interpretation string       `json:"interpretation"`
}

// Summarize extracts the headline values of res. olsFrame supplies the last
// actual and extended fair price, modelFrame the last OOS prediction; either
// may be nil.
func Summarize(res *Results, olsFrame, modelFrame *timetable.Table) *Summary {
	f := finalResults(res, olsFrame, modelFrame)
	return &Summary{Final: f, Interpretation: interpret(res, f)}
}

func finalResults(res *Results, olsFrame, modelFrame *timetable.Table) FinalResults {
	na := numeric.NA()
	f := FinalResults{
		OLSBaseBetaActive: na, OLSBaseBetaActivePVal: na, OLSBaseR2: na, OLSBaseRMSEUSD: na,
		OLSExtBetaActive: na, OLSExtBetaNasdaq: na, OLSExtBetaGas: na, OLSExtR2: na, OLSExtRMSEUSD: na,
		OLSConstrRMSEUSD: na,
		ARDLBoundsStat:   na, ARDLBoundsPLower: na, ARDLECTCoeff: na,
		VECMBetaActivityCoint: na, VECMAlphaValue: na, VECMAlphaValueP: na, VECMAlphaActivityP: na,
		OOSRMSEUSD: na, OOSMAEUSD: na, OOSDirectionalAccuracy: na,
		LastActualPrice: na, LastFairPriceExt: na, LastPredPriceOOS: na,
	}

	if b := res.OLS; b != nil {
		if base := b.Base.Fit; base.OK() {
			f.OLSBaseBetaActive = numeric.Float(base.Param(ols.ColLogActive))
			f.OLSBaseBetaActivePVal = numeric.Float(base.PValue(ols.ColLogActive))
			f.OLSBaseR2 = base.RSquared
		}
		f.OLSBaseRMSEUSD = b.Base.RMSEUSD
		ext := b.Extended.Fit
		if ext.OK() {
			f.OLSExtBetaActive = numeric.Float(ext.Param(ols.ColLogActive))
			f.OLSExtBetaNasdaq = numeric.Float(ext.Param(ols.ColLogNasdaq))
			f.OLSExtBetaGas = numeric.Float(ext.Param(ols.ColLogGas))
			f.OLSExtR2 = ext.RSquared
		}
		f.OLSExtRMSEUSD = b.Extended.RMSEUSD
		for _, name := range []string{ols.ConstName, ols.ColLogActive, ols.ColLogNasdaq, ols.ColLogGas} {
			f.OLSExtPValsHAC.Set(name, ext.PValue(name))
		}
		f.OLSConstrRMSEUSD = b.Constrained.RMSEUSD
	}

	d := res.Diagnostics
	f.DiagDW = numeric.Float(d.Get(diagnostics.KeyDurbinWatson))
	f.DiagBGP = numeric.Float(d.Get(diagnostics.KeyBreuschGodfrey))
	f.DiagBPP = numeric.Float(d.Get(diagnostics.KeyBreuschPagan))
	f.DiagJBP = numeric.Float(d.Get(diagnostics.KeyJarqueBera))
	f.DiagWhiteP = numeric.Float(d.Get(diagnostics.KeyWhite))

	f.BreakCUSUMP = numeric.Float(res.Breaks.Get(diagnostics.KeyCUSUM))
	for _, key := range res.Breaks.Values.Keys() {
		if name, ok := chowName(key); ok {
			f.BreakChowP.Set(name, res.Breaks.Get(key))
		}
	}

	if a := res.ARDL; a != nil {
		f.ARDLCointegrated5pct = a.CointegratedAt5pct
		f.ARDLBoundsStat = a.BoundsTestStatistic
		f.ARDLBoundsPLower = a.BoundsLowerPValue
		f.ARDLECTCoeff = a.ErrorCorrectionCoefficient
	}
	if v := res.VECM; v != nil {
		f.VECMBetaActivityCoint = v.BetaActivity
		f.VECMAlphaValue = v.AlphaValue
		f.VECMAlphaValueP = v.AlphaValueP
		f.VECMAlphaActivityP = v.AlphaActivityP
	}
	if o := res.OOS.Result; o != nil {
		f.OOSRMSEUSD = o.RMSE
		f.OOSMAEUSD = o.MAE
		f.OOSDirectionalAccuracy = o.DirectionalAccuracy
		n := o.NValidPredictions
		f.OOSNPredictions = &n
	}

	if olsFrame != nil && olsFrame.Len() > 0 {
		last := olsFrame.Len() - 1
		date := olsFrame.Index()[last].Format(time.DateOnly)
		f.LastDate = &date
		f.LastActualPrice = lastAt(olsFrame, ols.ColPrice, last)
		f.LastFairPriceExt = lastAt(olsFrame, ols.ColFairValueExtended, last)
	}
	if modelFrame != nil && modelFrame.Has(validation.PredictionColumn) {
		col, _ := modelFrame.Column(validation.PredictionColumn)
		for i := len(col) - 1; i >= 0; i-- {
			if numeric.IsFinite(col[i]) {
				f.LastPredPriceOOS = numeric.Float(col[i])
				break
			}
		}
		if f.LastDate == nil && modelFrame.Len() > 0 {
			date := modelFrame.Index()[modelFrame.Len()-1].Format(time.DateOnly)
			f.LastDate = &date
		}
	}
	return f
}

func lastAt(t *timetable.Table, column string, row int) numeric.Float {
	if !t.Has(column) {
		return numeric.NA()
	}
	v := t.At(column, row)
	if !numeric.IsFinite(v) {
		return numeric.NA()
	}
	return numeric.Float(v)
}

func chowName(key string) (string, bool) {
	if !strings.HasPrefix(key, "Chow_") || !strings.HasSuffix(key, "_p") || len(key) <= len("Chow__p") {
		return "", false
	}
	return key[len("Chow_") : len(key)-len("_p")], true
}

var usdPrinter = message.NewPrinter(language.English)

// formatValue renders v with prec decimals, N/A when missing.
func formatValue(v float64, prec int) string {
	switch {
	case math.IsInf(v, 1):
		return "+Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.IsNaN(v):
		return NotAvailable
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func formatP(v float64) string {
	if !numeric.IsFinite(v) {
		return formatValue(v, 3)
	}
	if v < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", v)
}

func formatUSD(v float64) string {
	if !numeric.IsFinite(v) {
		return formatValue(v, 0)
	}
	return usdPrinter.Sprintf("$%.0f", v)
}

func significance(p float64) string {
	if numeric.IsFinite(p) && p < 0.05 {
		return "significant"
	}
	return "not significant"
}

func boundsVerdict(f FinalResults) string {
	stat := formatValue(f.ARDLBoundsStat.Value(), 2)
	if f.ARDLCointegrated5pct == nil {
		return fmt.Sprintf("Inconclusive (F-stat=%s, p-values unavailable)", stat)
	}
	verdict := "Not cointegrated"
	if *f.ARDLCointegrated5pct {
		verdict = "Cointegrated"
	}
	return fmt.Sprintf("%s (F-stat=%s, p_lower=%s)", verdict, stat, formatP(f.ARDLBoundsPLower.Value()))
}

// valuationGap compares the last actual price with the extended fair value.
func valuationGap(f FinalResults) string {
	actual, fair := f.LastActualPrice.Value(), f.LastFairPriceExt.Value()
	a, fv := formatUSD(actual), formatUSD(fair)
	if !numeric.IsFinite(actual) || !numeric.IsFinite(fair) || fair == 0 {
		return fmt.Sprintf("Actual (%s) and fair value (%s) cannot be compared.", a, fv)
	}
	diff := (actual - fair) / fair * 100
	switch {
	case math.Abs(diff) < 5:
		return fmt.Sprintf("The actual price (%s) is close to the fair value (%s).", a, fv)
	case diff > 0:
		return fmt.Sprintf("The actual price (%s) trades at a %.1f%% premium to the fair value (%s).", a, diff, fv)
	default:
		return fmt.Sprintf("The actual price (%s) trades at a %.1f%% discount to the fair value (%s).", a, -diff, fv)
	}
}

var interpretationTmpl = template.Must(template.New("interpretation").Parse(`Network Value Analysis Summary
==============================

Sample: {{.Start}} to {{.End}} ({{.Months}} months)

1. Network effect
   Extended OLS exponent on log_active: {{.BetaActive}} ({{.BetaActiveSig}}, p={{.BetaActiveP}}).

2. Other drivers
   log_nasdaq: {{.NasdaqSig}} (p={{.NasdaqP}}).
   log_gas: {{.GasSig}} (p={{.GasP}}).

3. Diagnostics and stability
   DW={{.DW}}, Breusch-Godfrey p={{.BGP}}, Jarque-Bera p={{.JBP}}, White p={{.WhiteP}}.
   CUSUM p={{.CUSUMP}}{{range .Chow}}, Chow {{.Name}} p={{.P}}{{end}}.

4. Cointegration
   ARDL bounds test: {{.Bounds}}.
   VECM long-run activity elasticity: {{.VECMBeta}}; price adjustment: {{.VECMAlpha}} (p={{.VECMAlphaP}}).

5. Out-of-sample
   Predictions: {{.OOSN}}, RMSE {{.OOSRMSE}}, MAE {{.OOSMAE}}, directional accuracy {{.OOSDir}}.

Valuation as of {{.LastDate}}
   Actual price: {{.LastActual}}
   Fair value (extended OLS): {{.LastFair}}
   OOS prediction: {{.LastPred}}
   {{.Gap}}
`))

type chowLine struct{ Name, P string }

func interpret(res *Results, f FinalResults) string {
	ds := res.DataSummary
	view := struct {
		Start, End, Months                            string
		BetaActive, BetaActiveSig, BetaActiveP        string
		NasdaqSig, NasdaqP, GasSig, GasP              string
		DW, BGP, JBP, WhiteP, CUSUMP                  string
		Chow                                          []chowLine
		Bounds, VECMBeta, VECMAlpha, VECMAlphaP       string
		OOSN, OOSRMSE, OOSMAE, OOSDir                 string
		LastDate, LastActual, LastFair, LastPred, Gap string
	}{
		Start:         formatDate(ds.MonthlyStart),
		End:           formatDate(ds.MonthlyEnd),
		Months:        fmt.Sprint(ds.MonthlyRows),
		BetaActive:    formatValue(f.OLSExtBetaActive.Value(), 2),
		BetaActiveSig: significance(f.OLSExtPValsHAC.Value(ols.ColLogActive)),
		BetaActiveP:   formatP(f.OLSExtPValsHAC.Value(ols.ColLogActive)),
		NasdaqSig:     significance(f.OLSExtPValsHAC.Value(ols.ColLogNasdaq)),
		NasdaqP:       formatP(f.OLSExtPValsHAC.Value(ols.ColLogNasdaq)),
		GasSig:        significance(f.OLSExtPValsHAC.Value(ols.ColLogGas)),
		GasP:          formatP(f.OLSExtPValsHAC.Value(ols.ColLogGas)),
		DW:            formatValue(f.DiagDW.Value(), 2),
		BGP:           formatP(f.DiagBGP.Value()),
		JBP:           formatP(f.DiagJBP.Value()),
		WhiteP:        formatP(f.DiagWhiteP.Value()),
		CUSUMP:        formatP(f.BreakCUSUMP.Value()),
		Bounds:        boundsVerdict(f),
		VECMBeta:      formatValue(f.VECMBetaActivityCoint.Value(), 2),
		VECMAlpha:     formatValue(f.VECMAlphaValue.Value(), 4),
		VECMAlphaP:    formatP(f.VECMAlphaValueP.Value()),
		OOSN:          NotAvailable,
		OOSRMSE:       formatUSD(f.OOSRMSEUSD.Value()),
		OOSMAE:        formatUSD(f.OOSMAEUSD.Value()),
		OOSDir:        formatValue(f.OOSDirectionalAccuracy.Value(), 2),
		LastDate:      NotAvailable,
		LastActual:    formatUSD(f.LastActualPrice.Value()),
		LastFair:      formatUSD(f.LastFairPriceExt.Value()),
		LastPred:      formatUSD(f.LastPredPriceOOS.Value()),
		Gap:           valuationGap(f),
	}
	for _, name := range f.BreakChowP.Keys() {
		view.Chow = append(view.Chow, chowLine{Name: name, P: formatP(f.BreakChowP.Value(name))})
	}
	if f.OOSNPredictions != nil {
		view.OOSN = fmt.Sprint(*f.OOSNPredictions)
	}
	if f.LastDate != nil {
		view.LastDate = *f.LastDate
	}

	var b strings.Builder
	if err := interpretationTmpl.Execute(&b, view); err != nil {
		return fmt.Sprintf("interpretation unavailable: %v", err)
	}
	return b.String()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return NotAvailable
	}
	return t.Format(time.DateOnly)
}
