package exporter

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/xuri/excelize/v2"

	"ethvaluation/internal/numeric"
	"ethvaluation/internal/ols"
	"ethvaluation/internal/pipeline"
)

// Workbook sheet names.
const (
	SheetSummary      = "Summary"
	SheetOLS          = "OLS"
	SheetDiagnostics  = "Diagnostics"
	SheetVECM         = "VECM"
	SheetARDL         = "ARDL"
	SheetOOS          = "OOS"
	SheetStationarity = "Stationarity"
)

// sheet accumulates rows for one worksheet.
type sheet struct {
	name   string
	header []any
	rows   [][]any
}

func (s *sheet) add(row ...any) { s.rows = append(s.rows, row) }

// WriteWorkbook writes the results of run as an XLSX report at path.
func WriteWorkbook(path string, run *pipeline.Run) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}

	sheets, err := workbookSheets(run)
	if err != nil {
		return "", err
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return "", err
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return "", fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s, bold); err != nil {
			return "", fmt.Errorf("write sheet %s: %w", s.name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func writeSheet(f *excelize.File, s *sheet, style int) error {
	if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, style); err != nil {
		return err
	}
	for i, row := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(s.name, "A", "A", 32)
}

func workbookSheets(run *pipeline.Run) ([]*sheet, error) {
	res := run.Results
	summary, err := summarySheet(res.Summary)
	if err != nil {
		return nil, err
	}
	return []*sheet{
		summary,
		olsSheet(res.OLS),
		diagnosticsSheet(res),
		vecmSheet(res),
		ardlSheet(res),
		oosSheet(res.OOS),
		stationaritySheet(res),
	}, nil
}

// summarySheet lists the headline values by their JSON key. Nested maps are
// flattened into "key.name" rows.
func summarySheet(s *pipeline.Summary) (*sheet, error) {
	sh := &sheet{name: SheetSummary, header: []any{"metric", "value"}}
	if s == nil {
		return sh, nil
	}
	data, err := json.Marshal(s.Final)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if nested, ok := flat[k].(map[string]any); ok {
			names := make([]string, 0, len(nested))
			for n := range nested {
				names = append(names, n)
			}
			slices.Sort(names)
			for _, n := range names {
				sh.add(k+"."+n, nested[n])
			}
			continue
		}
		sh.add(k, flat[k])
	}
	return sh, nil
}

func olsSheet(b *ols.BenchmarkResult) *sheet {
	sh := &sheet{name: SheetOLS, header: []any{"specification", "term", "coef", "se_hac", "p_hac", "r2", "n_obs", "rmse_usd"}}
	if b == nil {
		return sh
	}
	if b.Error != "" {
		sh.add("error", b.Error)
		return sh
	}
	for _, spec := range []struct {
		name string
		spec ols.Spec
	}{
		{"base", b.Base},
		{"extended", b.Extended},
	} {
		fit := spec.spec.Fit
		if !fit.OK() {
			msg := "not fitted"
			if fit != nil {
				msg = fit.Error
			}
			sh.add(spec.name, "error", msg)
			continue
		}
		for _, term := range fit.Coefficients.Keys() {
			sh.add(spec.name, term,
				cellValue(fit.Coefficients.Value(term)),
				cellValue(fit.HACStdErrors.Value(term)),
				cellValue(fit.HACPValues.Value(term)),
				floatCell(fit.RSquared),
				fit.NObs,
				floatCell(spec.spec.RMSEUSD))
		}
	}
	c := b.Constrained
	sh.add("constrained", ols.ConstName, floatCell(c.Alpha), nil, nil, nil, nil, floatCell(c.RMSEUSD))
	sh.add("constrained", ols.ColLogActive, floatCell(c.Beta), nil, nil, nil, nil, floatCell(c.RMSEUSD))
	return sh
}

func diagnosticsSheet(res *pipeline.Results) *sheet {
	sh := &sheet{name: SheetDiagnostics, header: []any{"section", "test", "value"}}
	for _, sec := range []struct {
		name string
		sec  pipeline.TestSection
	}{
		{"residual", res.Diagnostics},
		{"structural_breaks", res.Breaks},
	} {
		if sec.sec.Error != "" {
			sh.add(sec.name, "error", sec.sec.Error)
			continue
		}
		for _, k := range sec.sec.Values.Keys() {
			sh.add(sec.name, k, cellValue(sec.sec.Values.Value(k)))
		}
	}
	return sh
}

func vecmSheet(res *pipeline.Results) *sheet {
	sh := &sheet{name: SheetVECM, header: []any{"field", "value"}}
	v := res.VECM
	if v == nil {
		return sh
	}
	if v.Error != "" {
		sh.add("error", v.Error)
		return sh
	}
	sh.add("var_aic_lag", v.SelectedLagOrder)
	sh.add("k_ar_diff", v.VECMLagOrder)
	sh.add("coint_rank", v.CointRank)
	sh.add("deterministic", v.Deterministic)
	sh.add("nobs", v.NObs)
	if v.JohansenSuggestedRank != nil {
		sh.add("johansen_suggested_rank", *v.JohansenSuggestedRank)
	}
	if v.JohansenError != "" {
		sh.add("johansen_error", v.JohansenError)
	}
	for i := range v.JohansenTraceStatistics {
		sh.add(fmt.Sprintf("johansen_trace_stat[r<=%d]", i), floatCell(v.JohansenTraceStatistics[i]))
		if i < len(v.Johansen5pctCriticalValues) {
			sh.add(fmt.Sprintf("johansen_crit_5pct[r<=%d]", i), floatCell(v.Johansen5pctCriticalValues[i]))
		}
	}
	if v.CointegratingVectorNormalized.Failed {
		sh.add("coint_vector_norm", "Normalization failed")
	}
	for i, x := range v.CointegratingVectorNormalized.Values {
		sh.add(fmt.Sprintf("coint_vector_norm[%s]", endogName(v.Endog, i)), cellValue(x))
	}
	for i, a := range v.AdjustmentCoefficients {
		sh.add(fmt.Sprintf("alpha[%s]", endogName(v.Endog, i)), floatCell(a))
		if i < len(v.AdjustmentPValues) {
			sh.add(fmt.Sprintf("alpha_p[%s]", endogName(v.Endog, i)), floatCell(v.AdjustmentPValues[i]))
		}
	}
	sh.add("alpha_value", floatCell(v.AlphaValue))
	sh.add("alpha_value_p", floatCell(v.AlphaValueP))
	sh.add("beta_activity_coint", floatCell(v.BetaActivity))
	sh.add("alpha_activity_p", floatCell(v.AlphaActivityP))
	return sh
}

func endogName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprint(i)
}

func ardlSheet(res *pipeline.Results) *sheet {
	sh := &sheet{name: SheetARDL, header: []any{"field", "value", "p_value"}}
	a := res.ARDL
	if a == nil {
		return sh
	}
	if a.Error != "" {
		sh.add("error", a.Error)
		return sh
	}
	sh.add("order_p", a.ARLagOrder)
	exog := make([]string, 0, len(a.ExogLagOrders))
	for name := range a.ExogLagOrders {
		exog = append(exog, name)
	}
	slices.Sort(exog)
	for _, name := range exog {
		sh.add("order_q["+name+"]", a.ExogLagOrders[name])
	}
	sh.add("nobs", a.NObs)
	for _, k := range a.Coefficients.Keys() {
		sh.add(k, cellValue(a.Coefficients.Value(k)), cellValue(a.PValues.Value(k)))
	}
	sh.add("ect_coeff", floatCell(a.ErrorCorrectionCoefficient))
	sh.add("bounds_case", a.BoundsCase)
	sh.add("bounds_stat", floatCell(a.BoundsTestStatistic))
	sh.add("bounds_p_lower", floatCell(a.BoundsLowerPValue))
	sh.add("bounds_p_upper", floatCell(a.BoundsUpperPValue))
	sh.add("cointegrated_5pct", formatBool(a.CointegratedAt5pct))
	return sh
}

func oosSheet(sec pipeline.OOSSection) *sheet {
	sh := &sheet{name: SheetOOS, header: []any{"date", "actual", "predicted", "residual"}}
	if sec.Error != "" {
		sh.add("error", sec.Error)
		return sh
	}
	r := sec.Result
	if r == nil {
		return sh
	}
	for i, ts := range r.TestPoints {
		sh.add(ts.Format(time.DateOnly), floatCell(r.Actuals[i]), floatCell(r.Predictions[i]), floatCell(r.Residuals[i]))
	}
	sh.add("RMSE", floatCell(r.RMSE))
	sh.add("MAE", floatCell(r.MAE))
	sh.add("directional_accuracy", floatCell(r.DirectionalAccuracy))
	sh.add("N_OOS", r.NValidPredictions)
	return sh
}

func stationaritySheet(res *pipeline.Results) *sheet {
	st := res.Stationarity
	sh := &sheet{name: SheetStationarity}
	for _, h := range st.Header() {
		sh.header = append(sh.header, h)
	}
	for _, row := range st {
		sh.add(row.Series, floatCell(row.ADFP), floatCell(row.KPSSP))
	}
	return sh
}

func floatCell(f numeric.Float) any { return cellValue(f.Value()) }
