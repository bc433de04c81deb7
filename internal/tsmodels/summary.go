package tsmodels

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

func writeTable(b *strings.Builder, header []string, rows [][]string) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t")+"\t")
	}
	w.Flush()
}

func num(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// Summary renders the coefficient table of a fitted linear model.
func (m *LinearModel) Summary(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nDep. variable: %s  No. observations: %d  R-squared: %.4f  AIC: %.3f\n",
		title, m.Dependent, m.Fit.NObs, m.Fit.RSquared(), m.Fit.AIC())
	rows := make([][]string, len(m.Names))
	for i, name := range m.Names {
		t := m.Fit.Params[i] / m.StdErrors[i]
		rows[i] = []string{name, num(m.Fit.Params[i]), num(m.StdErrors[i]), num(t), num(m.PValues[i])}
	}
	writeTable(&b, []string{"", "coef", "std err", "t", "P>|t|"}, rows)
	return b.String()
}

// Summary renders the loading and cointegration tables of a VECM fit.
func (f *VECMFit) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "VECM (rank %d, %d lagged differences, deterministic %q)\nNo. observations: %d\n",
		f.Rank, f.LaggedDiffs, f.Deterministic, f.NObs)

	b.WriteString("\nLoading coefficients (alpha)\n")
	var rows [][]string
	for i, name := range f.Names {
		for j := 0; j < f.Rank; j++ {
			a, se := f.Alpha.At(i, j), f.AlphaSE.At(i, j)
			rows = append(rows, []string{fmt.Sprintf("ec%d.%s", j+1, name), num(a), num(se), num(a / se), num(f.AlphaP.At(i, j))})
		}
	}
	writeTable(&b, []string{"", "coef", "std err", "z", "P>|z|"}, rows)

	b.WriteString("\nCointegration relations (beta)\n")
	rows = rows[:0]
	betaRows, _ := f.Beta.Dims()
	for i := 0; i < betaRows; i++ {
		label := "const"
		if f.Deterministic == DetTrendInside {
			label = "lin_trend"
		}
		if i < len(f.Names) {
			label = f.Names[i]
		}
		row := []string{label}
		for j := 0; j < f.Rank; j++ {
			row = append(row, num(f.Beta.At(i, j)))
		}
		rows = append(rows, row)
	}
	header := []string{""}
	for j := 0; j < f.Rank; j++ {
		header = append(header, fmt.Sprintf("beta.%d", j+1))
	}
	writeTable(&b, header, rows)

	if f.Gamma != nil {
		b.WriteString("\nShort-run coefficients\n")
		rows = rows[:0]
		for i, eq := range f.Names {
			for j, reg := range f.ShortRunNames {
				rows = append(rows, []string{"D." + eq + " ~ " + reg, num(f.Gamma.At(i, j))})
			}
		}
		writeTable(&b, []string{"", "coef"}, rows)
	}
	return b.String()
}

// Summary renders the bounds test outcome.
func (bt *BoundsTest) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bounds test (case %d, k=%d, nobs=%d)\n", bt.Case, bt.K, bt.NObs)
	writeTable(&b, []string{"Stat", "Lower P-value", "Upper P-value"},
		[][]string{{num(bt.Statistic), num(bt.LowerP), num(bt.UpperP)}})
	return b.String()
}
