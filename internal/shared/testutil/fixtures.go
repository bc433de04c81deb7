package testutil

import (
	"encoding/csv"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ethvaluation/internal/timetable"
)

// MonthlyColumns are the columns SyntheticMonthly produces.
var MonthlyColumns = []string{
	"price_usd", "active_addr", "tx_count", "nasdaq", "supply",
	"log_marketcap", "log_active", "log_nasdaq", "log_gas",
}

// SyntheticMonthly builds n month-end rows of seeded data in which log market
// cap is tied to log activity with exponent two plus stationary noise.
func SyntheticMonthly(t testing.TB, n int, seed uint64) *timetable.Table {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	index := make([]time.Time, n)
	start := time.Date(2015, time.September, 1, 0, 0, 0, 0, time.UTC)
	for i := range index {
		index[i] = start.AddDate(0, i+1, -1)
	}

	cols := make([][]float64, len(MonthlyColumns))
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	price, active, tx, nasdaq, supply := cols[0], cols[1], cols[2], cols[3], cols[4]
	logMcap, logActive, logNasdaq, logGas := cols[5], cols[6], cols[7], cols[8]

	la, ln, lg := 12.0, 8.5, 3.0
	for i := 0; i < n; i++ {
		la += 0.01 + 0.05*rng.NormFloat64()
		ln += 0.005 + 0.03*rng.NormFloat64()
		lg = 0.6*lg + 1.2 + 0.2*rng.NormFloat64()

		logActive[i], logNasdaq[i], logGas[i] = la, ln, lg
		logMcap[i] = 1 + 2*la + 0.3*(ln-8.5) + 0.1*lg + 0.1*rng.NormFloat64()
		supply[i] = 9e7 * (1 + 0.002*float64(i))
		price[i] = math.Exp(logMcap[i]) / supply[i]
		active[i] = math.Exp(la)
		tx[i] = 2.5 * active[i] * math.Exp(0.05*rng.NormFloat64())
		nasdaq[i] = math.Exp(ln)
	}

	tbl, err := timetable.FromColumns(index, MonthlyColumns, cols)
	require.NoError(t, err)
	return tbl
}

// WriteMonthlyCSV writes SyntheticMonthly data to dir and returns the path.
func WriteMonthlyCSV(t testing.TB, dir string, n int, seed uint64) string {
	t.Helper()
	tbl := SyntheticMonthly(t, n, seed)
	path := filepath.Join(dir, "monthly.csv")
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	header, records := tbl.Records()
	require.NoError(t, csv.NewWriter(file).WriteAll(append([][]string{header}, records...)))
	return path
}
