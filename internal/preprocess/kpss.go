package preprocess

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KPSSResult is a level-stationarity KPSS test.
type KPSSResult struct {
	Statistic float64
	PValue    float64
	Lags      int
}

// Kwiatkowski et al. (1992) table 1, level stationarity.
var (
	kpssCrit   = []float64{0.347, 0.463, 0.574, 0.739}
	kpssPvalue = []float64{0.10, 0.05, 0.025, 0.01}
)

// KPSS tests the null of level stationarity. The Bartlett bandwidth is chosen
// with the Hobijn et al. (1998) data-dependent rule. P-values are interpolated
// from the published table and therefore lie in [0.01, 0.10].
func KPSS(x []float64) (KPSSResult, error) {
	n := len(x)
	if n < 2 {
		return KPSSResult{}, errors.New("KPSS needs at least two observations")
	}
	mean := stat.Mean(x, nil)
	resid := make([]float64, n)
	for i, v := range x {
		resid[i] = v - mean
	}

	lags := min(kpssAutolag(resid), n-1)

	var cum, eta float64
	for _, r := range resid {
		cum += r
		eta += cum * cum
	}
	eta /= float64(n) * float64(n)

	s := longRunVariance(resid, lags)
	if s == 0 || math.IsNaN(s) {
		return KPSSResult{}, errors.New("series has zero long-run variance")
	}
	statistic := eta / s
	return KPSSResult{Statistic: statistic, PValue: kpssPValue(statistic), Lags: lags}, nil
}

func kpssAutolag(resid []float64) int {
	n := len(resid)
	fn := float64(n)
	covlags := int(math.Pow(fn, 2.0/9.0))
	s0 := floats.Dot(resid, resid) / fn
	var s1 float64
	for i := 1; i <= covlags && i < n; i++ {
		prod := floats.Dot(resid[i:], resid[:n-i]) / (fn / 2)
		s0 += prod
		s1 += float64(i) * prod
	}
	if s0 == 0 {
		return 0
	}
	ratio := s1 / s0
	gamma := 1.1447 * math.Pow(ratio*ratio, 1.0/3.0)
	return int(gamma * math.Pow(fn, 1.0/3.0))
}

// longRunVariance is the Newey-West estimate with Bartlett weights.
func longRunVariance(resid []float64, lags int) float64 {
	n := len(resid)
	s := floats.Dot(resid, resid)
	for i := 1; i <= lags; i++ {
		prod := floats.Dot(resid[i:], resid[:n-i])
		s += 2 * prod * (1 - float64(i)/float64(lags+1))
	}
	return s / float64(n)
}

func kpssPValue(statistic float64) float64 {
	if statistic <= kpssCrit[0] {
		return kpssPvalue[0]
	}
	last := len(kpssCrit) - 1
	if statistic >= kpssCrit[last] {
		return kpssPvalue[last]
	}
	for i := 1; i <= last; i++ {
		if statistic <= kpssCrit[i] {
			w := (statistic - kpssCrit[i-1]) / (kpssCrit[i] - kpssCrit[i-1])
			return kpssPvalue[i-1] + w*(kpssPvalue[i]-kpssPvalue[i-1])
		}
	}
	return kpssPvalue[last]
}
