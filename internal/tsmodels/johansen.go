package tsmodels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
)

// Critical values of the Johansen statistics at 90/95/99%, indexed by
// deterministic order + 1 and then by the number of remaining relations - 1.
var (
	traceCritical = [3][5][3]float64{
		{
			{2.9762, 4.1296, 6.9406},
			{10.4741, 12.3212, 16.3640},
			{21.7781, 24.2761, 29.5147},
			{37.0339, 40.1749, 46.5716},
			{56.2839, 60.0627, 67.6367},
		},
		{
			{2.7055, 3.8415, 6.6349},
			{13.4294, 15.4943, 19.9349},
			{27.0669, 29.7961, 35.4628},
			{44.4929, 47.8545, 54.6815},
			{65.8202, 69.8189, 77.8202},
		},
		{
			{2.7055, 3.8415, 6.6349},
			{16.1619, 18.3985, 23.1485},
			{32.0645, 35.0116, 41.0815},
			{51.6492, 55.2459, 62.5202},
			{75.1027, 79.3422, 87.7748},
		},
	}
	maxEigCritical = [3][5][3]float64{
		{
			{2.9762, 4.1296, 6.9406},
			{9.4748, 11.2246, 15.0923},
			{15.7175, 17.7961, 22.2519},
			{21.8370, 24.1592, 29.0609},
			{27.9160, 30.4428, 35.7359},
		},
		{
			{2.7055, 3.8415, 6.6349},
			{12.2971, 14.2639, 18.5200},
			{18.8928, 21.1314, 25.8650},
			{25.1236, 27.5858, 32.7172},
			{31.2379, 33.8777, 39.3693},
		},
		{
			{2.7055, 3.8415, 6.6349},
			{15.0006, 17.1481, 21.7465},
			{21.8731, 24.2522, 29.2631},
			{28.2398, 30.8151, 36.1930},
			{34.4202, 37.1646, 42.8612},
		},
	}
)

// JohansenResult holds the rank test statistics for each null r = 0..K-1.
type JohansenResult struct {
	Eigenvalues  []float64
	TraceStat    []float64
	TraceCrit    [][3]float64
	MaxEigStat   []float64
	MaxEigCrit   [][3]float64
	Eigenvectors *mat.Dense
	NObs         int
	DetOrder     int
	LaggedDiffs  int
}

// SuggestedRank counts the trace statistics that exceed their 5% critical
// value. Pairs with a missing statistic or critical value are not counted.
func (j *JohansenResult) SuggestedRank() int {
	rank := 0
	for i, stat := range j.TraceStat {
		cv := j.TraceCrit[i][1]
		if numeric.IsFinite(stat) && numeric.IsFinite(cv) && stat > cv {
			rank++
		}
	}
	return rank
}

// Trace5pct returns the 5% trace critical values.
func (j *JohansenResult) Trace5pct() []float64 {
	out := make([]float64, len(j.TraceCrit))
	for i, cv := range j.TraceCrit {
		out[i] = cv[1]
	}
	return out
}

// MaxEig5pct returns the 5% maximum-eigenvalue critical values.
func (j *JohansenResult) MaxEig5pct() []float64 {
	out := make([]float64, len(j.MaxEigCrit))
	for i, cv := range j.MaxEigCrit {
		out[i] = cv[1]
	}
	return out
}

func criticalRow(table *[3][5][3]float64, remaining, detOrder int) [3]float64 {
	if remaining < 1 || remaining > len(table[0]) {
		return [3]float64{math.NaN(), math.NaN(), math.NaN()}
	}
	return table[detOrder+1][remaining-1]
}

// Johansen runs the trace and maximum-eigenvalue cointegration rank tests on
// the columns of y. detOrder is -1 (no deterministic terms), 0 (constant) or
// 1 (linear trend); kArDiff lagged differences are partialled out.
func Johansen(y *mat.Dense, detOrder, kArDiff int) (*JohansenResult, error) {
	if detOrder < -1 || detOrder > 1 {
		return nil, fmt.Errorf("deterministic order must be -1, 0 or 1, got %d", detOrder)
	}
	if kArDiff < 0 {
		return nil, fmt.Errorf("lagged differences must be non-negative, got %d", kArDiff)
	}
	if y == nil || y.IsEmpty() {
		return nil, fmt.Errorf("no data")
	}
	n, k := y.Dims()
	t := n - 1 - kArDiff
	if t <= k*(kArDiff+1)+1 {
		return nil, fmt.Errorf("%d observations are too few for %d series with %d lagged differences", n, k, kArDiff)
	}

	f := 0
	if detOrder < 0 {
		f = -1
	}
	level, err := detrend(y, detOrder)
	if err != nil {
		return nil, err
	}

	dx := mat.NewDense(n-1, k, nil)
	for i := 1; i < n; i++ {
		for j := 0; j < k; j++ {
			dx.Set(i-1, j, level.At(i, j)-level.At(i-1, j))
		}
	}

	var z *mat.Dense
	if kArDiff > 0 {
		z = mat.NewDense(t, kArDiff*k, nil)
		for r := 0; r < t; r++ {
			for l := 1; l <= kArDiff; l++ {
				for j := 0; j < k; j++ {
					z.Set(r, (l-1)*k+j, dx.At(kArDiff+r-l, j))
				}
			}
		}
		if z, err = detrend(z, f); err != nil {
			return nil, err
		}
	}

	dxT, err := detrend(rowsOf(dx, kArDiff, n-1), f)
	if err != nil {
		return nil, err
	}
	r0, err := residualize(dxT, z)
	if err != nil {
		return nil, err
	}
	lagged, err := detrend(rowsOf(level, kArDiff, n-1), f)
	if err != nil {
		return nil, err
	}
	rk, err := residualize(lagged, z)
	if err != nil {
		return nil, err
	}

	s00 := crossProduct(r0, r0, float64(t))
	s01 := crossProduct(r0, rk, float64(t))
	s11 := crossProduct(rk, rk, float64(t))
	eigen, vecs, err := reducedRank(s00, s01, s11)
	if err != nil {
		return nil, err
	}

	res := &JohansenResult{
		Eigenvalues:  eigen,
		TraceStat:    make([]float64, k),
		TraceCrit:    make([][3]float64, k),
		MaxEigStat:   make([]float64, k),
		MaxEigCrit:   make([][3]float64, k),
		Eigenvectors: vecs,
		NObs:         t,
		DetOrder:     detOrder,
		LaggedDiffs:  kArDiff,
	}
	for i := 0; i < k; i++ {
		var sum float64
		for _, lambda := range eigen[i:] {
			sum += math.Log(1 - lambda)
		}
		res.TraceStat[i] = -float64(t) * sum
		res.MaxEigStat[i] = -float64(t) * math.Log(1-eigen[i])
		res.TraceCrit[i] = criticalRow(&traceCritical, k-i, detOrder)
		res.MaxEigCrit[i] = criticalRow(&maxEigCritical, k-i, detOrder)
	}
	return res, nil
}
