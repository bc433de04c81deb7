package tsmodels

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"ethvaluation/internal/numeric"
)

// simulationBlock is the number of replications drawn from one random stream.
// Streams are keyed by block, so results do not depend on the worker count.
const simulationBlock = 50

// BoundsOptions controls the simulated null distributions of the bounds test.
type BoundsOptions struct {
	Replications int
	Seed         uint64
	Workers      int
}

// DefaultBoundsOptions draws 1000 replications per bound.
func DefaultBoundsOptions() BoundsOptions {
	return BoundsOptions{Replications: 1000, Seed: 42, Workers: runtime.GOMAXPROCS(0)}
}

// BoundsTest is a Pesaran-Shin-Smith bounds test for a levels relationship.
// LowerP is computed under I(0) regressors, UpperP under I(1) regressors.
type BoundsTest struct {
	Statistic float64
	LowerP    float64
	UpperP    float64
	Case      int
	K         int
	NObs      int
}

// PSSCase maps a trend specification onto the bounds test case. Unknown
// trends fall back to case 3.
func PSSCase(trend string) int {
	switch trend {
	case TrendNone:
		return 1
	case TrendConst:
		return 3
	case TrendTime:
		return 4
	case TrendConstTime:
		return 5
	default:
		return 3
	}
}

func requiredTrend(bcase int) (string, error) {
	switch bcase {
	case 1:
		return TrendNone, nil
	case 2, 3:
		return TrendConst, nil
	case 4, 5:
		return TrendConstTime, nil
	default:
		return "", fmt.Errorf("bounds test case must be between 1 and 5, got %d", bcase)
	}
}

// restrictedCols lists the columns set to zero under the null of no levels
// relationship: the level terms, plus the constant in case 2 and the trend
// in case 4.
func (m *LinearModel) restrictedCols(bcase int) []int {
	cols := append([]int(nil), m.levelCols...)
	if bcase == 2 && m.constCol >= 0 {
		cols = append(cols, m.constCol)
	}
	if bcase == 4 && m.trendCol >= 0 {
		cols = append(cols, m.trendCol)
	}
	return cols
}

// waldF returns the F statistic for the joint exclusion of cols.
func waldF(y []float64, x *mat.Dense, full *numeric.LeastSquares, cols []int) (float64, error) {
	n, k := x.Dims()
	drop := make(map[int]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]int, 0, k)
	for j := 0; j < k; j++ {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	ssrR := 0.0
	if len(keep) == 0 {
		for _, v := range y {
			ssrR += v * v
		}
	} else {
		xr := mat.NewDense(n, len(keep), nil)
		for i := 0; i < n; i++ {
			for c, j := range keep {
				xr.Set(i, c, x.At(i, j))
			}
		}
		restricted, err := numeric.OLSPinv(y, xr)
		if err != nil {
			return math.NaN(), err
		}
		ssrR = restricted.SSR
	}
	df := full.DFResid()
	if df <= 0 || full.SSR <= 0 {
		return math.NaN(), fmt.Errorf("no residual degrees of freedom")
	}
	return ((ssrR - full.SSR) / float64(len(cols))) / (full.SSR / float64(df)), nil
}

// BoundsTestUECM runs the bounds test on a fitted UECM. The trend of the
// model must match the case: case 1 needs no trend, cases 2 and 3 a
// constant, cases 4 and 5 a constant and a time trend.
func BoundsTestUECM(ctx context.Context, m *LinearModel, trend string, bcase int, opts BoundsOptions) (*BoundsTest, error) {
	want, err := requiredTrend(bcase)
	if err != nil {
		return nil, err
	}
	if trend != want {
		return nil, fmt.Errorf("bounds test case %d requires trend %q, model has %q", bcase, want, trend)
	}
	if len(m.levelCols) == 0 {
		return nil, fmt.Errorf("model has no level terms")
	}
	if opts.Replications < 1 {
		return nil, fmt.Errorf("bounds test needs at least one replication")
	}

	stat, err := waldF(m.response, m.design, m.Fit, m.restrictedCols(bcase))
	if err != nil {
		return nil, fmt.Errorf("compute bounds statistic: %w", err)
	}
	k := len(m.levelCols) - 1
	nobs := m.Fit.NObs

	lower, upper, err := simulateBounds(ctx, nobs, k, bcase, opts)
	if err != nil {
		return nil, err
	}
	return &BoundsTest{
		Statistic: stat,
		LowerP:    exceedance(lower, stat),
		UpperP:    exceedance(upper, stat),
		Case:      bcase,
		K:         k,
		NObs:      nobs,
	}, nil
}

func exceedance(draws []float64, stat float64) float64 {
	var hits, valid int
	for _, d := range draws {
		if math.IsNaN(d) {
			continue
		}
		valid++
		if d >= stat {
			hits++
		}
	}
	if valid == 0 {
		return math.NaN()
	}
	return float64(hits) / float64(valid)
}

// simulateBounds draws the null distribution of the bounds statistic with
// stationary (lower) and integrated (upper) regressors.
func simulateBounds(ctx context.Context, nobs, k, bcase int, opts BoundsOptions) (lower, upper []float64, err error) {
	reps := opts.Replications
	lower = make([]float64, reps)
	upper = make([]float64, reps)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < reps; start += simulationBlock {
		block := start / simulationBlock
		end := min(start+simulationBlock, reps)
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(block)))
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				lower[i] = simulatedStatistic(rng, nobs, k, bcase, false)
				upper[i] = simulatedStatistic(rng, nobs, k, bcase, true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lower, upper, nil
}

// simulatedStatistic draws one bounds statistic from a random walk
// dependent variable and k independent regressors.
func simulatedStatistic(rng *rand.Rand, nobs, k, bcase int, integrated bool) float64 {
	y := make([]float64, nobs+1)
	x := make([][]float64, k)
	for j := range x {
		x[j] = make([]float64, nobs+1)
	}
	for t := 0; t <= nobs; t++ {
		e := rng.NormFloat64()
		if t > 0 {
			y[t] = y[t-1] + e
		} else {
			y[t] = e
		}
		for j := range x {
			v := rng.NormFloat64()
			if integrated && t > 0 {
				v += x[j][t-1]
			}
			x[j][t] = v
		}
	}

	var det []func(t int) float64
	switch bcase {
	case 2, 3:
		det = append(det, func(int) float64 { return 1 })
	case 4, 5:
		det = append(det, func(int) float64 { return 1 }, func(t int) float64 { return float64(t) })
	}
	cols := len(det) + 1 + k
	design := mat.NewDense(nobs, cols, nil)
	dy := make([]float64, nobs)
	for i := 0; i < nobs; i++ {
		t := i + 1
		dy[i] = y[t] - y[t-1]
		c := 0
		for _, d := range det {
			design.Set(i, c, d(t))
			c++
		}
		design.Set(i, c, y[t-1])
		c++
		for j := range x {
			design.Set(i, c, x[j][t-1])
			c++
		}
	}

	restricted := make([]int, 0, k+2)
	for j := len(det); j < cols; j++ {
		restricted = append(restricted, j)
	}
	switch bcase {
	case 2:
		restricted = append(restricted, 0)
	case 4:
		restricted = append(restricted, 1)
	}

	full, err := numeric.OLSPinv(dy, design)
	if err != nil {
		return math.NaN()
	}
	f, err := waldF(dy, design, full, restricted)
	if err != nil {
		return math.NaN()
	}
	return f
}
