package numeric

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned by OLS when the design matrix is rank deficient.
var ErrSingular = errors.New("singular design matrix")

// LeastSquares holds an ordinary least squares fit.
type LeastSquares struct {
	Params      []float64
	Fitted      []float64
	Resid       []float64
	SSR         float64
	NObs        int
	NParams     int
	Rank        int
	HasConstant bool

	// XtXInv is (X'X)^-1, or its Moore-Penrose pseudo-inverse for rank
	// deficient designs fitted with OLSPinv.
	XtXInv *mat.Dense

	y []float64
	x *mat.Dense
}

// OLS fits y on x and fails with ErrSingular when x does not have full column rank.
func OLS(y []float64, x *mat.Dense) (*LeastSquares, error) {
	return fitSVD(y, x, true)
}

// OLSPinv fits y on x with a pseudo-inverse, tolerating rank deficiency.
func OLSPinv(y []float64, x *mat.Dense) (*LeastSquares, error) {
	return fitSVD(y, x, false)
}

func fitSVD(y []float64, x *mat.Dense, strict bool) (*LeastSquares, error) {
	if x == nil {
		return nil, errors.New("nil design matrix")
	}
	n, k := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("design has %d rows, response has %d", n, len(y))
	}
	if n == 0 || k == 0 {
		return nil, errors.New("empty design matrix")
	}
	for _, v := range y {
		if !IsFinite(v) {
			return nil, errors.New("response contains non-finite values")
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			if !IsFinite(x.At(i, j)) {
				return nil, errors.New("design contains non-finite values")
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, errors.New("svd factorization did not converge")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := s[0] * float64(max(n, k)) * 2.220446049250313e-16
	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if strict && rank < k {
		return nil, fmt.Errorf("%w: rank %d < %d columns", ErrSingular, rank, k)
	}

	// beta = V diag(1/s) U'y over the retained singular values
	uty := mat.NewVecDense(len(s), nil)
	uty.MulVec(u.T(), mat.NewVecDense(n, y))
	inv2 := make([]float64, len(s))
	for i, sv := range s {
		if sv > tol {
			uty.SetVec(i, uty.AtVec(i)/sv)
			inv2[i] = 1 / (sv * sv)
		} else {
			uty.SetVec(i, 0)
		}
	}
	beta := mat.NewVecDense(k, nil)
	beta.MulVec(&v, uty)

	var vs mat.Dense
	vs.Apply(func(_, j int, val float64) float64 { return val * inv2[j] }, &v)
	xtxInv := mat.NewDense(k, k, nil)
	xtxInv.Mul(&vs, v.T())

	fitted := mat.NewVecDense(n, nil)
	fitted.MulVec(x, beta)

	ls := &LeastSquares{
		Params:      mat.Col(nil, 0, beta),
		Fitted:      mat.Col(nil, 0, fitted),
		Resid:       make([]float64, n),
		NObs:        n,
		NParams:     k,
		Rank:        rank,
		HasConstant: HasConstantColumn(x),
		XtXInv:      xtxInv,
		y:           y,
		x:           x,
	}
	for i := range y {
		ls.Resid[i] = y[i] - ls.Fitted[i]
		ls.SSR += ls.Resid[i] * ls.Resid[i]
	}
	return ls, nil
}

// HasConstantColumn reports whether some column of x is constant and non-zero.
func HasConstantColumn(x *mat.Dense) bool {
	n, k := x.Dims()
	for j := 0; j < k; j++ {
		first := x.At(0, j)
		if first == 0 {
			continue
		}
		constant := true
		for i := 1; i < n; i++ {
			if x.At(i, j) != first {
				constant = false
				break
			}
		}
		if constant {
			return true
		}
	}
	return false
}

// DFResid returns the residual degrees of freedom.
func (ls *LeastSquares) DFResid() int {
	return ls.NObs - ls.Rank
}

// Sigma2 returns the unbiased residual variance.
func (ls *LeastSquares) Sigma2() float64 {
	df := ls.DFResid()
	if df <= 0 {
		return math.NaN()
	}
	return ls.SSR / float64(df)
}

// RSquared is centered when the design has a constant, uncentered otherwise.
func (ls *LeastSquares) RSquared() float64 {
	tss := ls.totalSS()
	if tss == 0 {
		return math.NaN()
	}
	return 1 - ls.SSR/tss
}

// RSquaredAdj applies the degrees-of-freedom correction to RSquared.
func (ls *LeastSquares) RSquaredAdj() float64 {
	df := ls.DFResid()
	if df <= 0 {
		return math.NaN()
	}
	kConst := 0
	if ls.HasConstant {
		kConst = 1
	}
	return 1 - float64(ls.NObs-kConst)/float64(df)*(1-ls.RSquared())
}

func (ls *LeastSquares) totalSS() float64 {
	if ls.HasConstant {
		mean := floats.Sum(ls.y) / float64(len(ls.y))
		var tss float64
		for _, v := range ls.y {
			tss += (v - mean) * (v - mean)
		}
		return tss
	}
	return floats.Dot(ls.y, ls.y)
}

// ClassicCov returns sigma² (X'X)^-1.
func (ls *LeastSquares) ClassicCov() *mat.Dense {
	var cov mat.Dense
	cov.Scale(ls.Sigma2(), ls.XtXInv)
	return &cov
}

// HACCov returns the Newey-West covariance with Bartlett weights over maxLag
// lags, without small-sample correction.
func (ls *LeastSquares) HACCov(maxLag int) *mat.Dense {
	n, k := ls.x.Dims()
	xu := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			xu.Set(i, j, ls.x.At(i, j)*ls.Resid[i])
		}
	}

	s := mat.NewDense(k, k, nil)
	s.Mul(xu.T(), xu)
	for lag := 1; lag <= maxLag && lag < n; lag++ {
		w := 1 - float64(lag)/float64(maxLag+1)
		var g mat.Dense
		g.Mul(xu.Slice(lag, n, 0, k).T(), xu.Slice(0, n-lag, 0, k))
		var gt mat.Dense
		gt.CloneFrom(g.T())
		g.Add(&g, &gt)
		g.Scale(w, &g)
		s.Add(s, &g)
	}

	var tmp, cov mat.Dense
	tmp.Mul(ls.XtXInv, s)
	cov.Mul(&tmp, ls.XtXInv)
	return &cov
}

// StdErrors returns the square roots of the covariance diagonal.
func StdErrors(cov mat.Matrix) []float64 {
	k, _ := cov.Dims()
	se := make([]float64, k)
	for i := range se {
		se[i] = math.Sqrt(cov.At(i, i))
	}
	return se
}

// TValues divides the parameters by their standard errors.
func (ls *LeastSquares) TValues(cov mat.Matrix) []float64 {
	se := StdErrors(cov)
	t := make([]float64, len(se))
	for i := range t {
		t[i] = ls.Params[i] / se[i]
	}
	return t
}

// LogLikelihood is the Gaussian concentrated log-likelihood.
func (ls *LeastSquares) LogLikelihood() float64 {
	n := float64(ls.NObs)
	return -n/2*math.Log(2*math.Pi) - n/2*math.Log(ls.SSR/n) - n/2
}

// AIC is -2 llf + 2 * number of estimated parameters.
func (ls *LeastSquares) AIC() float64 {
	return -2*ls.LogLikelihood() + 2*float64(ls.Rank)
}

// Predict evaluates the fitted linear form at row.
func (ls *LeastSquares) Predict(row []float64) (float64, error) {
	if len(row) != len(ls.Params) {
		return math.NaN(), fmt.Errorf("row has %d values, model has %d parameters", len(row), len(ls.Params))
	}
	return floats.Dot(row, ls.Params), nil
}

// Design builds an n x k matrix from columns, optionally prepending a column of ones.
func Design(columns [][]float64, addConstant bool) (*mat.Dense, error) {
	k := len(columns)
	if addConstant {
		k++
	}
	if k == 0 {
		return nil, errors.New("no regressors")
	}
	n := -1
	for _, c := range columns {
		if n >= 0 && len(c) != n {
			return nil, errors.New("regressor columns have unequal lengths")
		}
		n = len(c)
	}
	if n < 0 {
		return nil, errors.New("cannot infer row count from a constant-only design")
	}
	if n == 0 {
		return nil, errors.New("empty design matrix")
	}
	x := mat.NewDense(n, k, nil)
	offset := 0
	if addConstant {
		for i := 0; i < n; i++ {
			x.Set(i, 0, 1)
		}
		offset = 1
	}
	for j, c := range columns {
		x.SetCol(j+offset, c)
	}
	return x, nil
}
