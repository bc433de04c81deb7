package tsmodels

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const eps = 2.220446049250313e-16

// residualize returns y minus its projection on the column space of z.
// A nil or empty z leaves y unchanged.
func residualize(y, z *mat.Dense) (*mat.Dense, error) {
	out := mat.DenseCopyOf(y)
	if z == nil || z.IsEmpty() {
		return out, nil
	}
	r, c := z.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(z, mat.SVDThin); !ok {
		return nil, errors.New("svd factorization did not converge")
	}
	s := svd.Values(nil)
	tol := s[0] * float64(max(r, c)) * eps
	rank := 0
	for _, v := range s {
		if v > tol {
			rank++
		}
	}
	if rank == 0 {
		return out, nil
	}
	var u mat.Dense
	svd.UTo(&u)
	ur := u.Slice(0, r, 0, rank)

	var coef, fit mat.Dense
	coef.Mul(ur.T(), y)
	fit.Mul(ur, &coef)
	out.Sub(out, &fit)
	return out, nil
}

// detrend removes a polynomial time trend of the given order from every
// column, using a regressor grid on [-1, 1]. Order -1 returns a copy.
func detrend(y *mat.Dense, order int) (*mat.Dense, error) {
	if y == nil || y.IsEmpty() || order < 0 {
		if y == nil || y.IsEmpty() {
			return y, nil
		}
		return mat.DenseCopyOf(y), nil
	}
	n, _ := y.Dims()
	vander := mat.NewDense(n, order+1, nil)
	for i := 0; i < n; i++ {
		x := -1.0
		if n > 1 {
			x = -1 + 2*float64(i)/float64(n-1)
		}
		for p := 0; p <= order; p++ {
			vander.Set(i, p, math.Pow(x, float64(p)))
		}
	}
	return residualize(y, vander)
}

// crossProduct returns a'b / scale.
func crossProduct(a, b mat.Matrix, scale float64) *mat.Dense {
	var out mat.Dense
	out.Mul(a.T(), b)
	out.Scale(1/scale, &out)
	return &out
}

func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}

// reducedRank solves the generalized eigenproblem |λ S11 - S10 S00⁻¹ S01| = 0.
// Eigenvalues come back in decreasing order; the columns of the returned
// matrix are the matching eigenvectors scaled so that v' S11 v = I.
func reducedRank(s00, s01, s11 *mat.Dense) ([]float64, *mat.Dense, error) {
	k, _ := s11.Dims()

	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(s11)); !ok {
		return nil, nil, errors.New("level moment matrix is not positive definite")
	}
	var l, lInv mat.TriDense
	chol.LTo(&l)
	if err := lInv.InverseTri(&l); err != nil {
		return nil, nil, fmt.Errorf("invert cholesky factor: %w", err)
	}

	var s00Inv mat.Dense
	if err := s00Inv.Inverse(s00); err != nil {
		return nil, nil, fmt.Errorf("invert residual moment matrix: %w", err)
	}
	var tmp, a mat.Dense
	tmp.Mul(s01.T(), &s00Inv)
	a.Mul(&tmp, s01)

	var left, m mat.Dense
	left.Mul(&lInv, &a)
	m.Mul(&left, lInv.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(symmetrize(&m), true); !ok {
		return nil, nil, errors.New("eigen decomposition did not converge")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return vals[order[i]] > vals[order[j]] })

	sorted := make([]float64, k)
	w := mat.NewDense(k, k, nil)
	for c, idx := range order {
		sorted[c] = vals[idx]
		for r := 0; r < k; r++ {
			w.Set(r, c, vecs.At(r, idx))
		}
	}
	var v mat.Dense
	v.Mul(lInv.T(), w)
	return sorted, &v, nil
}

// logDetSym returns log|m| for a symmetric positive definite matrix.
func logDetSym(m mat.Matrix) (float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(m)); !ok {
		return math.NaN(), errors.New("matrix is not positive definite")
	}
	return chol.LogDet(), nil
}

// columns stacks equal-length series as the columns of a matrix.
func columns(cols [][]float64) *mat.Dense {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return nil
	}
	m := mat.NewDense(len(cols[0]), len(cols), nil)
	for j, c := range cols {
		m.SetCol(j, c)
	}
	return m
}

// hstack joins matrices with equal row counts side by side, skipping nils.
func hstack(parts ...*mat.Dense) *mat.Dense {
	rows, cols := -1, 0
	for _, p := range parts {
		if p == nil || p.IsEmpty() {
			continue
		}
		r, c := p.Dims()
		rows = r
		cols += c
	}
	if rows <= 0 || cols == 0 {
		return nil
	}
	out := mat.NewDense(rows, cols, nil)
	off := 0
	for _, p := range parts {
		if p == nil || p.IsEmpty() {
			continue
		}
		r, c := p.Dims()
		out.Slice(0, r, off, off+c).(*mat.Dense).Copy(p)
		off += c
	}
	return out
}

func rowsOf(m *mat.Dense, start, end int) *mat.Dense {
	if m == nil || m.IsEmpty() || end <= start {
		return nil
	}
	_, c := m.Dims()
	return mat.DenseCopyOf(m.Slice(start, end, 0, c))
}
