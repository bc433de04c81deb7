package tsmodels

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "ethvaluation/internal/errors"
	"ethvaluation/internal/numeric"
)

// Deterministic term placements for the VECM.
const (
	DetConstInside  = "ci" // constant inside the cointegrating relation
	DetTrendInside  = "li" // linear trend inside the cointegrating relation
	DetConstOutside = "co" // unrestricted constant
)

// DeterministicFor maps a Johansen deterministic order onto the VECM term
// placement. Unknown orders fall back to a restricted constant.
func DeterministicFor(detOrder int) (string, bool) {
	switch detOrder {
	case -1:
		return DetTrendInside, true
	case 0:
		return DetConstInside, true
	case 1:
		return DetConstOutside, true
	default:
		return DetConstInside, false
	}
}

// VECMFit is a reduced-rank maximum likelihood VECM estimate:
// Δy_t = α β' y*_{t-1} + Γ Δx_t + u_t, where y*_{t-1} is the lagged level
// augmented with any restricted deterministic term.
type VECMFit struct {
	Names         []string
	Deterministic string
	Rank          int
	LaggedDiffs   int
	NObs          int

	Alpha   *mat.Dense // K x r
	AlphaSE *mat.Dense
	AlphaP  *mat.Dense
	Beta    *mat.Dense // (K + restricted terms) x r
	Gamma   *mat.Dense // K x m, nil without short-run regressors
	SigmaU  *mat.Dense

	ShortRunNames []string
	Eigenvalues   []float64
	Normalized    bool
}

// FitVECM estimates a VECM on the columns of y (rows are time) with the given
// number of lagged differences, cointegration rank and deterministic term
// placement. exog columns enter the short-run equation contemporaneously.
func FitVECM(y, exog *mat.Dense, names, exogNames []string, laggedDiffs, rank int, deterministic string) (*VECMFit, error) {
	if y == nil || y.IsEmpty() {
		return nil, errors.New("no endogenous data")
	}
	n, k := y.Dims()
	if rank < 1 || rank > k {
		return nil, fmt.Errorf("cointegration rank must be between 1 and %d, got %d", k, rank)
	}
	if laggedDiffs < 0 {
		return nil, fmt.Errorf("lagged differences must be non-negative, got %d", laggedDiffs)
	}
	kx := 0
	if exog != nil && !exog.IsEmpty() {
		_, kx = exog.Dims()
	}
	var restricted int
	switch deterministic {
	case DetConstInside, DetTrendInside:
		restricted = 1
	case DetConstOutside:
	default:
		return nil, fmt.Errorf("unknown deterministic term %q", deterministic)
	}
	unrestricted := laggedDiffs*k + kx
	if deterministic == DetConstOutside {
		unrestricted++
	}

	p := laggedDiffs + 1
	t := n - p
	if t <= k+restricted+unrestricted {
		return nil, fmt.Errorf("%d observations are too few for the requested VECM", n)
	}

	dy := mat.NewDense(t, k, nil)
	yLag := mat.NewDense(t, k+restricted, nil)
	var dx *mat.Dense
	if unrestricted > 0 {
		dx = mat.NewDense(t, unrestricted, nil)
	}
	for r := 0; r < t; r++ {
		ti := p + r
		for j := 0; j < k; j++ {
			dy.Set(r, j, y.At(ti, j)-y.At(ti-1, j))
			yLag.Set(r, j, y.At(ti-1, j))
		}
		switch deterministic {
		case DetConstInside:
			yLag.Set(r, k, 1)
		case DetTrendInside:
			yLag.Set(r, k, float64(p+r))
		}
		col := 0
		for l := 1; l <= laggedDiffs; l++ {
			for j := 0; j < k; j++ {
				dx.Set(r, col, y.At(ti-l, j)-y.At(ti-l-1, j))
				col++
			}
		}
		if deterministic == DetConstOutside {
			dx.Set(r, col, 1)
			col++
		}
		for j := 0; j < kx; j++ {
			dx.Set(r, col, exog.At(ti, j))
			col++
		}
	}

	r0, err := residualize(dy, dx)
	if err != nil {
		return nil, err
	}
	r1, err := residualize(yLag, dx)
	if err != nil {
		return nil, err
	}
	s00 := crossProduct(r0, r0, float64(t))
	s01 := crossProduct(r0, r1, float64(t))
	s11 := crossProduct(r1, r1, float64(t))
	eigen, vecs, err := reducedRank(s00, s01, s11)
	if err != nil {
		return nil, err
	}

	rows, _ := vecs.Dims()
	beta := mat.DenseCopyOf(vecs.Slice(0, rows, 0, rank))
	normalized := false
	var top mat.Dense
	if err := top.Inverse(beta.Slice(0, rank, 0, rank)); err == nil {
		var nb mat.Dense
		nb.Mul(beta, &top)
		if finiteMatrix(&nb) {
			beta = &nb
			normalized = true
		}
	}

	var bsb, bsbInv, alpha mat.Dense
	var sb mat.Dense
	sb.Mul(s11, beta)
	bsb.Mul(beta.T(), &sb)
	if err := bsbInv.Inverse(&bsb); err != nil {
		return nil, fmt.Errorf("invert beta' S11 beta: %w", err)
	}
	var s01b mat.Dense
	s01b.Mul(s01, beta)
	alpha.Mul(&s01b, &bsbInv)

	// Long-run part of the response, then the short-run coefficients.
	var ect, longRun, rest mat.Dense
	ect.Mul(yLag, beta)
	longRun.Mul(&ect, alpha.T())
	rest.Sub(dy, &longRun)

	resid := mat.DenseCopyOf(&rest)
	var gamma *mat.Dense
	if dx != nil {
		var coef mat.Dense
		if err := coef.Solve(dx, &rest); err != nil {
			return nil, fmt.Errorf("short-run coefficients: %w", err)
		}
		gamma = mat.DenseCopyOf(coef.T())
		var fitted mat.Dense
		fitted.Mul(dx, &coef)
		resid.Sub(resid, &fitted)
	}
	sigma := crossProduct(resid, resid, float64(t))

	// Var(vec α) = (W'W)⁻¹[:r,:r] ⊗ Σu with W = [y*_{t-1} β, Δx].
	w := hstack(&ect, dx)
	var omega, omegaInv mat.Dense
	omega.Mul(w.T(), w)
	if err := omegaInv.Inverse(&omega); err != nil {
		return nil, fmt.Errorf("invert regressor moment matrix: %w", err)
	}
	alphaSE := mat.NewDense(k, rank, nil)
	alphaP := mat.NewDense(k, rank, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < rank; j++ {
			se := math.Sqrt(omegaInv.At(j, j) * sigma.At(i, i))
			alphaSE.Set(i, j, se)
			alphaP.Set(i, j, numeric.NormalTwoSided(alpha.At(i, j)/se))
		}
	}

	return &VECMFit{
		Names:         names,
		Deterministic: deterministic,
		Rank:          rank,
		LaggedDiffs:   laggedDiffs,
		NObs:          t,
		Alpha:         &alpha,
		AlphaSE:       alphaSE,
		AlphaP:        alphaP,
		Beta:          beta,
		Gamma:         gamma,
		SigmaU:        sigma,
		ShortRunNames: shortRunNames(names, exogNames, laggedDiffs, deterministic),
		Eigenvalues:   eigen,
		Normalized:    normalized,
	}, nil
}

func shortRunNames(names, exogNames []string, laggedDiffs int, deterministic string) []string {
	var out []string
	for l := 1; l <= laggedDiffs; l++ {
		for _, name := range names {
			out = append(out, fmt.Sprintf("L%d.%s", l, name))
		}
	}
	if deterministic == DetConstOutside {
		out = append(out, "const")
	}
	return append(out, exogNames...)
}

// CointegratingVector returns the first cointegrating vector over the
// endogenous variables, normalized on the first one as [1, -β₁/β₀, ...].
// It fails when |β₀| is too small to divide by.
func (f *VECMFit) CointegratingVector() ([]float64, error) {
	k := len(f.Names)
	b0 := f.Beta.At(0, 0)
	if math.Abs(b0) <= 1e-6 {
		return nil, apperrors.NewExtractionError("normalization failed", nil).WithContext("beta_0", b0)
	}
	out := make([]float64, k)
	out[0] = 1
	for i := 1; i < k; i++ {
		out[i] = -f.Beta.At(i, 0) / b0
	}
	return out, nil
}

func finiteMatrix(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !numeric.IsFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}
