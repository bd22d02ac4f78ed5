package mfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	weightLowBound  = 1e-3
	weightHighBound = 1.0
)

// SolveWeights computes per-control-point rational weights for the last
// fitted dimension using the Ma & Kruth (1995) eigenproblem: with Q the
// diagonal matrix of the per-sample range values q,
//
//	M = NᵀQ²N - NᵀQN (NᵀN)⁻¹ NᵀQN
//
// a sign-definite eigenvector of the smallest eigenvalue of M gives a
// valid weight vector once scaled so its largest entry is 1. If no
// eigenvector of the first few eigenvalues is sign-definite, a
// bounded-simplex LP search over combinations of those eigenvectors is
// used instead; if that also fails, unit weights are returned and log
// receives a warning (the model degrades to an unweighted, fully
// polynomial B-spline in this dimension).
func SolveWeights(N *mat.Dense, q []float64, log Logger) ([]float64, error) {
	rows, cols := N.Dims()
	if len(q) != rows {
		return nil, fmt.Errorf("mfa: SolveWeights: %w", ErrDimMismatch)
	}

	NtQN := weightedNtN(N, q, 1)
	NtQ2N := weightedNtN(N, q, 2)
	NtNmat := NtN(N)

	var NtNInv mat.Dense
	if err := NtNInv.Inverse(NtNmat); err != nil {
		log.Warnf("mfa: SolveWeights: NtN not invertible, falling back to unit weights: %v", err)
		return oneFilled(cols), nil
	}

	var mid mat.Dense
	mid.Mul(NtQN, &NtNInv)
	var sub mat.Dense
	sub.Mul(&mid, NtQN)

	M := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			v := 0.5 * ((NtQ2N.At(i, j) - sub.At(i, j)) + (NtQ2N.At(j, i) - sub.At(j, i)))
			M.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(M, true); !ok {
		return nil, fmt.Errorf("mfa: SolveWeights: %w", ErrEigenFailed)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := sortedIndices(values)

	maxTry := 4
	if maxTry > cols {
		maxTry = cols
	}
	for i := 0; i < maxTry; i++ {
		col := order[i]
		vec := mat.Col(nil, col, &vectors)
		if w, ok := signDefinite(vec); ok {
			return w, nil
		}
	}

	for k := 2; k <= maxTry; k++ {
		eigVecs := mat.NewDense(cols, k, nil)
		for i := 0; i < k; i++ {
			eigVecs.SetCol(i, mat.Col(nil, order[i], &vectors))
		}
		if w, ok := simplexWeightSearch(eigVecs); ok {
			return w, nil
		}
	}

	log.Warnf("mfa: SolveWeights: no sign-definite or feasible weight vector found, falling back to unit weights")
	return oneFilled(cols), nil
}

// weightedNtN computes Nᵀ diag(q^pow) N.
func weightedNtN(N *mat.Dense, q []float64, pow int) *mat.Dense {
	rows, cols := N.Dims()
	scaled := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		qv := q[r]
		if pow == 2 {
			qv *= qv
		}
		for c := 0; c < cols; c++ {
			scaled.Set(r, c, qv*N.At(r, c))
		}
	}
	out := mat.NewDense(cols, cols, nil)
	out.Mul(N.T(), scaled)
	return out
}

func sortedIndices(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && values[idx[j]] < values[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

// signDefinite reports whether every entry of vec has the same sign
// (allowing zeros), and if so returns it normalized so the largest
// magnitude entry is 1.
func signDefinite(vec []float64) ([]float64, bool) {
	pos, neg := false, false
	maxAbs := 0.0
	for _, v := range vec {
		if v > 0 {
			pos = true
		} else if v < 0 {
			neg = true
		}
		if a := abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	if pos && neg {
		return nil, false
	}
	if maxAbs == 0 {
		return nil, false
	}
	w := make([]float64, len(vec))
	sign := 1.0
	if neg {
		sign = -1.0
	}
	for i, v := range vec {
		w[i] = sign * v / maxAbs
	}
	return w, true
}

// simplexWeightSearch looks for a convex combination of the columns of
// eigVecs (a cols x k matrix) whose entries all lie in
// [weightLowBound, weightHighBound], via a bounded-simplex LP feasibility
// search: alpha_i >= 0, sum(alpha) = 1, and slack variables absorbing the
// two-sided bound on each resulting weight.
func simplexWeightSearch(eigVecs *mat.Dense) ([]float64, bool) {
	rows, k := eigVecs.Dims()
	nVars := k + 2*rows
	nCons := 2*rows + 1

	A := mat.NewDense(nCons, nVars, nil)
	b := make([]float64, nCons)

	for j := 0; j < rows; j++ {
		for i := 0; i < k; i++ {
			A.Set(j, i, eigVecs.At(j, i))
		}
		A.Set(j, k+j, -1)
		b[j] = weightLowBound
	}
	for j := 0; j < rows; j++ {
		row := rows + j
		for i := 0; i < k; i++ {
			A.Set(row, i, -eigVecs.At(j, i))
		}
		A.Set(row, k+rows+j, -1)
		b[row] = -weightHighBound
	}
	for i := 0; i < k; i++ {
		A.Set(2*rows, i, 1)
	}
	b[2*rows] = 1

	c := make([]float64, nVars)

	_, x, err := lp.Simplex(c, A, b, 1e-8, nil)
	if err != nil {
		return nil, false
	}

	alpha := x[:k]
	w := make([]float64, rows)
	for j := 0; j < rows; j++ {
		v := 0.0
		for i := 0; i < k; i++ {
			v += eigVecs.At(j, i) * alpha[i]
		}
		w[j] = v
	}
	return w, true
}
