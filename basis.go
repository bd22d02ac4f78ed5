package mfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BasisFunInfo is thread-local scratch space for the basis-function and
// derivative recurrences, sized for the largest degree+1 across all
// dimensions so a single instance can be reused across dimensions and
// across calls within one worker.
type BasisFunInfo struct {
	left, right []float64
	ndu         [][]float64
	a           [2][]float64
	qmax        int
}

// newBasisFunInfo allocates scratch space sized for the given degrees.
func newBasisFunInfo(p Degree) *BasisFunInfo {
	qmax := 0
	for _, pk := range p {
		if pk+1 > qmax {
			qmax = pk + 1
		}
	}
	bfi := &BasisFunInfo{qmax: qmax}
	bfi.left = make([]float64, qmax)
	bfi.right = make([]float64, qmax)
	bfi.ndu = make([][]float64, qmax)
	for i := range bfi.ndu {
		bfi.ndu[i] = make([]float64, qmax)
	}
	bfi.a[0] = make([]float64, qmax)
	bfi.a[1] = make([]float64, qmax)
	return bfi
}

// FindSpan returns the span index i such that u is in [knots[i], knots[i+1)),
// clamped to [p, nctrlPts-1]. Algorithm 2.1, Piegl & Tiller p.68.
func FindSpan(knots []float64, p, nctrlPts int, u float64) int {
	if u >= knots[nctrlPts] {
		return nctrlPts - 1
	}
	low, high := p, nctrlPts
	mid := (low + high) / 2
	for u < knots[mid] || u >= knots[mid+1] {
		if u < knots[mid] {
			high = mid
		} else {
			low = mid
		}
		mid = (low + high) / 2
	}
	return mid
}

// findSpanAtLevel is the T-mesh span locator: it finds the ordinary span
// in the full (multi-level) knot vector and then walks leftward until the
// knot at the returned index belongs to a level no finer than level. This
// lets coarse tensors address spans using only their own active knots.
func findSpanAtLevel(kv *KnotVector, p int, u float64, level int) int {
	nctrl := kv.Len() - p - 1
	mid := FindSpan(kv.knots, p, nctrl, u)
	for kv.levels[mid] > level && mid > 0 {
		mid--
	}
	return mid
}

// findSpanTensor locates the span of u in dimension k relative to tensor,
// requiring u to lie within the tensor's own knot range and the returned
// index to belong to the tensor's level.
func (tm *Tmesh) findSpanTensor(k int, u float64, t *TensorProduct) (int, error) {
	kv := &tm.knots[k]
	if u < kv.knots[t.knotMins[k]] || u > kv.knots[t.knotMaxs[k]] {
		return 0, fmt.Errorf("mfa: findSpanTensor: dim %d: %w", k, ErrParamOutOfRange)
	}
	n := t.nctrlPts[k]
	if u >= kv.knots[t.knotMins[k]+n] {
		return t.knotMins[k] + n - 1, nil
	}
	low, high := t.knotMins[k]+tm.p[k], t.knotMins[k]+n
	mid := (low + high) / 2
	for u < kv.knots[mid] || u >= kv.knots[mid+1] {
		if u < kv.knots[mid] {
			high = mid
		} else {
			low = mid
		}
		mid = (low + high) / 2
	}
	for mid > 0 && kv.levels[mid] > t.level {
		mid--
	}
	if kv.levels[mid] != t.level {
		return 0, fmt.Errorf("mfa: findSpanTensor: dim %d: %w", k, ErrLevelMismatch)
	}
	return mid, nil
}

// FastBasisFuns computes the p+1 non-zero basis values at u in the span
// given, writing them in place into N (length p+1). bfi supplies scratch
// left/right vectors so no allocation happens per call. Cox-de Boor
// recurrence, algorithm 2.2 of Piegl & Tiller p.70.
func FastBasisFuns(knots []float64, p int, u float64, span int, N []float64, bfi *BasisFunInfo) {
	N[0] = 1
	for j := 1; j <= p; j++ {
		bfi.left[j] = u - knots[span+1-j]
		bfi.right[j] = knots[span+j] - u
		saved := 0.0
		for r := 0; r < j; r++ {
			temp := N[r] / (bfi.right[r+1] + bfi.left[j-r])
			N[r] = saved + bfi.right[r+1]*temp
			saved = bfi.left[j-r] * temp
		}
		N[j] = saved
	}
}

// BasisFuns is the convenience, allocating form of FastBasisFuns.
func BasisFuns(knots []float64, p int, u float64, span int) []float64 {
	N := make([]float64, p+1)
	bfi := &BasisFunInfo{left: make([]float64, p+1), right: make([]float64, p+1)}
	FastBasisFuns(knots, p, u, span, N, bfi)
	return N
}

// tensorBasisFuns is the T-mesh variant of FastBasisFuns: the left/right
// recurrence increments skip knots whose level does not match the
// tensor's level, so only knots active for that tensor contribute.
func tensorBasisFuns(kv *KnotVector, p int, u float64, span, level int, N []float64) {
	N[0] = 1
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	jLeft, jRight := 1, 1
	for j := 1; j <= p; j++ {
		for kv.levels[span+1-jLeft] != level {
			jLeft++
		}
		left[j] = u - kv.knots[span+1-jLeft]
		for kv.levels[span+jRight] != level {
			jRight++
		}
		right[j] = kv.knots[span+jRight] - u
		jLeft++
		jRight++

		saved := 0.0
		for r := 0; r < j; r++ {
			temp := N[r] / (right[r+1] + left[j-r])
			N[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		N[j] = saved
	}
}

// DerBasisFuns computes the nders+1 rows of basis-function derivatives
// (row 0 = the basis values themselves) at u in span, for the p+1 locally
// non-zero basis functions of degree p. Algorithm 2.3, Piegl & Tiller p.72.
func DerBasisFuns(knots []float64, p int, u float64, span, nders int) [][]float64 {
	if nders == 1 {
		return basisFunsDer1(knots, p, u, span)
	}

	ndu := make([][]float64, p+1)
	for i := range ndu {
		ndu[i] = make([]float64, p+1)
	}
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	ndu[0][0] = 1

	for j := 1; j <= p; j++ {
		left[j] = u - knots[span+1-j]
		right[j] = knots[span+j] - u
		saved := 0.0
		for r := 0; r < j; r++ {
			ndu[j][r] = 1 / (right[r+1] + left[j-r])
			temp := ndu[r][j-1] * ndu[j][r]
			ndu[r][j] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		ndu[j][j] = saved
	}

	D := make([][]float64, nders+1)
	for k := range D {
		D[k] = make([]float64, p+1)
	}
	for j := 0; j <= p; j++ {
		D[0][j] = ndu[j][p]
	}

	a := [2][]float64{make([]float64, p+1), make([]float64, p+1)}
	for r := 0; r <= p; r++ {
		s1, s2 := 0, 1
		a[0][0] = 1
		for k := 1; k <= nders; k++ {
			d := 0.0
			rk := r - k
			pk := p - k
			if r >= k {
				a[s2][0] = a[s1][0] * ndu[pk+1][rk]
				d = a[s2][0] * ndu[rk][pk]
			}
			var j1, j2 int
			if rk >= -1 {
				j1 = 1
			} else {
				j1 = -rk
			}
			if r-1 <= pk {
				j2 = k - 1
			} else {
				j2 = p - r
			}
			for j := j1; j <= j2; j++ {
				a[s2][j] = (a[s1][j] - a[s1][j-1]) * ndu[pk+1][rk+j]
				d += a[s2][j] * ndu[rk+j][pk]
			}
			if r <= pk {
				a[s2][k] = -a[s1][k-1] * ndu[pk+1][r]
				d += a[s2][k] * ndu[r][pk]
			}
			D[k][r] = d
			s1, s2 = s2, s1
		}
	}

	r := p
	for k := 1; k <= nders; k++ {
		for i := 0; i <= p; i++ {
			D[k][i] *= float64(r)
		}
		r *= p - k
	}
	return D
}

// basisFunsDer1 is the specialized, cheaper path for first derivatives only.
func basisFunsDer1(knots []float64, p int, u float64, span int) [][]float64 {
	pk := p - 1
	ndu := make([][]float64, p+1)
	for i := range ndu {
		ndu[i] = make([]float64, p+1)
	}
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	ndu[0][0] = 1

	for j := 1; j <= p; j++ {
		left[j] = u - knots[span+1-j]
		right[j] = knots[span+j] - u
		saved := 0.0
		for r := 0; r < j; r++ {
			ndu[j][r] = 1 / (right[r+1] + left[j-r])
			temp := ndu[r][j-1] * ndu[j][r]
			ndu[r][j] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		ndu[j][j] = saved
	}

	D := [][]float64{make([]float64, p+1), make([]float64, p+1)}
	for j := 0; j <= p; j++ {
		D[0][j] = ndu[j][p]
	}

	D[1][0] = -ndu[0][pk] * ndu[p][0]
	D[1][p] = ndu[p-1][pk] * ndu[p][p-1]
	for r := 1; r < p; r++ {
		D[1][r] = ndu[r-1][pk]*ndu[p][r-1] - ndu[r][pk]*ndu[p][r]
	}
	for i := 0; i <= p; i++ {
		D[1][i] *= float64(p)
	}
	return D
}

// OneBasisFun evaluates a single basis function value at u, given an
// explicit local knot vector of length p+2 (the knots spanning that one
// function's support). Algorithm 2.4, Piegl & Tiller p.74.
func OneBasisFun(p int, u float64, locKnots []float64) float64 {
	N := make([]float64, p+1)
	U := locKnots

	if u == 1.0 {
		edge := true
		for j := 0; j < p+1; j++ {
			if U[1+j] != 1.0 {
				edge = false
				break
			}
		}
		if edge {
			return 1.0
		}
	}

	for j := 0; j <= p; j++ {
		if u >= U[j] && u < U[j+1] {
			N[j] = 1.0
		}
	}
	for k := 1; k <= p; k++ {
		var saved float64
		if N[0] != 0.0 {
			saved = (u - U[0]) * N[0] / (U[k] - U[0])
		}
		for j := 0; j < p-k+1; j++ {
			uleft, uright := U[j+1], U[j+k+1]
			if N[j+1] == 0.0 {
				N[j] = saved
				saved = 0
			} else {
				temp := N[j+1] / (uright - uleft)
				N[j] = saved + (uright-u)*temp
				saved = (u - uleft) * temp
			}
		}
	}
	return N[0]
}

// OneBasisFunIdx evaluates the i-th basis function of degree p at u from
// the global (possibly multi-level, T-mesh) knot vector U directly,
// handling the clamped-endpoint edge cases.
func OneBasisFunIdx(U []float64, p, i int, u float64) float64 {
	if (i == 0 && u == U[0]) || (i == len(U)-p-2 && u == U[len(U)-1]) {
		return 1.0
	}
	if u < U[i] || u >= U[i+p+1] {
		return 0.0
	}
	return OneBasisFun(p, u, U[i:i+p+2])
}

// Rationalize scales each column of N by its control point's weight and
// normalizes each row by the per-row denominator sum(N[r,:] .* w), giving
// the rational (NURBS) basis matrix and its row denominators. A zero
// denominator falls back to 1 (documented numerical policy) and logs a
// warning through log.
func Rationalize(N *mat.Dense, weights []float64, log Logger) (*mat.Dense, []float64) {
	rows, cols := N.Dims()
	denom := make([]float64, rows)
	for r := 0; r < rows; r++ {
		var sum float64
		for c := 0; c < cols; c++ {
			sum += N.At(r, c) * weights[c]
		}
		if sum == 0 {
			log.Warnf("mfa: Rationalize: zero denominator at row %d, falling back to 1", r)
			sum = 1
		}
		denom[r] = sum
	}

	Nrat := mat.NewDense(rows, cols, nil)
	Nrat.Copy(N)
	for c := 0; c < cols; c++ {
		col := make([]float64, rows)
		for r := 0; r < rows; r++ {
			col[r] = Nrat.At(r, c) * weights[c]
		}
		Nrat.SetCol(c, col)
	}
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			row[c] = Nrat.At(r, c) / denom[r]
		}
		Nrat.SetRow(r, row)
	}
	return Nrat, denom
}

// NtN computes NᵀN for a basis matrix N.
func NtN(N *mat.Dense) *mat.Dense {
	_, cols := N.Dims()
	out := mat.NewDense(cols, cols, nil)
	out.Mul(N.T(), N)
	return out
}
