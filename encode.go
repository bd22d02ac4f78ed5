package mfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// buildBasisMatrix evaluates the (possibly rational, ignoring weights
// here) basis functions of dimension dim at every value of params against
// tensor t's own knot range, returning an len(params) x t.nctrlPts[dim]
// matrix.
func (m *Model) buildBasisMatrix(dim int, t *TensorProduct, params []float64) (*mat.Dense, error) {
	kv := &m.tmesh.knots[dim]
	p := m.p[dim]
	n := t.nctrlPts[dim]
	N := mat.NewDense(len(params), n, nil)
	row := make([]float64, p+1)
	for i, u := range params {
		span, err := m.tmesh.findSpanTensor(dim, u, t)
		if err != nil {
			return nil, err
		}
		tensorBasisFuns(kv, p, u, span, t.level, row)
		local := span - p - t.knotMins[dim]
		for j := 0; j <= p; j++ {
			col := local + j
			if col >= 0 && col < n {
				N.Set(i, col, row[j])
			}
		}
	}
	return N, nil
}

// solveLSDimension solves the per-line least-squares fit along dim: for
// every line of buf (shape given by shape, dim varying), it finds ctrl
// minimizing ||N*ctrl - RHS||, via the normal equations NᵀN ctrl = NᵀRHS
// (Piegl & Tiller §9.4.3 CtrlCurve, generalized to n-D by sweeping one
// dimension at a time with double-buffered intermediate slabs). The
// curves are independent of one another, so they are solved across up to
// workers goroutines (section 5's "encoding a dimension" parallel
// region); each goroutine gets its own RHS/NtRHS/ctrl scratch rather than
// sharing the outer loop's.
func solveLSDimension(N *mat.Dense, buf *mat.Dense, shape []int, dim, workers int) (*mat.Dense, []int, error) {
	_, outDim := buf.Dims()
	nIn, nOut := N.Dims()

	var chol mat.Cholesky
	sym := toSym(NtN(N))
	ok := chol.Factorize(sym)
	var symInv mat.Dense
	if !ok {
		if err := symInv.Inverse(sym); err != nil {
			return nil, nil, fmt.Errorf("mfa: solveLSDimension: %w", err)
		}
	}

	newShape := append([]int{}, shape...)
	newShape[dim] = nOut
	newTotal := 1
	for _, s := range newShape {
		newTotal *= s
	}
	newBuf := mat.NewDense(newTotal, outDim, nil)

	lines := enumerateLines(shape, dim)
	var firstErr error
	forEach(len(lines), workers, func(li int) {
		fixed := lines[li]
		idx := append([]int{}, fixed...)
		rhs := mat.NewDense(nIn, outDim, nil)
		for i := 0; i < nIn; i++ {
			idx[dim] = i
			rhs.SetRow(i, buf.RawRowView(linearIndex(idx, shape)))
		}
		var NtRHS, ctrl mat.Dense
		NtRHS.Mul(N.T(), rhs)
		if ok {
			if err := chol.SolveTo(&ctrl, &NtRHS); err != nil {
				firstErr = fmt.Errorf("mfa: solveLSDimension: %w", err)
				return
			}
		} else {
			ctrl.Mul(&symInv, &NtRHS)
		}
		for i := 0; i < nOut; i++ {
			idx[dim] = i
			newBuf.SetRow(linearIndex(idx, newShape), ctrl.RawRowView(i))
		}
	})
	if firstErr != nil {
		return nil, nil, firstErr
	}
	return newBuf, newShape, nil
}

// toSym packs the (already symmetric) product matrix ntn into a
// mat.SymDense suitable for Cholesky factorization.
func toSym(ntn *mat.Dense) *mat.SymDense {
	n, _ := ntn.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, ntn.At(i, j))
		}
	}
	return sym
}

// sliceCols extracts columns [lo, hi] of src into a new matrix.
func sliceCols(src *mat.Dense, lo, hi int) *mat.Dense {
	rows, _ := src.Dims()
	width := hi - lo + 1
	out := mat.NewDense(rows, width, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < width; c++ {
			out.Set(r, c, src.At(r, lo+c))
		}
	}
	return out
}

// applyBasisDimension evaluates N against every line of ctrl along dim,
// used by the decoder's fold to contract a tensor's control points
// against a basis row one dimension at a time.
func applyBasisDimension(N *mat.Dense, ctrl *mat.Dense, shape []int, dim int) (*mat.Dense, []int) {
	_, outDim := ctrl.Dims()
	nIn, nCtrl := N.Dims()

	newShape := append([]int{}, shape...)
	newShape[dim] = nIn
	newTotal := 1
	for _, s := range newShape {
		newTotal *= s
	}
	newBuf := mat.NewDense(newTotal, outDim, nil)

	line := mat.NewDense(nCtrl, outDim, nil)
	var out mat.Dense
	lineIterate(shape, dim, func(fixed []int) {
		idx := append([]int{}, fixed...)
		for i := 0; i < nCtrl; i++ {
			idx[dim] = i
			line.SetRow(i, ctrl.RawRowView(linearIndex(idx, shape)))
		}
		out.Mul(N, line)
		for i := 0; i < nIn; i++ {
			idx[dim] = i
			newBuf.SetRow(linearIndex(idx, newShape), out.RawRowView(i))
		}
	})
	return newBuf, newShape
}

// FixedEncode fits the model's single tensor to ps by separable
// least-squares, one domain dimension at a time, then (unless the model
// was built with WithNoWeights) solves and applies rational weights for
// the last dimension via SolveWeights.
func (m *Model) FixedEncode(ps *PointSet) error {
	if !ps.Structured() {
		return fmt.Errorf("mfa: FixedEncode: %w", ErrUnstructuredInput)
	}
	if ps.domDim != m.domDim {
		return fmt.Errorf("mfa: FixedEncode: %w", ErrDimMismatch)
	}
	shape := ps.NDomPts()
	total := ps.NPoints()
	outDim := m.maxDim - m.minDim + 1

	buf := mat.NewDense(total, outDim, nil)
	for r := 0; r < total; r++ {
		for c := 0; c < outDim; c++ {
			buf.Set(r, c, ps.domain.At(r, m.minDim+c))
		}
	}

	t := m.firstTensor()
	Ns := make([]*mat.Dense, m.domDim)
	var preLastBuf *mat.Dense
	var preLastShape []int

	for k := 0; k < m.domDim; k++ {
		N, err := m.buildBasisMatrix(k, t, ps.dimParams(k).values)
		if err != nil {
			return err
		}
		Ns[k] = N
		if k == m.domDim-1 {
			preLastBuf, preLastShape = buf, append([]int{}, shape...)
		}
		buf, shape, err = solveLSDimension(N, buf, shape, k, m.workers)
		if err != nil {
			return err
		}
	}

	t.ctrlPts = buf
	t.weights = oneFilled(t.TotCtrlPts())

	if !m.noWeights {
		if err := m.solveAndApplyWeights(t, Ns[m.domDim-1], preLastBuf, preLastShape); err != nil {
			return err
		}
	}

	m.encoded = true
	return nil
}

// solveAndApplyWeights solves per-curve rational weights for the last
// domain dimension and refits that dimension's control points against
// the resulting rational basis, one curve at a time (Ma & Kruth weight
// solve plus CtrlCurve re-solve, per spec.md §4.E and
// _examples/original_source/include/mfa/encode.hpp's CtrlCurve/Weights
// pair). N is the (unweighted) basis matrix for the last dimension,
// shared by every curve since all curves share the same parameterization
// in that dimension. preLastBuf/preLastShape is the intermediate buffer
// the unweighted separable sweep read its RHS from for the last
// dimension, which doubles as the diagonal Q of Ma & Kruth's weight
// eigenproblem: Q(i, pt_dim-1) in the original is exactly
// preLastBuf's range column for that curve's i-th input point, not a
// residual against the final fit.
//
// There are Π_{j<last} nctrl_pts[j] independent curves along the last
// dimension; each gets its own solved weight vector and its own
// rationalized refit, run in parallel via forEach (section 5's
// "encoding a dimension" region also covers this per-curve weight
// solve).
func (m *Model) solveAndApplyWeights(t *TensorProduct, N *mat.Dense, preLastBuf *mat.Dense, preLastShape []int) error {
	last := m.domDim - 1
	nIn, nOut := N.Dims()
	outDim := m.maxDim - m.minDim + 1
	rangeCol := outDim - 1

	domainLo, domainHi := 0, rangeCol-1
	hasDomainCols := !m.weighAllDims && domainHi >= domainLo
	rangeLo, rangeHi := rangeCol, rangeCol
	if m.weighAllDims {
		rangeLo = 0
	}

	finalShape := append([]int{}, preLastShape...)
	finalShape[last] = nOut
	finalTotal := 1
	for _, s := range finalShape {
		finalTotal *= s
	}
	finalBuf := mat.NewDense(finalTotal, outDim, nil)
	fullWeights := make([]float64, finalTotal)

	plainSym := toSym(NtN(N))
	var plainChol mat.Cholesky
	plainOK := plainChol.Factorize(plainSym)
	var plainInv mat.Dense
	if !plainOK && hasDomainCols {
		if err := plainInv.Inverse(plainSym); err != nil {
			return fmt.Errorf("mfa: solveAndApplyWeights: %w", err)
		}
	}

	lines := enumerateLines(preLastShape, last)
	var firstErr error
	forEach(len(lines), m.workers, func(li int) {
		if firstErr != nil {
			return
		}
		fixed := lines[li]
		idx := append([]int{}, fixed...)

		rhs := mat.NewDense(nIn, outDim, nil)
		q := make([]float64, nIn)
		for i := 0; i < nIn; i++ {
			idx[last] = i
			row := preLastBuf.RawRowView(linearIndex(idx, preLastShape))
			rhs.SetRow(i, row)
			q[i] = row[rangeCol]
		}

		weights, err := SolveWeights(N, q, m.logger)
		if err != nil {
			firstErr = err
			return
		}
		Nrat, _ := Rationalize(N, weights, m.logger)

		var NtRHS mat.Dense
		NtRHS.Mul(N.T(), rhs)

		ratSym := toSym(NtN(Nrat))
		var ratChol mat.Cholesky
		ratOK := ratChol.Factorize(ratSym)

		ctrl := mat.NewDense(nOut, outDim, nil)

		if hasDomainCols {
			domainRHS := sliceCols(&NtRHS, domainLo, domainHi)
			var domainCtrl mat.Dense
			if plainOK {
				if err := plainChol.SolveTo(&domainCtrl, domainRHS); err != nil {
					firstErr = fmt.Errorf("mfa: solveAndApplyWeights: %w", err)
					return
				}
			} else {
				domainCtrl.Mul(&plainInv, domainRHS)
			}
			for r := 0; r < nOut; r++ {
				for c := domainLo; c <= domainHi; c++ {
					ctrl.Set(r, c, domainCtrl.At(r, c-domainLo))
				}
			}
		}

		rangeRHS := sliceCols(&NtRHS, rangeLo, rangeHi)
		var rangeCtrl mat.Dense
		if ratOK {
			if err := ratChol.SolveTo(&rangeCtrl, rangeRHS); err != nil {
				firstErr = fmt.Errorf("mfa: solveAndApplyWeights: %w", err)
				return
			}
		} else {
			var ratInv mat.Dense
			if err := ratInv.Inverse(ratSym); err != nil {
				firstErr = fmt.Errorf("mfa: solveAndApplyWeights: %w", err)
				return
			}
			rangeCtrl.Mul(&ratInv, rangeRHS)
		}
		for r := 0; r < nOut; r++ {
			for c := rangeLo; c <= rangeHi; c++ {
				ctrl.Set(r, c, rangeCtrl.At(r, c-rangeLo))
			}
		}

		for i := 0; i < nOut; i++ {
			idx[last] = i
			lin := linearIndex(idx, finalShape)
			finalBuf.SetRow(lin, ctrl.RawRowView(i))
			fullWeights[lin] = weights[i]
		}
	})
	if firstErr != nil {
		return firstErr
	}

	t.ctrlPts = finalBuf
	t.weights = fullWeights
	return nil
}

// AdaptiveEncode repeatedly fits the model and asks the adaptive refiner
// to locate and split spans whose local error exceeds maxErr, stopping
// when no spans need splitting, the compression limit is hit, or
// WithMaxRounds is reached.
func (m *Model) AdaptiveEncode(ps *PointSet, maxErr float64) (RefineResult, error) {
	round := 0
	for {
		if err := m.FixedEncode(ps); err != nil {
			return RefineConverged, err
		}
		result, err := m.refineOnce(ps, maxErr)
		if err != nil {
			return RefineConverged, err
		}
		if result != RefineSplit {
			return result, nil
		}
		round++
		if m.maxRounds > 0 && round >= m.maxRounds {
			return RefineConverged, nil
		}
	}
}
