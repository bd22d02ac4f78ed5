package mfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// decoder evaluates a Model's tensor(s) at arbitrary parameter values. It
// holds no per-call state of its own.
type decoder struct {
	m *Model
}

func newDecoder(m *Model) *decoder { return &decoder{m: m} }

// FastDecodeInfo is scratch space sized for the degree vector and passed to
// fastGrad. DecodeGradient allocates a new one on every call, and fastGrad
// does not read it: its basis rows are allocated per call.
type FastDecodeInfo struct {
	nders int
	bfi   *BasisFunInfo
}

func newFastDecodeInfo(m *Model, nders int) *FastDecodeInfo {
	return &FastDecodeInfo{nders: nders, bfi: newBasisFunInfo(m.p)}
}

// basisRowsFor returns, for every domain dimension, a full-width row
// (length t.nctrlPts[k], zero outside the locally non-zero window) of
// basis values or, where derivs requests it, the derivs[k]-th derivative.
func (d *decoder) basisRowsFor(t *TensorProduct, param []float64, derivs []int) ([][]float64, error) {
	m := d.m
	rows := make([][]float64, m.domDim)
	for k := 0; k < m.domDim; k++ {
		kv := &m.tmesh.knots[k]
		p := m.p[k]
		span, err := m.tmesh.findSpanTensor(k, param[k], t)
		if err != nil {
			return nil, err
		}
		row := make([]float64, t.nctrlPts[k])
		local := span - p - t.knotMins[k]
		order := 0
		if derivs != nil {
			order = derivs[k]
		}
		if order == 0 {
			vals := make([]float64, p+1)
			tensorBasisFuns(kv, p, param[k], span, t.level, vals)
			for j := 0; j <= p; j++ {
				if c := local + j; c >= 0 && c < len(row) {
					row[c] = vals[j]
				}
			}
		} else {
			D := DerBasisFuns(kv.knots, p, param[k], span, order)
			for j := 0; j <= p; j++ {
				if c := local + j; c >= 0 && c < len(row) {
					row[c] = D[order][j]
				}
			}
		}
		rows[k] = row
	}
	return rows, nil
}

// derBasisRow returns both the value row and the first-derivative row for
// dimension k of tensor t at u.
func (d *decoder) derBasisRow(t *TensorProduct, k int, u float64) ([2][]float64, error) {
	m := d.m
	kv := &m.tmesh.knots[k]
	p := m.p[k]
	span, err := m.tmesh.findSpanTensor(k, u, t)
	if err != nil {
		return [2][]float64{}, err
	}
	D := DerBasisFuns(kv.knots, p, u, span, 1)
	local := span - p - t.knotMins[k]
	var out [2][]float64
	out[0] = make([]float64, t.nctrlPts[k])
	out[1] = make([]float64, t.nctrlPts[k])
	for j := 0; j <= p; j++ {
		if c := local + j; c >= 0 && c < t.nctrlPts[k] {
			out[0][c] = D[0][j]
			out[1][c] = D[1][j]
		}
	}
	return out, nil
}

// fold contracts ctrl (shape-flattened, row-major dim 0 fastest) against
// one basis row per dimension, collapsing every dimension via an n-mode
// tensor-vector product (Piegl & Tiller's VolPt generalized by folding
// one dimension into the next rather than building the full tensor
// product explicitly).
func (d *decoder) fold(ctrl *mat.Dense, shape []int, basisRows [][]float64) []float64 {
	cur, curShape := ctrl, shape
	for k := 0; k < len(basisRows); k++ {
		N := mat.NewDense(1, len(basisRows[k]), basisRows[k])
		cur, curShape = applyBasisDimension(N, cur, curShape, k)
	}
	return append([]float64{}, cur.RawRowView(0)...)
}

// volPt evaluates tensor t at param, returning the rational value and its
// denominator (sum of weighted basis values). derivs, if non-nil, gives
// the derivative order to take in each dimension; for a weighted tensor
// this mixes numerator and denominator derivatives by direct ratio rather
// than the full NURBS quotient rule, which is exact only at derivs-order
// zero or for an unweighted (NoWeights) tensor.
func (d *decoder) volPt(param []float64, t *TensorProduct, derivs []int) ([]float64, float64, error) {
	basisRows, err := d.basisRowsFor(t, param, derivs)
	if err != nil {
		return nil, 0, err
	}
	_, outDim := t.ctrlPts.Dims()
	tot := t.TotCtrlPts()

	// Without WithWeighAllDims only the last (range) column is rational;
	// the other columns are plain B-spline sums.
	rational := func(c int) bool { return d.m.weighAllDims || c == outDim-1 }
	hom := mat.NewDense(tot, outDim, nil)
	wcol := mat.NewDense(tot, 1, nil)
	for r := 0; r < tot; r++ {
		w := t.weights[r]
		if IsNAW(w) {
			continue
		}
		for c := 0; c < outDim; c++ {
			if rational(c) {
				hom.Set(r, c, t.ctrlPts.At(r, c)*w)
			} else {
				hom.Set(r, c, t.ctrlPts.At(r, c))
			}
		}
		wcol.Set(r, 0, w)
	}

	numer := d.fold(hom, t.NCtrlPts(), basisRows)
	denomRow := d.fold(wcol, t.NCtrlPts(), basisRows)
	denom := denomRow[0]
	if denom == 0 {
		d.m.logger.Warnf("mfa: volPt: zero rational denominator, falling back to 1")
		denom = 1
	}
	val := make([]float64, outDim)
	for c := 0; c < outDim; c++ {
		if rational(c) {
			val[c] = numer[c] / denom
		} else {
			val[c] = numer[c]
		}
	}
	return val, denom, nil
}

// fastGrad evaluates tensor t's value and full gradient at param in one
// pass. Requires NoWeights (weights all 1) so the numerator/denominator
// split of volPt is unnecessary. For each gradient row g it builds an
// alias table selecting, per dimension k, the derivative row if k == g
// and the value row otherwise, so the hot fold loop never branches on
// which dimension is being differentiated.
func (d *decoder) fastGrad(param []float64, fdi *FastDecodeInfo, t *TensorProduct) ([]float64, *mat.Dense, error) {
	m := d.m
	_, outDim := t.ctrlPts.Dims()

	valRows := make([][]float64, m.domDim)
	derRows := make([][]float64, m.domDim)
	for k := 0; k < m.domDim; k++ {
		rows, err := d.derBasisRow(t, k, param[k])
		if err != nil {
			return nil, nil, err
		}
		valRows[k] = rows[0]
		derRows[k] = rows[1]
	}

	val := d.fold(t.ctrlPts, t.NCtrlPts(), valRows)

	grad := mat.NewDense(m.domDim, outDim, nil)
	for g := 0; g < m.domDim; g++ {
		M := make([][]float64, m.domDim)
		for k := 0; k < m.domDim; k++ {
			if k == g {
				M[k] = derRows[k]
			} else {
				M[k] = valRows[k]
			}
		}
		grad.SetRow(g, d.fold(t.ctrlPts, t.NCtrlPts(), M))
	}
	return val, grad, nil
}

// tmeshVolPt evaluates a T-mesh model at param by summing the
// contribution of every tensor whose knot range covers param, weighting
// each control point whose anchor is in the set anchorsAt returns by its
// basis value, and rationalizing the combined sum. Basis values come from
// OneBasisFunIdx on the dimension's global knot vector, knots of every
// level included; no per-tensor level filtering is applied.
func (d *decoder) tmeshVolPt(param []float64) ([]float64, error) {
	tm := d.m.tmesh
	anchors, err := tm.anchorsAt(param)
	if err != nil {
		return nil, err
	}
	outDim := tm.maxDim() - tm.minDim() + 1
	if outDim < 1 {
		outDim = 1
	}
	numer := make([]float64, outDim)
	denom := 0.0

	for _, t := range tm.tensors {
		inRange := true
		for k := 0; k < tm.dim; k++ {
			if param[k] < tm.knots[k].knots[t.knotMins[k]] || param[k] > tm.knots[k].knots[t.knotMaxs[k]] {
				inRange = false
				break
			}
		}
		if !inRange {
			continue
		}

		tot := t.TotCtrlPts()
		for lin := 0; lin < tot; lin++ {
			w := t.weights[lin]
			if IsNAW(w) {
				continue
			}
			ijk := multiIndex(lin, t.nctrlPts)
			anchor := tm.ctrlPtAnchor(t, ijk)
			match := true
			for k := 0; k < tm.dim; k++ {
				if !inAnchors(anchor[k], anchors[k]) {
					match = false
					break
				}
			}
			if !match {
				continue
			}

			basisVal := 1.0
			for k := 0; k < tm.dim; k++ {
				kv := &tm.knots[k]
				i := ijk[k] + t.knotMins[k]
				basisVal *= OneBasisFunIdx(kv.knots, tm.p[k], i, param[k])
			}
			if basisVal == 0 {
				continue
			}
			wv := w * basisVal
			denom += wv
			for c := 0; c < outDim; c++ {
				numer[c] += wv * t.ctrlPts.At(lin, c)
			}
		}
	}

	if denom == 0 {
		d.m.logger.Warnf("mfa: tmeshVolPt: zero rational denominator, falling back to 1")
		denom = 1
	}
	val := make([]float64, outDim)
	for c := 0; c < outDim; c++ {
		val[c] = numer[c] / denom
	}
	return val, nil
}

// decodePointSet evaluates the model at every parameter of ps, returning
// one row per sample restricted to absolute output columns [minDim,
// maxDim] (a sub-range of the model's own [MinDim, MaxDim]). savedBasis
// is accepted for interface symmetry with the reference design; this
// implementation always recomputes basis rows per point since a
// structured point set's per-dimension reuse is already captured by
// FixedEncode's separable solve, not by decoding.
func (d *decoder) decodePointSet(ps *PointSet, minDim, maxDim int, savedBasis bool, derivs []int) (*mat.Dense, error) {
	m := d.m
	if minDim < m.minDim || maxDim > m.maxDim || maxDim < minDim {
		return nil, fmt.Errorf("mfa: decodePointSet: %w", ErrDimMismatch)
	}
	n := ps.NPoints()
	width := maxDim - minDim + 1
	out := mat.NewDense(n, width, nil)

	var firstErr error
	forEach(n, m.workers, func(i int) {
		param, err := ps.paramAt(i)
		if err != nil {
			firstErr = err
			return
		}
		var row []float64
		if m.useTmesh {
			row, err = d.tmeshVolPt(param)
		} else {
			row, _, err = d.volPt(param, m.firstTensor(), derivs)
		}
		if err != nil {
			firstErr = err
			return
		}
		out.SetRow(i, row[minDim-m.minDim:maxDim-m.minDim+1])
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
