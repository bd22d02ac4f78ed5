package mfa

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// toHomogeneous returns the weighted (homogeneous) control points: column
// c of ctrl scaled by weight, with the weight itself appended as the last
// column. Boehm's algorithm is affine-invariant only in this space.
func toHomogeneous(ctrl *mat.Dense, weights []float64) *mat.Dense {
	rows, cols := ctrl.Dims()
	hom := mat.NewDense(rows, cols+1, nil)
	for r := 0; r < rows; r++ {
		w := weights[r]
		for c := 0; c < cols; c++ {
			hom.Set(r, c, ctrl.At(r, c)*w)
		}
		hom.Set(r, cols, w)
	}
	return hom
}

// fromHomogeneous is the inverse of toHomogeneous.
func fromHomogeneous(hom *mat.Dense) (*mat.Dense, []float64) {
	rows, homCols := hom.Dims()
	cols := homCols - 1
	ctrl := mat.NewDense(rows, cols, nil)
	weights := make([]float64, rows)
	for r := 0; r < rows; r++ {
		w := hom.At(r, cols)
		weights[r] = w
		for c := 0; c < cols; c++ {
			ctrl.Set(r, c, hom.At(r, c)/w)
		}
	}
	return ctrl, weights
}

// boehmInsertCurve inserts one new knot u into U (which must not already
// contain u) and returns the refined knot vector and homogeneous control
// points. Curve case of Piegl & Tiller Algorithm 5.1, single insertion
// (new knot, multiplicity 1).
func boehmInsertCurve(U []float64, p int, ctrlHom *mat.Dense) func(u float64) ([]float64, *mat.Dense, error) {
	return func(u float64) ([]float64, *mat.Dense, error) {
		n := ctrlHom.RawMatrix().Rows - 1
		for _, k := range U {
			if k == u {
				return nil, nil, fmt.Errorf("mfa: boehmInsertCurve: %w", ErrDuplicateKnot)
			}
		}
		span := FindSpan(U, p, n+1, u)

		newU := make([]float64, len(U)+1)
		copy(newU, U[:span+1])
		newU[span+1] = u
		copy(newU[span+2:], U[span+1:])

		_, cols := ctrlHom.Dims()
		newCtrl := mat.NewDense(n+2, cols, nil)
		for i := 0; i <= span-p; i++ {
			newCtrl.SetRow(i, ctrlHom.RawRowView(i))
		}
		for i := span + 1; i <= n+1; i++ {
			newCtrl.SetRow(i, ctrlHom.RawRowView(i-1))
		}
		for i := span - p + 1; i <= span; i++ {
			alpha := (u - U[i]) / (U[i+p] - U[i])
			row := make([]float64, cols)
			for c := 0; c < cols; c++ {
				row[c] = alpha*ctrlHom.At(i, c) + (1-alpha)*ctrlHom.At(i-1, c)
			}
			newCtrl.SetRow(i, row)
		}
		return newU, newCtrl, nil
	}
}

// InsertKnotVolume inserts one new knot u into dimension dim of an n-D
// tensor-product control grid, applying Boehm's curve insertion to every
// 1-D line running along dim and leaving every other dimension untouched
// (the separable generalization of Algorithm 5.1 to volumes, Piegl &
// Tiller §5.3). ctrlPts has product(nctrlPts) rows, row-major with
// dimension 0 fastest.
func InsertKnotVolume(U []float64, p int, nctrlPts []int, ctrlPts *mat.Dense, weights []float64, dim int, u float64) ([]float64, []int, *mat.Dense, []float64, error) {
	hom := toHomogeneous(ctrlPts, weights)
	_, homCols := hom.Dims()

	newShape := append([]int{}, nctrlPts...)
	newShape[dim]++
	newTotal := 1
	for _, c := range newShape {
		newTotal *= c
	}
	newHom := mat.NewDense(newTotal, homCols, nil)

	var insertErr error
	n := nctrlPts[dim]
	curve := mat.NewDense(n, homCols, nil)
	insert := boehmInsertCurve(U, p, curve)

	lineIterate(nctrlPts, dim, func(fixed []int) {
		if insertErr != nil {
			return
		}
		idx := append([]int{}, fixed...)
		for i := 0; i < n; i++ {
			idx[dim] = i
			curve.SetRow(i, hom.RawRowView(linearIndex(idx, nctrlPts)))
		}
		_, newCurve, err := insert(u)
		if err != nil {
			insertErr = err
			return
		}
		for i := 0; i < newShape[dim]; i++ {
			idx[dim] = i
			newHom.SetRow(linearIndex(idx, newShape), newCurve.RawRowView(i))
		}
	})
	if insertErr != nil {
		return nil, nil, nil, nil, insertErr
	}

	span := FindSpan(U, p, n, u)
	newU := make([]float64, len(U)+1)
	copy(newU, U[:span+1])
	newU[span+1] = u
	copy(newU[span+2:], U[span+1:])

	newCtrl, newWeights := fromHomogeneous(newHom)
	return newU, newShape, newCtrl, newWeights, nil
}

// insertKnotLevel inserts u into the T-mesh's shared knot vector for
// dimension dim, tagging it with level; the new knot's paramIdx entry is
// set to zero. Rejects exact duplicates of an existing knot value.
func (tm *Tmesh) insertKnotLevel(dim int, u float64, level int) (int, error) {
	kv := &tm.knots[dim]
	idx := sort.SearchFloat64s(kv.knots, u)
	if idx < kv.Len() && kv.knots[idx] == u {
		return 0, fmt.Errorf("mfa: insertKnotLevel: %w", ErrDuplicateKnot)
	}

	newKnots := make([]float64, kv.Len()+1)
	copy(newKnots, kv.knots[:idx])
	newKnots[idx] = u
	copy(newKnots[idx+1:], kv.knots[idx:])

	newLevels := make([]int, len(newKnots))
	copy(newLevels, kv.levels[:idx])
	newLevels[idx] = level
	copy(newLevels[idx+1:], kv.levels[idx:])

	newParamIdx := make([]int, len(newKnots))
	copy(newParamIdx, kv.paramIdx[:idx])
	copy(newParamIdx[idx+1:], kv.paramIdx[idx:])

	kv.knots = newKnots
	kv.levels = newLevels
	kv.paramIdx = newParamIdx
	return idx, nil
}

// InsertKnot refines tensor t by inserting one new knot value u into
// dimension dim: it grows t's own knot range, control points and weights
// via InsertKnotVolume, inserts u into the shared knot vector, and shifts
// the knot-index ranges of every other tensor that lie past the insertion
// point.
func (tm *Tmesh) InsertKnot(t *TensorProduct, dim int, u float64) error {
	kv := &tm.knots[dim]
	localU := kv.knots[t.knotMins[dim] : t.knotMaxs[dim]+1]

	newLocalU, newShape, newCtrl, newWeights, err := InsertKnotVolume(localU, tm.p[dim], t.nctrlPts, t.ctrlPts, t.weights, dim, u)
	if err != nil {
		return err
	}

	globalIdx, err := tm.insertKnotLevel(dim, u, t.level)
	if err != nil {
		return err
	}
	_ = newLocalU // the global vector was already extended by insertKnotLevel

	t.nctrlPts = newShape
	t.ctrlPts = newCtrl
	t.weights = newWeights
	t.knotMaxs[dim]++
	for _, other := range tm.tensors {
		if other == t {
			continue
		}
		if other.knotMins[dim] > globalIdx {
			other.knotMins[dim]++
		}
		if other.knotMaxs[dim] >= globalIdx {
			other.knotMaxs[dim]++
		}
	}
	return nil
}
