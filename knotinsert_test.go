package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBoehmInsertCurvePreservesCurveValues(t *testing.T) {
	p := 2
	U := uniformClampedKnots(p, 4)
	ctrl := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 1,
		2, 0,
		3, 1,
	})
	weights := []float64{1, 1, 1, 1}
	hom := toHomogeneous(ctrl, weights)

	insert := boehmInsertCurve(U, p, hom)
	newU, newHom, err := insert(0.37)
	require.NoError(t, err)

	assert.Equal(t, len(U)+1, len(newU))
	newCtrl, newWeights := fromHomogeneous(newHom)
	assert.Equal(t, 5, newCtrl.RawMatrix().Rows)

	for _, u := range []float64{0, 0.1, 0.9, 1.0} {
		span := FindSpan(U, p, 4, u)
		before := BasisFuns(U, p, u, span)
		beforeVal := [2]float64{}
		for j := range before {
			beforeVal[0] += before[j] * ctrl.At(span-p+j, 0) * weights[span-p+j]
			beforeVal[1] += before[j] * ctrl.At(span-p+j, 1) * weights[span-p+j]
		}

		spanAfter := FindSpan(newU, p, 5, u)
		after := BasisFuns(newU, p, u, spanAfter)
		afterVal := [2]float64{}
		for j := range after {
			afterVal[0] += after[j] * newCtrl.At(spanAfter-p+j, 0) * newWeights[spanAfter-p+j]
			afterVal[1] += after[j] * newCtrl.At(spanAfter-p+j, 1) * newWeights[spanAfter-p+j]
		}
		assert.InDeltaf(t, beforeVal[0], afterVal[0], 1e-9, "curve value preserved at u=%v", u)
		assert.InDeltaf(t, beforeVal[1], afterVal[1], 1e-9, "curve value preserved at u=%v", u)
	}
}

func TestBoehmInsertCurveRejectsDuplicateKnot(t *testing.T) {
	p := 2
	U := uniformClampedKnots(p, 4)
	ctrl := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	hom := toHomogeneous(ctrl, []float64{1, 1, 1, 1})

	insert := boehmInsertCurve(U, p, hom)
	_, _, err := insert(U[p])
	assert.ErrorIs(t, err, ErrDuplicateKnot)
}

func TestInsertKnotGrowsTensorControlCount(t *testing.T) {
	m, err := NewModel(Degree{3}, []int{6}, 1, 1, WithNoWeights())
	require.NoError(t, err)
	t_ := m.firstTensor()
	before := t_.TotCtrlPts()

	require.NoError(t, m.tmesh.InsertKnot(t_, 0, 0.23))
	assert.Equal(t, before+1, t_.TotCtrlPts())
}
