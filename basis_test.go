package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func uniformClampedKnots(p, nctrl int) []float64 {
	length := nctrl + p + 1
	knots := make([]float64, length)
	nInterior := length - 2*(p+1)
	for i := 0; i <= p; i++ {
		knots[i] = 0
		knots[length-1-i] = 1
	}
	if nInterior > 0 {
		step := 1.0 / float64(nInterior+1)
		for i := 0; i < nInterior; i++ {
			knots[p+1+i] = step * float64(i+1)
		}
	}
	return knots
}

func TestFindSpanClampsToLastInterval(t *testing.T) {
	knots := uniformClampedKnots(2, 5)
	span := FindSpan(knots, 2, 5, 1.0)
	assert.Equal(t, 4, span)
}

func TestBasisFunsSumToOne(t *testing.T) {
	p, nctrl := 3, 6
	knots := uniformClampedKnots(p, nctrl)
	for _, u := range []float64{0, 0.1, 0.37, 0.5, 0.81, 0.999, 1.0} {
		span := FindSpan(knots, p, nctrl, u)
		N := BasisFuns(knots, p, u, span)
		require.Len(t, N, p+1)
		sum := 0.0
		for _, v := range N {
			sum += v
		}
		assert.InDeltaf(t, 1.0, sum, 1e-10, "basis partition of unity at u=%v", u)
	}
}

func TestDerBasisFunsMatchesSpecializedFirstDerivative(t *testing.T) {
	p, nctrl := 3, 7
	knots := uniformClampedKnots(p, nctrl)
	u := 0.44
	span := FindSpan(knots, p, nctrl, u)

	general := DerBasisFuns(knots, p, u, span, 2)
	specialized := DerBasisFuns(knots, p, u, span, 1)

	assert.InDeltaSlice(t, general[0], specialized[0], 1e-12)
	assert.InDeltaSlice(t, general[1], specialized[1], 1e-12)
}

func TestOneBasisFunIdxMatchesFastBasisFuns(t *testing.T) {
	p, nctrl := 2, 6
	knots := uniformClampedKnots(p, nctrl)
	u := 0.63
	span := FindSpan(knots, p, nctrl, u)
	N := BasisFuns(knots, p, u, span)

	for j := 0; j <= p; j++ {
		i := span - p + j
		got := OneBasisFunIdx(knots, p, i, u)
		assert.InDeltaf(t, N[j], got, 1e-10, "basis function %d at u=%v", i, u)
	}
}

func TestRationalizeFallsBackOnZeroDenominator(t *testing.T) {
	N := mat.NewDense(1, 2, []float64{0, 0})
	weights := []float64{1, 1}
	var warned bool
	log := loggerFunc(func(string, ...any) { warned = true })

	Nrat, denom := Rationalize(N, weights, log)
	assert.True(t, warned)
	assert.Equal(t, 1.0, denom[0])
	assert.Equal(t, 0.0, Nrat.At(0, 0))
}

type loggerFunc func(format string, args ...any)

func (f loggerFunc) Warnf(format string, args ...any) { f(format, args...) }
