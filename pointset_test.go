package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewStructuredPointSetRejectsRowCountMismatch(t *testing.T) {
	domain := mat.NewDense(3, 2, nil)
	_, err := NewStructuredPointSet([]int{4}, domain, 1, 1, false)
	assert.ErrorIs(t, err, ErrDimMismatch)
}

func TestCurveParamsIsMonotonicAlongLine(t *testing.T) {
	n := 8
	domain := buildLineDomain(n, func(x float64) float64 { return x * x })
	ps, err := NewStructuredPointSet([]int{n}, domain, 1, 1, true)
	require.NoError(t, err)

	params := ps.dimParams(0).values
	for i := 1; i < n; i++ {
		assert.Greaterf(t, params[i], params[i-1], "chord-length params must be strictly increasing at %d", i)
	}
	assert.Equal(t, 0.0, params[0])
	assert.Equal(t, 1.0, params[n-1])
}

func TestUnstructuredPointSetParamAt(t *testing.T) {
	domain := mat.NewDense(3, 2, []float64{0, 0, 0.5, 1, 1, 4})
	params := [][]float64{{0}, {0.5}, {1}}
	ps, err := NewUnstructuredPointSet(1, params, domain, 1, 1)
	require.NoError(t, err)

	p, err := ps.paramAt(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, p)
}
