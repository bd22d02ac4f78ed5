package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefineOnceSplitsUnderResolvedModel(t *testing.T) {
	n := 40
	domain := buildLineDomain(n, func(x float64) float64 {
		return x*x*x*x - 2*x*x + x
	})

	m, err := NewModel(Degree{3}, []int{4}, 1, 1, WithNoWeights())
	require.NoError(t, err)
	ps, err := NewStructuredPointSet([]int{n}, domain, 1, 1, false)
	require.NoError(t, err)
	require.NoError(t, m.FixedEncode(ps))

	result, err := m.refineOnce(ps, 1e-4)
	require.NoError(t, err)
	assert.Equal(t, RefineSplit, result)
	assert.Equal(t, 5, m.firstTensor().NCtrlPts()[0])
}

func TestAdaptiveEncodeConvergesOrHitsCompressionLimit(t *testing.T) {
	n := 25
	domain := buildLineDomain(n, func(x float64) float64 { return 3*x + 0.5 })

	m, err := NewModel(Degree{2}, []int{3}, 1, 1, WithNoWeights(), WithMaxRounds(10))
	require.NoError(t, err)
	ps, err := NewStructuredPointSet([]int{n}, domain, 1, 1, false)
	require.NoError(t, err)

	result, err := m.AdaptiveEncode(ps, 1e-3)
	require.NoError(t, err)
	assert.Contains(t, []RefineResult{RefineConverged, RefineCompressionLimit}, result)

	for i := 0; i < n; i++ {
		errs, err := m.AbsCoordError(ps, i)
		require.NoError(t, err)
		assert.Lessf(t, errs[0], 0.05, "sample %d absolute error after adaptive encode", i)
	}
}

func TestRefineOnceReportsCompressionLimit(t *testing.T) {
	n := 4
	domain := buildLineDomain(n, func(x float64) float64 { return x })

	m, err := NewModel(Degree{1}, []int{4}, 1, 1, WithNoWeights())
	require.NoError(t, err)
	ps, err := NewStructuredPointSet([]int{n}, domain, 1, 1, false)
	require.NoError(t, err)
	require.NoError(t, m.FixedEncode(ps))

	result, err := m.refineOnce(ps, 1e-12)
	require.NoError(t, err)
	assert.Equal(t, RefineCompressionLimit, result)
}
