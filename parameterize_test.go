package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformParamsEndpoints(t *testing.T) {
	vals := uniformParams(5)
	require.Len(t, vals, 5)
	assert.Equal(t, 0.0, vals[0])
	assert.Equal(t, 1.0, vals[4])
	assert.InDelta(t, 0.5, vals[2], 1e-12)
}

func TestUniformParamsSinglePoint(t *testing.T) {
	vals := uniformParams(1)
	assert.Equal(t, []float64{0}, vals)
}

func TestLinearIndexRoundTrip(t *testing.T) {
	shape := []int{3, 4, 2}
	for lin := 0; lin < 24; lin++ {
		idx := multiIndex(lin, shape)
		assert.Equal(t, lin, linearIndex(idx, shape))
	}
}

func TestLineIterateVisitsEveryOtherDimsCombination(t *testing.T) {
	shape := []int{2, 3}
	count := 0
	lineIterate(shape, 0, func(fixed []int) { count++ })
	assert.Equal(t, 3, count)

	count = 0
	lineIterate(shape, 1, func(fixed []int) { count++ })
	assert.Equal(t, 2, count)
}
