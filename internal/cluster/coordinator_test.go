package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2NormalizeFloat64_ProducesUnitVector(t *testing.T) {
	v := l2NormalizeFloat64([]float64{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-9)
	assert.InDelta(t, 0.8, v[1], 1e-9)
}

func TestL2NormalizeFloat64_ZeroVectorUnchanged(t *testing.T) {
	v := l2NormalizeFloat64([]float64{0, 0, 0})
	assert.Equal(t, []float64{0, 0, 0}, v)
}

func TestCosineToCentroid_ClampedToUnitRange(t *testing.T) {
	assert.Equal(t, 1.0, cosineToCentroid([]float64{1, 0}, []float64{1, 0}))
	assert.Equal(t, 0.0, cosineToCentroid([]float64{1, 0}, []float64{-1, 0}))
	assert.InDelta(t, 0.0, cosineToCentroid([]float64{1, 0}, []float64{0, 1}), 1e-9)
}
