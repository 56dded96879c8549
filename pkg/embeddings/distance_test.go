package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2Distance(t *testing.T) {
	t.Run("identical vectors have zero distance", func(t *testing.T) {
		v := []float32{0.5, -0.25, 1}
		assert.InDelta(t, 0, L2Distance(v, v), 1e-9)
	})

	t.Run("unit axis vectors", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{0, 1}
		assert.InDelta(t, 1.4142135623730951, L2Distance(a, b), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := []float32{0.1, 0.2, 0.3}
		b := []float32{-0.4, 0.5, 0.6}
		assert.InDelta(t, L2Distance(a, b), L2Distance(b, a), 1e-12)
	})
}

func TestNormalizeL2(t *testing.T) {
	t.Run("normalizes to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		NormalizeL2(v)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := []float32{0, 0, 0}
		NormalizeL2(v)
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}
