package match

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
)

func identity(name string, vec ...float32) models.Identity {
	return models.Identity{ID: uuid.New(), Name: name, Embedding: vec}
}

func TestFindBestMatch(t *testing.T) {
	t.Run("empty candidate set returns no match", func(t *testing.T) {
		res, err := FindBestMatch([]float32{1, 0}, nil, DefaultThreshold)
		require.NoError(t, err)
		assert.Nil(t, res.Best)
		assert.True(t, res.Distance > 1e9) // +Inf
	})

	t.Run("returns closest candidate under threshold", func(t *testing.T) {
		candidates := []models.Identity{
			identity("far", 1, 1),
			identity("near", 0.1, 0),
			identity("mid", 0.5, 0),
		}

		res, err := FindBestMatch([]float32{0, 0}, candidates, DefaultThreshold)
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.Equal(t, "near", res.Best.Name)
		assert.InDelta(t, 0.1, res.Distance, 1e-6)
	})

	t.Run("distance at exactly threshold is not a match", func(t *testing.T) {
		candidates := []models.Identity{identity("boundary", 0.8, 0)}

		res, err := FindBestMatch([]float32{0, 0}, candidates, 0.8)
		require.NoError(t, err)
		assert.Nil(t, res.Best)
		// distance is still reported for diagnostics
		assert.InDelta(t, 0.8, res.Distance, 1e-6)
	})

	t.Run("distance just under threshold matches", func(t *testing.T) {
		candidates := []models.Identity{identity("inside", 0.79, 0)}

		res, err := FindBestMatch([]float32{0, 0}, candidates, 0.8)
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.Equal(t, "inside", res.Best.Name)
	})

	t.Run("ties break to first in iteration order", func(t *testing.T) {
		candidates := []models.Identity{
			identity("first", 0.3, 0),
			identity("second", 0, 0.3),
		}

		res, err := FindBestMatch([]float32{0, 0}, candidates, DefaultThreshold)
		require.NoError(t, err)
		require.NotNil(t, res.Best)
		assert.Equal(t, "first", res.Best.Name)
	})

	t.Run("mismatched dimensionality fails", func(t *testing.T) {
		candidates := []models.Identity{identity("bad", 0.1, 0.2, 0.3)}

		_, err := FindBestMatch([]float32{0, 0}, candidates, DefaultThreshold)
		require.Error(t, err)
		assert.ErrorIs(t, err, gateerrors.ErrDimensionMismatch)
	})

	t.Run("miss reports the nearest distance", func(t *testing.T) {
		candidates := []models.Identity{
			identity("a", 1.2, 0),
			identity("b", 2, 0),
		}

		res, err := FindBestMatch([]float32{0, 0}, candidates, 0.8)
		require.NoError(t, err)
		assert.Nil(t, res.Best)
		assert.InDelta(t, 1.2, res.Distance, 1e-6)
	})
}
