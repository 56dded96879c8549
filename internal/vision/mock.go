package vision

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/gatewise/gatehub/pkg/embeddings"
)

// MockEmbedder implements Embedder for testing purposes. It generates
// deterministic unit-length embeddings from the image bytes, so the same
// image always maps to the same vector and distinct images land far apart.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a mock embedder with the default 512 dimensions
// (matching the production face embedding model).
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dimensions: 512}
}

// NewMockEmbedderWithDimensions creates a mock embedder with custom dimensions.
func NewMockEmbedderWithDimensions(dimensions int) *MockEmbedder {
	return &MockEmbedder{dimensions: dimensions}
}

// EmbedFace generates a deterministic embedding from the image hash.
func (m *MockEmbedder) EmbedFace(_ context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image cannot be empty")
	}

	hash := sha256.Sum256(image)
	vec := make([]float32, m.dimensions)

	for i := range m.dimensions {
		// Cycle the hash bytes into floats in [-1, 1]
		vec[i] = (float32(hash[i%len(hash)]) / 127.5) - 1.0
	}

	embeddings.NormalizeL2(vec)

	return vec, nil
}

var _ Embedder = (*MockEmbedder)(nil)
