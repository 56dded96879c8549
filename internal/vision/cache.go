package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// CachingEmbedder wraps an Embedder with an LRU keyed by image digest, a
// singleflight group so concurrent probes of the same frame hit the sidecar
// once, and a rate limiter protecting the inference service. The same camera
// frame is commonly submitted several times in a row (enroll then resolve),
// so the cache pays for itself quickly.
type CachingEmbedder struct {
	inner     Embedder
	cache     *lru.Cache[string, []float32]
	loadGroup singleflight.Group
	limiter   *rate.Limiter
}

// NewCachingEmbedder creates the decorator. limiter may be nil (no limiting).
func NewCachingEmbedder(inner Embedder, size int, limiter *rate.Limiter) (*CachingEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachingEmbedder{
		inner:   inner,
		cache:   cache,
		limiter: limiter,
	}, nil
}

// EmbedFace returns the cached vector for the image digest or loads it once.
func (c *CachingEmbedder) EmbedFace(ctx context.Context, image []byte) ([]float32, error) {
	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	val, err, _ := c.loadGroup.Do(key, func() (any, error) {
		if c.limiter != nil {
			if waitErr := c.limiter.Wait(ctx); waitErr != nil {
				return nil, fmt.Errorf("embedder rate limit: %w", waitErr)
			}
		}

		vec, loadErr := c.inner.EmbedFace(ctx, image)
		if loadErr != nil {
			//nolint:wrapcheck // keep sentinel errors (e.g. no face) matchable by callers
			return nil, loadErr
		}

		c.cache.Add(key, vec)

		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	return val.([]float32), nil
}

var _ Embedder = (*CachingEmbedder)(nil)
