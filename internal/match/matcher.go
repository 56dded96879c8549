// Package match implements nearest-identity resolution over enrolled face embeddings.
package match

import (
	"math"

	"github.com/gatewise/gatehub/internal/gateerrors"
	"github.com/gatewise/gatehub/internal/models"
	"github.com/gatewise/gatehub/pkg/embeddings"
)

// DefaultThreshold is the L2 distance below which a probe counts as a match.
const DefaultThreshold = 0.8

// Result is the outcome of a nearest-identity scan. Best is nil when no
// candidate fell strictly below the threshold; Distance always carries the
// minimum distance seen (useful for diagnostics even on a miss).
type Result struct {
	Best     *models.Identity
	Distance float64
}

// FindBestMatch scans candidates linearly and returns the enrolled identity
// closest to probe by Euclidean distance, gated by threshold (strict: a
// candidate at exactly threshold does not match). Ties are broken by the
// first candidate encountered in iteration order, so a stable candidate
// ordering gives deterministic results.
//
// The scan is O(n*d); the candidate set is enrollment-sized, not
// request-volume-sized, so a linear pass is deliberate. Any replacement
// (e.g. an approximate index) must preserve the strict threshold gate.
func FindBestMatch(probe []float32, candidates []models.Identity, threshold float64) (Result, error) {
	res := Result{Distance: math.Inf(1)}

	for i := range candidates {
		if len(candidates[i].Embedding) != len(probe) {
			return Result{}, gateerrors.NewDimensionMismatchError(len(candidates[i].Embedding), len(probe))
		}

		d := embeddings.L2Distance(probe, candidates[i].Embedding)
		if d < res.Distance {
			res.Distance = d
			res.Best = &candidates[i]
		}
	}

	if res.Best != nil && res.Distance >= threshold {
		res.Best = nil
	}

	return res, nil
}
