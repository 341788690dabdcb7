// Package hash provides a deterministic, offline embedder.
//
// Vectors are derived from an FNV hash of each word, so texts sharing words
// land close together. It needs no network access, which makes it the default
// for local runs and tests of the semantic tier.
package hash

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultDimensions = 256

// Embedder implements embedder.Provider without any external service.
type Embedder struct {
	dimensions int
}

// New creates a hash embedder. Non-positive dimensions use 256.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a normalised bag-of-words vector from text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimensions)
	// Bias keeps empty or symbol-only input away from the zero vector.
	vec[0] = 1e-3

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		seed := h.Sum64()

		// Simple LCG spreads each word over a few buckets.
		for i := 0; i < 4; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			idx := int(seed % uint64(e.dimensions))
			sign := 1.0
			if seed>>63 == 1 {
				sign = -1.0
			}
			vec[idx] += sign
		}
	}

	return normalize(vec), nil
}

// EmbedBatch embeds every text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Close is a no-op.
func (e *Embedder) Close() error { return nil }

func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
