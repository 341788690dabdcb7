// Package embedder provides interfaces for text embedding providers.
//
// Embeddings feed the semantic tier of the memory store, which indexes entry
// content for similarity retrieval.
package embedder

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed indicates that a provider could not produce a vector.
var ErrEmbeddingFailed = errors.New("embedding generation failed")

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings,
	// returned in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of embedding vectors produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
