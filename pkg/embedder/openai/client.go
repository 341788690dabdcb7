// Package openai implements embedder.Provider on any OpenAI-compatible
// embeddings endpoint.
package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oceanbase/agentmem-go/pkg/embedder"
)

// defaultDimensions matches text-embedding-ada-002.
const defaultDimensions = 1536

// Client is an OpenAI embedder client.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedder.
//
// Model must be an embedding model name known to the SDK and defaults to
// text-embedding-ada-002. Dimensions defaults to 1536. BaseURL may point at
// any OpenAI-compatible gateway.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewClient creates a new OpenAI embedder client.
//
// Args:
//   - cfg: embedder configuration; APIKey is required
//
// Returns:
//   - *Client: embedder client instance
//   - error: when the API key is missing or the model name is unknown
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("NewOpenAIEmbedder: api key is required")
	}

	model, err := embeddingModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = defaultDimensions
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// embeddingModel resolves a model name to the SDK enum.
func embeddingModel(name string) (openai.EmbeddingModel, error) {
	if name == "" {
		return openai.AdaEmbeddingV2, nil
	}
	var model openai.EmbeddingModel
	if err := model.UnmarshalText([]byte(name)); err != nil || model == openai.Unknown {
		return openai.Unknown, fmt.Errorf("NewOpenAIEmbedder: unknown embedding model %q", name)
	}
	return model, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to vectors in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedder.ErrEmbeddingFailed, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", embedder.ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("%w: result index %d out of range", embedder.ErrEmbeddingFailed, data.Index)
		}
		vec := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float64(v)
		}
		embeddings[data.Index] = vec
	}

	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
