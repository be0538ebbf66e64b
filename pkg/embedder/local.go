package embedder

import (
	"context"
	"fmt"

	localembed "github.com/soundprediction/go-embedeverything/pkg/embedder"

	"github.com/tributary-data/coalesce/pkg/config"
)

// LocalClient embeds texts with an in-process model, for offline runs where
// no embedding API is reachable.
type LocalClient struct {
	client *localembed.Embedder
	dims   int
}

// NewLocalClient creates a local embedding client for the configured model.
func NewLocalClient(cfg config.EmbeddingConfig) (*LocalClient, error) {
	client, err := localembed.NewEmbedder(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("embedder: create local model: %w", err)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 384
	}
	return &LocalClient{client: client, dims: dims}, nil
}

// Embed generates embeddings for the given texts.
func (c *LocalClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	// The local runtime does not take a context.
	embeddings, err := c.client.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: local embed failed: %w", err)
	}
	return embeddings, nil
}

// EmbedSingle embeds one text.
func (c *LocalClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder: no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the configured vector width.
func (c *LocalClient) Dimensions() int { return c.dims }

// Close releases the model.
func (c *LocalClient) Close() error {
	c.client.Close()
	return nil
}
