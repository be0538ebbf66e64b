// Package embedder produces vector representations of records for the
// vector-kNN and LSH blocking strategies. Vectors are cached by content hash
// so unchanged records never hit the provider twice.
package embedder

import (
	"context"
	"fmt"

	"github.com/tributary-data/coalesce/pkg/config"
)

// Client generates embeddings for batches of texts.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector width this client produces.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}

// New builds a client for the configured provider.
func New(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIClient(cfg)
	case "local":
		return NewLocalClient(cfg)
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.Provider)
	}
}
