package embedder

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tributary-data/coalesce/pkg/config"
)

const defaultBatchSize = 100

// OpenAIClient embeds texts through the OpenAI embeddings API or any
// OpenAI-compatible service reachable at a custom base URL.
type OpenAIClient struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dims      int
	batchSize int
}

// NewOpenAIClient creates an OpenAI embedding client.
func NewOpenAIClient(cfg config.EmbeddingConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	var client *openai.Client
	if cfg.BaseURL != "" {
		if err := validateBaseURL(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("embedder: invalid base URL: %w", err)
		}
		// Some compatible services run without authentication.
		if apiKey == "" {
			apiKey = "dummy-key"
		}
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		if !strings.HasSuffix(clientConfig.BaseURL, "/v1") {
			clientConfig.BaseURL += "/v1"
		}
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai api key is required")
		}
		client = openai.NewClient(apiKey)
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &OpenAIClient{
		client:    client,
		model:     openai.EmbeddingModel(model),
		dims:      dims,
		batchSize: batchSize,
	}, nil
}

// Embed generates embeddings for the texts, batching by the configured size.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: c.model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: openai embeddings failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", end-start, len(resp.Data))
		}
		for _, item := range resp.Data {
			out = append(out, item.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle embeds one text.
func (c *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
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
func (c *OpenAIClient) Dimensions() int { return c.dims }

// Close is a no-op for the HTTP client.
func (c *OpenAIClient) Close() error { return nil }

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
