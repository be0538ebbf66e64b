package coalesce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/embedder"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// IngestStats summarizes one ingestion batch.
type IngestStats struct {
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
}

// Client is the main implementation of the Coalesce interface.
type Client struct {
	store    store.RecordStore
	embedder *embedder.CachedEmbedder
	config   *config.Config
	logger   *slog.Logger
}

// NewClient builds a client from the app configuration: the configured store
// backend, optional circuit-breaker wrapping, and an embedder when embedding
// credentials are present.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker.Enabled {
		st = store.NewRetryingStore(st, cfg.CircuitBreaker, logger)
	}

	client := &Client{store: st, config: cfg, logger: logger}

	if cfg.Embedding.APIKey != "" || cfg.Embedding.Provider == "local" || cfg.Embedding.BaseURL != "" {
		embedClient, err := embedder.New(cfg.Embedding)
		if err != nil {
			st.Close()
			return nil, err
		}
		client.embedder = embedder.NewCachedEmbedder(embedClient, st, cfg.Embedding.Model, logger)
	}

	return client, nil
}

func openStore(cfg *config.Config) (store.RecordStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "", "badger":
		return store.NewBadgerStore(cfg.Store.URI)
	case "neo4j":
		return store.NewNeo4jStore(cfg.Store.URI, cfg.Store.Username, cfg.Store.Password, cfg.Store.Database)
	default:
		return nil, fmt.Errorf("coalesce: unknown store driver %q", cfg.Store.Driver)
	}
}

// IngestRecords validates and persists source records in bulk. Records
// failing validation are logged and skipped so one bad row cannot sink a
// batch.
func (c *Client) IngestRecords(ctx context.Context, records []*types.Record) (*IngestStats, error) {
	stats := &IngestStats{}
	valid := make([]*types.Record, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			c.logger.Warn("skipping malformed record", "id", rec.ID, "error", err)
			stats.Skipped++
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) > 0 {
		if err := c.store.UpsertRecords(ctx, valid); err != nil {
			return stats, err
		}
	}
	stats.Upserted = len(valid)
	c.logger.Info("records ingested", "upserted", stats.Upserted, "skipped", stats.Skipped)
	return stats, nil
}

// Run executes a resolution pipeline. With a nil configuration the app
// config's pipeline section is used. The client's embedder is attached
// automatically unless the options already carry one.
func (c *Client) Run(ctx context.Context, cfg *config.PipelineConfig, opts pipeline.Options) (*pipeline.Report, error) {
	if cfg == nil {
		cfg = &c.config.Pipeline
	}
	if opts.Embedder == nil {
		opts.Embedder = c.embedder
	}
	p, err := pipeline.New(c.store, cfg, opts, c.logger)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Clusters lists persisted clusters.
func (c *Client) Clusters(ctx context.Context) ([]*types.Cluster, error) {
	return c.store.ListClusters(ctx)
}

// GoldenRecords lists persisted golden records.
func (c *Client) GoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error) {
	return c.store.ListGoldenRecords(ctx)
}

// CreateIndices provisions backend indices where the store supports them.
// Text indices cover the fields named in the pipeline weight table.
func (c *Client) CreateIndices(ctx context.Context) error {
	type indexer interface {
		CreateIndices(ctx context.Context, fields []string, dimensions int) error
	}
	if ix, ok := c.store.(indexer); ok {
		return ix.CreateIndices(ctx, c.config.Pipeline.Weights.FieldNames(), c.config.Embedding.Dimensions)
	}
	return nil
}

// Store exposes the underlying record store.
func (c *Client) Store() store.RecordStore { return c.store }

// Close releases the store and any embedding client.
func (c *Client) Close() error {
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			c.logger.Warn("failed to close embedder", "error", err)
		}
	}
	return c.store.Close()
}
