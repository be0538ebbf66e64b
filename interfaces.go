package coalesce

import (
	"context"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// Coalesce is the top-level interface for running entity resolution.
type Coalesce interface {
	// IngestRecords validates and persists source records. Malformed records
	// are skipped and counted; the batch continues.
	IngestRecords(ctx context.Context, records []*types.Record) (*IngestStats, error)

	// Run executes a full resolution pipeline with the given configuration.
	// A nil configuration falls back to the app config's pipeline section.
	Run(ctx context.Context, cfg *config.PipelineConfig, opts pipeline.Options) (*pipeline.Report, error)

	// Clusters lists the clusters from the most recent runs.
	Clusters(ctx context.Context) ([]*types.Cluster, error)

	// GoldenRecords lists the fused golden records.
	GoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error)

	// CreateIndices provisions backend indices and constraints. A no-op on
	// backends without index support.
	CreateIndices(ctx context.Context) error

	// Store exposes the underlying record store.
	Store() store.RecordStore

	// Close releases store and embedder resources.
	Close() error
}

var _ Coalesce = (*Client)(nil)
