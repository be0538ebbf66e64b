package store

import (
	"context"

	"github.com/tributary-data/coalesce/pkg/types"
)

// This file defines focused interfaces composed into the full RecordStore.
// Consumers should depend on the smallest interface that meets their needs.

// ScoredID is a search hit with its backend relevance score.
type ScoredID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// RecordReader provides read access to source records.
type RecordReader interface {
	// GetRecord retrieves a single record by id.
	GetRecord(ctx context.Context, collection, id string) (*types.Record, error)

	// GetRecords retrieves many records in a single round trip. Ids with no
	// record are silently absent from the result; order follows the input.
	GetRecords(ctx context.Context, collection string, ids []string) ([]*types.Record, error)

	// ListIDs returns every record id in a collection, sorted.
	ListIDs(ctx context.Context, collection string) ([]string, error)
}

// RecordWriter provides write access to source records.
type RecordWriter interface {
	// UpsertRecords creates or replaces records in bulk.
	UpsertRecords(ctx context.Context, records []*types.Record) error
}

// EdgeStore persists similarity edges keyed by their deterministic edge key.
type EdgeStore interface {
	// UpsertEdges merges edges by key. Re-upserting an existing key updates
	// weight and provenance instead of duplicating the edge.
	UpsertEdges(ctx context.Context, edges []*types.SimilarityEdge) error

	// CountEdges returns the number of edges carrying the relation.
	CountEdges(ctx context.Context, relation string) (int64, error)

	// GetEdgesByRelation fetches every edge carrying the relation in a single
	// round trip, up to limit.
	GetEdgesByRelation(ctx context.Context, relation string, limit int64) ([]*types.SimilarityEdge, error)
}

// Searcher provides the index-backed lookups used by blocking strategies.
type Searcher interface {
	// SearchText runs a relevance-ranked text query over one field.
	SearchText(ctx context.Context, collection, field, query string, topK int) ([]ScoredID, error)

	// SearchVector runs a cosine k-NN query over record embeddings.
	SearchVector(ctx context.Context, collection string, vector []float32, topK int, minScore float64) ([]ScoredID, error)
}

// ResultStore persists clusters and golden records.
type ResultStore interface {
	UpsertClusters(ctx context.Context, clusters []*types.Cluster) error
	ListClusters(ctx context.Context) ([]*types.Cluster, error)
	UpsertGoldenRecords(ctx context.Context, records []*types.GoldenRecord) error
	ListGoldenRecords(ctx context.Context) ([]*types.GoldenRecord, error)
}

// BlobCache is a small keyed byte store. The embedder uses it to cache
// vectors keyed by content hash.
type BlobCache interface {
	// GetBlob returns the cached bytes or a not-found store error.
	GetBlob(ctx context.Context, key string) ([]byte, error)
	PutBlob(ctx context.Context, key string, data []byte) error
}

// RelationshipStore persists domain relationship edges between records. The
// golden stage sweeps configured relations onto golden ids after fusion.
type RelationshipStore interface {
	UpsertRelationships(ctx context.Context, edges []*types.RelationshipEdge) error

	// GetRelationships returns every edge carrying the relation, sorted by key.
	GetRelationships(ctx context.Context, relation string) ([]*types.RelationshipEdge, error)

	// ReplaceRelationships swaps the full edge set of one relation, so a
	// remapping sweep that collapses edges leaves no stale originals behind.
	ReplaceRelationships(ctx context.Context, relation string, edges []*types.RelationshipEdge) error
}

// RecordStore is the full persistence surface the pipeline runs against.
type RecordStore interface {
	RecordReader
	RecordWriter
	EdgeStore
	Searcher
	ResultStore
	RelationshipStore
	BlobCache

	// Close releases backend resources.
	Close() error
}

// Ensure RecordStore composes all focused interfaces.
var _ interface {
	RecordReader
	RecordWriter
	EdgeStore
	Searcher
	ResultStore
	RelationshipStore
	BlobCache
} = (RecordStore)(nil)
