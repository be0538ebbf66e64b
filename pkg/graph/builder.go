// Package graph materializes scored pairs as similarity edges. Edge keys are
// deterministic functions of the endpoints, so rebuilding the graph from the
// same pairs is idempotent: weights update in place and no duplicates appear.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
	"github.com/tributary-data/coalesce/pkg/utils"
)

const upsertBatchSize = 500

// Stats summarizes one graph-building run.
type Stats struct {
	EdgesUpserted   int `json:"edges_upserted"`
	PossibleMatches int `json:"possible_matches"`
	NonMatches      int `json:"non_matches"`
	// BelowThreshold counts matches whose normalized score fell under the
	// edge-creation threshold.
	BelowThreshold int `json:"below_threshold"`
}

// Builder writes match edges to the edge store.
type Builder struct {
	edges  store.EdgeStore
	cfg    config.GraphConfig
	logger *slog.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(edges store.EdgeStore, cfg config.GraphConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{edges: edges, cfg: cfg, logger: logger}
}

// BuildEdges persists an edge for every pair decided as a match whose
// normalized score clears the edge-creation threshold. Weight is the
// normalized score, confidence the decision confidence; methods carry the
// blocking provenance. Pairs in the uncertainty band are counted but produce
// no edge.
func (b *Builder) BuildEdges(ctx context.Context, scored []types.ScoredPair) (*Stats, error) {
	stats := &Stats{}
	edges := make([]*types.SimilarityEdge, 0, len(scored))
	for _, sp := range scored {
		switch sp.Decision {
		case types.DecisionMatch:
			if sp.NormalizedScore < b.cfg.EdgeCreationThreshold {
				stats.BelowThreshold++
				continue
			}
			edge, err := types.NewSimilarityEdge(sp.Pair.A, sp.Pair.B, sp.NormalizedScore, sp.Confidence, sp.Pair.Strategies)
			if err != nil {
				return nil, fmt.Errorf("graph: pair %s: %w", sp.Pair.Key(), err)
			}
			edges = append(edges, &edge)
		case types.DecisionPossibleMatch:
			stats.PossibleMatches++
		default:
			stats.NonMatches++
		}
	}

	for _, batch := range utils.Chunk(edges, upsertBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.edges.UpsertEdges(ctx, batch); err != nil {
			return nil, fmt.Errorf("graph: upsert edges: %w", err)
		}
		stats.EdgesUpserted += len(batch)
	}

	b.logger.Info("graph build complete",
		"edges", stats.EdgesUpserted,
		"possible", stats.PossibleMatches,
		"non_matches", stats.NonMatches,
		"below_threshold", stats.BelowThreshold)
	return stats, nil
}
