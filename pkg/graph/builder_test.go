package graph

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

func scored(t *testing.T, a, b string, decision types.Decision, score, confidence float64) types.ScoredPair {
	t.Helper()
	p, err := types.NewCandidatePair(a, b, "exact:email", "")
	require.NoError(t, err)
	return types.ScoredPair{Pair: p, NormalizedScore: score, Decision: decision, Confidence: confidence}
}

func TestBuildEdgesOnlyMatches(t *testing.T) {
	st := store.NewMemoryStore()
	b := NewBuilder(st, config.GraphConfig{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	stats, err := b.BuildEdges(ctx, []types.ScoredPair{
		scored(t, "r1", "r2", types.DecisionMatch, 0.92, 0.97),
		scored(t, "r1", "r3", types.DecisionPossibleMatch, 0.5, 0.2),
		scored(t, "r2", "r3", types.DecisionNonMatch, 0.1, 0.9),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgesUpserted)
	assert.Equal(t, 1, stats.PossibleMatches)
	assert.Equal(t, 1, stats.NonMatches)

	edges, err := st.GetEdgesByRelation(ctx, types.SimilarityRelation, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.92, edges[0].Weight)
	assert.Equal(t, 0.97, edges[0].Confidence, "edge carries the decision confidence")
}

func TestBuildEdgesCreationThreshold(t *testing.T) {
	st := store.NewMemoryStore()
	b := NewBuilder(st, config.GraphConfig{EdgeCreationThreshold: 0.6}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	stats, err := b.BuildEdges(ctx, []types.ScoredPair{
		scored(t, "r1", "r2", types.DecisionMatch, 0.9, 1.0),
		scored(t, "r1", "r3", types.DecisionMatch, 0.5, 1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgesUpserted)
	assert.Equal(t, 1, stats.BelowThreshold, "weak match produces no edge")

	n, err := st.CountEdges(ctx, types.SimilarityRelation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBuildEdgesIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	b := NewBuilder(st, config.GraphConfig{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	pairs := []types.ScoredPair{scored(t, "r1", "r2", types.DecisionMatch, 0.9, 0.9)}
	_, err := b.BuildEdges(ctx, pairs)
	require.NoError(t, err)

	// Rebuilding with a refreshed score updates in place.
	pairs[0].NormalizedScore = 0.95
	_, err = b.BuildEdges(ctx, pairs)
	require.NoError(t, err)

	edges, err := st.GetEdgesByRelation(ctx, types.SimilarityRelation, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.95, edges[0].Weight)
}

func TestBuildEdgesCanonicalKey(t *testing.T) {
	assert.Equal(t,
		types.EdgeKey("a", "b", types.SimilarityRelation),
		types.EdgeKey("b", "a", types.SimilarityRelation),
		"edge key is order independent")
	assert.NotEqual(t,
		types.EdgeKey("a", "b", types.SimilarityRelation),
		types.EdgeKey("a", "c", types.SimilarityRelation))
}
