package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/types"
)

func seedRecords(t *testing.T, s *MemoryStore, n int) {
	t.Helper()
	records := make([]*types.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, &types.Record{
			ID:         fmt.Sprintf("rec-%03d", i),
			Collection: "people",
			Fields: map[string]types.Value{
				"name": types.String(fmt.Sprintf("Person %d", i)),
			},
		})
	}
	require.NoError(t, s.UpsertRecords(context.Background(), records))
}

func TestMemoryStoreBulkFetch(t *testing.T) {
	s := NewMemoryStore()
	seedRecords(t, s, 10)
	ctx := context.Background()

	recs, err := s.GetRecords(ctx, "people", []string{"rec-002", "rec-404", "rec-007"})
	require.NoError(t, err)
	require.Len(t, recs, 2, "missing ids are silently absent")
	assert.Equal(t, "rec-002", recs[0].ID)
	assert.Equal(t, "rec-007", recs[1].ID)

	// The whole fetch cost a single round trip.
	assert.Equal(t, int64(1), s.Trips("GetRecords"))
}

func TestMemoryStoreGetRecordNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetRecord(context.Background(), "people", "ghost")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreEdgeIdempotence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	edge, err := types.NewSimilarityEdge("a", "b", 0.9, 0.8, []string{"exact:email"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertEdges(ctx, []*types.SimilarityEdge{&edge}))

	again, err := types.NewSimilarityEdge("b", "a", 0.95, 0.99, []string{"phonetic:name"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertEdges(ctx, []*types.SimilarityEdge{&again}))

	n, err := s.CountEdges(ctx, types.SimilarityRelation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "re-upserting the same endpoints must not duplicate")

	edges, err := s.GetEdgesByRelation(ctx, types.SimilarityRelation, 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.95, edges[0].Weight)
	assert.Equal(t, 0.99, edges[0].Confidence, "merge refreshes confidence alongside weight")
	assert.ElementsMatch(t, []string{"exact:email", "phonetic:name"}, edges[0].Methods)
}

func TestMemoryStoreRelationships(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rel := func(src, tgt string) *types.RelationshipEdge {
		return &types.RelationshipEdge{
			Key:      types.EdgeKey(src, tgt, "knows"),
			SourceID: src, TargetID: tgt, Relation: "knows",
		}
	}
	require.NoError(t, s.UpsertRelationships(ctx, []*types.RelationshipEdge{
		rel("a", "b"), rel("b", "c"),
	}))
	require.NoError(t, s.UpsertRelationships(ctx, []*types.RelationshipEdge{
		{Key: types.EdgeKey("a", "b", "employs"), SourceID: "a", TargetID: "b", Relation: "employs"},
	}))

	knows, err := s.GetRelationships(ctx, "knows")
	require.NoError(t, err)
	assert.Len(t, knows, 2, "only the requested relation comes back")

	// Replace swaps the full edge set of one relation and leaves others alone.
	require.NoError(t, s.ReplaceRelationships(ctx, "knows", []*types.RelationshipEdge{rel("a", "c")}))
	knows, err = s.GetRelationships(ctx, "knows")
	require.NoError(t, err)
	require.Len(t, knows, 1)
	assert.Equal(t, "a", knows[0].SourceID)
	assert.Equal(t, "c", knows[0].TargetID)

	employs, err := s.GetRelationships(ctx, "employs")
	require.NoError(t, err)
	assert.Len(t, employs, 1)
}

func TestMemoryStoreSearchText(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertRecords(ctx, []*types.Record{
		{ID: "r1", Collection: "orgs", Fields: map[string]types.Value{"name": types.String("Acme Data Systems")}},
		{ID: "r2", Collection: "orgs", Fields: map[string]types.Value{"name": types.String("Acme Corporation")}},
		{ID: "r3", Collection: "orgs", Fields: map[string]types.Value{"name": types.String("Globex International")}},
	}))

	hits, err := s.SearchText(ctx, "orgs", "name", "acme data", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "r1", hits[0].ID, "document matching both terms ranks first")

	hits, err = s.SearchText(ctx, "orgs", "name", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStoreSearchVector(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertRecords(ctx, []*types.Record{
		{ID: "r1", Collection: "orgs", Fields: map[string]types.Value{}, Embedding: []float32{1, 0}},
		{ID: "r2", Collection: "orgs", Fields: map[string]types.Value{}, Embedding: []float32{0.9, 0.1}},
		{ID: "r3", Collection: "orgs", Fields: map[string]types.Value{}, Embedding: []float32{0, 1}},
	}))

	hits, err := s.SearchVector(ctx, "orgs", []float32{1, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "r1", hits[0].ID)
	assert.Equal(t, "r2", hits[1].ID)
}

func TestMemoryStoreBlobRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetBlob(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.PutBlob(ctx, "k", []byte("payload")))
	data, err := s.GetBlob(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(NewError(KindUnavailable, "op", "", errMissing)))
	assert.True(t, Retryable(NewError(KindInternal, "op", "", errMissing)), "backend faults are transient")
	assert.False(t, Retryable(NewError(KindNotFound, "op", "", errMissing)))
	assert.False(t, Retryable(NewError(KindInvalid, "op", "", errMissing)))
	assert.False(t, Retryable(nil))
}
