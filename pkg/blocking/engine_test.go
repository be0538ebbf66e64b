package blocking

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func person(id, name, email, zip string) *types.Record {
	return &types.Record{
		ID:         id,
		Collection: "people",
		Fields: map[string]types.Value{
			"name":  types.String(name),
			"email": types.String(email),
			"zip":   types.String(zip),
		},
	}
}

func TestExactFieldStrategy(t *testing.T) {
	s := &ExactFieldStrategy{Field: "email", MaxBlockSize: 100, logger: discard()}
	records := []*types.Record{
		person("r1", "John Smith", "js@example.com", "10001"),
		person("r2", "Jon Smith", "JS@Example.com", "10001"),
		person("r3", "Alice Wu", "alice@example.com", "94105"),
		person("r4", "Bob Null", "", "10001"),
	}

	pairs, err := s.Candidates(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, pairs, 1, "case-insensitive email match, empty values skipped")
	assert.Equal(t, "r1", pairs[0].A)
	assert.Equal(t, "r2", pairs[0].B)
	assert.Equal(t, []string{"exact:email"}, pairs[0].Strategies)
}

func TestCompositeKeyStrategySkipsIncomplete(t *testing.T) {
	s := &CompositeKeyStrategy{Fields: []string{"name", "zip"}, MaxBlockSize: 100, logger: discard()}
	records := []*types.Record{
		person("r1", "John Smith", "", "10001"),
		person("r2", "john  smith", "", "10001"),
		person("r3", "John Smith", "", ""), // missing zip, skipped
	}

	pairs, err := s.Candidates(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "r1|r2", pairs[0].Key())
}

func TestOversizedBlockIsSkipped(t *testing.T) {
	s := &ExactFieldStrategy{Field: "zip", MaxBlockSize: 100, logger: discard()}
	records := make([]*types.Record, 0, 500)
	for i := 0; i < 500; i++ {
		records = append(records, person(fmt.Sprintf("r%03d", i), "X", "", "10001"))
	}

	pairs, err := s.Candidates(context.Background(), records)
	require.NoError(t, err)
	assert.Empty(t, pairs, "a 500-record block past the cap contributes nothing")
	assert.Equal(t, 1, s.SkippedBlocks())
}

func TestPhoneticStrategy(t *testing.T) {
	s := &PhoneticStrategy{Field: "name", MaxBlockSize: 100, logger: discard()}
	records := []*types.Record{
		person("r1", "Smith", "", ""),
		person("r2", "Smyth", "", ""),
		person("r3", "Jones", "", ""),
	}

	pairs, err := s.Candidates(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "r1|r2", pairs[0].Key())
}

func TestEngineDeduplicatesAcrossStrategies(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.BlockingConfig{
		MaxBlockSize: 100,
		Strategies: []config.StrategyConfig{
			{Kind: config.StrategyExact, Fields: []string{"email"}},
			{Kind: config.StrategyPhonetic, Fields: []string{"name"}},
		},
	}
	engine, err := NewEngine(cfg, st, discard())
	require.NoError(t, err)

	// Same pair surfaced by both strategies.
	records := []*types.Record{
		person("r1", "Smith", "s@x.com", ""),
		person("r2", "Smyth", "s@x.com", ""),
	}
	pairs, stats, err := engine.GenerateCandidates(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.ElementsMatch(t, []string{"exact:email", "phonetic:name"}, pairs[0].Strategies)
	assert.Equal(t, 2, stats.RawPairs)
	assert.Equal(t, 1, stats.UniquePairs)
}

func TestEngineReductionRatio(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.BlockingConfig{
		MaxBlockSize: 100,
		Strategies: []config.StrategyConfig{
			{Kind: config.StrategyExact, Fields: []string{"email"}},
		},
	}
	engine, err := NewEngine(cfg, st, discard())
	require.NoError(t, err)

	// 5 records span a 10-pair comparison space; one shared email surfaces 1.
	records := []*types.Record{
		person("r1", "A", "dup@x.com", ""),
		person("r2", "B", "dup@x.com", ""),
		person("r3", "C", "c@x.com", ""),
		person("r4", "D", "d@x.com", ""),
		person("r5", "E", "e@x.com", ""),
	}
	_, stats, err := engine.GenerateCandidates(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalPossible)
	assert.InDelta(t, 0.9, stats.ReductionRatio, 1e-9)
}

func TestEngineOutputIsCanonicalAndSorted(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.BlockingConfig{
		MaxBlockSize: 100,
		Strategies: []config.StrategyConfig{
			{Kind: config.StrategyExact, Fields: []string{"zip"}},
		},
	}
	engine, err := NewEngine(cfg, st, discard())
	require.NoError(t, err)

	records := []*types.Record{
		person("z", "", "", "10001"),
		person("a", "", "", "10001"),
		person("m", "", "", "10001"),
	}
	pairs, _, err := engine.GenerateCandidates(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.Less(t, p.A, p.B, "endpoints canonical")
		if i > 0 {
			assert.Less(t, pairs[i-1].Key(), p.Key(), "output sorted")
		}
	}
}

func TestTextStrategy(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.UpsertRecords(ctx, []*types.Record{
		person("r1", "Acme Data Systems", "", ""),
		person("r2", "Acme Data Corp", "", ""),
		person("r3", "Globex", "", ""),
	}))
	records, err := st.GetRecords(ctx, "people", []string{"r1", "r2", "r3"})
	require.NoError(t, err)

	s := &TextStrategy{Field: "name", TopK: 5, searcher: st}
	pairs, err := s.Candidates(ctx, records)
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, p := range pairs {
		keys[p.Key()] = true
	}
	assert.True(t, keys["r1|r2"], "overlapping names become candidates")
}

func TestVectorStrategy(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	recs := []*types.Record{
		{ID: "r1", Collection: "people", Fields: map[string]types.Value{}, Embedding: []float32{1, 0, 0}},
		{ID: "r2", Collection: "people", Fields: map[string]types.Value{}, Embedding: []float32{0.95, 0.05, 0}},
		{ID: "r3", Collection: "people", Fields: map[string]types.Value{}, Embedding: []float32{0, 0, 1}},
	}
	require.NoError(t, st.UpsertRecords(ctx, recs))

	s := &VectorStrategy{TopK: 2, MinScore: 0.8, searcher: st}
	pairs, err := s.Candidates(ctx, recs)
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, p := range pairs {
		keys[p.Key()] = true
	}
	assert.True(t, keys["r1|r2"])
	assert.False(t, keys["r1|r3"], "orthogonal embeddings stay apart")
}
