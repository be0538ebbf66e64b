package embedder

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

// fakeClient returns a constant vector and counts calls per text.
type fakeClient struct {
	calls int
}

func (f *fakeClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeClient) Dimensions() int { return 3 }
func (f *fakeClient) Close() error    { return nil }

func rec(id, name string) *types.Record {
	return &types.Record{
		ID:         id,
		Collection: "people",
		Fields:     map[string]types.Value{"name": types.String(name)},
	}
}

func TestSerializeRecordDeterministic(t *testing.T) {
	r := &types.Record{
		ID:         "r1",
		Collection: "people",
		Fields: map[string]types.Value{
			"name":  types.String("John"),
			"email": types.String("j@x.com"),
			"empty": types.String(""),
			"address": types.Map(map[string]types.Value{
				"city": types.String("Boston"),
				"zip":  types.String("02101"),
			}),
		},
	}
	want := "address.city: Boston\naddress.zip: 02101\nemail: j@x.com\nname: John"
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, SerializeRecord(r))
	}
}

func TestEmbedRecordsCachesByContent(t *testing.T) {
	st := store.NewMemoryStore()
	client := &fakeClient{}
	e := NewCachedEmbedder(client, st, "test-model", slog.New(slog.DiscardHandler))

	first := []*types.Record{rec("r1", "John"), rec("r2", "Jane")}
	stats, err := e.EmbedRecords(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Embedded)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, []float32{1, 0, 0}, first[0].Embedding)
	require.NotNil(t, first[0].Meta)
	assert.Equal(t, "test-model", first[0].Meta.Model)

	// Same content under fresh record objects: all cache hits, no calls.
	second := []*types.Record{rec("r1", "John"), rec("r2", "Jane")}
	stats, err = e.EmbedRecords(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Embedded)
	assert.Equal(t, 2, stats.CacheHit)
	assert.Equal(t, 2, client.calls, "no additional provider calls")
	assert.Equal(t, []float32{1, 0, 0}, second[0].Embedding)
}

func TestEmbedRecordsSkipsAlreadyEmbedded(t *testing.T) {
	st := store.NewMemoryStore()
	client := &fakeClient{}
	e := NewCachedEmbedder(client, st, "test-model", slog.New(slog.DiscardHandler))

	r := rec("r1", "John")
	r.Embedding = []float32{0.5, 0.5, 0}
	r.Meta = &types.EmbeddingMeta{Model: "test-model", Dimension: 3}

	stats, err := e.EmbedRecords(context.Background(), []*types.Record{r})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, []float32{0.5, 0.5, 0}, r.Embedding, "existing vector untouched")
}

func TestEmbedRecordsReembedsOnModelChange(t *testing.T) {
	st := store.NewMemoryStore()
	client := &fakeClient{}
	e := NewCachedEmbedder(client, st, "new-model", slog.New(slog.DiscardHandler))

	r := rec("r1", "John")
	r.Embedding = []float32{0.5, 0.5, 0}
	r.Meta = &types.EmbeddingMeta{Model: "old-model", Dimension: 3}

	stats, err := e.EmbedRecords(context.Background(), []*types.Record{r})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Embedded)
	assert.Equal(t, []float32{1, 0, 0}, r.Embedding)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCacheKeyDependsOnModelAndText(t *testing.T) {
	assert.Equal(t, CacheKey("m", "t"), CacheKey("m", "t"))
	assert.NotEqual(t, CacheKey("m", "t"), CacheKey("m2", "t"))
	assert.NotEqual(t, CacheKey("m", "t"), CacheKey("m", "t2"))
}
