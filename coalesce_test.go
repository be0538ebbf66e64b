package coalesce

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/similarity"
	"github.com/tributary-data/coalesce/pkg/types"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{
		Store:    config.StoreConfig{Driver: "memory"},
		Pipeline: testPipeline(),
	}
	client, err := NewClient(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func testPipeline() config.PipelineConfig {
	cfg := config.DefaultPipeline()
	cfg.Collection = "people"
	cfg.Blocking.Strategies = []config.StrategyConfig{
		{Kind: config.StrategyExact, Fields: []string{"email"}},
	}
	cfg.Weights = similarity.WeightTable{
		UpperThreshold: 3.0,
		LowerThreshold: 0.0,
		Fields: map[string]similarity.FieldWeight{
			"name":  {Comparator: "jaro_winkler", MProb: 0.9, UProb: 0.1, Threshold: 0.85, Importance: 1},
			"email": {Comparator: "exact", MProb: 0.95, UProb: 0.01, Threshold: 1.0, Importance: 1},
		},
	}
	return cfg
}

func TestIngestRecordsSkipsMalformed(t *testing.T) {
	client := testClient(t)

	stats, err := client.IngestRecords(context.Background(), []*types.Record{
		{ID: "r1", Collection: "people", Fields: map[string]types.Value{"name": types.String("A")}},
		{ID: "", Collection: "people"},
		{ID: "r2", Collection: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)
	assert.Equal(t, 2, stats.Skipped)

	ids, err := client.Store().ListIDs(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestClientRunEndToEnd(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	_, err := client.IngestRecords(ctx, []*types.Record{
		{ID: "r1", Collection: "people", Fields: map[string]types.Value{
			"name": types.String("John Smith"), "email": types.String("john@example.com"),
		}},
		{ID: "r2", Collection: "people", Fields: map[string]types.Value{
			"name": types.String("John Smith"), "email": types.String("john@example.com"),
		}},
	})
	require.NoError(t, err)

	// nil config falls back to the app config's pipeline section.
	report, err := client.Run(ctx, nil, pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, report.Status)
	assert.Equal(t, 1, report.Clusters)

	clusters, err := client.Clusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{"r1", "r2"}, clusters[0].MemberIDs)

	goldens, err := client.GoldenRecords(ctx)
	require.NoError(t, err)
	require.Len(t, goldens, 1)
	assert.Equal(t, clusters[0].ID, goldens[0].ClusterID)
}

func TestNewClientRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}
	_, err := NewClient(cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestCreateIndicesNoopOnMemoryStore(t *testing.T) {
	client := testClient(t)
	assert.NoError(t, client.CreateIndices(context.Background()))
}
