package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/similarity"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func testConfig() *config.PipelineConfig {
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
	return &cfg
}

func person(id, name, email string) *types.Record {
	return &types.Record{
		ID:         id,
		Collection: "people",
		Fields: map[string]types.Value{
			"name":  types.String(name),
			"email": types.String(email),
		},
	}
}

func seed(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertRecords(context.Background(), []*types.Record{
		person("r1", "John Smith", "john@example.com"),
		person("r2", "John Smith", "john@example.com"),
		person("r3", "Jane Doe", "jane@example.com"),
		person("r4", "Jane Doe", "jane@example.com"),
		person("r5", "Solo Person", "solo@example.com"),
	}))
	return st
}

func TestRunEndToEnd(t *testing.T) {
	st := seed(t)
	p, err := New(st, testConfig(), Options{}, discard())
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.NotEmpty(t, report.ConfigHash)
	assert.Equal(t, 5, report.Records)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Matches)
	assert.Equal(t, 0, report.PossibleMatches)
	assert.Equal(t, 2, report.Clusters)
	assert.Equal(t, 4, report.ClusteredRecords)
	assert.Equal(t, 2, report.GoldenRecords)

	// 5 records give a 10-pair comparison space; blocking surfaced 2.
	assert.InDelta(t, 0.8, report.Metrics.ReductionRatio, 1e-9)
	assert.InDelta(t, 1.0, report.Metrics.MatchRate, 1e-9)
	assert.InDelta(t, 0.0, report.Metrics.PossibleMatchRate, 1e-9)
	assert.InDelta(t, 2.0, report.Metrics.AvgClusterSize, 1e-9)

	clusters, err := st.ListClusters(context.Background())
	require.NoError(t, err)
	assert.Len(t, clusters, 2)
	for _, c := range clusters {
		assert.Equal(t, types.ClusterPersisted, c.Status)
	}
	goldens, err := st.ListGoldenRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, goldens, 2)
	for _, g := range goldens {
		// Both duplicate pairs score far past the upper threshold, so the
		// fused confidence saturates at 1 regardless of the edge weights.
		assert.Equal(t, 1.0, g.ConfidenceScore)
	}

	// Embed has no embedder and no vector strategies; export has no dir.
	statuses := make(map[string]string)
	for _, s := range report.Stages {
		statuses[s.Name] = s.Status
	}
	assert.Equal(t, StatusSkipped, statuses[StageEmbed])
	assert.Equal(t, StatusSkipped, statuses[StageExport])
	assert.Equal(t, StatusCompleted, statuses[StageClustering])
}

func TestRunIsIdempotent(t *testing.T) {
	st := seed(t)
	p, err := New(st, testConfig(), Options{}, discard())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	// Re-running merges edges instead of duplicating them.
	count, err := st.CountEdges(context.Background(), "similar_to")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 2, report.Clusters)
}

func TestRunRemapsConfiguredRelations(t *testing.T) {
	st := seed(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertRelationships(ctx, []*types.RelationshipEdge{{
		Key:      types.EdgeKey("r1", "r5", "knows"),
		SourceID: "r1", TargetID: "r5", Relation: "knows",
	}}))

	cfg := testConfig()
	cfg.Golden.RemapRelations = []string{"knows"}
	p, err := New(st, cfg, Options{}, discard())
	require.NoError(t, err)

	_, err = p.Run(ctx)
	require.NoError(t, err)

	goldens, err := st.ListGoldenRecords(ctx)
	require.NoError(t, err)
	goldenOf := make(map[string]string)
	for _, g := range goldens {
		for _, m := range g.MemberIDs {
			goldenOf[m] = g.ID
		}
	}
	require.Contains(t, goldenOf, "r1")

	// r1 collapsed into its golden record; r5 is a singleton and keeps its id.
	edges, err := st.GetRelationships(ctx, "knows")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, goldenOf["r1"], edges[0].SourceID)
	assert.Equal(t, "r5", edges[0].TargetID)
}

func TestRunWithExportAndReport(t *testing.T) {
	st := seed(t)
	exportDir := t.TempDir()
	reportDir := t.TempDir()
	p, err := New(st, testConfig(), Options{ExportDir: exportDir, ReportDir: reportDir}, discard())
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.ExportPath)
	assert.FileExists(t, report.ExportPath)

	entries, err := os.ReadDir(reportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(reportDir, entries[0].Name()))
	require.NoError(t, err)
	var persisted Report
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, report.RunID, persisted.RunID)
	assert.Equal(t, StatusCompleted, persisted.Status)
}

func TestRunCancelledContext(t *testing.T) {
	st := seed(t)
	p, err := New(st, testConfig(), Options{}, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLoad, stageErr.Stage)

	require.NotNil(t, report, "partial report survives cancellation")
	assert.Equal(t, StatusCancelled, report.Status)
	require.NotEmpty(t, report.Stages)
	assert.Equal(t, StatusCancelled, report.Stages[0].Status)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Clustering.MinClusterSize = 0
	_, err := New(store.NewMemoryStore(), cfg, Options{}, discard())
	require.Error(t, err)

	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
