package golden

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/store"
	"github.com/tributary-data/coalesce/pkg/types"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func member(id string, fields map[string]types.Value) *types.Record {
	return &types.Record{ID: id, Collection: "people", Fields: fields}
}

func clusterOf(ids ...string) *types.Cluster {
	return &types.Cluster{
		ID:            "cl-test",
		MemberIDs:     ids,
		Status:        types.ClusterComputed,
		AvgConfidence: 0.9,
		CreatedAt:     time.Now().UTC(),
	}
}

func build(t *testing.T, cfg config.GoldenConfig, records []*types.Record, c *types.Cluster) *types.GoldenRecord {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertRecords(context.Background(), records))
	b := NewBuilder(st, cfg, discard())
	out, stats, err := b.BuildGoldenRecords(context.Background(), "people", []*types.Cluster{c})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.GoldenRecords)
	return out[0]
}

func TestCompletenessRulePicksFullestRecord(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{
			"name": types.String("John Smith"), "email": types.String("js@x.com"), "phone": types.String("555-1234"),
		}),
		member("r2", map[string]types.Value{
			"name": types.String("J. Smith"),
		}),
	}
	g := build(t, config.GoldenConfig{DefaultRule: "completeness"}, records, clusterOf("r1", "r2"))

	assert.Equal(t, "John Smith", g.Fields["name"].Value.Text())
	assert.Equal(t, "r1", g.Fields["name"].Provenance.SourceID)
	assert.Equal(t, types.RuleCompleteness, g.Fields["name"].Provenance.Rule)
	assert.Contains(t, g.Fields["name"].Provenance.Alternatives, "J. Smith")
	// r2 has no phone; the field still fuses from r1.
	assert.Equal(t, "555-1234", g.Fields["phone"].Value.Text())
	assert.Equal(t, 1.0, g.DataQualityScore)
}

func TestCompletenessTieBreaksToSmallestID(t *testing.T) {
	records := []*types.Record{
		member("r2", map[string]types.Value{"name": types.String("Beta")}),
		member("r1", map[string]types.Value{"name": types.String("Alpha")}),
	}
	g := build(t, config.GoldenConfig{DefaultRule: "completeness"}, records, clusterOf("r1", "r2"))
	assert.Equal(t, "r1", g.Fields["name"].Provenance.SourceID)
	assert.Equal(t, "Alpha", g.Fields["name"].Value.Text())
}

func TestMostFrequentRule(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{"city": types.String("Boston")}),
		member("r2", map[string]types.Value{"city": types.String("Boston")}),
		member("r3", map[string]types.Value{"city": types.String("Cambridge")}),
	}
	cfg := config.GoldenConfig{DefaultRule: "most_frequent"}
	g := build(t, cfg, records, clusterOf("r1", "r2", "r3"))
	assert.Equal(t, "Boston", g.Fields["city"].Value.Text())
	assert.Equal(t, []string{"Cambridge"}, g.Fields["city"].Provenance.Alternatives)
}

func TestMostFrequentTieBreaksByRecency(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{
			"city": types.String("Boston"), "updated_at": types.String("2024-01-01T00:00:00Z"),
		}),
		member("r2", map[string]types.Value{
			"city": types.String("Cambridge"), "updated_at": types.String("2025-06-01T00:00:00Z"),
		}),
	}
	cfg := config.GoldenConfig{DefaultRule: "most_frequent", RecencyField: "updated_at"}
	g := build(t, cfg, records, clusterOf("r1", "r2"))
	assert.Equal(t, "Cambridge", g.Fields["city"].Value.Text(), "newer value wins the tie")
}

func TestLongestRule(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{"name": types.String("ACME")}),
		member("r2", map[string]types.Value{"name": types.String("ACME Data Systems Inc")}),
	}
	cfg := config.GoldenConfig{DefaultRule: "completeness", FieldRules: map[string]string{"name": "longest"}}
	g := build(t, cfg, records, clusterOf("r1", "r2"))
	assert.Equal(t, "ACME Data Systems Inc", g.Fields["name"].Value.Text())
	assert.Equal(t, types.RuleLongest, g.Fields["name"].Provenance.Rule)
}

func TestSourcePriorityRule(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{"name": types.String("From CRM"), "source": types.String("crm")}),
		member("r2", map[string]types.Value{"name": types.String("From ERP"), "source": types.String("erp")}),
	}
	cfg := config.GoldenConfig{
		DefaultRule:    "source_priority",
		SourcePriority: []string{"erp", "crm"},
	}
	g := build(t, cfg, records, clusterOf("r1", "r2"))
	assert.Equal(t, "From ERP", g.Fields["name"].Value.Text())
}

func TestGoldenRecordValidatesProvenance(t *testing.T) {
	records := []*types.Record{
		member("r1", map[string]types.Value{"name": types.String("A")}),
		member("r2", map[string]types.Value{"name": types.String("B")}),
	}
	g := build(t, config.GoldenConfig{DefaultRule: "completeness"}, records, clusterOf("r1", "r2"))
	require.NoError(t, g.Validate())
	for path, f := range g.Fields {
		assert.NotEmpty(t, f.Provenance.SourceID, "field %s missing provenance", path)
		assert.Contains(t, g.MemberIDs, f.Provenance.SourceID)
	}
}

func TestGoldenIDDeterministic(t *testing.T) {
	assert.Equal(t, GoldenID("cl-abc"), GoldenID("cl-abc"))
	assert.NotEqual(t, GoldenID("cl-abc"), GoldenID("cl-abd"))
}

func TestBuildUsesBulkFetch(t *testing.T) {
	st := store.NewMemoryStore()
	var records []*types.Record
	var clusters []*types.Cluster
	for i := 0; i < 30; i += 2 {
		a := member(idOf(i), map[string]types.Value{"name": types.String("X")})
		b := member(idOf(i+1), map[string]types.Value{"name": types.String("X")})
		records = append(records, a, b)
		c := clusterOf(a.ID, b.ID)
		c.ID = "cl-" + a.ID
		clusters = append(clusters, c)
	}
	require.NoError(t, st.UpsertRecords(context.Background(), records))
	st.ResetTrips()

	b := NewBuilder(st, config.GoldenConfig{DefaultRule: "completeness"}, discard())
	out, _, err := b.BuildGoldenRecords(context.Background(), "people", clusters)
	require.NoError(t, err)
	assert.Len(t, out, 15)
	assert.Equal(t, int64(1), st.Trips("GetRecords"), "all members across clusters in one bulk read")
	assert.Equal(t, int64(0), st.Trips("GetRecord"))
}

func TestSkipsClusterWithMissingMembers(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertRecords(context.Background(), []*types.Record{
		member("r1", map[string]types.Value{"name": types.String("A")}),
	}))
	b := NewBuilder(st, config.GoldenConfig{DefaultRule: "completeness"}, discard())
	out, stats, err := b.BuildGoldenRecords(context.Background(), "people", []*types.Cluster{clusterOf("r1", "ghost")})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, stats.MissingMembers)
}

func idOf(i int) string {
	return string(rune('a'+i/10)) + string(rune('0'+i%10))
}
