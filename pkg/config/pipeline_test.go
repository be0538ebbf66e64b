package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineValidates(t *testing.T) {
	cfg := DefaultPipeline()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Blocking.MaxBlockSize)
	assert.Equal(t, 2, cfg.Clustering.MinClusterSize)
	assert.Equal(t, OversizeFlag, cfg.Clustering.OversizePolicy)
	assert.Equal(t, int64(5_000_000), cfg.Clustering.MaxEdges)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
		want   string
	}{
		{"zero block size", func(c *PipelineConfig) { c.Blocking.MaxBlockSize = 0 }, "max_block_size"},
		{"unknown strategy", func(c *PipelineConfig) {
			c.Blocking.Strategies = []StrategyConfig{{Kind: "sorted_neighborhood"}}
		}, "unknown strategy"},
		{"composite without fields", func(c *PipelineConfig) {
			c.Blocking.Strategies = []StrategyConfig{{Kind: StrategyComposite}}
		}, "at least one field"},
		{"lsh without dimensions", func(c *PipelineConfig) {
			c.Blocking.Strategies = []StrategyConfig{{Kind: StrategyLSH, Tables: 10, Hyperplanes: 8}}
		}, "dimensions"},
		{"min cluster below two", func(c *PipelineConfig) { c.Clustering.MinClusterSize = 1 }, "at least 2"},
		{"bad oversize policy", func(c *PipelineConfig) { c.Clustering.OversizePolicy = "explode" }, "unknown policy"},
		{"warn above max edges", func(c *PipelineConfig) { c.Clustering.WarnEdges = c.Clustering.MaxEdges + 1 }, "warn <= max"},
		{"unknown fusion rule", func(c *PipelineConfig) { c.Golden.DefaultRule = "newest" }, "unknown rule"},
		{"priority rule without list", func(c *PipelineConfig) { c.Golden.DefaultRule = "source_priority" }, "priority list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipeline()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			var ce *ConfigError
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestLoadPipelineFile(t *testing.T) {
	doc := `
collection: customers
blocking:
  strategies:
    - kind: exact
      fields: [email]
    - kind: lsh
      tables: 10
      hyperplanes: 8
      seed: 42
      dimensions: 128
weights:
  upper_threshold: 3.0
  lower_threshold: -1.0
  fields:
    name:
      comparator: jaro_winkler
      m_prob: 0.9
      u_prob: 0.1
      threshold: 0.85
      importance: 1.0
golden:
  default_rule: most_frequent
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadPipelineFile(path)
	require.NoError(t, err)
	assert.Equal(t, "customers", cfg.Collection)
	// Defaults survive partial documents.
	assert.Equal(t, 100, cfg.Blocking.MaxBlockSize)
	assert.Equal(t, "similar_to", cfg.Clustering.Relation)
	require.Len(t, cfg.Blocking.Strategies, 2)
	assert.Equal(t, int64(42), cfg.Blocking.Strategies[1].Seed)
	assert.Equal(t, "most_frequent", cfg.Golden.DefaultRule)
	assert.Equal(t, 0.85, cfg.Weights.Fields["name"].Threshold)
}

func TestLoadPipelineFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clustering:\n  min_cluster_size: 0\n"), 0o644))
	_, err := LoadPipelineFile(path)
	assert.Error(t, err)
}

func TestHashIsStableAndSensitive(t *testing.T) {
	a := DefaultPipeline()
	b := DefaultPipeline()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)

	b.Blocking.MaxBlockSize = 200
	assert.NotEqual(t, a.Hash(), b.Hash())
}
