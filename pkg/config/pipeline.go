package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tributary-data/coalesce/pkg/similarity"
)

// Strategy kinds accepted by the blocking section.
const (
	StrategyComposite = "composite"
	StrategyExact     = "exact"
	StrategyPhonetic  = "phonetic"
	StrategyText      = "text"
	StrategyVector    = "vector"
	StrategyLSH       = "lsh"
)

// Oversize policies for clusters past the size ceiling.
const (
	OversizeFlag  = "flag"
	OversizeDrop  = "drop"
	OversizeSplit = "split"
)

// ConfigError reports a rejected pipeline configuration value.
type ConfigError struct {
	Section string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s.%s: %s", e.Section, e.Field, e.Reason)
}

// PipelineConfig parameterizes one resolution run. It can come from the app
// config (viper) or from a standalone YAML pipeline document.
type PipelineConfig struct {
	Collection string                 `mapstructure:"collection" yaml:"collection" json:"collection"`
	Blocking   BlockingConfig         `mapstructure:"blocking" yaml:"blocking" json:"blocking"`
	Scoring    ScoringConfig          `mapstructure:"scoring" yaml:"scoring" json:"scoring"`
	Graph      GraphConfig            `mapstructure:"graph" yaml:"graph" json:"graph"`
	Clustering ClusteringConfig       `mapstructure:"clustering" yaml:"clustering" json:"clustering"`
	Golden     GoldenConfig           `mapstructure:"golden" yaml:"golden" json:"golden"`
	Weights    similarity.WeightTable `mapstructure:"weights" yaml:"weights" json:"weights"`
}

// BlockingConfig selects candidate-generation strategies.
type BlockingConfig struct {
	MaxBlockSize int              `mapstructure:"max_block_size" yaml:"max_block_size" json:"max_block_size"`
	Strategies   []StrategyConfig `mapstructure:"strategies" yaml:"strategies" json:"strategies"`
}

// StrategyConfig configures one blocking strategy. Kind selects the strategy;
// the remaining knobs apply to the kinds that use them.
type StrategyConfig struct {
	Kind   string   `mapstructure:"kind" yaml:"kind" json:"kind"`
	Name   string   `mapstructure:"name" yaml:"name" json:"name,omitempty"`
	Fields []string `mapstructure:"fields" yaml:"fields" json:"fields,omitempty"`

	// Text and vector search knobs.
	TopK     int     `mapstructure:"top_k" yaml:"top_k" json:"top_k,omitempty"`
	MinScore float64 `mapstructure:"min_score" yaml:"min_score" json:"min_score,omitempty"`

	// LSH knobs: Tables is L, Hyperplanes is k.
	Tables      int   `mapstructure:"tables" yaml:"tables" json:"tables,omitempty"`
	Hyperplanes int   `mapstructure:"hyperplanes" yaml:"hyperplanes" json:"hyperplanes,omitempty"`
	Seed        int64 `mapstructure:"seed" yaml:"seed" json:"seed,omitempty"`
	Dimensions  int   `mapstructure:"dimensions" yaml:"dimensions" json:"dimensions,omitempty"`
}

// ScoringConfig controls the scoring engine.
type ScoringConfig struct {
	BatchSize int         `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	Workers   int         `mapstructure:"workers" yaml:"workers" json:"workers"`
	Hooks     HooksConfig `mapstructure:"hooks" yaml:"hooks" json:"hooks"`
}

// HooksConfig enables the optional resolution hooks. Hooks run in a fixed
// order: type filter, acronym expansion, hierarchical context.
type HooksConfig struct {
	TypeFilter      TypeFilterHook      `mapstructure:"type_filter" yaml:"type_filter" json:"type_filter"`
	AcronymExpander AcronymExpanderHook `mapstructure:"acronym_expander" yaml:"acronym_expander" json:"acronym_expander"`
	ContextResolver ContextResolverHook `mapstructure:"context_resolver" yaml:"context_resolver" json:"context_resolver"`
}

type TypeFilterHook struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Field   string `mapstructure:"field" yaml:"field" json:"field,omitempty"`
}

type AcronymExpanderHook struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Fields  []string `mapstructure:"fields" yaml:"fields" json:"fields,omitempty"`
}

type ContextResolverHook struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Field   string  `mapstructure:"field" yaml:"field" json:"field,omitempty"`
	Weight  float64 `mapstructure:"weight" yaml:"weight" json:"weight,omitempty"`
}

// GraphConfig controls similarity-edge materialization.
type GraphConfig struct {
	// EdgeCreationThreshold gates edge creation on the normalized score,
	// independently of the decision thresholds: a pair decided as a match
	// still produces no edge below it. Zero admits every match.
	EdgeCreationThreshold float64 `mapstructure:"edge_creation_threshold" yaml:"edge_creation_threshold" json:"edge_creation_threshold"`
}

// ClusteringConfig controls connected-component discovery.
type ClusteringConfig struct {
	Relation       string `mapstructure:"relation" yaml:"relation" json:"relation"`
	MinClusterSize int    `mapstructure:"min_cluster_size" yaml:"min_cluster_size" json:"min_cluster_size"`
	MaxClusterSize int    `mapstructure:"max_cluster_size" yaml:"max_cluster_size" json:"max_cluster_size"`
	OversizePolicy string `mapstructure:"oversize_policy" yaml:"oversize_policy" json:"oversize_policy"`
	MaxEdges       int64  `mapstructure:"max_edges" yaml:"max_edges" json:"max_edges"`
	WarnEdges      int64  `mapstructure:"warn_edges" yaml:"warn_edges" json:"warn_edges"`
}

// GoldenConfig controls golden record fusion.
type GoldenConfig struct {
	DefaultRule    string            `mapstructure:"default_rule" yaml:"default_rule" json:"default_rule"`
	FieldRules     map[string]string `mapstructure:"field_rules" yaml:"field_rules" json:"field_rules,omitempty"`
	SourcePriority []string          `mapstructure:"source_priority" yaml:"source_priority" json:"source_priority,omitempty"`
	SourceField    string            `mapstructure:"source_field" yaml:"source_field" json:"source_field,omitempty"`
	RecencyField   string            `mapstructure:"recency_field" yaml:"recency_field" json:"recency_field,omitempty"`
	TypeField      string            `mapstructure:"type_field" yaml:"type_field" json:"type_field,omitempty"`
	// RemapRelations names the domain relations to sweep onto golden ids
	// after fusion. Empty disables the sweep.
	RemapRelations []string `mapstructure:"remap_relations" yaml:"remap_relations" json:"remap_relations,omitempty"`
}

// DefaultPipeline returns the pipeline defaults applied before any document
// or app-config overrides.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		Blocking: BlockingConfig{MaxBlockSize: 100},
		Scoring:  ScoringConfig{BatchSize: 256, Workers: 8},
		Clustering: ClusteringConfig{
			Relation:       "similar_to",
			MinClusterSize: 2,
			MaxClusterSize: 20,
			OversizePolicy: OversizeFlag,
			MaxEdges:       5_000_000,
			WarnEdges:      500_000,
		},
		Golden: GoldenConfig{DefaultRule: "completeness"},
	}
}

func setPipelineDefaults() {
	d := DefaultPipeline()
	viper.SetDefault("pipeline.blocking.max_block_size", d.Blocking.MaxBlockSize)
	viper.SetDefault("pipeline.scoring.batch_size", d.Scoring.BatchSize)
	viper.SetDefault("pipeline.scoring.workers", d.Scoring.Workers)
	viper.SetDefault("pipeline.graph.edge_creation_threshold", d.Graph.EdgeCreationThreshold)
	viper.SetDefault("pipeline.clustering.relation", d.Clustering.Relation)
	viper.SetDefault("pipeline.clustering.min_cluster_size", d.Clustering.MinClusterSize)
	viper.SetDefault("pipeline.clustering.max_cluster_size", d.Clustering.MaxClusterSize)
	viper.SetDefault("pipeline.clustering.oversize_policy", d.Clustering.OversizePolicy)
	viper.SetDefault("pipeline.clustering.max_edges", d.Clustering.MaxEdges)
	viper.SetDefault("pipeline.clustering.warn_edges", d.Clustering.WarnEdges)
	viper.SetDefault("pipeline.golden.default_rule", d.Golden.DefaultRule)
}

// LoadPipelineFile reads a standalone YAML pipeline document, applying
// defaults for anything the document omits.
func LoadPipelineFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline document: %w", err)
	}
	cfg := DefaultPipeline()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline document: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validRules = map[string]bool{
	"completeness":    true,
	"most_frequent":   true,
	"longest":         true,
	"source_priority": true,
}

var validStrategies = map[string]bool{
	StrategyComposite: true,
	StrategyExact:     true,
	StrategyPhonetic:  true,
	StrategyText:      true,
	StrategyVector:    true,
	StrategyLSH:       true,
}

// Validate rejects unusable pipeline configurations.
func (c *PipelineConfig) Validate() error {
	if c.Blocking.MaxBlockSize <= 0 {
		return &ConfigError{"blocking", "max_block_size", "must be positive"}
	}
	for i, s := range c.Blocking.Strategies {
		loc := fmt.Sprintf("strategies[%d]", i)
		if !validStrategies[s.Kind] {
			return &ConfigError{"blocking", loc + ".kind", fmt.Sprintf("unknown strategy %q", s.Kind)}
		}
		switch s.Kind {
		case StrategyComposite:
			if len(s.Fields) == 0 {
				return &ConfigError{"blocking", loc + ".fields", "composite strategy needs at least one field"}
			}
		case StrategyExact, StrategyPhonetic, StrategyText:
			if len(s.Fields) != 1 {
				return &ConfigError{"blocking", loc + ".fields", "strategy needs exactly one field"}
			}
		case StrategyLSH:
			if s.Tables <= 0 || s.Hyperplanes <= 0 {
				return &ConfigError{"blocking", loc, "lsh strategy needs positive tables and hyperplanes"}
			}
			if s.Dimensions <= 0 {
				return &ConfigError{"blocking", loc + ".dimensions", "lsh strategy needs the embedding dimension"}
			}
		}
	}
	if c.Scoring.BatchSize <= 0 {
		return &ConfigError{"scoring", "batch_size", "must be positive"}
	}
	if c.Scoring.Workers <= 0 {
		return &ConfigError{"scoring", "workers", "must be positive"}
	}
	if c.Graph.EdgeCreationThreshold < 0 || c.Graph.EdgeCreationThreshold > 1 {
		return &ConfigError{"graph", "edge_creation_threshold", "must be in [0,1]"}
	}
	if len(c.Weights.Fields) > 0 {
		if err := c.Weights.Validate(); err != nil {
			return &ConfigError{"weights", "fields", err.Error()}
		}
	}
	cl := c.Clustering
	if cl.MinClusterSize < 2 {
		return &ConfigError{"clustering", "min_cluster_size", "must be at least 2"}
	}
	if cl.MaxClusterSize < cl.MinClusterSize {
		return &ConfigError{"clustering", "max_cluster_size", "must be >= min_cluster_size"}
	}
	switch cl.OversizePolicy {
	case OversizeFlag, OversizeDrop, OversizeSplit:
	default:
		return &ConfigError{"clustering", "oversize_policy", fmt.Sprintf("unknown policy %q", cl.OversizePolicy)}
	}
	if cl.MaxEdges <= 0 || cl.WarnEdges <= 0 || cl.WarnEdges > cl.MaxEdges {
		return &ConfigError{"clustering", "max_edges", "edge limits must be positive with warn <= max"}
	}
	if !validRules[c.Golden.DefaultRule] {
		return &ConfigError{"golden", "default_rule", fmt.Sprintf("unknown rule %q", c.Golden.DefaultRule)}
	}
	for field, rule := range c.Golden.FieldRules {
		if !validRules[rule] {
			return &ConfigError{"golden", "field_rules." + field, fmt.Sprintf("unknown rule %q", rule)}
		}
	}
	if c.Golden.DefaultRule == "source_priority" && len(c.Golden.SourcePriority) == 0 {
		return &ConfigError{"golden", "source_priority", "source_priority rule needs a priority list"}
	}
	return nil
}

// Hash returns the hex SHA-256 of the canonical JSON form of the pipeline
// configuration. Run reports carry it so results can be traced back to the
// exact parameters that produced them.
func (c *PipelineConfig) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
