package types

import (
	"errors"
	"time"
)

// Fusion rule names, one per field in the golden-record configuration.
type FusionRule string

const (
	// RuleCompleteness takes the value from the member with the highest
	// overall completeness score. Default rule.
	RuleCompleteness FusionRule = "completeness"
	// RuleMostFrequent takes the majority value; ties break by recency,
	// then by lexicographic source id.
	RuleMostFrequent FusionRule = "most_frequent"
	// RuleLongest takes the longest non-null value.
	RuleLongest FusionRule = "longest"
	// RuleSourcePriority takes the value from the highest-priority source
	// collection that has one.
	RuleSourcePriority FusionRule = "source_priority"
)

var ErrMissingProvenance = errors.New("golden record field has no provenance")

// Provenance records which member contributed a fused value and under
// which rule.
type Provenance struct {
	SourceID string     `json:"source_id"`
	Rule     FusionRule `json:"rule"`
	// Alternatives lists the competing values that were considered,
	// rendered in comparison form.
	Alternatives []string `json:"alternatives,omitempty"`
}

// FusedField is one golden-record field with its provenance.
type FusedField struct {
	Value      Value      `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// GoldenRecord is the fused canonical representative of one cluster. It
// references members and cluster by id only.
type GoldenRecord struct {
	ID        string                `json:"id"`
	ClusterID string                `json:"cluster_id"`
	MemberIDs []string              `json:"member_ids"`
	Fields    map[string]FusedField `json:"fields"`

	// DataQualityScore is the fraction of configured fields populated.
	DataQualityScore float64 `json:"data_quality_score"`
	// ConfidenceScore is the mean pairwise confidence of the cluster.
	ConfidenceScore float64   `json:"confidence_score"`
	EntityType      string    `json:"entity_type,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks that every field carries provenance naming a member.
func (g *GoldenRecord) Validate() error {
	if g.ID == "" {
		return ErrEmptyID
	}
	members := make(map[string]struct{}, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		members[id] = struct{}{}
	}
	for _, f := range g.Fields {
		if f.Provenance.SourceID == "" {
			return ErrMissingProvenance
		}
		if _, ok := members[f.Provenance.SourceID]; !ok {
			return ErrMissingProvenance
		}
	}
	return nil
}
