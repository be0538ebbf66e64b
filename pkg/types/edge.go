package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SimilarityRelation is the relation type used for match edges.
const SimilarityRelation = "similar_to"

// SimilarityEdge is an undirected weighted edge between two record ids.
// Invariants: no self loops, endpoints in canonical order, weight at or
// above the configured edge-creation threshold.
type SimilarityEdge struct {
	Key      string  `json:"key"`
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
	// Confidence is the scoring confidence of the underlying pair decision,
	// kept on the edge so clustering can aggregate it.
	Confidence float64 `json:"confidence"`
	// Methods lists the blocking strategies that surfaced the underlying pair.
	Methods   []string  `json:"methods,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EdgeKey derives the deterministic key for an edge between two ids under a
// relation. Endpoints are sorted first, so re-runs upsert the same key and
// graph building stays idempotent.
func EdgeKey(a, b, relation string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b + "|" + relation))
	return hex.EncodeToString(sum[:16])
}

// NewSimilarityEdge builds a canonical edge from a scored pair's endpoints,
// weight, and decision confidence. Returns ErrSelfPair when the endpoints
// coincide.
func NewSimilarityEdge(a, b string, weight, confidence float64, methods []string) (SimilarityEdge, error) {
	if a == b {
		return SimilarityEdge{}, ErrSelfPair
	}
	if b < a {
		a, b = b, a
	}
	return SimilarityEdge{
		Key:        EdgeKey(a, b, SimilarityRelation),
		SourceID:   a,
		TargetID:   b,
		Relation:   SimilarityRelation,
		Weight:     weight,
		Confidence: confidence,
		Methods:    methods,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// EdgeProvenance preserves an original endpoint pair after relationship
// remapping onto golden ids.
type EdgeProvenance struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// RelationshipEdge is a domain relationship between records (not a match
// edge). The golden-record sweeper remaps its endpoints to canonical golden
// ids, concatenating provenance when remapped edges collide.
type RelationshipEdge struct {
	Key        string           `json:"key"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Relation   string           `json:"relation"`
	Provenance []EdgeProvenance `json:"provenance,omitempty"`
}
