package types

// CandidatePair is an unordered pair of record ids in canonical order
// (A < B), together with the blocking strategies that produced it.
// Pairs are deduplicated across strategies; when several strategies emit
// the same pair, Strategies lists all of them.
type CandidatePair struct {
	A          string   `json:"a"`
	B          string   `json:"b"`
	Strategies []string `json:"strategies,omitempty"`
	BlockKey   string   `json:"block_key,omitempty"`
}

// NewCandidatePair canonicalizes the endpoints. It returns ErrSelfPair when
// both ids are equal; a pair never references a record against itself.
func NewCandidatePair(a, b, strategy, blockKey string) (CandidatePair, error) {
	if a == b {
		return CandidatePair{}, ErrSelfPair
	}
	if b < a {
		a, b = b, a
	}
	p := CandidatePair{A: a, B: b, BlockKey: blockKey}
	if strategy != "" {
		p.Strategies = []string{strategy}
	}
	return p, nil
}

// Key returns the canonical identity of the pair, independent of which
// strategies produced it.
func (p CandidatePair) Key() string { return p.A + "|" + p.B }

// MergeStrategy records an additional producing strategy, keeping the list
// duplicate-free.
func (p *CandidatePair) MergeStrategy(strategies ...string) {
	for _, s := range strategies {
		found := false
		for _, existing := range p.Strategies {
			if existing == s {
				found = true
				break
			}
		}
		if !found {
			p.Strategies = append(p.Strategies, s)
		}
	}
}

// Decision is the three-valued outcome of scoring a pair.
type Decision string

const (
	DecisionMatch         Decision = "match"
	DecisionPossibleMatch Decision = "possible_match"
	DecisionNonMatch      Decision = "non_match"
)

// FieldSimilarities maps field-comparator names (e.g. "last_name.jaro_winkler")
// to similarities in [0,1].
type FieldSimilarities map[string]float64

// ScoredPair extends a candidate pair with the Fellegi-Sunter outcome.
type ScoredPair struct {
	Pair CandidatePair `json:"pair"`

	// RawScore is the unbounded summed log-likelihood ratio.
	RawScore float64 `json:"raw_score"`
	// NormalizedScore is RawScore scaled by the sum of field importances,
	// clamped to [0,1].
	NormalizedScore float64  `json:"normalized_score"`
	Decision        Decision `json:"decision"`
	// Confidence in [0,1], derived from the distance to the nearest
	// decision threshold.
	Confidence float64 `json:"confidence"`

	// Similarities optionally carries the per-field similarity vector the
	// score was computed from.
	Similarities FieldSimilarities `json:"similarities,omitempty"`
}
