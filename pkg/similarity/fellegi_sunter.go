package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tributary-data/coalesce/pkg/types"
)

// Probability clamping bounds. m and u probabilities outside this range make
// the log-likelihood ratio explode, so they are pinned before use.
const (
	MinProbability = 0.001
	MaxProbability = 0.999
)

var (
	ErrNoFields          = errors.New("weight table has no fields")
	ErrInvalidThresholds = errors.New("upper threshold must exceed lower threshold")
)

// FieldWeight carries the Fellegi-Sunter parameters for one field.
type FieldWeight struct {
	Comparator string  `json:"comparator" mapstructure:"comparator" yaml:"comparator"`
	MProb      float64 `json:"m_prob" mapstructure:"m_prob" yaml:"m_prob"`
	UProb      float64 `json:"u_prob" mapstructure:"u_prob" yaml:"u_prob"`
	Threshold  float64 `json:"threshold" mapstructure:"threshold" yaml:"threshold"`
	Importance float64 `json:"importance" mapstructure:"importance" yaml:"importance"`
}

// WeightTable aggregates per-field similarities into a match decision.
// Raw scores strictly above UpperThreshold are matches and strictly below
// LowerThreshold non-matches; a score landing exactly on either threshold
// stays in the uncertainty band.
type WeightTable struct {
	Fields         map[string]FieldWeight `json:"fields" mapstructure:"fields" yaml:"fields"`
	UpperThreshold float64                `json:"upper_threshold" mapstructure:"upper_threshold" yaml:"upper_threshold"`
	LowerThreshold float64                `json:"lower_threshold" mapstructure:"lower_threshold" yaml:"lower_threshold"`
}

// Validate checks the table is usable for scoring.
func (t WeightTable) Validate() error {
	if len(t.Fields) == 0 {
		return ErrNoFields
	}
	if t.UpperThreshold <= t.LowerThreshold {
		return ErrInvalidThresholds
	}
	for name, fw := range t.Fields {
		if fw.MProb <= 0 || fw.MProb >= 1 || fw.UProb <= 0 || fw.UProb >= 1 {
			return fmt.Errorf("field %q: m and u probabilities must be in (0,1)", name)
		}
		if fw.Importance < 0 {
			return fmt.Errorf("field %q: importance must be non-negative", name)
		}
		if fw.Threshold < 0 || fw.Threshold > 1 {
			return fmt.Errorf("field %q: threshold must be in [0,1]", name)
		}
	}
	return nil
}

// FieldNames returns the configured field paths in sorted order so that
// score aggregation visits fields deterministically.
func (t WeightTable) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outcome is the aggregated result for one candidate pair.
type Outcome struct {
	RawScore        float64        `json:"raw_score"`
	NormalizedScore float64        `json:"normalized_score"`
	Decision        types.Decision `json:"decision"`
	Confidence      float64        `json:"confidence"`
}

// Aggregate folds per-field similarities into a Fellegi-Sunter outcome. Each
// field whose similarity meets its threshold contributes log(m/u) weighted by
// importance; fields below threshold contribute log((1-m)/(1-u)). Fields
// absent from sims count as disagreement, matching the comparators' rule that
// missing data never supports a match.
func (t WeightTable) Aggregate(sims types.FieldSimilarities) Outcome {
	var total, sumImportance float64
	for _, name := range t.FieldNames() {
		fw := t.Fields[name]
		m := clampProb(fw.MProb)
		u := clampProb(fw.UProb)

		var ratio float64
		if sims[name] >= fw.Threshold {
			ratio = math.Log(m / u)
		} else {
			ratio = math.Log((1 - m) / (1 - u))
		}
		total += ratio * fw.Importance
		sumImportance += fw.Importance
	}

	out := Outcome{RawScore: total}
	if sumImportance > 0 {
		out.NormalizedScore = clamp01(total / sumImportance)
	}

	switch {
	case total > t.UpperThreshold:
		out.Decision = types.DecisionMatch
	case total < t.LowerThreshold:
		out.Decision = types.DecisionNonMatch
	default:
		out.Decision = types.DecisionPossibleMatch
	}
	out.Confidence = t.confidence(total)
	return out
}

// confidence maps distance from the nearest decision threshold onto [0,1].
// Scores deep past a threshold, or deep inside the uncertainty band, are
// high-confidence; scores hugging a threshold sit near 0.5.
func (t WeightTable) confidence(raw float64) float64 {
	scale := (t.UpperThreshold - t.LowerThreshold) / 2
	if scale <= 0 {
		scale = 1
	}
	dist := math.Min(math.Abs(raw-t.UpperThreshold), math.Abs(raw-t.LowerThreshold))
	return clamp01(0.5 + 0.5*math.Min(1, dist/scale))
}

func clampProb(p float64) float64 {
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
