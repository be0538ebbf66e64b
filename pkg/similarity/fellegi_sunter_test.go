package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-data/coalesce/pkg/types"
)

func testTable() WeightTable {
	return WeightTable{
		Fields: map[string]FieldWeight{
			"name":  {Comparator: "jaro_winkler", MProb: 0.9, UProb: 0.1, Threshold: 0.85, Importance: 1.0},
			"email": {Comparator: "exact", MProb: 0.95, UProb: 0.01, Threshold: 1.0, Importance: 2.0},
			"city":  {Comparator: "exact", MProb: 0.8, UProb: 0.3, Threshold: 1.0, Importance: 0.5},
		},
		UpperThreshold: 3.0,
		LowerThreshold: -1.0,
	}
}

func TestWeightTableValidate(t *testing.T) {
	require.NoError(t, testTable().Validate())

	empty := WeightTable{UpperThreshold: 1, LowerThreshold: 0}
	assert.ErrorIs(t, empty.Validate(), ErrNoFields)

	flipped := testTable()
	flipped.UpperThreshold, flipped.LowerThreshold = flipped.LowerThreshold, flipped.UpperThreshold
	assert.ErrorIs(t, flipped.Validate(), ErrInvalidThresholds)

	badProb := testTable()
	fw := badProb.Fields["name"]
	fw.MProb = 1.5
	badProb.Fields["name"] = fw
	assert.Error(t, badProb.Validate())
}

func TestAggregateDecisions(t *testing.T) {
	table := testTable()

	allAgree := types.FieldSimilarities{"name": 0.95, "email": 1.0, "city": 1.0}
	out := table.Aggregate(allAgree)
	assert.Equal(t, types.DecisionMatch, out.Decision)
	assert.Greater(t, out.RawScore, table.UpperThreshold)

	allDisagree := types.FieldSimilarities{"name": 0.2, "email": 0.0, "city": 0.0}
	out = table.Aggregate(allDisagree)
	assert.Equal(t, types.DecisionNonMatch, out.Decision)
	assert.Less(t, out.RawScore, table.LowerThreshold)

	// Name agrees, email disagrees: lands in the uncertainty band.
	mixed := types.FieldSimilarities{"name": 0.9, "email": 0.0, "city": 1.0}
	out = table.Aggregate(mixed)
	assert.Equal(t, types.DecisionPossibleMatch, out.Decision)
}

func TestAggregateThresholdBoundary(t *testing.T) {
	// One field whose agreement weight lands exactly on the upper threshold
	// and whose disagreement weight lands exactly on the lower. Scores on a
	// threshold stay in the uncertainty band.
	agreeWeight := math.Log(0.9 / 0.1)
	disagreeWeight := math.Log((1 - 0.9) / (1 - 0.1))
	table := WeightTable{
		Fields: map[string]FieldWeight{
			"name": {Comparator: "exact", MProb: 0.9, UProb: 0.1, Threshold: 1.0, Importance: 1.0},
		},
		UpperThreshold: agreeWeight,
		LowerThreshold: disagreeWeight,
	}
	require.NoError(t, table.Validate())

	atUpper := table.Aggregate(types.FieldSimilarities{"name": 1.0})
	assert.Equal(t, table.UpperThreshold, atUpper.RawScore)
	assert.Equal(t, types.DecisionPossibleMatch, atUpper.Decision)

	atLower := table.Aggregate(types.FieldSimilarities{"name": 0.0})
	assert.Equal(t, table.LowerThreshold, atLower.RawScore)
	assert.Equal(t, types.DecisionPossibleMatch, atLower.Decision)
}

func TestAggregateMissingFieldCountsAsDisagreement(t *testing.T) {
	table := testTable()
	withEmail := table.Aggregate(types.FieldSimilarities{"name": 0.95, "email": 1.0, "city": 1.0})
	without := table.Aggregate(types.FieldSimilarities{"name": 0.95, "city": 1.0})
	assert.Less(t, without.RawScore, withEmail.RawScore)
}

func TestAggregateDeterminism(t *testing.T) {
	table := testTable()
	sims := types.FieldSimilarities{"name": 0.87, "email": 1.0, "city": 0.0}
	first := table.Aggregate(sims)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, table.Aggregate(sims))
	}
}

func TestProbabilityClamping(t *testing.T) {
	table := WeightTable{
		Fields: map[string]FieldWeight{
			// Probabilities past the clamp bounds must not produce infinities.
			"id": {MProb: 0.9999, UProb: 0.0001, Threshold: 1.0, Importance: 1.0},
		},
		UpperThreshold: 1.0,
		LowerThreshold: -1.0,
	}
	out := table.Aggregate(types.FieldSimilarities{"id": 1.0})
	assert.False(t, math.IsInf(out.RawScore, 0))
	assert.InDelta(t, math.Log(MaxProbability/MinProbability), out.RawScore, 1e-9)
}

func TestConfidenceShape(t *testing.T) {
	table := testTable()

	// Scores hugging a threshold are low-confidence.
	atUpper := table.confidence(table.UpperThreshold)
	assert.InDelta(t, 0.5, atUpper, 1e-9)

	// Deep past the upper threshold confidence saturates at 1.
	assert.Equal(t, 1.0, table.confidence(table.UpperThreshold+10))
	assert.Equal(t, 1.0, table.confidence(table.LowerThreshold-10))

	// Confidence is within [0,1] across the whole range.
	for raw := -10.0; raw <= 10.0; raw += 0.25 {
		c := table.confidence(raw)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestNormalizedScoreBounds(t *testing.T) {
	table := testTable()
	for _, sims := range []types.FieldSimilarities{
		{"name": 1.0, "email": 1.0, "city": 1.0},
		{"name": 0.0, "email": 0.0, "city": 0.0},
		{},
	} {
		out := table.Aggregate(sims)
		assert.GreaterOrEqual(t, out.NormalizedScore, 0.0)
		assert.LessOrEqual(t, out.NormalizedScore, 1.0)
	}
}
