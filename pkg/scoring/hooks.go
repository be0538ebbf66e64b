package scoring

import (
	"strings"

	"github.com/tributary-data/coalesce/pkg/similarity"
	"github.com/tributary-data/coalesce/pkg/types"
)

// PairFilter rejects pairs before any comparison work is spent on them.
type PairFilter interface {
	Name() string
	Keep(a, b *types.Record) bool
}

// TextTransformer rewrites a field's comparison text. Transformers apply to
// both sides of a pair, so a transform can never favor one endpoint.
type TextTransformer interface {
	Name() string
	Transform(field, text string) string
}

// ScoreAdjuster revises an aggregated outcome using record context.
type ScoreAdjuster interface {
	Name() string
	Adjust(a, b *types.Record, out *similarity.Outcome)
}

// TypeFilter drops pairs whose entity types are both present and different.
// Records without a type pass through; absence of evidence is not a mismatch.
type TypeFilter struct {
	Field string
}

func (f *TypeFilter) Name() string { return "type_filter" }

func (f *TypeFilter) Keep(a, b *types.Record) bool {
	ta := strings.ToLower(strings.TrimSpace(a.Text(f.Field)))
	tb := strings.ToLower(strings.TrimSpace(b.Text(f.Field)))
	if ta == "" || tb == "" {
		return true
	}
	return ta == tb
}

// AcronymExpander normalizes dotted acronyms ("I.B.M." -> "IBM") and strips
// the periods from abbreviations in the configured fields, so "IBM Corp." and
// "I.B.M. Corp" compare equal.
type AcronymExpander struct {
	Fields []string
}

func (e *AcronymExpander) Name() string { return "acronym_expander" }

func (e *AcronymExpander) applies(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (e *AcronymExpander) Transform(field, text string) string {
	if !e.applies(field) || text == "" {
		return text
	}
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if isDottedAcronym(tok) {
			tokens[i] = strings.ReplaceAll(tok, ".", "")
		}
	}
	return strings.Join(tokens, " ")
}

// isDottedAcronym reports whether tok looks like "I.B.M." or "U.S.A": single
// letters separated by periods. Abbreviations like "Dr." don't qualify.
func isDottedAcronym(tok string) bool {
	run := 0
	letters := 0
	for _, r := range tok {
		switch {
		case r == '.':
			run = 0
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			run++
			letters++
			if run > 1 {
				return false
			}
		default:
			return false
		}
	}
	return letters >= 2
}

// ContextResolver blends the token overlap of a parent-context field into the
// normalized score. Two "John Smith" records under the same employer deserve
// more credit than two under unrelated employers.
type ContextResolver struct {
	Field  string
	Weight float64
}

func (r *ContextResolver) Name() string { return "context_resolver" }

func (r *ContextResolver) Adjust(a, b *types.Record, out *similarity.Outcome) {
	ctxA := a.Text(r.Field)
	ctxB := b.Text(r.Field)
	if ctxA == "" || ctxB == "" {
		return
	}
	w := r.Weight
	if w <= 0 || w > 1 {
		w = 0.2
	}
	overlap := similarity.TokenJaccard{}.Compare(ctxA, ctxB)
	out.NormalizedScore = (1-w)*out.NormalizedScore + w*overlap
	if out.NormalizedScore > 1 {
		out.NormalizedScore = 1
	}
}
