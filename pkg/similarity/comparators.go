package similarity

import (
	"strings"

	"github.com/tributary-data/coalesce/pkg/utils"
)

// Comparator scores the similarity of two field values in [0,1].
type Comparator interface {
	Name() string
	Compare(a, b string) float64
}

// normalize case-folds and collapses whitespace before comparison.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Exact scores 1 when the normalized values are equal, 0 otherwise.
type Exact struct{}

func (Exact) Name() string { return "exact" }

func (Exact) Compare(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return 0
}

// NGramJaccard scores the Jaccard overlap of character n-grams, case-folded
// and whitespace-normalized. N defaults to 3.
type NGramJaccard struct {
	N int
}

func (c NGramJaccard) Name() string { return "ngram" }

func (c NGramJaccard) Compare(a, b string) float64 {
	n := c.N
	if n <= 0 {
		n = 3
	}
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	ga := ngrams(na, n)
	gb := ngrams(nb, n)
	if len(ga) == 0 || len(gb) == 0 {
		if na == nb {
			return 1
		}
		return 0
	}
	intersection := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			intersection++
		}
	}
	union := len(ga) + len(gb) - intersection
	return float64(intersection) / float64(union)
}

func ngrams(s string, n int) map[string]struct{} {
	grams := make(map[string]struct{})
	runes := []rune(s)
	for i := 0; i+n <= len(runes); i++ {
		grams[string(runes[i:i+n])] = struct{}{}
	}
	return grams
}

// Levenshtein scores 1 - editDistance/max(|a|,|b|).
type Levenshtein struct{}

func (Levenshtein) Name() string { return "levenshtein" }

func (Levenshtein) Compare(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ra, rb := []rune(na), []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(editDistance(ra, rb))/float64(maxLen)
}

// editDistance is Wagner-Fischer with a rolling row.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// JaroWinkler is standard Jaro with the Winkler prefix boost
// (scale 0.1, boost threshold 0.7, prefix capped at 4).
type JaroWinkler struct{}

func (JaroWinkler) Name() string { return "jaro_winkler" }

func (JaroWinkler) Compare(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	jaro := jaroSimilarity(na, nb)
	if jaro < 0.7 {
		return jaro
	}
	prefix := 0
	for i := 0; i < minInt(len(na), len(nb)) && i < 4; i++ {
		if na[i] != nb[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1-jaro)
}

func jaroSimilarity(s1, s2 string) float64 {
	len1, len2 := len(s1), len(s2)
	matchWindow := maxInt(len1, len2)/2 - 1
	if matchWindow < 0 {
		matchWindow = 0
	}

	s1Matches := make([]bool, len1)
	s2Matches := make([]bool, len2)
	matches := 0
	for i := 0; i < len1; i++ {
		start := maxInt(0, i-matchWindow)
		end := minInt(i+matchWindow+1, len2)
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	return (float64(matches)/float64(len1) +
		float64(matches)/float64(len2) +
		float64(matches-transpositions/2)/float64(matches)) / 3
}

// Phonetic scores 1 when the Soundex codes of both values agree.
type Phonetic struct{}

func (Phonetic) Name() string { return "soundex" }

func (Phonetic) Compare(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if Soundex(na) == Soundex(nb) {
		return 1
	}
	return 0
}

// TokenJaccard scores whitespace-token overlap. The hierarchical context
// hook uses it to compare parent-entity descriptions.
type TokenJaccard struct{}

func (TokenJaccard) Name() string { return "token_jaccard" }

func (TokenJaccard) Compare(a, b string) float64 {
	ta := strings.Fields(strings.ToLower(a))
	tb := strings.Fields(strings.ToLower(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	seta := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		seta[t] = struct{}{}
	}
	setb := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		setb[t] = struct{}{}
	}
	intersection := 0
	for t := range seta {
		if _, ok := setb[t]; ok {
			intersection++
		}
	}
	union := len(seta) + len(setb) - intersection
	return float64(intersection) / float64(union)
}

// CosineVectors scores two embedding vectors as the dot product of their
// L2-normalized forms, clamped to [0,1]. Mismatched or empty vectors score 0.
func CosineVectors(a, b []float32) float64 {
	sim := utils.CosineSimilarity(a, b)
	if sim < 0 {
		return 0
	}
	return sim
}

// Registry resolves comparators by name.
type Registry struct {
	comparators map[string]Comparator
}

// NewRegistry returns a registry with the standard comparator set.
func NewRegistry() *Registry {
	r := &Registry{comparators: make(map[string]Comparator)}
	for _, c := range []Comparator{
		Exact{},
		NGramJaccard{N: 3},
		Levenshtein{},
		JaroWinkler{},
		Phonetic{},
		TokenJaccard{},
	} {
		r.comparators[c.Name()] = c
	}
	return r
}

// Register adds or replaces a comparator.
func (r *Registry) Register(c Comparator) { r.comparators[c.Name()] = c }

// Get resolves a comparator by name.
func (r *Registry) Get(name string) (Comparator, bool) {
	c, ok := r.comparators[name]
	return c, ok
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
