package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactComparator(t *testing.T) {
	c := Exact{}
	assert.Equal(t, 1.0, c.Compare("Acme Corp", "acme  corp"))
	assert.Equal(t, 0.0, c.Compare("Acme Corp", "Acme Inc"))
	assert.Equal(t, 0.0, c.Compare("", ""), "both empty must not count as agreement")
	assert.Equal(t, 0.0, c.Compare("Acme", ""))
}

func TestNGramJaccard(t *testing.T) {
	c := NGramJaccard{N: 3}
	assert.Equal(t, 1.0, c.Compare("martha", "martha"))
	assert.Equal(t, 0.0, c.Compare("", ""))
	assert.Equal(t, 0.0, c.Compare("abc", "xyz"))

	sim := c.Compare("nichols", "nicholson")
	assert.Greater(t, sim, 0.5)
	assert.Less(t, sim, 1.0)

	// Inputs shorter than n fall back to exact equality.
	assert.Equal(t, 1.0, c.Compare("ab", "AB"))
	assert.Equal(t, 0.0, c.Compare("ab", "cd"))
}

func TestLevenshtein(t *testing.T) {
	c := Levenshtein{}
	assert.Equal(t, 1.0, c.Compare("smith", "smith"))
	assert.Equal(t, 0.0, c.Compare("", "smith"))
	// kitten -> sitting: 3 edits over max length 7.
	assert.InDelta(t, 1-3.0/7.0, c.Compare("kitten", "sitting"), 1e-9)
}

func TestJaroWinkler(t *testing.T) {
	c := JaroWinkler{}
	assert.Equal(t, 1.0, c.Compare("martha", "martha"))
	assert.Equal(t, 0.0, c.Compare("", "martha"))
	assert.InDelta(t, 0.9611, c.Compare("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.8400, c.Compare("dwayne", "duane"), 0.001)

	// Shared prefix lifts the score above plain Jaro.
	jaro := jaroSimilarity("dixon", "dickson")
	assert.Greater(t, c.Compare("dixon", "dickson"), jaro)
}

func TestPhonetic(t *testing.T) {
	c := Phonetic{}
	assert.Equal(t, 1.0, c.Compare("Robert", "Rupert"))
	assert.Equal(t, 1.0, c.Compare("Smith", "Smyth"))
	assert.Equal(t, 0.0, c.Compare("Smith", "Jones"))
	assert.Equal(t, 0.0, c.Compare("", ""))
}

func TestSoundexCodes(t *testing.T) {
	cases := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"Honeyman": "H555",
		"":         "",
		"123":      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Soundex(in), "soundex(%q)", in)
	}
}

func TestTokenJaccard(t *testing.T) {
	c := TokenJaccard{}
	assert.Equal(t, 1.0, c.Compare("acme corp", "Corp ACME"))
	assert.InDelta(t, 1.0/3.0, c.Compare("acme corp", "acme inc"), 1e-9)
	assert.Equal(t, 0.0, c.Compare("", "acme"))
}

func TestCosineVectors(t *testing.T) {
	assert.InDelta(t, 1.0, CosineVectors([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineVectors([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineVectors([]float32{-1, 0}, []float32{1, 0}), "negative cosine clamps to zero")
	assert.Equal(t, 0.0, CosineVectors(nil, []float32{1}))
	assert.Equal(t, 0.0, CosineVectors([]float32{1, 2}, []float32{1}))
}

func TestRegistryResolvesStandardSet(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"exact", "ngram", "levenshtein", "jaro_winkler", "soundex", "token_jaccard"} {
		c, ok := r.Get(name)
		require.True(t, ok, "missing comparator %q", name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := r.Get("nope")
	assert.False(t, ok)
}
