package tfidf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeStemsAndDropsPunctuation(t *testing.T) {
	got := Tokenize("Hello, world!")
	assert.Equal(t, []string{"hello", "world"}, got)
}

func TestTokenizeSplitsOnSpecialChars(t *testing.T) {
	got := Tokenize("foo_bar/baz-qux")
	assert.ElementsMatch(t, []string{"foo", "bar", "baz", "qux"}, got)
}

func TestKeywordsWithWeightsSplitsMass(t *testing.T) {
	k := Keywords{Important: []string{"fox"}, Extra: []string{"dog"}}
	weighted := k.WithWeights(4.0)
	require.Len(t, weighted, 2)
	assert.InDelta(t, 0.8, weighted[0].Weight, 1e-9)
	assert.InDelta(t, 0.2, weighted[1].Weight, 1e-9)
}

func TestKeywordsWithWeightsDefaultsOnNonPositive(t *testing.T) {
	k := Keywords{Important: []string{"fox"}}
	a := k.WithWeights(0)
	b := k.WithWeights(defaultWeight)
	assert.Equal(t, b, a)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, Keywords{}.IsEmpty())
	assert.False(t, Keywords{Important: []string{"x"}}.IsEmpty())
}

func TestProcessedDocMarshalUnmarshalRoundTrip(t *testing.T) {
	doc := NewProcessedDoc("uid-1", "the quick brown fox")
	blob, err := Marshal([]*ProcessedDoc{doc})
	require.NoError(t, err)

	got, err := Unmarshal(blob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, doc.ChunkUID, got[0].ChunkUID)
	assert.Equal(t, doc.Tokens, got[0].Tokens)
	assert.Equal(t, doc.Length, got[0].Length)
}

func TestProcessedDocExtendSumsTokensAndLength(t *testing.T) {
	a := NewProcessedDoc("chunk-1", "the fox")
	b := NewProcessedDoc("chunk-2", "the dog")
	a.Extend(b)
	assert.Equal(t, "", a.ChunkUID)
	assert.Equal(t, 4, a.Length)
	assert.Equal(t, 2, a.Get("the"))
	assert.Equal(t, 1, a.Get("fox"))
	assert.Equal(t, 1, a.Get("dog"))
}

func TestIdfMonotonicallyDecreasesInDocFrequency(t *testing.T) {
	docCount := 100
	prev := Idf(docCount, 0)
	for df := 1; df <= docCount; df++ {
		cur := Idf(docCount, df)
		assert.Less(t, cur, prev)
		prev = cur
	}
}

// Scenario 3 (spec §8): two chunks, query "fox" favors the fox chunk
// over the common-term query "the".
func TestStateScoresRareTermOverCommonTerm(t *testing.T) {
	foxDoc := NewProcessedDoc("fox-chunk", "the quick brown fox")
	dogDoc := NewProcessedDoc("dog-chunk", "the lazy dog")

	fox := NewState(Keywords{Important: []string{"fox"}}, defaultWeight)
	fox.Consume(foxDoc.ChunkUID, foxDoc)
	fox.Consume(dogDoc.ChunkUID, dogDoc)
	top := fox.GetTop(1)
	require.Len(t, top, 1)
	assert.Equal(t, "fox-chunk", top[0].ChunkUID)
	assert.Greater(t, top[0].Score, 0.0)

	common := NewState(Keywords{Important: []string{"the"}}, defaultWeight)
	common.Consume(foxDoc.ChunkUID, foxDoc)
	common.Consume(dogDoc.ChunkUID, dogDoc)
	topCommon := common.GetTop(1)
	require.Len(t, topCommon, 1)
	assert.InDelta(t, 0.0, topCommon[0].Score, 1e-9)
}

func TestStateGetTopRespectsLimit(t *testing.T) {
	s := NewState(Keywords{Important: []string{"fox"}}, defaultWeight)
	for i := 0; i < 5; i++ {
		s.Consume(string(rune('a'+i)), NewProcessedDoc(string(rune('a'+i)), "fox fox fox"))
	}
	top := s.GetTop(2)
	assert.Len(t, top, 2)
}

func TestHaystackWeightsTitleTwice(t *testing.T) {
	h := Haystack("f.txt", "Title", "Summary", "Data")
	assert.Equal(t, "f.txt\nTitle\nTitle\nSummary\nData", h)
}
