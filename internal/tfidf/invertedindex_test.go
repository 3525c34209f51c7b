package tfidf

import (
	"testing"

	"github.com/ragit-kb/ragit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvertedIndexSearchTermMissingReturnsEmpty(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	uids, err := ii.SearchTerm("nope")
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestBuilderAddThenFlushPersistsPostings(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b := NewBuilder(ii)
	require.NoError(t, b.Add("chunk-1", []string{"fox", "dog"}))
	require.NoError(t, b.Add("chunk-2", []string{"fox"}))
	require.NoError(t, b.Flush())

	uids, err := ii.SearchTerm("fox")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, uids)

	uids, err = ii.SearchTerm("dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-1"}, uids)
}

func TestBuilderFlushMergesWithExistingPostings(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b1 := NewBuilder(ii)
	require.NoError(t, b1.Add("chunk-1", []string{"fox"}))
	require.NoError(t, b1.Flush())

	b2 := NewBuilder(ii)
	require.NoError(t, b2.Add("chunk-2", []string{"fox"}))
	require.NoError(t, b2.Flush())

	uids, err := ii.SearchTerm("fox")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, uids)
}

func TestCandidatesRanksByWeightedIdf(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b := NewBuilder(ii)
	require.NoError(t, b.Add("rare-hit", []string{"fox"}))
	require.NoError(t, b.Add("common-hit", []string{"the"}))
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Add("filler", []string{"the"}))
	}
	require.NoError(t, b.Flush())

	got, err := ii.Candidates(map[string]float64{"fox": 1.0}, 12, 10)
	require.NoError(t, err)
	assert.Contains(t, got, "rare-hit")
}

func TestCandidatesRespectsLimit(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b := NewBuilder(ii)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(string(rune('a'+i)), []string{"fox"}))
	}
	require.NoError(t, b.Flush())

	got, err := ii.Candidates(map[string]float64{"fox": 1.0}, 5, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResetRemovesAllPostingLists(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b := NewBuilder(ii)
	require.NoError(t, b.Add("chunk-1", []string{"fox"}))
	require.NoError(t, b.Flush())

	require.NoError(t, ii.Reset())

	uids, err := ii.SearchTerm("fox")
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestBuilderAutoFlushesPastThreshold(t *testing.T) {
	ii := NewInvertedIndex(store.New(t.TempDir()))
	b := NewBuilder(ii)
	for i := 0; i < autoFlush+1; i++ {
		term := "term" + string(rune(i))
		require.NoError(t, b.Add("chunk-x", []string{term}))
	}
	assert.LessOrEqual(t, len(b.buffer), autoFlush)
}
