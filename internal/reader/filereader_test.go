package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenText(tokens []AtomicToken) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.Kind == TokenText {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// Scenario 1 (spec §8): a.txt with 3500 characters, chunk_size=2000,
// slide_len=200 yields 2 chunks, and the second chunk's first 200
// characters equal the first chunk's last 200.
func TestFileReaderTinyKBEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	content := strings.Repeat("abcdefghij", 350) // 3500 chars
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	inner, err := NewPlainTextReader(path)
	require.NoError(t, err)
	fr := NewFileReader("a.txt", inner, ChunkingConfig{ChunkSize: 2000, SlideLen: 200, ImageSize: 1000})

	var chunks []string
	for fr.CanGenerateChunk() {
		toks, err := fr.NextChunk()
		require.NoError(t, err)
		if toks == nil {
			break
		}
		chunks = append(chunks, tokenText(toks))
	}

	require.Len(t, chunks, 2)
	first, second := chunks[0], chunks[1]
	require.GreaterOrEqual(t, len(first), 200)
	require.GreaterOrEqual(t, len(second), 200)
	assert.Equal(t, first[len(first)-200:], second[:200])
}

func TestFileReaderNoOverlapWhenSourceExhaustedMidChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.txt")
	content := strings.Repeat("x", 100)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	inner, err := NewPlainTextReader(path)
	require.NoError(t, err)
	fr := NewFileReader("small.txt", inner, ChunkingConfig{ChunkSize: 2000, SlideLen: 200, ImageSize: 1000})

	require.True(t, fr.CanGenerateChunk())
	toks, err := fr.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, content, tokenText(toks))

	assert.False(t, fr.CanGenerateChunk())
}

func TestFileReaderMergesAdjacentTextTokens(t *testing.T) {
	merged := mergeTokens([]AtomicToken{
		NewTextToken("foo"),
		NewTextToken("bar"),
		NewImageToken(ImagePayload{Key: "img1"}),
		NewTextToken("baz"),
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "foobar", merged[0].Text)
	assert.Equal(t, TokenImage, merged[1].Kind)
}

func TestFileReaderFileIndexIncrements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("z", 3500)), 0o644))

	inner, err := NewPlainTextReader(path)
	require.NoError(t, err)
	fr := NewFileReader("a.txt", inner, ChunkingConfig{ChunkSize: 2000, SlideLen: 200, ImageSize: 1000})

	assert.Equal(t, 0, fr.FileIndex())
	_, err = fr.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, 1, fr.FileIndex())
	_, err = fr.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, 2, fr.FileIndex())
}
