package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTextSearchesEveryKind(t *testing.T) {
	q := WithText("abc123")
	assert.Equal(t, "abc123", q.Text)
	assert.True(t, q.SearchChunk)
	assert.True(t, q.SearchImage)
	assert.True(t, q.SearchFilePath)
	assert.True(t, q.SearchFileUid)
	assert.True(t, q.SearchStagedFile)
}

func TestFileOrChunkEnablesChunkAndFileSearch(t *testing.T) {
	q := WithText("abc").FileOrChunk()
	assert.True(t, q.SearchChunk)
	assert.True(t, q.SearchFilePath)
	assert.True(t, q.SearchFileUid)
	assert.True(t, q.SearchImage, "FileOrChunk only adds flags, it doesn't turn SearchImage off on its own")
}

func TestFileOnlyRestrictsToFiles(t *testing.T) {
	q := WithText("abc").FileOnly()
	assert.False(t, q.SearchChunk)
	assert.False(t, q.SearchImage)
	assert.True(t, q.SearchFilePath)
	assert.True(t, q.SearchFileUid)
}

func TestNoStagedFileExcludesStaged(t *testing.T) {
	q := WithText("abc").NoStagedFile()
	assert.False(t, q.SearchStagedFile)
	assert.True(t, q.SearchFilePath, "NoStagedFile must not disturb other flags")
}

func TestFileOnlyThenNoStagedFileComposes(t *testing.T) {
	q := WithText("abc").FileOnly().NoStagedFile()
	assert.False(t, q.SearchChunk)
	assert.False(t, q.SearchImage)
	assert.False(t, q.SearchStagedFile)
	assert.True(t, q.SearchFilePath)
}

func TestResultLenAndIsEmpty(t *testing.T) {
	var r Result
	assert.Equal(t, 0, r.Len())
	assert.True(t, r.IsEmpty())
	assert.False(t, r.HasMultipleMatches())
}

func TestResultLenSumsAllKinds(t *testing.T) {
	r := Result{
		Chunks:         []Uid{NewChunk([]byte("h"), "t", "s", "d")},
		Images:         []Uid{NewFile("img.png", []byte("x"))},
		ProcessedFiles: []ProcessedFile{{Path: "a.txt", Uid: NewFile("a.txt", []byte("a"))}},
		StagedFiles:    []string{"b.txt", "c.txt"},
	}
	assert.Equal(t, 5, r.Len())
	assert.False(t, r.IsEmpty())
	assert.True(t, r.HasMultipleMatches())
}

func TestResultChunkUidRequiresExactlyOne(t *testing.T) {
	u := NewChunk([]byte("h"), "t", "s", "d")

	none := Result{}
	_, ok := none.ChunkUid()
	assert.False(t, ok)

	one := Result{Chunks: []Uid{u}}
	got, ok := one.ChunkUid()
	assert.True(t, ok)
	assert.Equal(t, u, got)

	many := Result{Chunks: []Uid{u, NewChunk([]byte("h2"), "t", "s", "d")}}
	_, ok = many.ChunkUid()
	assert.False(t, ok)
}

func TestResultImageUidRequiresExactlyOne(t *testing.T) {
	u := NewFile("img.png", []byte("x"))

	one := Result{Images: []Uid{u}}
	got, ok := one.ImageUid()
	assert.True(t, ok)
	assert.Equal(t, u, got)

	none := Result{}
	_, ok = none.ImageUid()
	assert.False(t, ok)
}

func TestResultProcessedFileMatchRequiresExactlyOne(t *testing.T) {
	pf := ProcessedFile{Path: "a.txt", Uid: NewFile("a.txt", []byte("a"))}

	one := Result{ProcessedFiles: []ProcessedFile{pf}}
	got, ok := one.ProcessedFileMatch()
	assert.True(t, ok)
	assert.Equal(t, pf, got)

	many := Result{ProcessedFiles: []ProcessedFile{pf, pf}}
	_, ok = many.ProcessedFileMatch()
	assert.False(t, ok)
}

func TestResultStagedFileMatchRequiresExactlyOne(t *testing.T) {
	one := Result{StagedFiles: []string{"a.txt"}}
	got, ok := one.StagedFileMatch()
	assert.True(t, ok)
	assert.Equal(t, "a.txt", got)

	none := Result{}
	_, ok = none.StagedFileMatch()
	assert.False(t, ok)

	many := Result{StagedFiles: []string{"a.txt", "b.txt"}}
	_, ok = many.StagedFileMatch()
	assert.False(t, ok)
}
