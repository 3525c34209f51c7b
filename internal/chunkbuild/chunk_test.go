package chunkbuild

import (
	"strings"
	"testing"

	"github.com/ragit-kb/ragit/internal/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Testable property (spec §8): uid(c) = hash(source.hash || title ||
// summary || data) with metadata tail {chunk, len(data)}.
func TestComputeUIDMatchesMetadataTail(t *testing.T) {
	sourceHash := []byte("some-source-hash")
	got := ComputeUID(sourceHash, "Title", "Summary", "some data")
	assert.Equal(t, uid.KindChunk, got.Kind())
	assert.EqualValues(t, len("some data"), got.DataSize())

	again := ComputeUID(sourceHash, "Title", "Summary", "some data")
	assert.Equal(t, got, again)

	changed := ComputeUID(sourceHash, "Title", "Summary", "different data")
	assert.NotEqual(t, got, changed)
}

func TestMarshalUnmarshalRoundTripPlain(t *testing.T) {
	chunks := []*Chunk{{UID: "uid1", Data: "small", Title: "t", Summary: "s"}}
	blob, err := Marshal(chunks, 1<<20) // threshold far above payload size
	require.NoError(t, err)
	assert.Equal(t, byte(uncompressPrefix), blob[0])

	got, err := Unmarshal(blob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[0].UID, got[0].UID)
	assert.Equal(t, chunks[0].Data, got[0].Data)
}

func TestMarshalUnmarshalRoundTripCompressed(t *testing.T) {
	bigData := strings.Repeat("x", 5000)
	chunks := []*Chunk{{UID: "uid1", Data: bigData, Title: "t", Summary: "s"}}
	blob, err := Marshal(chunks, 100) // tiny threshold forces compression
	require.NoError(t, err)
	assert.Equal(t, byte(compressPrefix), blob[0])

	got, err := Unmarshal(blob)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bigData, got[0].Data)
}

// Gzip-compressed vs. plain chunk persistence produces an identical
// in-memory Chunk after load (spec §8 round-trip law).
func TestCompressedAndPlainProduceIdenticalChunkAfterLoad(t *testing.T) {
	chunks := []*Chunk{{UID: "uid1", Data: "identical content", Title: "t", Summary: "s"}}
	plain, err := Marshal(chunks, 1<<20)
	require.NoError(t, err)
	compressed, err := Marshal(chunks, 1)
	require.NoError(t, err)

	gotPlain, err := Unmarshal(plain)
	require.NoError(t, err)
	gotCompressed, err := Unmarshal(compressed)
	require.NoError(t, err)

	assert.Equal(t, gotPlain, gotCompressed)
}

func TestUnmarshalRejectsInvalidPrefix(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 'x'})
	assert.Error(t, err)
}

func TestUnmarshalRejectsEmptyBlob(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.Error(t, err)
}

func TestHaystackUsesFilePathFromFileSource(t *testing.T) {
	c := &Chunk{
		Title:   "T",
		Summary: "S",
		Data:    "D",
		Source:  Source{File: &FileSource{Path: "a.txt", IndexInFile: 0}},
	}
	assert.Equal(t, "a.txt\nT\nT\nS\nD", c.Haystack())
}

func TestHaystackEmptyFileWhenChunksSourced(t *testing.T) {
	c := &Chunk{
		Title:   "T",
		Summary: "S",
		Data:    "D",
		Source:  Source{Chunks: &ChunksSource{UIDs: []string{"a"}}},
	}
	assert.Equal(t, "\nT\nT\nS\nD", c.Haystack())
}

func TestValidateSummaryEnforcesBounds(t *testing.T) {
	ok, _ := validateSummary("short", 10, 100)
	assert.False(t, ok)

	ok, _ = validateSummary(strings.Repeat("a", 50), 10, 100)
	assert.True(t, ok)

	ok, _ = validateSummary(strings.Repeat("a", 200), 10, 100)
	assert.False(t, ok)

	ok, _ = validateSummary("has\nnewline", 0, 100)
	assert.False(t, ok)
}
