package index

import (
	"testing"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
	"github.com/ragit-kb/ragit/internal/uid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSoundKB(t *testing.T) *store.BlobStore {
	t.Helper()
	blobs := store.New(t.TempDir())
	require.NoError(t, blobs.EnsureLayout())

	fileUID := uid.NewFile("a.txt", []byte("file contents"))
	c := &chunkbuild.Chunk{
		UID:    chunkbuild.ComputeUID([]byte("a.txt"), "t", "s", "data").String(),
		Data:   "data",
		Title:  "t",
		Summary: "s",
		Source: chunkbuild.Source{File: &chunkbuild.FileSource{Path: "a.txt", IndexInFile: 0}},
	}
	blob, err := chunkbuild.Marshal([]*chunkbuild.Chunk{c}, 1<<20)
	require.NoError(t, err)
	require.NoError(t, blobs.Write(store.KindChunk, c.UID, ".chunk", blob))

	doc := tfidf.NewProcessedDoc(c.UID, c.Haystack())
	sidecar, err := tfidf.Marshal([]*tfidf.ProcessedDoc{doc})
	require.NoError(t, err)
	require.NoError(t, blobs.Write(store.KindChunk, c.UID, ".tfidf", sidecar))

	meta := New()
	meta.ChunkCount = 1
	meta.ProcessedFiles["a.txt"] = fileUID.String()
	require.NoError(t, Save(blobs.DataDir(), meta))
	return blobs
}

func TestCheckReportsOkOnSoundKB(t *testing.T) {
	blobs := seedSoundKB(t)
	report, err := Check(blobs)
	require.NoError(t, err)
	assert.True(t, report.Ok(), "problems: %v", report.Problems)
}

func TestCheckFlagsMissingTfidfSidecar(t *testing.T) {
	blobs := seedSoundKB(t)
	uids, err := blobs.List(store.KindChunk, ".chunk")
	require.NoError(t, err)
	require.Len(t, uids, 1)
	require.NoError(t, blobs.Remove(store.KindChunk, uids[0], ".tfidf"))

	report, err := Check(blobs)
	require.NoError(t, err)
	assert.False(t, report.Ok())
	assert.Contains(t, report.Problems[0], "missing .tfidf sidecar")
}

func TestCheckFlagsChunkCountMismatch(t *testing.T) {
	blobs := seedSoundKB(t)
	meta, err := Load(blobs.DataDir())
	require.NoError(t, err)
	meta.ChunkCount = 99
	require.NoError(t, Save(blobs.DataDir(), meta))

	report, err := Check(blobs)
	require.NoError(t, err)
	assert.False(t, report.Ok())
	found := false
	for _, p := range report.Problems {
		if p == "chunk_count is 99, observed 1" {
			found = true
		}
	}
	assert.True(t, found, "problems: %v", report.Problems)
}

func TestCheckFlagsChunkReferencingUnprocessedFile(t *testing.T) {
	blobs := seedSoundKB(t)
	meta, err := Load(blobs.DataDir())
	require.NoError(t, err)
	delete(meta.ProcessedFiles, "a.txt")
	require.NoError(t, Save(blobs.DataDir(), meta))

	report, err := Check(blobs)
	require.NoError(t, err)
	assert.False(t, report.Ok())
}

func TestCheckReportAsErrorNilWhenOk(t *testing.T) {
	report := &CheckReport{}
	assert.NoError(t, report.AsError())
}

func TestCheckReportAsErrorWrapsFirstProblem(t *testing.T) {
	report := &CheckReport{Problems: []string{"first problem", "second problem"}}
	err := report.AsError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first problem")
}
