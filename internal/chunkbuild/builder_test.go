package chunkbuild

import (
	"context"
	"strings"
	"testing"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/reader"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.calls >= len(f.responses) {
		return llm.Response{}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return llm.Response{Content: resp}, nil
}

func testBuildConfig() *config.BuildConfig {
	cfg := config.DefaultBuildConfig()
	cfg.MinSummaryLen = 5
	cfg.MaxSummaryLen = 200
	return cfg
}

func TestBuildChunkWithNoClientUsesFallback(t *testing.T) {
	b := NewBuilder(store.New(t.TempDir()), nil, nil, nil, config.DefaultAPIConfig(), testBuildConfig())
	tokens := []reader.AtomicToken{reader.NewTextToken("hello world, this is the chunk body")}

	chunk, err := b.BuildChunk(context.Background(), "a.txt", 0, tokens, "plain_text_reader_v0")
	require.NoError(t, err)
	assert.Equal(t, "untitled", chunk.Title)
	assert.Equal(t, "hello world, this is the chunk body", chunk.Data)
	assert.Equal(t, 0, chunk.ImageCount)
}

func TestBuildChunkUsesLLMTitleAndSummaryOnValidResponse(t *testing.T) {
	tpl := llm.ParseTemplate("<|user|>\n{{content}}\n")
	client := &fakeClient{responses: []string{`{"title":"My Title","summary":"A summary that is long enough to pass."}`}}
	b := NewBuilder(store.New(t.TempDir()), client, tpl, nil, config.DefaultAPIConfig(), testBuildConfig())
	tokens := []reader.AtomicToken{reader.NewTextToken("body text")}

	chunk, err := b.BuildChunk(context.Background(), "a.txt", 0, tokens, "plain_text_reader_v0")
	require.NoError(t, err)
	assert.Equal(t, "My Title", chunk.Title)
	assert.Equal(t, "A summary that is long enough to pass.", chunk.Summary)
}

func TestBuildChunkFallsBackAfterRetriesExhausted(t *testing.T) {
	tpl := llm.ParseTemplate("<|user|>\n{{content}}\n")
	client := &fakeClient{responses: []string{"not json", "still not json", "nope"}}
	api := config.DefaultAPIConfig()
	api.MaxRetry = 3
	b := NewBuilder(store.New(t.TempDir()), client, tpl, nil, api, testBuildConfig())
	tokens := []reader.AtomicToken{reader.NewTextToken("body text for fallback")}

	chunk, err := b.BuildChunk(context.Background(), "a.txt", 0, tokens, "plain_text_reader_v0")
	require.NoError(t, err)
	assert.Equal(t, "untitled", chunk.Title)
	assert.Equal(t, 3, client.calls)
}

func TestBuildChunkSourceAndBuildInfoRecorded(t *testing.T) {
	b := NewBuilder(store.New(t.TempDir()), nil, nil, nil, config.DefaultAPIConfig(), testBuildConfig())
	tokens := []reader.AtomicToken{reader.NewTextToken("text")}

	chunk, err := b.BuildChunk(context.Background(), "dir/file.md", 3, tokens, "markdown_reader_v0")
	require.NoError(t, err)
	require.NotNil(t, chunk.Source.File)
	assert.Equal(t, "dir/file.md", chunk.Source.File.Path)
	assert.Equal(t, 3, chunk.Source.File.IndexInFile)
	assert.Equal(t, "markdown_reader_v0", chunk.BuildInfo.ReaderKey)
	assert.Equal(t, EngineVersion(), chunk.BuildInfo.EngineVersion)
}

func TestPersistWritesChunkAndTfidfSidecar(t *testing.T) {
	blobs := store.New(t.TempDir())
	b := NewBuilder(blobs, nil, nil, nil, config.DefaultAPIConfig(), testBuildConfig())

	chunk := &Chunk{UID: strings.Repeat("ab", 32), Data: "hello", Title: "t", Summary: "summary long enough"}
	require.NoError(t, b.Persist(chunk))

	assert.True(t, blobs.Exists(store.KindChunk, chunk.UID, ".chunk"))
	assert.True(t, blobs.Exists(store.KindChunk, chunk.UID, ".tfidf"))
}

func TestRemoveDeletesChunkAndSidecar(t *testing.T) {
	blobs := store.New(t.TempDir())
	b := NewBuilder(blobs, nil, nil, nil, config.DefaultAPIConfig(), testBuildConfig())

	chunk := &Chunk{UID: strings.Repeat("cd", 32), Data: "hello", Title: "t", Summary: "summary long enough"}
	require.NoError(t, b.Persist(chunk))
	require.NoError(t, b.Remove(chunk.UID))

	assert.False(t, blobs.Exists(store.KindChunk, chunk.UID, ".chunk"))
	assert.False(t, blobs.Exists(store.KindChunk, chunk.UID, ".tfidf"))
}
