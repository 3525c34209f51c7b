package index

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/reader"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
	"github.com/ragit-kb/ragit/internal/uid"
)

// buildMarker is the sentinel written to curr_processing_file while a
// build is in flight, regardless of which worker is presently active
// curr_processing_file is non-nil exactly while a build is in flight.
const buildMarker = "<build>"

// CoordinatorConfig wires a Coordinator to a project root, its blob
// store and the LLM-backed chunk builder.
type CoordinatorConfig struct {
	Root    string
	Blobs   *store.BlobStore
	Client  llm.Client
	API     *config.APIConfig
	Build   *config.BuildConfig
	Workers int
	// SummarizeTemplate renders summarize.pdl; DescribeTemplate renders
	// describe_image.pdl (optional).
	SummarizeTemplate *llm.Template
	DescribeTemplate  *llm.Template
	StrictReaders     bool
}

// Coordinator is the single owner of a KB's index.json and inverted
// index during a build: both are per-KB singletons the coordinator
// exclusively mutates.
type Coordinator struct {
	cfg     CoordinatorConfig
	builder *chunkbuild.Builder
	ii      *tfidf.InvertedIndex
	mu      sync.Mutex
}

// NewCoordinator constructs a Coordinator ready to Build, Check or
// Recover a KB rooted at cfg.Root.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	builder := chunkbuild.NewBuilder(cfg.Blobs, cfg.Client, cfg.SummarizeTemplate, cfg.DescribeTemplate, cfg.API, cfg.Build)
	return &Coordinator{
		cfg:     cfg,
		builder: builder,
		ii:      tfidf.NewInvertedIndex(cfg.Blobs),
	}
}

// fileOutcome is the result of one worker processing a single staged
// file: either a FileComplete summary or an Error.
type fileOutcome struct {
	path        string
	chunks      []*chunkbuild.Chunk
	fileContent []byte
	err         error
}

// BuildSummary reports what a Build call did.
type BuildSummary struct {
	FilesProcessed int
	ChunksBuilt    int
	Errors         map[string]string
}

// Build processes every staged file: each worker reads, chunks and
// builds one file end to end; the coordinator commits completed files
// in batches of cfg.Build.BatchMinSize; the last batch may be smaller.
func (c *Coordinator) Build(ctx context.Context) (*BuildSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := Load(c.cfg.Blobs.DataDir())
	if err != nil {
		return nil, err
	}
	if meta.Dirty() {
		return nil, errors.DirtyKnowledgeBase(*meta.CurrProcessingFile)
	}
	if len(meta.StagedFiles) == 0 {
		return &BuildSummary{Errors: map[string]string{}}, nil
	}

	marker := buildMarker
	meta.CurrProcessingFile = &marker
	if err := Save(c.cfg.Blobs.DataDir(), meta); err != nil {
		return nil, err
	}

	staged := append([]string(nil), meta.StagedFiles...)
	sort.Strings(staged)

	outcomes := make(chan fileOutcome, len(staged))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.cfg.Workers)

	var apiKeyAborts int
	var successCount int
	var abortMu sync.Mutex

	for _, path := range staged {
		path := path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			chunks, content, err := c.processFile(gctx, path)
			if err != nil {
				var apiErr *llm.ErrAPIKeyNotFound
				abortMu.Lock()
				if asAPIKeyErr(err, &apiErr) {
					apiKeyAborts++
				}
				fatal := apiKeyAborts > 0 && successCount == 0
				abortMu.Unlock()
				outcomes <- fileOutcome{path: path, err: err}
				if fatal {
					return err
				}
				return nil
			}
			abortMu.Lock()
			successCount++
			abortMu.Unlock()
			outcomes <- fileOutcome{path: path, chunks: chunks, fileContent: content}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	summary := &BuildSummary{Errors: make(map[string]string)}
	var batch []fileOutcome
	for oc := range outcomes {
		if oc.err != nil {
			summary.Errors[oc.path] = oc.err.Error()
			slog.Warn("build: file failed", "file", oc.path, "error", oc.err)
			continue
		}
		batch = append(batch, oc)
		if len(batch) >= c.cfg.Build.BatchMinSize {
			if err := c.commitBatch(meta, batch); err != nil {
				return nil, err
			}
			summary.FilesProcessed += len(batch)
			for _, b := range batch {
				summary.ChunksBuilt += len(b.chunks)
			}
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := c.commitBatch(meta, batch); err != nil {
			return nil, err
		}
		summary.FilesProcessed += len(batch)
		for _, b := range batch {
			summary.ChunksBuilt += len(b.chunks)
		}
	}

	meta.CurrProcessingFile = nil
	if err := Save(c.cfg.Blobs.DataDir(), meta); err != nil {
		return nil, err
	}

	if gerr := g.Wait(); gerr != nil {
		return summary, gerr
	}
	return summary, nil
}

func asAPIKeyErr(err error, target **llm.ErrAPIKeyNotFound) bool {
	return stderrors.As(err, target)
}

// processFile reads path, chunks it with the registered reader and
// builds+persists every resulting chunk, returning them in
// index_in_file order.
func (c *Coordinator) processFile(ctx context.Context, relPath string) ([]*chunkbuild.Chunk, []byte, error) {
	absPath := filepath.Join(c.cfg.Root, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("index: read %s: %w", relPath, err)
	}

	inner, err := reader.New(absPath, c.cfg.StrictReaders)
	if err != nil {
		return nil, nil, fmt.Errorf("index: select reader for %s: %w", relPath, err)
	}
	fr := reader.NewFileReader(relPath, inner, reader.ChunkingConfig{
		ChunkSize: c.cfg.Build.ChunkSize,
		SlideLen:  c.cfg.Build.SlideLen,
		ImageSize: c.cfg.Build.ImageSize,
	})

	var chunks []*chunkbuild.Chunk
	for fr.CanGenerateChunk() {
		tokens, err := fr.NextChunk()
		if err != nil {
			return nil, nil, fmt.Errorf("index: chunk %s: %w", relPath, err)
		}
		if tokens == nil {
			break
		}
		chunk, err := c.builder.BuildChunk(ctx, relPath, fr.FileIndex(), tokens, fr.FileReaderKey())
		if err != nil {
			for _, built := range chunks {
				_ = c.builder.Remove(built.UID)
			}
			return nil, nil, fmt.Errorf("index: build chunk %s#%d: %w", relPath, fr.FileIndex(), err)
		}
		if err := c.builder.Persist(chunk); err != nil {
			for _, built := range chunks {
				_ = c.builder.Remove(built.UID)
			}
			return nil, nil, fmt.Errorf("index: persist chunk %s#%d: %w", relPath, fr.FileIndex(), err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, content, nil
}

// commitBatch applies a batch of completed files: old chunks for
// re-processed paths are dropped, file_index blobs and processed_files
// are updated, the inverted index grows if it was already Complete,
// chunk_count is bumped, and index.json is persisted.
func (c *Coordinator) commitBatch(meta *Metadata, batch []fileOutcome) error {
	iiBuilder := tfidf.NewBuilder(c.ii)
	updateII := meta.IIStatus.Kind == tfidf.IIStatusComplete

	for _, oc := range batch {
		if oldUID, ok := meta.ProcessedFiles[oc.path]; ok {
			if err := c.removeFileChunks(oldUID); err != nil {
				return err
			}
			meta.ChunkCount -= c.fileChunkCount(oldUID)
		}

		fileUID := uid.NewFile(oc.path, oc.fileContent)
		chunkUIDs := make([]string, len(oc.chunks))
		for i, ch := range oc.chunks {
			chunkUIDs[i] = ch.UID
			if updateII {
				doc := tfidf.NewProcessedDoc(ch.UID, ch.Haystack())
				tokens := make([]string, 0, len(doc.Tokens))
				for tok := range doc.Tokens {
					tokens = append(tokens, tok)
				}
				if err := iiBuilder.Add(ch.UID, tokens); err != nil {
					return fmt.Errorf("index: inverted index add for %s: %w", oc.path, err)
				}
			}
		}

		blob, err := json.Marshal(chunkUIDs)
		if err != nil {
			return fmt.Errorf("index: marshal file index for %s: %w", oc.path, err)
		}
		if err := c.cfg.Blobs.Write(store.KindFileIndex, fileUID.String(), "", blob); err != nil {
			return fmt.Errorf("index: write file index for %s: %w", oc.path, err)
		}

		meta.ProcessedFiles[oc.path] = fileUID.String()
		meta.Unstage(oc.path)
		meta.ChunkCount += len(oc.chunks)
	}

	if updateII {
		if err := iiBuilder.Flush(); err != nil {
			return fmt.Errorf("index: flush inverted index: %w", err)
		}
	}

	return Save(c.cfg.Blobs.DataDir(), meta)
}

// removeFileChunks deletes every chunk (and tfidf sidecar) listed in the
// file_index blob for fileUID, then the file_index blob itself.
func (c *Coordinator) removeFileChunks(fileUID string) error {
	uids, err := c.readFileIndex(fileUID)
	if err != nil {
		return err
	}
	for _, chunkUID := range uids {
		if err := c.builder.Remove(chunkUID); err != nil {
			return fmt.Errorf("index: remove stale chunk %s: %w", chunkUID, err)
		}
	}
	return c.cfg.Blobs.Remove(store.KindFileIndex, fileUID, "")
}

func (c *Coordinator) fileChunkCount(fileUID string) int {
	uids, err := c.readFileIndex(fileUID)
	if err != nil {
		return 0
	}
	return len(uids)
}

func (c *Coordinator) readFileIndex(fileUID string) ([]string, error) {
	data, err := c.cfg.Blobs.Read(store.KindFileIndex, fileUID, "")
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: read file index %s: %w", fileUID, err)
	}
	var uids []string
	if err := json.Unmarshal(data, &uids); err != nil {
		return nil, fmt.Errorf("index: decode file index %s: %w", fileUID, err)
	}
	return uids, nil
}

// Stage records path as staged for the next Build, rejecting the call
// while a build is in flight, returning a DirtyKnowledgeBase error.
func (c *Coordinator) Stage(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := Load(c.cfg.Blobs.DataDir())
	if err != nil {
		return err
	}
	if meta.Dirty() {
		return errors.DirtyKnowledgeBase(*meta.CurrProcessingFile)
	}
	meta.Stage(path)
	return Save(c.cfg.Blobs.DataDir(), meta)
}
