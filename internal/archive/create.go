package archive

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/store"
)

// CreateOptions controls what Create bundles into the archive beyond
// the index and chunk/image data; these are all optional.
type CreateOptions struct {
	// OutputPrefix is the base path; files are written as
	// "{OutputPrefix}-{seq:04}".
	OutputPrefix string
	// SizeLimit rolls output over to a new file past this many bytes.
	// Zero or negative disables rollover.
	SizeLimit int64
	// PromptsDir, if set, bundles every *.pdl file found there as a
	// Prompt block.
	PromptsDir string
	// IncludeConfig bundles the KB's three JSON config documents.
	IncludeConfig bool
}

// blockJob is one block's payload, awaiting parallel compression.
type blockJob struct {
	typ     Type
	payload any
}

// Create serializes blobs (chunks, images, index metadata, and
// optionally prompts/config) into one or more archive files, rolling
// over per opts.SizeLimit, and returns the file paths written in order.
func Create(blobs *store.BlobStore, opts CreateOptions) ([]string, error) {
	meta, err := index.Load(blobs.DataDir())
	if err != nil {
		return nil, err
	}

	jobs, err := buildJobs(blobs, meta, opts)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeJobsParallel(jobs)
	if err != nil {
		return nil, err
	}

	w := newRolloverWriter(opts.OutputPrefix, opts.SizeLimit)
	for _, block := range encoded {
		if err := w.writeBlock(block); err != nil {
			for _, p := range w.paths {
				_ = os.Remove(p)
			}
			return nil, err
		}
	}
	return w.Close()
}

// buildJobs walks the KB's file indices and images into flushed Chunk /
// ImageBytes / ImageDesc blocks (roughly 1 MiB each), plus a single
// Index block and the requested optional blocks.
func buildJobs(blobs *store.BlobStore, meta *index.Metadata, opts CreateOptions) ([]blockJob, error) {
	var jobs []blockJob

	indexJob, err := indexBlockJob(meta)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, indexJob)

	chunkJobs, err := chunkBlockJobs(blobs, meta)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, chunkJobs...)

	imageJobs, err := imageBlockJobs(blobs)
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, imageJobs...)

	jobs = append(jobs, blockJob{typ: TypeMeta, payload: map[string]string{
		"ragit_version": meta.RagitVersion,
	}})

	if opts.PromptsDir != "" {
		promptJob, err := promptBlockJob(opts.PromptsDir)
		if err != nil {
			return nil, err
		}
		if promptJob != nil {
			jobs = append(jobs, *promptJob)
		}
	}

	if opts.IncludeConfig {
		configJob, err := configBlockJob(blobs.DataDir())
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, configJob)
	}

	return jobs, nil
}

func indexBlockJob(meta *index.Metadata) (blockJob, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return blockJob{}, fmt.Errorf("archive: marshal index metadata: %w", err)
	}
	var minified map[string]any
	if err := json.Unmarshal(raw, &minified); err != nil {
		return blockJob{}, fmt.Errorf("archive: minify index metadata: %w", err)
	}
	return blockJob{typ: TypeIndex, payload: minified}, nil
}

// chunkBlockJobs walks every processed file's file_index blob in order,
// reads each referenced chunk, and batches them into ~1MiB Chunk blocks.
func chunkBlockJobs(blobs *store.BlobStore, meta *index.Metadata) ([]blockJob, error) {
	paths := make([]string, 0, len(meta.ProcessedFiles))
	for path := range meta.ProcessedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var jobs []blockJob
	var batch []*chunkbuild.Chunk
	batchSize := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		jobs = append(jobs, blockJob{typ: TypeChunk, payload: batch})
		batch = nil
		batchSize = 0
	}

	for _, path := range paths {
		fileUID := meta.ProcessedFiles[path]
		data, err := blobs.Read(store.KindFileIndex, fileUID, "")
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("archive: read file index for %s: %w", path, err)
		}
		var chunkUIDs []string
		if err := json.Unmarshal(data, &chunkUIDs); err != nil {
			return nil, fmt.Errorf("archive: decode file index for %s: %w", path, err)
		}
		for _, chunkUID := range chunkUIDs {
			chunkData, err := blobs.Read(store.KindChunk, chunkUID, ".chunk")
			if err != nil {
				return nil, fmt.Errorf("archive: read chunk %s: %w", chunkUID, err)
			}
			chunks, err := chunkbuild.Unmarshal(chunkData)
			if err != nil {
				return nil, fmt.Errorf("archive: decode chunk %s: %w", chunkUID, err)
			}
			batch = append(batch, chunks...)
			batchSize += len(chunkData)
			if batchSize >= flushThreshold {
				flush()
			}
		}
	}
	flush()
	return jobs, nil
}

// imageBlockJobs walks every image, batching the raw PNG bytes into
// ImageBytes blocks and the descriptions into ImageDesc blocks, each
// flushed at roughly 1 MiB.
func imageBlockJobs(blobs *store.BlobStore) ([]blockJob, error) {
	uids, err := blobs.List(store.KindImage, ".png")
	if err != nil {
		return nil, fmt.Errorf("archive: list images: %w", err)
	}

	var jobs []blockJob
	bytesBatch := make(map[string]string)
	descBatch := make(map[string]chunkbuild.ImageDescription)
	batchSize := 0

	flush := func() {
		if len(bytesBatch) == 0 {
			return
		}
		jobs = append(jobs, blockJob{typ: TypeImageBytes, payload: bytesBatch})
		jobs = append(jobs, blockJob{typ: TypeImageDesc, payload: descBatch})
		bytesBatch = make(map[string]string)
		descBatch = make(map[string]chunkbuild.ImageDescription)
		batchSize = 0
	}

	for _, uid := range uids {
		png, err := blobs.Read(store.KindImage, uid, ".png")
		if err != nil {
			return nil, fmt.Errorf("archive: read image %s: %w", uid, err)
		}
		var desc chunkbuild.ImageDescription
		if descData, err := blobs.Read(store.KindImage, uid, ".json"); err == nil {
			_ = json.Unmarshal(descData, &desc)
		}
		bytesBatch[uid] = base64.StdEncoding.EncodeToString(png)
		descBatch[uid] = desc
		batchSize += len(png)
		if batchSize >= flushThreshold {
			flush()
		}
	}
	flush()
	return jobs, nil
}

func promptBlockJob(dir string) (*blockJob, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list prompts %s: %w", dir, err)
	}
	prompts := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pdl" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("archive: read prompt %s: %w", e.Name(), err)
		}
		name := e.Name()[:len(e.Name())-len(".pdl")]
		prompts[name] = string(data)
	}
	if len(prompts) == 0 {
		return nil, nil
	}
	return &blockJob{typ: TypePrompt, payload: prompts}, nil
}

func configBlockJob(dataDir string) (blockJob, error) {
	api, err := config.LoadAPIConfig(dataDir)
	if err != nil {
		return blockJob{}, err
	}
	build, err := config.LoadBuildConfig(dataDir)
	if err != nil {
		return blockJob{}, err
	}
	query, err := config.LoadQueryConfig(dataDir)
	if err != nil {
		return blockJob{}, err
	}
	return blockJob{typ: TypeConfig, payload: map[string]any{
		"api":   api,
		"build": build,
		"query": query,
	}}, nil
}

// encodeJobsParallel gzip-encodes every job concurrently, returning the
// encoded blocks in the same order as jobs.
func encodeJobsParallel(jobs []blockJob) ([][]byte, error) {
	out := make([][]byte, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			block, err := encodeBlock(job.typ, job.payload)
			if err != nil {
				return err
			}
			out[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
