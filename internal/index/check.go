package index

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/uid"
)

// CheckReport lists every invariant violation Check found. An empty
// report means the KB is sound.
type CheckReport struct {
	Problems []string
}

func (r *CheckReport) add(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Ok reports whether no problems were found.
func (r *CheckReport) Ok() bool { return len(r.Problems) == 0 }

// Check validates every on-disk invariant the knowledge base must hold,
// returning a report of violations rather than failing on the first one so a
// caller sees the whole picture before deciding whether to Recover.
func Check(blobs *store.BlobStore) (*CheckReport, error) {
	report := &CheckReport{}

	meta, err := Load(blobs.DataDir())
	if err != nil {
		return nil, err
	}

	chunkUIDs, err := blobs.List(store.KindChunk, ".chunk")
	if err != nil {
		return nil, fmt.Errorf("index: list chunks: %w", err)
	}

	referencedImages := make(map[string]bool)
	observedChunks := 0
	fileXor := uid.Zero

	for _, chunkUID := range chunkUIDs {
		data, err := blobs.Read(store.KindChunk, chunkUID, ".chunk")
		if err != nil {
			report.add("chunk %s: cannot read .chunk blob: %v", chunkUID, err)
			continue
		}
		chunks, err := chunkbuild.Unmarshal(data)
		if err != nil {
			report.add("chunk %s: corrupt .chunk blob: %v", chunkUID, err)
			continue
		}
		observedChunks += len(chunks)

		if !blobs.Exists(store.KindChunk, chunkUID, ".tfidf") {
			report.add("chunk %s: missing .tfidf sidecar", chunkUID)
		}

		for _, chunk := range chunks {
			if chunk.Source.File == nil {
				continue
			}
			if _, ok := meta.ProcessedFiles[chunk.Source.File.Path]; !ok {
				report.add("chunk %s: source file %q not in processed_files", chunk.UID, chunk.Source.File.Path)
			}
			for _, imgUID := range chunk.Images {
				referencedImages[imgUID] = true
				if !blobs.Exists(store.KindImage, imgUID, ".png") || !blobs.Exists(store.KindImage, imgUID, ".json") {
					report.add("chunk %s: image %s missing .png or .json", chunk.UID, imgUID)
					continue
				}
				pngBytes, err := blobs.Read(store.KindImage, imgUID, ".png")
				if err == nil {
					if _, decodeErr := png.Decode(bytes.NewReader(pngBytes)); decodeErr != nil {
						report.add("image %s: .png does not decode: %v", imgUID, decodeErr)
					}
				}
			}
		}
	}

	if observedChunks != meta.ChunkCount {
		report.add("chunk_count is %d, observed %d", meta.ChunkCount, observedChunks)
	}

	imageUIDs, err := blobs.List(store.KindImage, ".png")
	if err != nil {
		return nil, fmt.Errorf("index: list images: %w", err)
	}
	for _, imgUID := range imageUIDs {
		if !referencedImages[imgUID] {
			report.add("image %s: on disk but not referenced by any chunk", imgUID)
		}
	}

	for path, fileUIDHex := range meta.ProcessedFiles {
		parsed, err := uid.Parse(fileUIDHex)
		if err != nil {
			report.add("processed file %q: invalid uid %q: %v", path, fileUIDHex, err)
			continue
		}
		fileXor = fileXor.Xor(parsed)
	}
	if meta.UID != nil && fileXor.String() != *meta.UID {
		report.add("aggregated KB uid %s does not match cached uid %s", fileXor.String(), *meta.UID)
	}

	if _, err := config.LoadAPIConfig(blobs.DataDir()); err != nil {
		report.add("configs/api.json: %v", err)
	}
	if _, err := config.LoadBuildConfig(blobs.DataDir()); err != nil {
		report.add("configs/build.json: %v", err)
	}
	if _, err := config.LoadQueryConfig(blobs.DataDir()); err != nil {
		report.add("configs/query.json: %v", err)
	}

	return report, nil
}

// AsError converts a non-empty report into a BrokenIndex error.
func (r *CheckReport) AsError() error {
	if r.Ok() {
		return nil
	}
	return errors.BrokenIndex(fmt.Sprintf("%d invariant violation(s), first: %s", len(r.Problems), r.Problems[0]))
}
