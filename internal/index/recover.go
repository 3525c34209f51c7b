package index

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
)

// RecoverReport summarizes the best-effort repairs Recover made.
type RecoverReport struct {
	RestagedFile       string
	PurgedChunks       int
	RebuiltFileIndexes int
	RegeneratedTfidf   int
	DroppedChunks      int
	ResetConfigs       []string
	ChunkCount         int
}

// Recover performs a best-effort repair pass: it moves a crashed build's
// in-flight file back to staged, rebuilds every
// file_index blob from the chunks actually on disk, regenerates missing
// .tfidf sidecars, drops orphaned chunks, resets unparseable configs to
// their defaults, and recounts chunk_count.
func Recover(blobs *store.BlobStore) (*RecoverReport, error) {
	report := &RecoverReport{}

	meta, err := Load(blobs.DataDir())
	if err != nil {
		return nil, err
	}

	if meta.Dirty() {
		path := *meta.CurrProcessingFile
		if path != buildMarker {
			meta.Unstage(path)
			if fileUID, ok := meta.ProcessedFiles[path]; ok {
				purged, err := purgeFileChunks(blobs, fileUID)
				if err != nil {
					return nil, err
				}
				report.PurgedChunks += purged
				delete(meta.ProcessedFiles, path)
			}
			meta.Stage(path)
			report.RestagedFile = path
		}
		meta.CurrProcessingFile = nil
	}

	chunkUIDs, err := blobs.List(store.KindChunk, ".chunk")
	if err != nil {
		return nil, fmt.Errorf("index: list chunks: %w", err)
	}

	byFile := make(map[string][]*chunkbuild.Chunk)
	var total int
	for _, chunkUID := range chunkUIDs {
		data, err := blobs.Read(store.KindChunk, chunkUID, ".chunk")
		if err != nil {
			continue
		}
		chunks, err := chunkbuild.Unmarshal(data)
		if err != nil {
			continue
		}
		for _, chunk := range chunks {
			if chunk.Source.File == nil {
				continue
			}
			path := chunk.Source.File.Path
			if _, ok := meta.ProcessedFiles[path]; !ok {
				// Orphaned: its source file is no longer processed.
				if err := blobs.Remove(store.KindChunk, chunk.UID, ".chunk"); err == nil {
					report.DroppedChunks++
				}
				_ = blobs.Remove(store.KindChunk, chunk.UID, ".tfidf")
				continue
			}
			byFile[path] = append(byFile[path], chunk)
			total++
		}

		if !blobs.Exists(store.KindChunk, chunkUID, ".tfidf") {
			if err := regenerateTfidf(blobs, chunkUID); err == nil {
				report.RegeneratedTfidf++
			}
		}
	}

	for path, chunks := range byFile {
		sort.Slice(chunks, func(i, j int) bool {
			return chunks[i].Source.File.IndexInFile < chunks[j].Source.File.IndexInFile
		})
		chunkUIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkUIDs[i] = c.UID
		}
		blob, err := json.Marshal(chunkUIDs)
		if err != nil {
			return nil, fmt.Errorf("index: marshal rebuilt file index for %s: %w", path, err)
		}
		fileUIDHex, ok := meta.ProcessedFiles[path]
		if !ok {
			continue
		}
		if err := blobs.Write(store.KindFileIndex, fileUIDHex, "", blob); err != nil {
			return nil, fmt.Errorf("index: write rebuilt file index for %s: %w", path, err)
		}
		report.RebuiltFileIndexes++
	}

	for name, reset := range map[string]func() error{
		"api":   func() error { return resetAPIConfig(blobs.DataDir()) },
		"build": func() error { return resetBuildConfig(blobs.DataDir()) },
		"query": func() error { return resetQueryConfig(blobs.DataDir()) },
	} {
		if configParseFails(blobs.DataDir(), name) {
			if err := reset(); err == nil {
				report.ResetConfigs = append(report.ResetConfigs, name)
			}
		}
	}

	meta.ChunkCount = total
	report.ChunkCount = total
	if err := Save(blobs.DataDir(), meta); err != nil {
		return nil, err
	}
	return report, nil
}

func purgeFileChunks(blobs *store.BlobStore, fileUIDHex string) (int, error) {
	data, err := blobs.Read(store.KindFileIndex, fileUIDHex, "")
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("index: read file index %s: %w", fileUIDHex, err)
	}
	var chunkUIDs []string
	if err := json.Unmarshal(data, &chunkUIDs); err != nil {
		return 0, fmt.Errorf("index: decode file index %s: %w", fileUIDHex, err)
	}
	for _, chunkUID := range chunkUIDs {
		_ = blobs.Remove(store.KindChunk, chunkUID, ".chunk")
		_ = blobs.Remove(store.KindChunk, chunkUID, ".tfidf")
	}
	_ = blobs.Remove(store.KindFileIndex, fileUIDHex, "")
	return len(chunkUIDs), nil
}

func regenerateTfidf(blobs *store.BlobStore, chunkUID string) error {
	data, err := blobs.Read(store.KindChunk, chunkUID, ".chunk")
	if err != nil {
		return err
	}
	chunks, err := chunkbuild.Unmarshal(data)
	if err != nil {
		return err
	}
	docs := make([]*tfidf.ProcessedDoc, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, tfidf.NewProcessedDoc(chunk.UID, chunk.Haystack()))
	}
	sidecar, err := tfidf.Marshal(docs)
	if err != nil {
		return err
	}
	return blobs.Write(store.KindChunk, chunkUID, ".tfidf", sidecar)
}

func configParseFails(dataDir, name string) bool {
	var err error
	switch name {
	case "api":
		_, err = config.LoadAPIConfig(dataDir)
	case "build":
		_, err = config.LoadBuildConfig(dataDir)
	case "query":
		_, err = config.LoadQueryConfig(dataDir)
	}
	return err != nil
}

func resetAPIConfig(dataDir string) error {
	return config.SaveAPIConfig(dataDir, config.DefaultAPIConfig())
}

func resetBuildConfig(dataDir string) error {
	return config.SaveBuildConfig(dataDir, config.DefaultBuildConfig())
}

func resetQueryConfig(dataDir string) error {
	return config.SaveQueryConfig(dataDir, config.DefaultQueryConfig())
}
