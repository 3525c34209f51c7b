package archive

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
)

// ExtractResult summarizes what Extract reconstructed.
type ExtractResult struct {
	ChunksWritten  int
	ImagesWritten  int
	PromptsWritten int
	HadConfig      bool
	Recovered      *index.RecoverReport
}

// Extract reads one or more archive files (in order) and reconstructs a
// fresh knowledge base under root. After writing every block it runs
// Recover to rebuild file indices and TF-IDF sidecars.
func Extract(root string, archivePaths []string, promptsDir string) (*ExtractResult, error) {
	blobs := store.New(root)
	if err := blobs.EnsureLayout(); err != nil {
		return nil, err
	}

	res := &ExtractResult{}
	var configBlock map[string]json.RawMessage

	for _, path := range archivePaths {
		if err := extractOne(path, blobs, promptsDir, res, &configBlock); err != nil {
			return nil, fmt.Errorf("archive: extract %s: %w", path, err)
		}
	}

	if configBlock != nil {
		if err := writeConfigBlock(blobs.DataDir(), configBlock); err != nil {
			return nil, err
		}
		res.HadConfig = true
	}

	report, err := index.Recover(blobs)
	if err != nil {
		return nil, err
	}
	res.Recovered = report
	return res, nil
}

func extractOne(path string, blobs *store.BlobStore, promptsDir string, res *ExtractResult, configBlock *map[string]json.RawMessage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		typ, bodyLen, err := readBlockHeader(f)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(f, body); err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		switch typ {
		case TypeIndex:
			var meta index.Metadata
			if err := decodeBody(body, &meta); err != nil {
				return err
			}
			if err := index.Save(blobs.DataDir(), &meta); err != nil {
				return err
			}
		case TypeChunk:
			var chunks []*chunkbuild.Chunk
			if err := decodeBody(body, &chunks); err != nil {
				return err
			}
			for _, chunk := range chunks {
				if err := writeExtractedChunk(blobs, chunk); err != nil {
					return err
				}
				res.ChunksWritten++
			}
		case TypeImageBytes:
			var images map[string]string
			if err := decodeBody(body, &images); err != nil {
				return err
			}
			for uidHex, b64 := range images {
				png, err := base64.StdEncoding.DecodeString(b64)
				if err != nil {
					return fmt.Errorf("decode image %s: %w", uidHex, err)
				}
				if err := blobs.Write(store.KindImage, uidHex, ".png", png); err != nil {
					return err
				}
				res.ImagesWritten++
			}
		case TypeImageDesc:
			var descs map[string]chunkbuild.ImageDescription
			if err := decodeBody(body, &descs); err != nil {
				return err
			}
			for uidHex, desc := range descs {
				raw, err := json.Marshal(desc)
				if err != nil {
					return err
				}
				if err := blobs.Write(store.KindImage, uidHex, ".json", raw); err != nil {
					return err
				}
			}
		case TypeMeta:
			// Informational only; nothing to reconstruct.
		case TypePrompt:
			var prompts map[string]string
			if err := decodeBody(body, &prompts); err != nil {
				return err
			}
			if promptsDir == "" {
				continue
			}
			if err := os.MkdirAll(promptsDir, 0o755); err != nil {
				return err
			}
			for name, content := range prompts {
				dst := filepath.Join(promptsDir, name+".pdl")
				if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
					return err
				}
				res.PromptsWritten++
			}
		case TypeConfig:
			var raw map[string]json.RawMessage
			if err := decodeBody(body, &raw); err != nil {
				return err
			}
			*configBlock = raw
		default:
			return fmt.Errorf("unknown block type %s", typ)
		}
	}
}

// writeExtractedChunk writes one chunk's .chunk blob and regenerates its
// .tfidf sidecar, mirroring Builder.Persist.
func writeExtractedChunk(blobs *store.BlobStore, chunk *chunkbuild.Chunk) error {
	blob, err := chunkbuild.Marshal([]*chunkbuild.Chunk{chunk}, config.DefaultBuildConfig().CompressionThreshold)
	if err != nil {
		return err
	}
	if err := blobs.Write(store.KindChunk, chunk.UID, ".chunk", blob); err != nil {
		return err
	}
	doc := tfidf.NewProcessedDoc(chunk.UID, chunk.Haystack())
	sidecar, err := tfidf.Marshal([]*tfidf.ProcessedDoc{doc})
	if err != nil {
		return err
	}
	return blobs.Write(store.KindChunk, chunk.UID, ".tfidf", sidecar)
}

func writeConfigBlock(dataDir string, raw map[string]json.RawMessage) error {
	if apiRaw, ok := raw["api"]; ok {
		var api config.APIConfig
		if err := json.Unmarshal(apiRaw, &api); err != nil {
			return fmt.Errorf("decode api config: %w", err)
		}
		if err := config.SaveAPIConfig(dataDir, &api); err != nil {
			return err
		}
	}
	if buildRaw, ok := raw["build"]; ok {
		var build config.BuildConfig
		if err := json.Unmarshal(buildRaw, &build); err != nil {
			return fmt.Errorf("decode build config: %w", err)
		}
		if err := config.SaveBuildConfig(dataDir, &build); err != nil {
			return err
		}
	}
	if queryRaw, ok := raw["query"]; ok {
		var query config.QueryConfig
		if err := json.Unmarshal(queryRaw, &query); err != nil {
			return fmt.Errorf("decode query config: %w", err)
		}
		if err := config.SaveQueryConfig(dataDir, &query); err != nil {
			return err
		}
	}
	return nil
}
