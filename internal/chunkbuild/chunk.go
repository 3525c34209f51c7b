// Package chunkbuild implements the chunk builder: it turns
// a FileReader's token stream into persisted Chunk records, calling the
// LLM for a title/summary pair, normalizing embedded images, and writing
// the chunk plus its TF-IDF sidecar through the blob store.
package chunkbuild

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ragit-kb/ragit/internal/tfidf"
	"github.com/ragit-kb/ragit/internal/uid"
	"github.com/ragit-kb/ragit/pkg/version"
)

// Source identifies where a chunk's content came from: a slice of a
// source file, or a summary-of-chunks aggregate.
type Source struct {
	// File is set when the chunk came from a source file.
	File *FileSource `json:"file,omitempty"`
	// Chunks is set when the chunk summarizes other chunks.
	Chunks *ChunksSource `json:"chunks,omitempty"`
}

// FileSource locates a chunk within its originating file.
type FileSource struct {
	Path        string `json:"path"`
	IndexInFile int    `json:"index_in_file"`
}

// ChunksSource lists the chunk uids a summary-of-chunks node covers.
type ChunksSource struct {
	UIDs []string `json:"uids"`
}

// BuildInfo records how a chunk was produced, for provenance and
// recovery.
type BuildInfo struct {
	ReaderKey     string `json:"reader_key"`
	PromptHash    string `json:"prompt_hash"`
	Model         string `json:"model"`
	EngineVersion string `json:"engine_version"`
}

// Chunk is the immutable, persisted unit of retrieval.
type Chunk struct {
	UID         string    `json:"uid"`
	Data        string    `json:"data"`
	Images      []string  `json:"images"`
	CharLen     int       `json:"char_len"`
	ImageCount  int       `json:"image_count"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      Source    `json:"source"`
	BuildInfo   BuildInfo `json:"build_info"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	compressPrefix   = 'c'
	uncompressPrefix = '\n'
)

// ComputeUID derives a chunk's uid from its build inputs:
// uid = hash(source_hash || title || summary || data), metadata tail
// reset to {chunk, len(data)}.
func ComputeUID(sourceHash []byte, title, summary, data string) uid.Uid {
	return uid.NewChunk(sourceHash, title, summary, data)
}

// Haystack renders the chunk's TF-IDF document source (title counted
// twice.
func (c *Chunk) Haystack() string {
	return tfidf.Haystack(fileOf(c.Source), c.Title, c.Summary, c.Data)
}

func fileOf(s Source) string {
	if s.File != nil {
		return s.File.Path
	}
	return ""
}

// Marshal encodes a batch of chunks for the chunks/xx/yy….chunk blob:
// pretty JSON, gzip-compressed with a leading 'c' byte if it exceeds
// threshold, otherwise a leading '\n' byte and plain JSON.
func Marshal(chunks []*Chunk, threshold int) ([]byte, error) {
	raw, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chunkbuild: marshal: %w", err)
	}

	if threshold > 0 && len(raw) > threshold {
		var buf bytes.Buffer
		buf.WriteByte(compressPrefix)
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(raw); err != nil {
			return nil, fmt.Errorf("chunkbuild: gzip write: %w", err)
		}
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("chunkbuild: gzip close: %w", err)
		}
		return buf.Bytes(), nil
	}

	out := make([]byte, 0, len(raw)+1)
	out = append(out, uncompressPrefix)
	out = append(out, raw...)
	return out, nil
}

// Unmarshal decodes a chunks/xx/yy….chunk blob, handling both the
// compressed and plain prefixes.
func Unmarshal(data []byte) ([]*Chunk, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("chunkbuild: empty chunk blob")
	}
	switch data[0] {
	case compressPrefix:
		gz, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, fmt.Errorf("chunkbuild: gzip reader: %w", err)
		}
		defer gz.Close()
		raw, err := io.ReadAll(gz)
		if err != nil {
			return nil, fmt.Errorf("chunkbuild: gzip read: %w", err)
		}
		var chunks []*Chunk
		if err := json.Unmarshal(raw, &chunks); err != nil {
			return nil, fmt.Errorf("chunkbuild: unmarshal: %w", err)
		}
		return chunks, nil
	case uncompressPrefix:
		var chunks []*Chunk
		if err := json.Unmarshal(data[1:], &chunks); err != nil {
			return nil, fmt.Errorf("chunkbuild: unmarshal: %w", err)
		}
		return chunks, nil
	default:
		return nil, fmt.Errorf("chunkbuild: invalid chunk prefix byte 0x%02x", data[0])
	}
}

// EngineVersion is the value stamped into every new chunk's BuildInfo.
func EngineVersion() string { return version.Version }

// imagePlaceholder renders the literal "img_<uid64hex>" placeholder a
// chunk's data embeds for an image.
func imagePlaceholder(imageUID string) string {
	return "img_" + imageUID
}

// validateSummary enforces the configured length bound and rejects
// newlines in the summary; newlines in the title are rejected by the
// builder's validator, not here.
func validateSummary(summary string, minLen, maxLen int) (ok bool, complaint string) {
	n := len([]rune(summary))
	if n < minLen {
		return false, fmt.Sprintf("summary is too short (%d chars, need at least %d)", n, minLen)
	}
	if n > maxLen {
		return false, fmt.Sprintf("summary is too long (%d chars, at most %d allowed)", n, maxLen)
	}
	if strings.ContainsAny(summary, "\n\r") {
		return false, "summary must not contain newlines"
	}
	return true, ""
}
