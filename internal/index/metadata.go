// Package index implements the knowledge base's metadata document
// (index.json) and the coordinator that drives the parallel build
// pipeline, plus integrity Check and Recover.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/tfidf"
	"github.com/ragit-kb/ragit/pkg/version"
)

// MetadataFileName is the file holding a KB's index.json, rooted at the
// .ragit data directory.
const MetadataFileName = "index.json"

// Metadata is the engine's index.json document: a single per-KB
// singleton the coordinator owns exclusively during mutation; index.json
// is written only by the coordinator.
type Metadata struct {
	RagitVersion       string            `json:"ragit_version"`
	ChunkCount         int               `json:"chunk_count"`
	StagedFiles        []string          `json:"staged_files"`
	ProcessedFiles     map[string]string `json:"processed_files"`
	CurrProcessingFile *string           `json:"curr_processing_file,omitempty"`
	RepoURL            *string           `json:"repo_url,omitempty"`
	IIStatus           tfidf.IIStatus    `json:"ii_status"`
	UID                *string           `json:"uid,omitempty"`
	Summary            *string           `json:"summary,omitempty"`
}

// New returns a fresh Metadata for a just-initialized KB.
func New() *Metadata {
	return &Metadata{
		RagitVersion:   version.Version,
		ProcessedFiles: make(map[string]string),
		IIStatus:       tfidf.IIStatus{Kind: tfidf.IIStatusNone},
	}
}

// Dirty reports whether a build was interrupted mid-flight
// (curr_processing_file set).
func (m *Metadata) Dirty() bool {
	return m.CurrProcessingFile != nil
}

// Stage adds path to staged_files unless it is already staged. A path
// in processed_files is removed from there, so re-adding a modified path
// re-stages it.
func (m *Metadata) Stage(path string) {
	delete(m.ProcessedFiles, path)
	for _, p := range m.StagedFiles {
		if p == path {
			return
		}
	}
	m.StagedFiles = append(m.StagedFiles, path)
}

// Unstage removes path from staged_files, used once a file's build
// completes and moves it into processed_files.
func (m *Metadata) Unstage(path string) {
	out := m.StagedFiles[:0]
	for _, p := range m.StagedFiles {
		if p != path {
			out = append(out, p)
		}
	}
	m.StagedFiles = out
}

// MetadataPath returns the absolute path to index.json under dataDir
// (the KB's .ragit directory).
func MetadataPath(dataDir string) string {
	return filepath.Join(dataDir, MetadataFileName)
}

// Load reads and parses index.json. A missing file is not an error: a
// fresh Metadata is returned so callers can treat "not yet initialized"
// and "just initialized" uniformly.
func Load(dataDir string) (*Metadata, error) {
	path := MetadataPath(dataDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	var m Metadata
	if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptIndex, jsonErr)
	}
	if m.ProcessedFiles == nil {
		m.ProcessedFiles = make(map[string]string)
	}
	return &m, nil
}

// Save writes index.json atomically: it is written only by the
// coordinator and rewritten in place via a temp-file-then-rename.
func Save(dataDir string, m *Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("index: marshal metadata: %w", err)
	}
	return writeAtomic(MetadataPath(dataDir), data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("index: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("index: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("index: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("index: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("index: rename into place: %w", err)
	}
	return nil
}
