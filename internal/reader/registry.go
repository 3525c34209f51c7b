package reader

import (
	"path/filepath"
	"strings"
)

// New selects a Reader for path by its extension, falling back to the
// plain-text reader for anything unrecognized.
func New(path string, strictMode bool) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return NewMarkdownReader(path, strictMode)
	case ".csv":
		r, err := NewLineReader(path)
		if err != nil {
			return nil, err
		}
		return r.WithHeaderLength(1), nil
	case ".jsonl":
		r, err := NewLineReader(path)
		if err != nil {
			return nil, err
		}
		return r.WithHeaderLength(0), nil
	default:
		return NewPlainTextReader(path)
	}
}
