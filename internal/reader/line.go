package reader

import (
	"bufio"
	"fmt"
	"os"
)

// LineReader groups a file line-by-line, optionally treating the first
// headerLength lines as a header repeated at the top of every chunk,
// the way a CSV reader repeats its column header.
type LineReader struct {
	f            *os.File
	br           *bufio.Reader
	tokens       []AtomicToken
	exhausted    bool
	headers      []AtomicToken
	headerLength int
}

// NewLineReader opens path for line-wise reading with no header.
func NewLineReader(path string) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	return &LineReader{f: f, br: bufio.NewReaderSize(f, 1<<16)}, nil
}

// WithHeaderLength sets how many leading lines become the per-chunk
// header (1 for CSV, 0 for JSONL).
func (r *LineReader) WithHeaderLength(n int) *LineReader {
	r.headerLength = n
	return r
}

func (r *LineReader) LoadTokens() error {
	if r.exhausted {
		return nil
	}
	for {
		line, err := r.br.ReadString('\n')
		if len(line) == 0 && err != nil {
			r.exhausted = true
			r.f.Close()
			break
		}

		tok := NewTextToken(line)
		if len(r.headers) < r.headerLength {
			r.headers = append(r.headers, tok)
		} else {
			r.tokens = append(r.tokens, tok)
			break
		}

		if err != nil {
			r.exhausted = true
			r.f.Close()
			break
		}
	}
	return nil
}

func (r *LineReader) PopAllTokens() []AtomicToken {
	out := r.tokens
	r.tokens = nil
	return out
}

func (r *LineReader) HasMoreToRead() bool      { return !r.exhausted }
func (r *LineReader) ChunkHeader() []AtomicToken { return r.headers }
func (r *LineReader) ChunkFooter() []AtomicToken { return nil }
func (r *LineReader) Key() string {
	return fmt.Sprintf("line_reader_v0_%d", r.headerLength)
}
