package reader

// ChunkingConfig is the subset of build configuration the chunking
// algorithm needs: target chunk size, sliding-window overlap, and the
// synthetic size an image counts for.
type ChunkingConfig struct {
	ChunkSize int
	SlideLen  int
	ImageSize int
}

// FileReader wraps a Reader with the sliding-window chunking algorithm:
// it buffers at least two chunks' worth of tokens ahead,
// hands off chunk-sized slices, and reinserts the trailing slide_len
// characters so consecutive chunks overlap.
type FileReader struct {
	relPath  string
	inner    Reader
	cfg      ChunkingConfig
	buffer   []AtomicToken
	bufSize  int
	fileIdx  int
}

// NewFileReader wraps inner for relPath with the given chunking config.
func NewFileReader(relPath string, inner Reader, cfg ChunkingConfig) *FileReader {
	return &FileReader{relPath: relPath, inner: inner, cfg: cfg}
}

// CanGenerateChunk reports whether another chunk can still be produced.
func (f *FileReader) CanGenerateChunk() bool {
	return len(f.buffer) > 0 || f.inner.HasMoreToRead()
}

// FileReaderKey returns the inner reader's stable behavior key.
func (f *FileReader) FileReaderKey() string { return f.inner.Key() }

// fillBufferUntilChunks tops up the buffer until it holds at least
// chunkCount chunk-sizes worth of tokens, or the source is exhausted.
func (f *FileReader) fillBufferUntilChunks(chunkCount int) error {
	for {
		if f.bufSize >= chunkCount*f.cfg.ChunkSize {
			return nil
		}
		if err := f.inner.LoadTokens(); err != nil {
			return err
		}
		for _, tok := range f.inner.PopAllTokens() {
			f.bufSize += tok.Len(f.cfg.ImageSize)
			f.buffer = append(f.buffer, tok)
		}
		if !f.inner.HasMoreToRead() {
			return nil
		}
	}
}

// NextChunk produces the next chunk's tokens: header, a size-bounded
// slice of the buffer (never leaving a tiny tail), a
// trailing slide_len overlap reinserted at the front of the buffer, and
// the footer. It returns nil tokens when nothing remains.
func (f *FileReader) NextChunk() ([]AtomicToken, error) {
	if err := f.fillBufferUntilChunks(2); err != nil {
		return nil, err
	}
	if len(f.buffer) == 0 {
		return nil, nil
	}

	nextChunkSize := f.cfg.ChunkSize
	if f.cfg.ChunkSize < f.bufSize && f.bufSize < 2*f.cfg.ChunkSize {
		nextChunkSize = f.bufSize / 2
	}

	var chunkTokens []AtomicToken
	currSize := 0
	for currSize < nextChunkSize && len(f.buffer) > 0 {
		tok := f.buffer[0]
		f.buffer = f.buffer[1:]
		f.bufSize -= tok.Len(f.cfg.ImageSize)
		currSize += tok.Len(f.cfg.ImageSize)
		chunkTokens = append(chunkTokens, tok)
	}

	// Slide the trailing slide_len characters back to the front of the
	// buffer for overlap, unless the source is exhausted.
	if len(f.buffer) > 0 {
		var slideWindow []AtomicToken
		slideSize := 0
		for slideSize < f.cfg.SlideLen && len(chunkTokens) > 0 {
			tok := chunkTokens[len(chunkTokens)-1]
			chunkTokens = chunkTokens[:len(chunkTokens)-1]
			if need := f.cfg.SlideLen - slideSize; tok.Kind == TokenText && tok.CharLen > need {
				// Split the text token so exactly slide_len characters slide.
				runes := []rune(tok.Text)
				chunkTokens = append(chunkTokens, NewTextToken(string(runes[:len(runes)-need])))
				tok = NewTextToken(string(runes[len(runes)-need:]))
			}
			slideSize += tok.Len(f.cfg.ImageSize)
			slideWindow = append([]AtomicToken{tok}, slideWindow...)
		}
		f.buffer = append(append([]AtomicToken{}, slideWindow...), f.buffer...)
		f.bufSize += slideSize
		chunkTokens = append(chunkTokens, slideWindow...)
	}

	header := f.inner.ChunkHeader()
	footer := f.inner.ChunkFooter()
	full := make([]AtomicToken, 0, len(header)+len(chunkTokens)+len(footer))
	full = append(full, header...)
	full = append(full, chunkTokens...)
	full = append(full, footer...)

	f.fileIdx++
	return mergeTokens(full), nil
}

// FileIndex returns the 1-based index of the chunk most recently
// produced by NextChunk, within this file.
func (f *FileReader) FileIndex() int { return f.fileIdx }

// mergeTokens coalesces adjacent text tokens so image tokens are the
// only split points in the final token list.
func mergeTokens(tokens []AtomicToken) []AtomicToken {
	var out []AtomicToken
	var textBuf []string

	flush := func() {
		if len(textBuf) == 0 {
			return
		}
		joined := ""
		for _, s := range textBuf {
			joined += s
		}
		out = append(out, NewTextToken(joined))
		textBuf = nil
	}

	for _, tok := range tokens {
		if tok.Kind == TokenText {
			textBuf = append(textBuf, tok.Text)
		} else {
			flush()
			out = append(out, tok)
		}
	}
	flush()
	return out
}
