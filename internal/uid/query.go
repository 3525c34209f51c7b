package uid

// Query describes a lookup by full uid, uid prefix, or file path. It
// mirrors the disambiguation flags a caller needs: a bare hex string could
// be a chunk uid, an image uid, a file uid, or (rarely) a literal path that
// happens to look like hex.
type Query struct {
	Text string

	SearchChunk      bool
	SearchImage      bool
	SearchFilePath   bool
	SearchFileUid    bool
	SearchStagedFile bool
}

// WithText returns a Query that searches every kind for the given text.
func WithText(text string) Query {
	return Query{
		Text:             text,
		SearchChunk:      true,
		SearchImage:      true,
		SearchFilePath:   true,
		SearchFileUid:    true,
		SearchStagedFile: true,
	}
}

// FileOrChunk turns on chunk, file-path and file-uid search. It leaves
// SearchImage as it was.
func (q Query) FileOrChunk() Query {
	q.SearchChunk = true
	q.SearchFilePath = true
	q.SearchFileUid = true
	return q
}

// FileOnly restricts the query to files.
func (q Query) FileOnly() Query {
	q.SearchChunk = false
	q.SearchImage = false
	q.SearchFilePath = true
	q.SearchFileUid = true
	return q
}

// NoStagedFile excludes staged (not-yet-built) files from path matching.
func (q Query) NoStagedFile() Query {
	q.SearchStagedFile = false
	return q
}

// ProcessedFile pairs a relative path with its file uid.
type ProcessedFile struct {
	Path string
	Uid  Uid
}

// Result collects every match for a Query.
type Result struct {
	Chunks        []Uid
	Images        []Uid
	ProcessedFiles []ProcessedFile
	StagedFiles    []string
}

func (r Result) Len() int {
	return len(r.Chunks) + len(r.Images) + len(r.ProcessedFiles) + len(r.StagedFiles)
}

func (r Result) IsEmpty() bool { return r.Len() == 0 }

func (r Result) HasMultipleMatches() bool { return r.Len() > 1 }

// ChunkUid returns the single matched chunk uid, if there's exactly one.
func (r Result) ChunkUid() (Uid, bool) {
	if len(r.Chunks) == 1 {
		return r.Chunks[0], true
	}
	return Uid{}, false
}

// ImageUid returns the single matched image uid, if there's exactly one.
func (r Result) ImageUid() (Uid, bool) {
	if len(r.Images) == 1 {
		return r.Images[0], true
	}
	return Uid{}, false
}

// ProcessedFileMatch returns the single matched processed file, if there's
// exactly one.
func (r Result) ProcessedFileMatch() (ProcessedFile, bool) {
	if len(r.ProcessedFiles) == 1 {
		return r.ProcessedFiles[0], true
	}
	return ProcessedFile{}, false
}

// StagedFileMatch returns the single matched staged file path, if there's
// exactly one.
func (r Result) StagedFileMatch() (string, bool) {
	if len(r.StagedFiles) == 1 {
		return r.StagedFiles[0], true
	}
	return "", false
}
