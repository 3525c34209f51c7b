package query

import (
	"sort"
	"strings"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
)

// MergedChunk is a chunk ready to render into the answer context: either
// a single retrieved chunk passed through unchanged, or several adjacent
// chunks of the same file coalesced into one.
type MergedChunk struct {
	Title   string
	Summary string
	Data    string
	Images  []string
}

// Merge coalesces adjacent chunks of the same file (consecutive
// index_in_file) from the same retrieval set, stripping the maximum
// prefix/suffix overlap between neighbors and blanking title/summary on
// the merged aggregate. It iterates until no further merges are
// possible.
//
// A chunk whose source is not a file (a
// Chunks-sourced summary node) is never merged with anything; it passes
// through as its own singleton.
func Merge(chunks []*chunkbuild.Chunk) []*MergedChunk {
	var fileChunks []*chunkbuild.Chunk
	var rest []*MergedChunk

	for _, c := range chunks {
		if c.Source.File == nil {
			rest = append(rest, singleton(c))
			continue
		}
		fileChunks = append(fileChunks, c)
	}

	sort.SliceStable(fileChunks, func(i, j int) bool {
		a, b := fileChunks[i].Source.File, fileChunks[j].Source.File
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.IndexInFile < b.IndexInFile
	})

	var merged []*MergedChunk
	i := 0
	for i < len(fileChunks) {
		run := []*chunkbuild.Chunk{fileChunks[i]}
		j := i + 1
		for j < len(fileChunks) &&
			fileChunks[j].Source.File.Path == fileChunks[j-1].Source.File.Path &&
			fileChunks[j].Source.File.IndexInFile == fileChunks[j-1].Source.File.IndexInFile+1 {
			run = append(run, fileChunks[j])
			j++
		}
		merged = append(merged, mergeRun(run))
		i = j
	}

	return append(merged, rest...)
}

func singleton(c *chunkbuild.Chunk) *MergedChunk {
	return &MergedChunk{Title: c.Title, Summary: c.Summary, Data: c.Data, Images: c.Images}
}

// mergeRun coalesces a run of chunks known to be contiguous within one
// file. A run of length 1 keeps its title and summary; a true merge
// blanks both.
func mergeRun(run []*chunkbuild.Chunk) *MergedChunk {
	if len(run) == 1 {
		return singleton(run[0])
	}

	var data strings.Builder
	var images []string
	data.WriteString(run[0].Data)
	images = append(images, run[0].Images...)

	for _, next := range run[1:] {
		overlap := maxOverlap(data.String(), next.Data)
		data.WriteString(next.Data[overlap:])
		images = append(images, next.Images...)
	}

	return &MergedChunk{Data: data.String(), Images: dedupe(images)}
}

// maxOverlap returns the length of the longest suffix of a that is also
// a prefix of b.
func maxOverlap(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if a[len(a)-n:] == b[:n] {
			return n
		}
	}
	return 0
}

func dedupe(uids []string) []string {
	seen := make(map[string]bool, len(uids))
	out := make([]string, 0, len(uids))
	for _, u := range uids {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
