package agent

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
)

// Kind enumerates the actions the agent's action-selection step can pick
// from. Index values are reassigned per invocation to the
// position within the exposed subset, since GetSummary is filtered out
// when the knowledge base has no cached summary.
type Kind int

const (
	KindReadFile Kind = iota
	KindReadDir
	KindSearchExact
	KindSearchTfidf
	KindSimpleRag
	KindGetSummary
)

// Spec describes one exposed action: its name, a one-line description
// for the prompt, and its Kind.
type Spec struct {
	Kind        Kind
	Name        string
	Description string
}

var allSpecs = []Spec{
	{KindReadFile, "ReadFile", "ReadFile(path): read a source file's contents"},
	{KindReadDir, "ReadDir", "ReadDir(path): list a directory's contents"},
	{KindSearchExact, "SearchExact", "SearchExact(keyword): find chunks containing an exact keyword"},
	{KindSearchTfidf, "SearchTfidf", "SearchTfidf(keywords): find chunks most relevant to keywords"},
	{KindSimpleRag, "SimpleRag", "SimpleRag(question): ask a one-shot question against this knowledge base"},
	{KindGetSummary, "GetSummary", "GetSummary(): read the knowledge base's cached summary"},
}

// AvailableActions returns the exposed action set, in prompt order,
// omitting GetSummary when hasSummary is false.
func AvailableActions(hasSummary bool) []Spec {
	out := make([]Spec, 0, len(allSpecs))
	for _, s := range allSpecs {
		if s.Kind == KindGetSummary && !hasSummary {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RenderActionList renders specs as a numbered list for a prompt.
func RenderActionList(specs []Spec) string {
	var b strings.Builder
	for i, s := range specs {
		fmt.Fprintf(&b, "%d. %s\n", i, s.Description)
	}
	return b.String()
}

// Executor runs one action against a knowledge base.
type Executor struct {
	blobs *store.BlobStore
	query *query.Engine
}

// NewExecutor builds an Executor over blobs, using query for SimpleRag.
func NewExecutor(blobs *store.BlobStore, q *query.Engine) *Executor {
	return &Executor{blobs: blobs, query: q}
}

// Execute normalizes argument (strips a leading "/", forces ReadDir
// arguments to end with "/") and dispatches to the named action
// so every action implementation sees a clean argument.
func (e *Executor) Execute(ctx context.Context, kind Kind, argument string) (string, error) {
	argument = strings.TrimPrefix(argument, "/")
	switch kind {
	case KindReadFile:
		return e.readFile(argument)
	case KindReadDir:
		if !strings.HasSuffix(argument, "/") {
			argument += "/"
		}
		return e.readDir(argument)
	case KindSearchExact:
		return e.searchExact(argument)
	case KindSearchTfidf:
		return e.searchTfidf(argument)
	case KindSimpleRag:
		return e.simpleRag(ctx, argument)
	case KindGetSummary:
		return e.getSummary()
	default:
		return "", fmt.Errorf("agent: unknown action kind %d", kind)
	}
}

const fuzzySuggestionLimit = 5

// readFile reads path relative to the project root, suggesting paths
// within edit distance 2 of path's basename when it doesn't exist.
func (e *Executor) readFile(path string) (string, error) {
	abs := filepath.Join(e.blobs.ProjectRoot(), path)
	data, err := os.ReadFile(abs)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("agent: read %s: %w", path, err)
	}

	meta, mErr := index.Load(e.blobs.DataDir())
	if mErr != nil {
		return "", fmt.Errorf("file %q not found", path)
	}
	var suggestions []string
	target := filepath.Base(path)
	for candidate := range meta.ProcessedFiles {
		if editDistance(target, filepath.Base(candidate)) <= 2 {
			suggestions = append(suggestions, candidate)
		}
	}
	sort.Strings(suggestions)
	if len(suggestions) > fuzzySuggestionLimit {
		suggestions = suggestions[:fuzzySuggestionLimit]
	}
	if len(suggestions) == 0 {
		return "", fmt.Errorf("file %q not found, no similar paths", path)
	}
	return fmt.Sprintf("file %q not found, did you mean: %s", path, strings.Join(suggestions, ", ")), nil
}

const dirListingTruncateAt = 30
const dirListingTopN = 15

// readDir lists path's immediate children relative to the project root,
// truncating to the top subdirectories/files by name with overflow
// counts once the directory holds at least dirListingTruncateAt entries.
func (e *Executor) readDir(path string) (string, error) {
	abs := filepath.Join(e.blobs.ProjectRoot(), path)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("agent: read dir %s: %w", path, err)
	}

	var dirs, files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	if len(entries) < dirListingTruncateAt {
		var b strings.Builder
		for _, d := range dirs {
			fmt.Fprintf(&b, "%s/\n", d.Name())
		}
		for _, f := range files {
			fmt.Fprintf(&b, "%s\n", f.Name())
		}
		return b.String(), nil
	}

	var b strings.Builder
	shownDirs := dirs
	if len(shownDirs) > dirListingTopN {
		shownDirs = shownDirs[:dirListingTopN]
	}
	for _, d := range shownDirs {
		count := recursiveFileCount(filepath.Join(abs, d.Name()))
		fmt.Fprintf(&b, "%s/ (%d files)\n", d.Name(), count)
	}
	if overflow := len(dirs) - len(shownDirs); overflow > 0 {
		fmt.Fprintf(&b, "... and %d more subdirectories\n", overflow)
	}

	shownFiles := files
	if len(shownFiles) > dirListingTopN {
		shownFiles = shownFiles[:dirListingTopN]
	}
	for _, f := range shownFiles {
		fmt.Fprintf(&b, "%s\n", f.Name())
	}
	if overflow := len(files) - len(shownFiles); overflow > 0 {
		fmt.Fprintf(&b, "... and %d more files\n", overflow)
	}
	return b.String(), nil
}

func recursiveFileCount(dir string) int {
	count := 0
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

const searchExactDefaultLimit = 10

// searchExact scans TF-IDF candidates for keyword, filtering to chunks
// whose data contains it verbatim, widening the scan limit up to the
// knowledge base's total chunk count when exact matches are scarce.
func (e *Executor) searchExact(keyword string) (string, error) {
	meta, err := index.Load(e.blobs.DataDir())
	if err != nil {
		return "", err
	}

	limit := searchExactDefaultLimit
	for {
		uids, err := e.blobs.List(store.KindChunk, ".tfidf")
		if err != nil {
			return "", err
		}
		if limit < len(uids) {
			uids = uids[:limit]
		}
		var matches []string
		for _, chunkUID := range uids {
			data, err := e.blobs.Read(store.KindChunk, chunkUID, ".chunk")
			if err != nil {
				continue
			}
			chunks, err := chunkbuild.Unmarshal(data)
			if err != nil {
				continue
			}
			for _, c := range chunks {
				if strings.Contains(c.Data, keyword) {
					matches = append(matches, fmt.Sprintf("[%s] %s", c.Title, excerpt(c.Data, keyword)))
				}
			}
		}
		if len(matches) > 0 || limit >= meta.ChunkCount {
			if len(matches) == 0 {
				return fmt.Sprintf("no chunk contains %q", keyword), nil
			}
			return strings.Join(matches, "\n---\n"), nil
		}
		limit *= 4
	}
}

const searchTfidfLimit = 10

// searchTfidf returns the top TF-IDF matches for a raw keyword string.
func (e *Executor) searchTfidf(keywords string) (string, error) {
	kw := tfidf.Keywords{Extra: strings.Fields(keywords)}
	uids, err := e.blobs.List(store.KindChunk, ".tfidf")
	if err != nil {
		return "", err
	}
	state := tfidf.NewState(kw, 4)
	for _, chunkUID := range uids {
		data, err := e.blobs.Read(store.KindChunk, chunkUID, ".tfidf")
		if err != nil {
			continue
		}
		docs, err := tfidf.Unmarshal(data)
		if err != nil || len(docs) == 0 {
			continue
		}
		state.Consume(chunkUID, docs[0])
	}
	top := state.GetTop(searchTfidfLimit)
	if len(top) == 0 {
		return "no relevant chunks found", nil
	}
	var b strings.Builder
	for _, r := range top {
		data, err := e.blobs.Read(store.KindChunk, r.ChunkUID, ".chunk")
		if err != nil {
			continue
		}
		chunks, err := chunkbuild.Unmarshal(data)
		if err != nil || len(chunks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", chunks[0].Title, chunks[0].Summary)
	}
	return b.String(), nil
}

// simpleRag answers question with a recursive one-shot query against
// the same knowledge base, with no conversation history.
func (e *Executor) simpleRag(ctx context.Context, question string) (string, error) {
	if e.query == nil {
		return "", fmt.Errorf("agent: no query engine configured for SimpleRag")
	}
	answer, err := e.query.Query(ctx, question, nil)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

// getSummary returns the knowledge base's cached summary.
func (e *Executor) getSummary() (string, error) {
	meta, err := index.Load(e.blobs.DataDir())
	if err != nil {
		return "", err
	}
	if meta.Summary == nil {
		return "", fmt.Errorf("no summary cached for this knowledge base")
	}
	return *meta.Summary, nil
}

func excerpt(data, keyword string) string {
	i := strings.Index(data, keyword)
	if i < 0 {
		return data
	}
	start := i - 40
	if start < 0 {
		start = 0
	}
	end := i + len(keyword) + 40
	if end > len(data) {
		end = len(data)
	}
	return "..." + data[start:end] + "..."
}

// editDistance computes the Levenshtein distance between two strings
// (used for fuzzy path suggestions).
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
