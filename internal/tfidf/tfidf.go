// Package tfidf implements the hybrid TF-IDF / inverted-index retrieval
// layer: tokenization with English stemming, per-chunk
// token-frequency documents persisted as gzipped sidecars, and the
// scoring engine used to rank candidates against a weighted keyword set.
package tfidf

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Keywords is a weighted query: important terms carry more mass than
// extra terms, per the `important`/`extra` split.
type Keywords struct {
	Important []string `json:"important"`
	Extra     []string `json:"extra"`
}

// IsEmpty reports whether the keyword set has no terms at all.
func (k Keywords) IsEmpty() bool {
	return len(k.Important) == 0 && len(k.Extra) == 0
}

// defaultWeight is the relative importance of Important over Extra
// keywords: important terms share w/(w+1) of the total weight mass.
const defaultWeight = 4.0

// WithWeights pairs every keyword with its share of the query's mass.
func (k Keywords) WithWeights(weight float64) []WeightedTerm {
	if weight <= 0 {
		weight = defaultWeight
	}
	out := make([]WeightedTerm, 0, len(k.Important)+len(k.Extra))
	importantShare := weight / (weight + 1.0)
	extraShare := 1.0 / (weight + 1.0)
	for _, kw := range k.Important {
		out = append(out, WeightedTerm{Term: kw, Weight: importantShare})
	}
	for _, kw := range k.Extra {
		out = append(out, WeightedTerm{Term: kw, Weight: extraShare})
	}
	return out
}

// WeightedTerm is a raw (possibly multi-word) keyword paired with its
// share of query mass, before tokenization.
type WeightedTerm struct {
	Term   string
	Weight float64
}

// Tokenize splits s into stemmed tokens: lower-case, split on
// `[\s!"'(),\-./:;\[\]_`{}]`, English-stem, drop empties.
func Tokenize(s string) []string {
	lower := strings.ToLower(s)
	fields := strings.FieldsFunc(lower, isSplitRune)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		stemmed := porterstemmer.StemString(f)
		if len(stemmed) > 0 {
			tokens = append(tokens, stemmed)
		}
	}
	return tokens
}

func isSplitRune(r rune) bool {
	switch r {
	case '\n', '\t', '\r', ' ', '!', '"', '\'', '(', ')', ',', '-', '.', '/', ':', ';', '[', ']', '_', '`', '{', '}':
		return true
	default:
		return false
	}
}

// TokenizeKeywords expands a Keywords set into per-token weights,
// combining terms that stem to the same token.
func TokenizeKeywords(k Keywords, weight float64) map[string]float64 {
	out := make(map[string]float64)
	for _, wt := range k.WithWeights(weight) {
		for _, tok := range Tokenize(wt.Term) {
			out[tok] += wt.Weight
		}
	}
	return out
}

// ProcessedDoc is the per-chunk (or per-file, when summed) token-frequency
// document persisted as a chunk's .tfidf sidecar.
type ProcessedDoc struct {
	ChunkUID string         `json:"chunk_uid,omitempty"`
	Tokens   map[string]int `json:"tokens"`
	Length   int            `json:"length"`
}

// NewProcessedDoc tokenizes haystack into a ProcessedDoc for chunkUID.
func NewProcessedDoc(chunkUID, haystack string) *ProcessedDoc {
	doc := &ProcessedDoc{ChunkUID: chunkUID, Tokens: make(map[string]int)}
	for _, tok := range Tokenize(haystack) {
		doc.Tokens[tok]++
		doc.Length++
	}
	return doc
}

// Get returns the frequency of token in the document.
func (d *ProcessedDoc) Get(token string) int {
	if d == nil {
		return 0
	}
	return d.Tokens[token]
}

// Extend folds other into d, summing token counts and length. Used to
// build a file-level document out of its chunks' documents.
func (d *ProcessedDoc) Extend(other *ProcessedDoc) {
	if other == nil {
		return
	}
	if d.ChunkUID != other.ChunkUID {
		d.ChunkUID = ""
	}
	d.Length += other.Length
	for tok, n := range other.Tokens {
		d.Tokens[tok] += n
	}
}

// Haystack renders the chunk's TF-IDF document source, weighting the
// title twice over the summary and data: "{file}\n{title}\n{title}\n{summary}\n{data}".
func Haystack(file, title, summary, data string) string {
	var b strings.Builder
	b.WriteString(file)
	b.WriteByte('\n')
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(summary)
	b.WriteByte('\n')
	b.WriteString(data)
	return b.String()
}

// Marshal gzip-compresses the JSON encoding of docs, the on-disk format
// for a .tfidf sidecar, which is always gzipped.
func Marshal(docs []*ProcessedDoc) ([]byte, error) {
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("tfidf: marshal: %w", err)
	}
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("tfidf: gzip writer: %w", err)
	}
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("tfidf: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("tfidf: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decompresses and decodes a .tfidf sidecar.
func Unmarshal(data []byte) ([]*ProcessedDoc, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tfidf: gzip reader: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("tfidf: gzip read: %w", err)
	}
	var docs []*ProcessedDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("tfidf: unmarshal: %w", err)
	}
	return docs, nil
}

// Result is one scored document from a TF-IDF query.
type Result struct {
	ChunkUID string
	Score    float64
}

// State accumulates per-document term frequencies for a fixed set of
// query keywords, then produces a ranked top-N.
type State struct {
	keywords     map[string]float64 // token -> weight
	tf           map[string]map[string]float64
	docCount     int
	keywordInDoc map[string]int
	docs         []string
}

// NewState builds a scoring state for keywords.
func NewState(keywords Keywords, weight float64) *State {
	return &State{
		keywords:     TokenizeKeywords(keywords, weight),
		tf:           make(map[string]map[string]float64),
		keywordInDoc: make(map[string]int),
	}
}

// Consume folds one document's term frequencies into the running state.
func (s *State) Consume(docID string, doc *ProcessedDoc) {
	s.docCount++
	freqs := make(map[string]float64, len(s.keywords))
	length := doc.Length
	if length == 0 {
		length = 1
	}
	for kw := range s.keywords {
		if doc.Get(kw) > 0 {
			s.keywordInDoc[kw]++
		}
		freqs[kw] = float64(doc.Get(kw)) / float64(length)
	}
	s.tf[docID] = freqs
	s.docs = append(s.docs, docID)
}

// GetTop returns the top maxLen documents by score, descending.
func (s *State) GetTop(maxLen int) []Result {
	scores := make(map[string]float64)
	for kw, weight := range s.keywords {
		idf := math.Log2((float64(s.docCount) + 1.0) / (float64(s.keywordInDoc[kw]) + 1.0))
		for _, doc := range s.docs {
			tf := s.tf[doc][kw]
			if tf == 0 {
				continue
			}
			scores[doc] += tf * idf * weight
		}
	}

	results := make([]Result, 0, len(scores))
	for doc, score := range scores {
		results = append(results, Result{ChunkUID: doc, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkUID < results[j].ChunkUID
	})
	if maxLen > 0 && len(results) > maxLen {
		results = results[:maxLen]
	}
	return results
}

// Idf computes the inverse document frequency of a term with the given
// document frequency among docCount total documents, for callers that
// only need the monotonicity property.
func Idf(docCount, docFreq int) float64 {
	return math.Log2((float64(docCount) + 1.0) / (float64(docFreq) + 1.0))
}
