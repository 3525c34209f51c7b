package tfidf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ragit-kb/ragit/internal/store"
)

// autoFlush is the number of distinct buffered terms that trigger a
// flush to disk while building the inverted index.
const autoFlush = 65536

// IIStatusKind is the inverted index's build/health state.
type IIStatusKind string

const (
	IIStatusNone     IIStatusKind = "None"
	IIStatusOngoing  IIStatusKind = "Ongoing"
	IIStatusComplete IIStatusKind = "Complete"
	IIStatusOutdated IIStatusKind = "Outdated"
)

// IIStatus is the inverted index's status, carrying a build cursor when
// Ongoing.
type IIStatus struct {
	Kind   IIStatusKind `json:"kind"`
	Cursor int          `json:"cursor,omitempty"`
}

// hashTerm returns the hex SHA-256 digest of a term, used as the blob key
// for its posting list (ii/{hash[:2]}/{hash[2:]}).
func hashTerm(term string) string {
	sum := sha256.Sum256([]byte(term))
	return hex.EncodeToString(sum[:])
}

// InvertedIndex is a term -> posting-list cache fronting the TF-IDF
// scan, backed by the blob store under ii/.
type InvertedIndex struct {
	blobs *store.BlobStore
}

// NewInvertedIndex wraps a blob store for inverted-index reads/writes.
func NewInvertedIndex(blobs *store.BlobStore) *InvertedIndex {
	return &InvertedIndex{blobs: blobs}
}

// SearchTerm returns every chunk uid posted under term, or an empty slice
// if the term has no posting list.
func (ii *InvertedIndex) SearchTerm(term string) ([]string, error) {
	key := hashTerm(term)
	data, err := ii.blobs.Read(store.KindII, key, "")
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("tfidf: read posting list for %q: %w", term, err)
	}
	var uids []string
	if err := json.Unmarshal(data, &uids); err != nil {
		return nil, fmt.Errorf("tfidf: decode posting list for %q: %w", term, err)
	}
	return uids, nil
}

// Candidates returns up to limit candidate chunk uids for a weighted
// term set, scored by `weight * idf(term)` over the union of posting
// lists.
func (ii *InvertedIndex) Candidates(terms map[string]float64, chunkCount, limit int) ([]string, error) {
	scores := make(map[string]float64)
	for term, weight := range terms {
		uids, err := ii.SearchTerm(term)
		if err != nil {
			return nil, err
		}
		idf := math.Log2((float64(chunkCount)+1.0)/(float64(len(uids))+1.0)) * weight
		for _, uid := range uids {
			scores[uid] += idf
		}
	}

	results := make([]string, 0, len(scores))
	for uid := range scores {
		results = append(results, uid)
	}
	sort.Slice(results, func(i, j int) bool {
		if scores[results[i]] != scores[results[j]] {
			return scores[results[i]] > scores[results[j]]
		}
		return results[i] < results[j]
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Builder accumulates term -> chunk-uid postings in memory while walking
// every chunk, flushing to disk when the buffer grows past autoFlush
// distinct terms.
type Builder struct {
	ii     *InvertedIndex
	buffer map[string][]string
}

// NewBuilder starts a fresh inverted-index build.
func NewBuilder(ii *InvertedIndex) *Builder {
	return &Builder{ii: ii, buffer: make(map[string][]string, autoFlush)}
}

// Add records that chunkUID contains the given tokens (typically a
// chunk's distinct TF-IDF token set), flushing if the buffer has grown
// too large.
func (b *Builder) Add(chunkUID string, tokens []string) error {
	for _, tok := range tokens {
		b.buffer[tok] = append(b.buffer[tok], chunkUID)
	}
	if len(b.buffer) > autoFlush {
		return b.Flush()
	}
	return nil
}

// Flush appends the buffered postings to their on-disk lists and clears
// the buffer.
func (b *Builder) Flush() error {
	for term, uids := range b.buffer {
		key := hashTerm(term)
		existing, err := b.ii.blobs.Read(store.KindII, key, "")
		var merged []string
		if err == nil {
			if jsonErr := json.Unmarshal(existing, &merged); jsonErr != nil {
				return fmt.Errorf("tfidf: decode existing posting list for %q: %w", term, jsonErr)
			}
		} else if err != store.ErrNotFound {
			return fmt.Errorf("tfidf: read existing posting list for %q: %w", term, err)
		}
		merged = append(merged, uids...)
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("tfidf: encode posting list for %q: %w", term, err)
		}
		if err := b.ii.blobs.Write(store.KindII, key, "", data); err != nil {
			return fmt.Errorf("tfidf: write posting list for %q: %w", term, err)
		}
	}
	b.buffer = make(map[string][]string, autoFlush)
	return nil
}

// Reset deletes every posting list, used when the II is rebuilt from
// scratch: the engine only ever builds the II from scratch or marks it
// Outdated, never mutates it incrementally mid-build.
func (ii *InvertedIndex) Reset() error {
	keys, err := ii.blobs.List(store.KindII, "")
	if err != nil {
		return fmt.Errorf("tfidf: list ii blobs: %w", err)
	}
	for _, key := range keys {
		if err := ii.blobs.Remove(store.KindII, key, ""); err != nil {
			return fmt.Errorf("tfidf: remove ii blob %s: %w", key, err)
		}
	}
	return nil
}
