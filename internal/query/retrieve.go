package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragit-kb/ragit/internal/chunkbuild"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
)

// extractKeywords asks extract_keyword for a weighted keyword split,
// falling back to the whole raw query as a single "extra" keyword when
// there is no client or template, or the LLM call fails.
func (e *Engine) extractKeywords(ctx context.Context, query string) tfidf.Keywords {
	if e.client == nil || e.templates.ExtractKeyword == nil {
		return tfidf.Keywords{Extra: []string{query}}
	}
	messages, err := e.templates.ExtractKeyword.Render(map[string]string{"query": query}, "")
	if err != nil {
		return tfidf.Keywords{Extra: []string{query}}
	}
	schema, _ := e.templates.ExtractKeyword.Schema()
	content, err := llm.CompleteWithSchema(ctx, e.client, llm.Request{
		Messages: messages,
		Model:    e.api.Model,
		Schema:   json.RawMessage(schema),
		MaxRetry: e.api.MaxRetry,
		Timeout:  e.timeout(),
	}, func(raw string) (bool, string) {
		var k tfidf.Keywords
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			return false, "your response must be valid JSON of the form {\"important\": [...], \"extra\": [...]}"
		}
		return true, ""
	})
	if err != nil {
		return tfidf.Keywords{Extra: []string{query}}
	}
	var k tfidf.Keywords
	if err := json.Unmarshal([]byte(content), &k); err != nil {
		return tfidf.Keywords{Extra: []string{query}}
	}
	return k
}

// retrieveChunks runs the full candidate->title-rerank->summary-rerank
// pipeline, returning the final chunk set in descending relevance order.
func (e *Engine) retrieveChunks(ctx context.Context, query string) ([]*chunkbuild.Chunk, error) {
	keywords := e.extractKeywords(ctx, query)
	if keywords.IsEmpty() {
		return nil, nil
	}

	meta, err := index.Load(e.blobs.DataDir())
	if err != nil {
		return nil, err
	}

	uids, err := e.tfidfTop(meta, keywords, e.query.MaxTitles)
	if err != nil {
		return nil, err
	}
	chunks, err := e.loadChunks(uids)
	if err != nil {
		return nil, err
	}

	if len(chunks) > e.query.MaxSummaries {
		chunks, err = e.rerank(ctx, e.templates.RerankTitle, "title", query, chunks, func(c *chunkbuild.Chunk) string { return c.Title }, e.query.MaxSummaries)
		if err != nil {
			return nil, err
		}
	}
	if len(chunks) > e.query.MaxRetrieval {
		chunks, err = e.rerank(ctx, e.templates.RerankSummary, "summary", query, chunks, func(c *chunkbuild.Chunk) string { return c.Summary }, e.query.MaxRetrieval)
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// tfidfTop returns up to limit candidate chunk uids, using the inverted
// index's candidate set when it is Complete and scanning every sidecar
// otherwise.
func (e *Engine) tfidfTop(meta *index.Metadata, keywords tfidf.Keywords, limit int) ([]string, error) {
	candidateUIDs, err := e.candidatePool(meta, keywords, limit)
	if err != nil {
		return nil, err
	}

	state := tfidf.NewState(keywords, float64(e.query.KeywordWeight))
	for _, chunkUID := range candidateUIDs {
		data, err := e.blobs.Read(store.KindChunk, chunkUID, ".tfidf")
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query: read tfidf sidecar %s: %w", chunkUID, err)
		}
		docs, err := tfidf.Unmarshal(data)
		if err != nil || len(docs) == 0 {
			continue
		}
		state.Consume(chunkUID, docs[0])
	}

	top := state.GetTop(limit)
	uids := make([]string, len(top))
	for i, r := range top {
		uids[i] = r.ChunkUID
	}
	return uids, nil
}

// candidatePool returns the chunk uids to score: the II's posting-list
// union when ii_status is Complete, otherwise every chunk with a .tfidf
// sidecar (a full scan).
func (e *Engine) candidatePool(meta *index.Metadata, keywords tfidf.Keywords, limit int) ([]string, error) {
	if meta.IIStatus.Kind == tfidf.IIStatusComplete {
		ii := tfidf.NewInvertedIndex(e.blobs)
		terms := tfidf.TokenizeKeywords(keywords, float64(e.query.KeywordWeight))
		return ii.Candidates(terms, meta.ChunkCount, limit*e.query.IICoeff)
	}
	return e.blobs.List(store.KindChunk, ".tfidf")
}

// loadChunks reads each chunk uid's own .chunk blob, preserving order.
func (e *Engine) loadChunks(uids []string) ([]*chunkbuild.Chunk, error) {
	out := make([]*chunkbuild.Chunk, 0, len(uids))
	for _, chunkUID := range uids {
		data, err := e.blobs.Read(store.KindChunk, chunkUID, ".chunk")
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query: read chunk %s: %w", chunkUID, err)
		}
		chunks, err := chunkbuild.Unmarshal(data)
		if err != nil || len(chunks) == 0 {
			continue
		}
		out = append(out, chunks[0])
	}
	return out, nil
}

// rerank asks the LLM a yes/no relevance question per candidate (field
// is "title" or "summary"), keeping at most limit "yes" answers in their
// original relevance order. Any call that errors counts as "yes" so a
// transient LLM failure can never shrink the candidate set below what a
// full scan would have returned.
func (e *Engine) rerank(ctx context.Context, tmpl *llm.Template, field, query string, chunks []*chunkbuild.Chunk, extract func(*chunkbuild.Chunk) string, limit int) ([]*chunkbuild.Chunk, error) {
	if e.client == nil || tmpl == nil {
		if len(chunks) > limit {
			return chunks[:limit], nil
		}
		return chunks, nil
	}

	kept := make([]*chunkbuild.Chunk, 0, limit)
	for _, c := range chunks {
		if len(kept) >= limit {
			break
		}
		vars := map[string]string{"query": query, field: extract(c)}
		messages, err := tmpl.Render(vars, "")
		if err != nil {
			kept = append(kept, c)
			continue
		}
		resp, err := e.client.Complete(ctx, llm.Request{
			Messages: messages,
			Model:    e.api.Model,
			Timeout:  e.timeout(),
		})
		if err != nil || isYes(resp.Content) {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "yes")
}
