// Package query implements the retrieval and answer pipeline (spec
// §4.5): multi-turn rephrase, keyword extraction, TF-IDF/II candidate
// retrieval, title/summary reranking, chunk merge, and the final
// grounded (or raw, ungrounded) LLM answer.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/session"
	"github.com/ragit-kb/ragit/internal/store"
)

// Engine answers questions against one knowledge base.
type Engine struct {
	blobs     *store.BlobStore
	client    llm.Client
	api       *config.APIConfig
	query     *config.QueryConfig
	templates *Templates
}

// NewEngine constructs a query Engine.
func NewEngine(blobs *store.BlobStore, client llm.Client, api *config.APIConfig, query *config.QueryConfig, templates *Templates) *Engine {
	return &Engine{blobs: blobs, client: client, api: api, query: query, templates: templates}
}

// Answer is the result of one query turn: the text answer, the
// (possibly rephrased) query actually retrieved against, and the chunk
// uids that grounded it (empty when raw_request was used).
type Answer struct {
	Text           string
	RephrasedQuery string
	ChunkUIDs      []string
}

func (e *Engine) timeout() time.Duration {
	return time.Duration(e.api.TimeoutSeconds) * time.Second
}

// Query runs the rephrase -> retrieve -> rerank -> answer pipeline
// against q, consulting history for multi-turn rephrasing.
func (e *Engine) Query(ctx context.Context, q string, history []session.QueryTurn) (*Answer, error) {
	effective := q
	rephrased := ""
	if len(history) > 0 {
		if r, ok := e.rephrase(ctx, q, history); ok {
			effective = r
			rephrased = r
		}
	}

	candidates, err := e.retrieveChunks(ctx, effective)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		text, err := e.rawRequest(ctx, effective, history)
		if err != nil {
			return nil, err
		}
		return &Answer{Text: text, RephrasedQuery: rephrased}, nil
	}

	merged := Merge(candidates)
	text, err := e.answerQuery(ctx, effective, merged)
	if err != nil {
		return nil, err
	}

	uids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		uids = append(uids, c.UID)
	}
	return &Answer{Text: text, RephrasedQuery: rephrased, ChunkUIDs: uids}, nil
}

// rephraseResult is the JSON shape rephrase_multi_turn.pdl returns.
type rephraseResult struct {
	IsQuery   bool   `json:"is_query"`
	InContext bool   `json:"in_context"`
	Query     string `json:"query"`
}

// rephrase asks rephrase_multi_turn whether q is itself a question that
// needs the conversation so far to resolve, returning the rewritten
// standalone query when so. ok is false when the call fails or the
// model says the follow-up isn't an in-context question, in which case
// the caller should fall back to q verbatim.
func (e *Engine) rephrase(ctx context.Context, q string, history []session.QueryTurn) (string, bool) {
	if e.client == nil || e.templates.RephraseMultiTurn == nil {
		return "", false
	}
	vars := map[string]string{"query": q, "history": renderHistory(history)}
	messages, err := e.templates.RephraseMultiTurn.Render(vars, "")
	if err != nil {
		return "", false
	}
	schema, _ := e.templates.RephraseMultiTurn.Schema()
	content, err := llm.CompleteWithSchema(ctx, e.client, llm.Request{
		Messages: messages,
		Model:    e.api.Model,
		Schema:   json.RawMessage(schema),
		MaxRetry: e.api.MaxRetry,
		Timeout:  e.timeout(),
	}, func(raw string) (bool, string) {
		var r rephraseResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return false, "your response must be valid JSON of the form {\"is_query\": ..., \"in_context\": ..., \"query\": ...}"
		}
		return true, ""
	})
	if err != nil {
		return "", false
	}
	var r rephraseResult
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return "", false
	}
	if !r.IsQuery || !r.InContext {
		return "", false
	}
	return r.Query, true
}

func renderHistory(history []session.QueryTurn) string {
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Query, turn.Answer)
	}
	return b.String()
}

// rawRequest asks the LLM to answer q with no retrieved grounding, used
// when retrieval finds no candidates.
func (e *Engine) rawRequest(ctx context.Context, q string, history []session.QueryTurn) (string, error) {
	if e.client == nil || e.templates.RawRequest == nil {
		return "", fmt.Errorf("query: no LLM client configured for raw_request")
	}
	vars := map[string]string{"query": q, "history": renderHistory(history)}
	messages, err := e.templates.RawRequest.Render(vars, "")
	if err != nil {
		return "", fmt.Errorf("query: render raw_request: %w", err)
	}
	messages = append(append([]llm.Message(nil), historyMessages(history)...), messages...)
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages: messages,
		Model:    e.api.Model,
		Timeout:  e.timeout(),
	})
	if err != nil {
		return "", fmt.Errorf("query: raw_request: %w", err)
	}
	return resp.Content, nil
}

func historyMessages(history []session.QueryTurn) []llm.Message {
	out := make([]llm.Message, 0, len(history)*2)
	for _, turn := range history {
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: turn.Query},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return out
}

// answerQuery asks answer_query to ground its answer in merged, the
// rendered chunk context.
func (e *Engine) answerQuery(ctx context.Context, q string, merged []*MergedChunk) (string, error) {
	if e.client == nil || e.templates.AnswerQuery == nil {
		return "", fmt.Errorf("query: no LLM client configured for answer_query")
	}
	vars := map[string]string{"query": q, "chunks": renderContext(merged)}
	messages, err := e.templates.AnswerQuery.Render(vars, "")
	if err != nil {
		return "", fmt.Errorf("query: render answer_query: %w", err)
	}
	resp, err := e.client.Complete(ctx, llm.Request{
		Messages: messages,
		Model:    e.api.Model,
		Timeout:  e.timeout(),
	})
	if err != nil {
		return "", fmt.Errorf("query: answer_query: %w", err)
	}
	return resp.Content, nil
}

func renderContext(merged []*MergedChunk) string {
	var b strings.Builder
	for i, c := range merged {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		if c.Title != "" {
			fmt.Fprintf(&b, "[%s] ", c.Title)
		}
		b.WriteString(c.Data)
		b.WriteByte('\n')
	}
	return b.String()
}
