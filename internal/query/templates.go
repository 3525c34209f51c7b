package query

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragit-kb/ragit/internal/lifecycle"
	"github.com/ragit-kb/ragit/internal/llm"
)

// Templates holds every PDL prompt the query pipeline renders.
type Templates struct {
	RephraseMultiTurn *llm.Template
	ExtractKeyword    *llm.Template
	RerankTitle       *llm.Template
	RerankSummary     *llm.Template
	AnswerQuery       *llm.Template
	RawRequest        *llm.Template
}

// LoadTemplates reads each named prompt from promptsDir/<name>.pdl,
// falling back to the built-in default (lifecycle.DefaultPrompt) when a
// project hasn't overridden it.
func LoadTemplates(promptsDir string) (*Templates, error) {
	load := func(name string) (*llm.Template, error) {
		path := filepath.Join(promptsDir, name+".pdl")
		data, err := os.ReadFile(path)
		if err == nil {
			return llm.ParseTemplate(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("query: read prompt %s: %w", path, err)
		}
		body, ok := lifecycle.DefaultPrompt(name)
		if !ok {
			return nil, fmt.Errorf("query: no prompt named %q", name)
		}
		return llm.ParseTemplate(body), nil
	}

	t := &Templates{}
	var err error
	if t.RephraseMultiTurn, err = load("rephrase_multi_turn"); err != nil {
		return nil, err
	}
	if t.ExtractKeyword, err = load("extract_keyword"); err != nil {
		return nil, err
	}
	if t.RerankTitle, err = load("rerank_title"); err != nil {
		return nil, err
	}
	if t.RerankSummary, err = load("rerank_summary"); err != nil {
		return nil, err
	}
	if t.AnswerQuery, err = load("answer_query"); err != nil {
		return nil, err
	}
	if t.RawRequest, err = load("raw_request"); err != nil {
		return nil, err
	}
	return t, nil
}
