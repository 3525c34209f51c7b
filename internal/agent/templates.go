package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragit-kb/ragit/internal/lifecycle"
	"github.com/ragit-kb/ragit/internal/llm"
)

// LoadTemplates reads the agent's four prompts from promptsDir, falling
// back to the built-in defaults when a project hasn't overridden them.
func LoadTemplates(promptsDir string) (*Templates, error) {
	load := func(name string) (*llm.Template, error) {
		path := filepath.Join(promptsDir, name+".pdl")
		data, err := os.ReadFile(path)
		if err == nil {
			return llm.ParseTemplate(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("agent: read prompt %s: %w", path, err)
		}
		body, ok := lifecycle.DefaultPrompt(name)
		if !ok {
			return nil, fmt.Errorf("agent: no prompt named %q", name)
		}
		return llm.ParseTemplate(body), nil
	}

	t := &Templates{}
	var err error
	if t.Need, err = load("agent_need"); err != nil {
		return nil, err
	}
	if t.Action, err = load("agent_action"); err != nil {
		return nil, err
	}
	if t.Reflect, err = load("agent_reflect"); err != nil {
		return nil, err
	}
	if t.Conclude, err = load("agent_conclude"); err != nil {
		return nil, err
	}
	return t, nil
}
