package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ragit-kb/ragit/internal/errors"
	"github.com/ragit-kb/ragit/internal/llm"
)

// defaultOllamaHost is the CLI driver's default completion backend: the
// core's Client interface leaves wire details of any concrete provider
// to an external collaborator, and Ollama's local default is a
// convenient one to ship.
const defaultOllamaHost = "http://localhost:11434"

// ollamaClient implements llm.Client against Ollama's chat completion
// endpoint, with the same connection-pooling and per-request timeout
// pattern the package's other HTTP clients use. A circuit breaker guards
// the endpoint so a host that has gone down (stopped, still loading a
// model) fails build/query/agent calls fast instead of queuing up behind
// a wall of per-request timeouts.
type ollamaClient struct {
	host    string
	http    *http.Client
	breaker *errors.CircuitBreaker
}

func newOllamaClient() *ollamaClient {
	host := os.Getenv("RAGIT_OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	return &ollamaClient{
		host: host,
		http: &http.Client{Timeout: 5 * time.Minute},
		breaker: errors.NewCircuitBreaker("ollama",
			errors.WithMaxFailures(3),
			errors.WithResetTimeout(20*time.Second)),
	}
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []ollamaChatMessage  `json:"messages"`
	Stream   bool                 `json:"stream"`
	Format   json.RawMessage      `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

func (c *ollamaClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return errors.CircuitExecuteWithResult(c.breaker,
		func() (llm.Response, error) { return c.complete(ctx, req) },
		func() (llm.Response, error) {
			return llm.Response{}, fmt.Errorf("ollamaclient: %s unreachable, circuit open: %w", c.host, errors.ErrCircuitOpen)
		})
}

func (c *ollamaClient) complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	msgs := make([]ollamaChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := ollamaChatMessage{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			om.Images = append(om.Images, img.Data)
		}
		msgs = append(msgs, om)
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   false,
		Format:   req.Schema,
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollamaclient: marshal request: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollamaclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollamaclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollamaclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return llm.Response{}, fmt.Errorf("ollamaclient: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.Response{}, fmt.Errorf("ollamaclient: parse response: %w", err)
	}
	return llm.Response{Content: parsed.Message.Content}, nil
}
