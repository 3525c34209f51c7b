// Package agent implements the tool-use state machine: an
// outer loop that states what it still needs, drives a bounded run of
// actions against the knowledge base, reflects on their results, and
// decides whether it now has enough information to answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/store"
)

// maxOuterIterations bounds the outer loop: after this many rounds,
// has_enough_information is forced true to guard against livelock.
const maxOuterIterations = 2

// maxActionsPerIteration bounds the inner action loop so a model that
// never answers "no" to continue can't run forever.
const maxActionsPerIteration = 6

// Templates holds the PDL prompts the agent's state machine renders.
type Templates struct {
	Need     *llm.Template
	Action   *llm.Template
	Reflect  *llm.Template
	Conclude *llm.Template
}

// ActionTrace records one action the agent took and what it learned.
type ActionTrace struct {
	ActionIndex int    `json:"action_index"`
	Argument    string `json:"argument"`
	Result      string `json:"result"`
	Continue    bool   `json:"continue"`
}

// Result is the agent's terminal state.
type Result struct {
	NeededInformation    []string
	ActionTraces         []ActionTrace
	HasEnoughInformation bool
	Answer               string
}

// Agent drives the tool-use loop against one knowledge base.
type Agent struct {
	blobs     *store.BlobStore
	client    llm.Client
	api       *config.APIConfig
	executor  *Executor
	templates *Templates
}

// New constructs an Agent. q is the query engine SimpleRag delegates to;
// it may be nil if the agent shouldn't expose that action usefully (the
// action will then fail gracefully if picked).
func New(blobs *store.BlobStore, client llm.Client, api *config.APIConfig, q *query.Engine, templates *Templates) *Agent {
	return &Agent{blobs: blobs, client: client, api: api, executor: NewExecutor(blobs, q), templates: templates}
}

// Run drives the outer loop for question until the agent reports enough
// information or the iteration cap forces it to stop.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	meta, err := index.Load(a.blobs.DataDir())
	if err != nil {
		return nil, err
	}
	specs := AvailableActions(meta.Summary != nil)

	result := &Result{}
	context := ""

	for iter := 0; iter < maxOuterIterations; iter++ {
		needed := a.need(ctx, question, context)
		result.NeededInformation = append(result.NeededInformation, needed)

		traces, actionsText := a.actionLoop(ctx, question, needed, context, specs)
		result.ActionTraces = append(result.ActionTraces, traces...)

		newInfo, newContext := a.reflect(ctx, question, actionsText)
		if newContext != "" {
			context = newContext
		} else {
			context += newInfo
		}

		last := iter == maxOuterIterations-1
		enough, answer := a.conclude(ctx, question, context)
		if enough || last {
			result.HasEnoughInformation = true
			result.Answer = answer
			return result, nil
		}
	}
	return result, nil
}

func (a *Agent) timeout() time.Duration {
	return time.Duration(a.api.TimeoutSeconds) * time.Second
}

// need asks what information is still missing.
func (a *Agent) need(ctx context.Context, question, context string) string {
	if a.client == nil || a.templates.Need == nil {
		return ""
	}
	messages, err := a.templates.Need.Render(map[string]string{"query": question, "context": context}, "")
	if err != nil {
		return ""
	}
	resp, err := a.client.Complete(ctx, llm.Request{Messages: messages, Model: a.api.Model, Timeout: a.timeout()})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

type actionChoice struct {
	ActionIndex int    `json:"action_index"`
	Argument    string `json:"argument"`
	Continue    bool   `json:"continue"`
}

// actionLoop repeatedly picks and executes an action until the model
// says stop or the per-iteration cap is hit, returning the traces plus
// a rendered transcript for the reflect step.
func (a *Agent) actionLoop(ctx context.Context, question, needed, context string, specs []Spec) ([]ActionTrace, string) {
	var traces []ActionTrace
	var transcript strings.Builder

	for i := 0; i < maxActionsPerIteration; i++ {
		choice, ok := a.chooseAction(ctx, question, needed, context, specs)
		if !ok {
			break
		}
		if choice.ActionIndex < 0 || choice.ActionIndex >= len(specs) {
			break
		}

		result, err := a.executor.Execute(ctx, specs[choice.ActionIndex].Kind, choice.Argument)
		if err != nil {
			result = fmt.Sprintf("error: %v", err)
		}

		trace := ActionTrace{
			ActionIndex: choice.ActionIndex,
			Argument:    choice.Argument,
			Result:      result,
			Continue:    choice.Continue,
		}
		traces = append(traces, trace)
		fmt.Fprintf(&transcript, "action %s(%s) -> %s\n", specs[choice.ActionIndex].Name, choice.Argument, result)

		if !choice.Continue {
			break
		}
	}
	return traces, transcript.String()
}

// chooseAction asks agent_action.pdl for {action_index, argument,
// continue}.
func (a *Agent) chooseAction(ctx context.Context, question, needed, context string, specs []Spec) (actionChoice, bool) {
	if a.client == nil || a.templates.Action == nil {
		return actionChoice{}, false
	}
	vars := map[string]string{
		"actions": RenderActionList(specs),
		"query":   question,
		"needed":  needed,
		"context": context,
	}
	messages, err := a.templates.Action.Render(vars, "")
	if err != nil {
		return actionChoice{}, false
	}
	schema, _ := a.templates.Action.Schema()
	content, err := llm.CompleteWithSchema(ctx, a.client, llm.Request{
		Messages: messages,
		Model:    a.api.Model,
		Schema:   json.RawMessage(schema),
		MaxRetry: a.api.MaxRetry,
		Timeout:  a.timeout(),
	}, func(raw string) (bool, string) {
		var c actionChoice
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return false, "your response must be valid JSON of the form {\"action_index\": ..., \"argument\": ..., \"continue\": ...}"
		}
		return true, ""
	})
	if err != nil {
		return actionChoice{}, false
	}
	var c actionChoice
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return actionChoice{}, false
	}
	return c, true
}

type reflection struct {
	NewInformation string `json:"new_information"`
	NewContext     string `json:"new_context"`
}

// reflect asks agent_reflect.pdl to summarize what the just-taken
// actions revealed.
func (a *Agent) reflect(ctx context.Context, question, actionsText string) (newInfo, newContext string) {
	if a.client == nil || a.templates.Reflect == nil {
		return actionsText, ""
	}
	vars := map[string]string{"query": question, "actions_taken": actionsText}
	messages, err := a.templates.Reflect.Render(vars, "")
	if err != nil {
		return actionsText, ""
	}
	schema, _ := a.templates.Reflect.Schema()
	content, err := llm.CompleteWithSchema(ctx, a.client, llm.Request{
		Messages: messages,
		Model:    a.api.Model,
		Schema:   json.RawMessage(schema),
		MaxRetry: a.api.MaxRetry,
		Timeout:  a.timeout(),
	}, func(raw string) (bool, string) {
		var r reflection
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return false, "your response must be valid JSON of the form {\"new_information\": ..., \"new_context\": ...}"
		}
		return true, ""
	})
	if err != nil {
		return actionsText, ""
	}
	var r reflection
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return actionsText, ""
	}
	return r.NewInformation, r.NewContext
}

type conclusion struct {
	HasEnoughInformation bool   `json:"has_enough_information"`
	Result               string `json:"result"`
}

// conclude asks agent_conclude.pdl whether enough information has been
// gathered, and for the answer if so.
func (a *Agent) conclude(ctx context.Context, question, context string) (bool, string) {
	if a.client == nil || a.templates.Conclude == nil {
		return false, ""
	}
	vars := map[string]string{"query": question, "context": context}
	messages, err := a.templates.Conclude.Render(vars, "")
	if err != nil {
		return false, ""
	}
	schema, _ := a.templates.Conclude.Schema()
	content, err := llm.CompleteWithSchema(ctx, a.client, llm.Request{
		Messages: messages,
		Model:    a.api.Model,
		Schema:   json.RawMessage(schema),
		MaxRetry: a.api.MaxRetry,
		Timeout:  a.timeout(),
	}, func(raw string) (bool, string) {
		var c conclusion
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return false, "your response must be valid JSON of the form {\"has_enough_information\": ..., \"result\": ...}"
		}
		return true, ""
	})
	if err != nil {
		return false, ""
	}
	var c conclusion
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return false, ""
	}
	return c.HasEnoughInformation, c.Result
}
