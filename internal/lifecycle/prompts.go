// Package lifecycle handles first-run setup for a knowledge base: writing
// the default PDL prompt files into prompts/ and reporting progress during
// long-running build and archive operations.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// defaultPrompts holds the built-in PDL template for every prompt name the
// query and chunk-build pipelines render. They are written verbatim into a
// fresh knowledge base's prompts/ directory so a project can edit them in
// place without touching the binary.
var defaultPrompts = map[string]string{
	"summarize": `<|system|>
You summarize a piece of source material for a knowledge base index.

<|user|>
Summarize the following content in 2-3 sentences. Focus on what the
content is and what it is useful for, not line-by-line detail. Reply
with a JSON object: "title" (a short one-line title) and "summary" (the
summary, without newlines).

{{content}}

<|schema|>
{"type":"object","properties":{"title":{"type":"string"},"summary":{"type":"string"}},"required":["title","summary"]}
<|/schema|>

<|assistant|>
`,
	"rephrase_multi_turn": `<|system|>
You decide whether a follow-up message is itself a question, and if so
whether answering it needs the conversation so far.

<|user|>
Conversation so far:
{{history}}

Follow-up message: {{query}}

Reply with a JSON object: "is_query" (is the follow-up a question at
all), "in_context" (does answering it require the conversation above),
and "query" (the follow-up rewritten as a standalone question using the
conversation above; repeat the follow-up verbatim if it already stands
alone).

<|schema|>
{"type":"object","properties":{"is_query":{"type":"boolean"},"in_context":{"type":"boolean"},"query":{"type":"string"}},"required":["is_query","in_context","query"]}
<|/schema|>

<|assistant|>
`,
	"extract_keyword": `<|system|>
You extract search keywords from a natural-language question.

<|user|>
Question: {{query}}

List the important keywords (terms that must appear) and extra keywords
(terms that are merely helpful) as a JSON object with "important" and
"extra" arrays of strings.

<|schema|>
{"type":"object","properties":{"important":{"type":"array","items":{"type":"string"}},"extra":{"type":"array","items":{"type":"string"}}},"required":["important","extra"]}
<|/schema|>

<|assistant|>
`,
	"rerank_title": `<|system|>
You judge whether a chunk's title is relevant to a question.

<|user|>
Question: {{query}}
Title: {{title}}

Is this chunk worth reading in full to answer the question? Answer yes
or no.

<|assistant|>
`,
	"rerank_summary": `<|system|>
You judge whether a chunk's summary is relevant to a question.

<|user|>
Question: {{query}}
Summary: {{summary}}

Is this chunk worth reading in full to answer the question? Answer yes
or no.

<|assistant|>
`,
	"answer_query": `<|system|>
You answer questions using only the knowledge base chunks provided.

<|user|>
Question: {{query}}

Relevant material:
{{chunks}}

Answer the question using only the material above. If the material does
not contain the answer, say so.

<|assistant|>
`,
	"raw_request": `<|user|>
{{query}}

<|assistant|>
`,
	"describe_image": `<|system|>
You describe an image for a text-only search index.

<|user|>
Describe what this image shows in 1-2 sentences.

<|assistant|>
`,
	"agent_need": `<|system|>
You state, in one sentence, what information is still missing to
answer a question.

<|user|>
Question: {{query}}
Information gathered so far:
{{context}}

What do you still need to know?

<|assistant|>
`,
	"agent_action": `<|system|>
You decide the next action to take while gathering information to
answer a question. Available actions:
{{actions}}

<|user|>
Question: {{query}}
What you still need: {{needed}}
Information gathered so far:
{{context}}

Pick the next action by index, give its argument, and say whether you
should keep taking actions after this one.

<|schema|>
{"type":"object","properties":{"action_index":{"type":"integer"},"argument":{"type":"string"},"continue":{"type":"boolean"}},"required":["action_index","argument","continue"]}
<|/schema|>

<|assistant|>
`,
	"agent_reflect": `<|system|>
You summarize what the actions just taken revealed.

<|user|>
Question: {{query}}
Actions taken and their results:
{{actions_taken}}

Summarize the new information these actions revealed, then restate the
full context so far including this new information.

<|schema|>
{"type":"object","properties":{"new_information":{"type":"string"},"new_context":{"type":"string"}},"required":["new_information","new_context"]}
<|/schema|>

<|assistant|>
`,
	"agent_conclude": `<|system|>
You decide whether enough information has been gathered to answer a
question, and if so, answer it.

<|user|>
Question: {{query}}
Information gathered so far:
{{context}}

Do you have enough information to answer now? If yes, give the answer
as "result"; if no, leave "result" empty.

<|schema|>
{"type":"object","properties":{"has_enough_information":{"type":"boolean"},"result":{"type":"string"}},"required":["has_enough_information","result"]}
<|/schema|>

<|assistant|>
`,
}

// PromptDirName is the on-disk directory name for a knowledge base's prompt
// overrides, relative to the .ragit data directory.
const PromptDirName = "prompts"

// WriteDefaultPrompts writes every built-in prompt template into dir as
// "<name>.pdl", skipping any file that already exists so a project's local
// edits are never clobbered. It returns the names it actually wrote.
func WriteDefaultPrompts(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lifecycle: mkdir %s: %w", dir, err)
	}

	var written []string
	for name, body := range defaultPrompts {
		path := filepath.Join(dir, name+".pdl")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return written, fmt.Errorf("lifecycle: write %s: %w", path, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// DefaultPromptNames returns the names of every built-in prompt, sorted.
func DefaultPromptNames() []string {
	names := make([]string, 0, len(defaultPrompts))
	for name := range defaultPrompts {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// DefaultPrompt returns the built-in template for name, if any.
func DefaultPrompt(name string) (string, bool) {
	p, ok := defaultPrompts[name]
	return p, ok
}

// ProgressBar renders a simple terminal progress bar for long-running
// build and archive operations.
type ProgressBar struct {
	w       io.Writer
	width   int
	current float64
	message string
}

// NewProgressBar creates a new progress bar writing to w.
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 40
	}
	return &ProgressBar{
		w:     w,
		width: width,
	}
}

// Update redraws the bar at the given percentage with a status message.
func (p *ProgressBar) Update(percent float64, message string) {
	p.current = percent
	p.message = message

	filled := int(percent / 100 * float64(p.width))
	if filled > p.width {
		filled = p.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w, "\r[%s] %.0f%% %s", bar, percent, message)
}

// Finish completes the progress bar with a trailing newline.
func (p *ProgressBar) Finish() {
	fmt.Fprintln(p.w)
}

// FormatBytes formats a byte count in human-readable units.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// BuildProgress describes how far a knowledge base build has gotten, fed
// into a ProgressBar by the build coordinator.
type BuildProgress struct {
	FilesDone  int
	FilesTotal int
	Stage      string
}

// Percent returns the completion percentage, or 0 if there is nothing to do.
func (p BuildProgress) Percent() float64 {
	if p.FilesTotal == 0 {
		return 0
	}
	return 100 * float64(p.FilesDone) / float64(p.FilesTotal)
}

// CreateBuildProgressFunc returns a callback that renders BuildProgress
// updates onto a ProgressBar.
func CreateBuildProgressFunc(w io.Writer) func(BuildProgress) {
	bar := NewProgressBar(w, 40)
	return func(p BuildProgress) {
		msg := fmt.Sprintf("%d/%d %s", p.FilesDone, p.FilesTotal, p.Stage)
		bar.Update(p.Percent(), msg)
	}
}
