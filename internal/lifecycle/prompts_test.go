package lifecycle

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteDefaultPromptsCreatesAllFiles(t *testing.T) {
	dir := t.TempDir()
	written, err := WriteDefaultPrompts(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != len(DefaultPromptNames()) {
		t.Fatalf("expected %d prompts written, got %d", len(DefaultPromptNames()), len(written))
	}

	for _, name := range DefaultPromptNames() {
		path := filepath.Join(dir, name+".pdl")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

func TestWriteDefaultPromptsDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteDefaultPrompts(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	custom := filepath.Join(dir, "summarize.pdl")
	if err := os.WriteFile(custom, []byte("custom template"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	written, err := WriteDefaultPrompts(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range written {
		if name == "summarize" {
			t.Fatal("expected summarize.pdl to be skipped, not overwritten")
		}
	}

	data, err := os.ReadFile(custom)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "custom template" {
		t.Errorf("custom template was overwritten: %q", data)
	}
}

func TestDefaultPromptKnownNames(t *testing.T) {
	for _, name := range []string{"summarize", "rephrase_multi_turn", "extract_keyword", "rerank_title", "rerank_summary", "answer_query", "raw_request", "describe_image", "agent_need", "agent_action", "agent_reflect", "agent_conclude"} {
		body, ok := DefaultPrompt(name)
		if !ok {
			t.Errorf("expected built-in prompt %q", name)
		}
		if !strings.Contains(body, "<|") {
			t.Errorf("prompt %q missing role delimiter", name)
		}
	}
}

func TestDefaultPromptMissing(t *testing.T) {
	_, ok := DefaultPrompt("does_not_exist")
	if ok {
		t.Error("expected ok=false for unknown prompt")
	}
}

func TestProgressBar_Update(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 20)

	bar.Update(50, "testing")
	output := out.String()

	if !strings.Contains(output, "50%") {
		t.Errorf("expected output to contain 50%%, got: %s", output)
	}
	if !strings.Contains(output, "█") {
		t.Errorf("expected output to contain filled bar, got: %s", output)
	}
}

func TestProgressBar_DefaultWidth(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 0)

	bar.Update(100, "done")
	if bar.width != 40 {
		t.Errorf("expected default width 40, got %d", bar.width)
	}
}

func TestProgressBar_Finish(t *testing.T) {
	var out bytes.Buffer
	bar := NewProgressBar(&out, 20)

	bar.Update(100, "done")
	bar.Finish()

	if !strings.HasSuffix(out.String(), "\n") {
		t.Error("expected output to end with newline after Finish()")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1572864, "1.5 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("FormatBytes(%d) = %s, want %s", tt.bytes, result, tt.expected)
			}
		})
	}
}

func TestBuildProgressPercent(t *testing.T) {
	p := BuildProgress{FilesDone: 5, FilesTotal: 20, Stage: "chunking"}
	if p.Percent() != 25 {
		t.Errorf("expected 25%%, got %v", p.Percent())
	}

	empty := BuildProgress{}
	if empty.Percent() != 0 {
		t.Errorf("expected 0%% for empty total, got %v", empty.Percent())
	}
}

func TestCreateBuildProgressFunc(t *testing.T) {
	var out bytes.Buffer
	fn := CreateBuildProgressFunc(&out)

	fn(BuildProgress{FilesDone: 2, FilesTotal: 4, Stage: "embedding summaries"})

	output := out.String()
	if !strings.Contains(output, "50%") {
		t.Errorf("expected 50%%, got: %s", output)
	}
	if !strings.Contains(output, "2/4") {
		t.Errorf("expected file counts, got: %s", output)
	}
}
