package chunkbuild

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ragit-kb/ragit/internal/config"
	"github.com/ragit-kb/ragit/internal/llm"
	"github.com/ragit-kb/ragit/internal/reader"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/internal/tfidf"
	"github.com/ragit-kb/ragit/internal/uid"
)

// titleSummary is the JSON shape the summarize.pdl schema requires the
// LLM to return.
type titleSummary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Builder turns token batches into persisted chunks, calling client for
// title/summary generation.
type Builder struct {
	blobs            *store.BlobStore
	client           llm.Client
	template         *llm.Template
	describeTemplate *llm.Template
	api              *config.APIConfig
	build            *config.BuildConfig
}

// NewBuilder constructs a Builder. template is the rendered summarize.pdl
// prompt; describeTemplate (optional) is describe_image.pdl, used to
// produce each normalized image's description JSON.
func NewBuilder(blobs *store.BlobStore, client llm.Client, template, describeTemplate *llm.Template, api *config.APIConfig, build *config.BuildConfig) *Builder {
	return &Builder{blobs: blobs, client: client, template: template, describeTemplate: describeTemplate, api: api, build: build}
}

// ImageDescription is the LLM-produced metadata stored alongside every
// normalized image.
type ImageDescription struct {
	ExtractedText string `json:"extracted_text"`
	Explanation   string `json:"explanation"`
}

// describeImage asks the LLM to describe a normalized PNG image. On any
// failure (no client, render error, exhausted retries) it returns an
// empty description rather than failing the whole chunk build.
func (b *Builder) describeImage(ctx context.Context, png []byte) ImageDescription {
	if b.client == nil || b.describeTemplate == nil {
		return ImageDescription{}
	}
	messages, err := b.describeTemplate.Render(nil, "")
	if err != nil {
		return ImageDescription{}
	}
	for i := range messages {
		messages[i].Images = append(messages[i].Images, llm.Image{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(png),
		})
	}
	resp, err := b.client.Complete(ctx, llm.Request{
		Messages: messages,
		Model:    b.api.Model,
		Timeout:  time.Duration(b.api.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return ImageDescription{}
	}

	var desc ImageDescription
	if jsonErr := json.Unmarshal([]byte(resp.Content), &desc); jsonErr == nil {
		return desc
	}
	return ImageDescription{Explanation: strings.TrimSpace(resp.Content)}
}

// BuildChunk turns one file-reader chunk's tokens into a persisted Chunk:
// it asks the LLM for a title/summary, normalizes any embedded images,
// computes the uid, and writes the chunk plus its TF-IDF sidecar.
func (b *Builder) BuildChunk(ctx context.Context, relPath string, indexInFile int, tokens []reader.AtomicToken, readerKey string) (*Chunk, error) {
	data, images, err := b.renderData(tokens)
	if err != nil {
		return nil, fmt.Errorf("chunkbuild: render data: %w", err)
	}

	title, summary := b.summarize(ctx, data)

	sourceHash := sha256.Sum256([]byte(relPath + "\x00" + fmt.Sprint(indexInFile)))
	chunkUID := ComputeUID(sourceHash[:], title, summary, data)

	imageUIDs := make([]string, 0, len(images))
	for uidHex := range images {
		imageUIDs = append(imageUIDs, uidHex)
	}

	chunk := &Chunk{
		UID:        chunkUID.String(),
		Data:       data,
		Images:     imageUIDs,
		CharLen:    len([]rune(data)),
		ImageCount: countImageTokens(tokens),
		Title:      title,
		Summary:    summary,
		Source: Source{
			File: &FileSource{Path: relPath, IndexInFile: indexInFile},
		},
		BuildInfo: BuildInfo{
			ReaderKey:     readerKey,
			PromptHash:    promptHash(b.template),
			Model:         b.api.Model,
			EngineVersion: EngineVersion(),
		},
		Timestamp: time.Now().UTC(),
	}

	for uidHex, png := range images {
		if err := b.blobs.Write(store.KindImage, uidHex, ".png", png); err != nil {
			return nil, fmt.Errorf("chunkbuild: write image %s: %w", uidHex, err)
		}
		desc := b.describeImage(ctx, png)
		descJSON, err := json.Marshal(desc)
		if err != nil {
			return nil, fmt.Errorf("chunkbuild: marshal image description %s: %w", uidHex, err)
		}
		if err := b.blobs.Write(store.KindImage, uidHex, ".json", descJSON); err != nil {
			return nil, fmt.Errorf("chunkbuild: write image description %s: %w", uidHex, err)
		}
	}

	return chunk, nil
}

// Persist writes a built chunk plus its TF-IDF sidecar into the blob
// store, keyed by its own uid.
func (b *Builder) Persist(chunk *Chunk) error {
	blob, err := Marshal([]*Chunk{chunk}, b.build.CompressionThreshold)
	if err != nil {
		return err
	}
	if err := b.blobs.Write(store.KindChunk, chunk.UID, ".chunk", blob); err != nil {
		return fmt.Errorf("chunkbuild: write chunk %s: %w", chunk.UID, err)
	}

	doc := tfidf.NewProcessedDoc(chunk.UID, chunk.Haystack())
	sidecar, err := tfidf.Marshal([]*tfidf.ProcessedDoc{doc})
	if err != nil {
		return fmt.Errorf("chunkbuild: marshal tfidf sidecar: %w", err)
	}
	if err := b.blobs.Write(store.KindChunk, chunk.UID, ".tfidf", sidecar); err != nil {
		return fmt.Errorf("chunkbuild: write tfidf sidecar %s: %w", chunk.UID, err)
	}
	return nil
}

// Remove deletes a chunk and its sidecar (used when re-processing a file
// discards its prior chunks).
func (b *Builder) Remove(chunkUID string) error {
	if err := b.blobs.Remove(store.KindChunk, chunkUID, ".chunk"); err != nil {
		return err
	}
	return b.blobs.Remove(store.KindChunk, chunkUID, ".tfidf")
}

// renderData concatenates text tokens into the chunk's data string,
// substituting "img_<uid>" placeholders for image tokens and normalizing
// each image's bytes. It returns the normalized
// PNG bytes keyed by hex image uid.
func (b *Builder) renderData(tokens []reader.AtomicToken) (string, map[string][]byte, error) {
	var sb strings.Builder
	images := make(map[string][]byte)

	for _, tok := range tokens {
		if tok.Kind == reader.TokenText {
			sb.WriteString(tok.Text)
			continue
		}
		normalized, err := NormalizeImage(tok.Image.Bytes, tok.Image.Type)
		if err != nil {
			return "", nil, fmt.Errorf("normalize image %s: %w", tok.Image.Key, err)
		}
		imgUID := imageUIDFromBytes(normalized)
		images[imgUID] = normalized
		sb.WriteString(imagePlaceholder(imgUID))
	}
	return sb.String(), images, nil
}

func countImageTokens(tokens []reader.AtomicToken) int {
	n := 0
	for _, t := range tokens {
		if t.Kind == reader.TokenImage {
			n++
		}
	}
	return n
}

// summarize asks the LLM for {title, summary}, retrying up to
// api.MaxRetry times with a corrective message on validation failure,
// and falling back to "untitled" plus a truncated excerpt of data after
// exhausting retries.
func (b *Builder) summarize(ctx context.Context, data string) (title, summary string) {
	if b.client == nil || b.template == nil {
		return fallbackSummary(data, b.build.MinSummaryLen, b.build.MaxSummaryLen)
	}
	vars := map[string]string{"content": data}
	messages, err := b.template.Render(vars, "")
	if err != nil {
		return fallbackSummary(data, b.build.MinSummaryLen, b.build.MaxSummaryLen)
	}

	schema, _ := b.template.Schema()
	req := llm.Request{
		Messages:            messages,
		Model:               b.api.Model,
		Schema:              json.RawMessage(schema),
		MaxRetry:            b.api.MaxRetry,
		SleepBetweenRetries: time.Duration(b.api.SleepBetweenRetriesMs) * time.Millisecond,
		Timeout:             time.Duration(b.api.TimeoutSeconds) * time.Second,
	}

	content, err := llm.CompleteWithSchema(ctx, b.client, req, func(raw string) (bool, string) {
		var ts titleSummary
		if jsonErr := json.Unmarshal([]byte(raw), &ts); jsonErr != nil {
			return false, "your response must be valid JSON of the form {\"title\": ..., \"summary\": ...}"
		}
		if strings.ContainsAny(ts.Title, "\n\r") {
			return false, "title must not contain newlines"
		}
		if ok, complaint := validateSummary(ts.Summary, b.build.MinSummaryLen, b.build.MaxSummaryLen); !ok {
			return false, complaint
		}
		return true, ""
	})
	if err != nil {
		return fallbackSummary(data, b.build.MinSummaryLen, b.build.MaxSummaryLen)
	}

	var ts titleSummary
	if jsonErr := json.Unmarshal([]byte(content), &ts); jsonErr != nil {
		return fallbackSummary(data, b.build.MinSummaryLen, b.build.MaxSummaryLen)
	}
	return ts.Title, ts.Summary
}

// fallbackSummary is used when there is no client or template, or after
// api.MaxRetry failed attempts (5 by default): title="untitled",
// summary is the first ~(min+max)/2 characters of data.
func fallbackSummary(data string, minLen, maxLen int) (string, string) {
	target := (minLen + maxLen) / 2
	runes := []rune(data)
	if len(runes) > target {
		runes = runes[:target]
	}
	return "untitled", string(runes)
}

func promptHash(t *llm.Template) string {
	if t == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(t.Source()))
	return hex.EncodeToString(sum[:8])
}

func imageUIDFromBytes(png []byte) string {
	return uid.NewImage(png).String()
}
