package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

func b64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// ImageType is the normalized image format a PDL media token may embed,
// mirrored from the image crate's ImageType so media tokens resolve to
// the same MIME types a provider expects.
type ImageType string

const (
	ImageTypePNG  ImageType = "png"
	ImageTypeJPEG ImageType = "jpeg"
	ImageTypeGIF  ImageType = "gif"
	ImageTypeWebP ImageType = "webp"
)

// MediaType returns the MIME type string for an ImageType.
func (t ImageType) MediaType() string {
	switch t {
	case ImageTypePNG:
		return "image/png"
	case ImageTypeJPEG:
		return "image/jpeg"
	case ImageTypeGIF:
		return "image/gif"
	case ImageTypeWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// ImageTypeFromExtension maps a file extension (without the dot) to an
// ImageType.
func ImageTypeFromExtension(ext string) (ImageType, error) {
	switch strings.ToLower(ext) {
	case "png":
		return ImageTypePNG, nil
	case "jpeg", "jpg":
		return ImageTypeJPEG, nil
	case "gif":
		return ImageTypeGIF, nil
	case "webp":
		return ImageTypeWebP, nil
	default:
		return "", fmt.Errorf("llm: invalid image type %q", ext)
	}
}

var (
	roleDelimRe  = regexp.MustCompile(`(?m)^<\|(user|system|assistant)\|>\s*$`)
	mediaTokenRe = regexp.MustCompile(`<\|media\(([^)]+)\)\|>`)
	rawMediaRe   = regexp.MustCompile(`<\|raw_media\(([a-zA-Z0-9]+):([^)]+)\)\|>`)
	schemaBlockRe = regexp.MustCompile(`(?s)<\|schema\|>\s*(.*?)\s*<\|/schema\|>`)
)

// Template is a parsed PDL prompt source: role-delimited message blocks
// plus an optional inline JSON schema block.
type Template struct {
	raw string
}

// ParseTemplate wraps a raw PDL source string for rendering. PDL sources
// use <|user|>, <|system|>, <|assistant|> role delimiters, <|media(path)|>
// / <|raw_media(ext:base64)|> tokens for images, and an optional
// <|schema|>...<|/schema|> block carrying the JSON schema the response
// must satisfy.
func ParseTemplate(raw string) *Template {
	return &Template{raw: raw}
}

// LoadTemplate reads a .pdl file from disk.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("llm: read template %s: %w", path, err)
	}
	return ParseTemplate(string(data)), nil
}

// Source returns the raw, unrendered template text.
func (t *Template) Source() string { return t.raw }

// Schema extracts the inline <|schema|> block, if present.
func (t *Template) Schema() (string, bool) {
	m := schemaBlockRe.FindStringSubmatch(t.raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Render substitutes {{key}} placeholders with values from vars, splits
// the result into role-tagged messages, and resolves media tokens into
// embedded images. mediaRoot resolves relative <|media(path)|> references.
func (t *Template) Render(vars map[string]string, mediaRoot string) ([]Message, error) {
	body := schemaBlockRe.ReplaceAllString(t.raw, "")
	for k, v := range vars {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}

	locs := roleDelimRe.FindAllStringSubmatchIndex(body, -1)
	if locs == nil {
		// No role delimiters: the whole body is a single user message.
		msg, err := renderMessage(RoleUser, body, mediaRoot)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	var messages []Message
	for i, loc := range locs {
		role := Role(body[loc[2]:loc[3]])
		contentStart := loc[1]
		contentEnd := len(body)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		content := strings.TrimSpace(body[contentStart:contentEnd])
		msg, err := renderMessage(role, content, mediaRoot)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func renderMessage(role Role, content string, mediaRoot string) (Message, error) {
	var images []Image
	var err error

	content = rawMediaRe.ReplaceAllStringFunc(content, func(tok string) string {
		m := rawMediaRe.FindStringSubmatch(tok)
		it, e := ImageTypeFromExtension(m[1])
		if e != nil {
			err = e
			return ""
		}
		images = append(images, Image{MimeType: it.MediaType(), Data: m[2]})
		return ""
	})
	if err != nil {
		return Message{}, err
	}

	content = mediaTokenRe.ReplaceAllStringFunc(content, func(tok string) string {
		m := mediaTokenRe.FindStringSubmatch(tok)
		path := m[1]
		if !filepath.IsAbs(path) && mediaRoot != "" {
			path = filepath.Join(mediaRoot, path)
		}
		data, e := os.ReadFile(path)
		if e != nil {
			err = fmt.Errorf("llm: load media %s: %w", path, e)
			return ""
		}
		it, e := ImageTypeFromExtension(strings.TrimPrefix(filepath.Ext(path), "."))
		if e != nil {
			err = e
			return ""
		}
		images = append(images, Image{MimeType: it.MediaType(), Data: b64Encode(data)})
		return ""
	})
	if err != nil {
		return Message{}, err
	}

	return Message{
		Role:    role,
		Content: strings.TrimSpace(content),
		Images:  images,
	}, nil
}
