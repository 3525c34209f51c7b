package reader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ragit-kb/ragit/internal/llm"
)

// codeFence describes an opening fence: its fence character (` or ~)
// and length.
type codeFence struct {
	char string
	len  int
}

var (
	fenceRe        = regexp.MustCompile("^(```+|~~~+)(.*)$")
	linkRefDefRe   = regexp.MustCompile(`^\s*\[([^\]]+)\]:\s*(\S+)\s*$`)
	inlineImageRe  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	refImageRe     = regexp.MustCompile(`!\[([^\]]*)\]\[([^\]]*)\]`)
	shortcutImgRe  = regexp.MustCompile(`!\[([^\]]+)\]`)
)

func parseCodeFence(line string) (codeFence, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	m := fenceRe.FindStringSubmatch(trimmed)
	if m == nil {
		return codeFence{}, false
	}
	return codeFence{char: m[1][:1], len: len(m[1])}, true
}

// matchFence reports whether a closing fence matches an opening one:
// same character, length >= opening, and no trailing info string on
// the closing fence.
func matchFence(open codeFence, line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	m := fenceRe.FindStringSubmatch(trimmed)
	if m == nil {
		return false
	}
	closeFence := codeFence{char: m[1][:1], len: len(m[1])}
	info := strings.TrimSpace(m[2])
	return closeFence.char == open.char && closeFence.len >= open.len && info == ""
}

func parseLinkReferenceDefinition(line string) (label, dest string, ok bool) {
	m := linkRefDefRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(m[1])), m[2], true
}

// MarkdownReader parses fenced code blocks, link-reference definitions,
// and image links (inline, reference and shortcut forms).
// Unresolved references surface as literal text unless StrictMode is set,
// in which case they are reported as an error.
type MarkdownReader struct {
	path        string
	f           *os.File
	br          *bufio.Reader
	tokens      []AtomicToken
	exhausted   bool
	strictMode  bool
	inFence     *codeFence
	linkRefs    map[string]string
	pendingBuf  []string
}

// NewMarkdownReader opens path for markdown-aware reading.
func NewMarkdownReader(path string, strictMode bool) (*MarkdownReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	return &MarkdownReader{
		path:       path,
		f:          f,
		br:         bufio.NewReaderSize(f, 1<<16),
		strictMode: strictMode,
		linkRefs:   make(map[string]string),
	}, nil
}

func (r *MarkdownReader) LoadTokens() error {
	if r.exhausted {
		return nil
	}

	for {
		line, err := r.br.ReadString('\n')
		if len(line) == 0 && err != nil {
			r.exhausted = true
			if err := r.flushParagraph(); err != nil {
				return err
			}
			r.f.Close()
			break
		}

		if r.inFence == nil {
			if fence, ok := parseCodeFence(line); ok {
				if err := r.flushParagraph(); err != nil {
					return err
				}
				r.inFence = &fence
				r.tokens = append(r.tokens, NewTextToken(line))
				if err != nil {
					r.exhausted = true
					r.f.Close()
					break
				}
				continue
			}
			if label, dest, ok := parseLinkReferenceDefinition(line); ok {
				r.linkRefs[label] = dest
				if err != nil {
					r.exhausted = true
					r.f.Close()
					break
				}
				continue
			}
			r.pendingBuf = append(r.pendingBuf, line)
		} else {
			if matchFence(*r.inFence, line) {
				r.inFence = nil
			}
			r.tokens = append(r.tokens, NewTextToken(line))
		}

		if err != nil {
			r.exhausted = true
			if err2 := r.flushParagraph(); err2 != nil {
				return err2
			}
			r.f.Close()
			break
		}
		if len(r.pendingBuf) > 32 {
			if err := r.flushParagraph(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushParagraph resolves image links within the buffered non-fence
// lines and emits text/image tokens.
func (r *MarkdownReader) flushParagraph() error {
	if len(r.pendingBuf) == 0 {
		return nil
	}
	text := strings.Join(r.pendingBuf, "")
	r.pendingBuf = nil

	toks, err := r.parseImages(text)
	if err != nil {
		return err
	}
	r.tokens = append(r.tokens, toks...)
	return nil
}

// parseImages splits text around image links, resolving inline,
// reference and shortcut forms.
func (r *MarkdownReader) parseImages(text string) ([]AtomicToken, error) {
	var out []AtomicToken
	rest := text

	for len(rest) > 0 {
		locInline := inlineImageRe.FindStringSubmatchIndex(rest)
		locRef := refImageRe.FindStringSubmatchIndex(rest)
		locShort := shortcutImgRe.FindStringSubmatchIndex(rest)

		start, kind := -1, 0
		pick := func(loc []int, k int) {
			if loc != nil && (start == -1 || loc[0] < start) {
				start, kind = loc[0], k
			}
		}
		pick(locInline, 1)
		pick(locRef, 2)
		pick(locShort, 3)

		if start == -1 {
			out = append(out, NewTextToken(rest))
			break
		}

		var loc []int
		switch kind {
		case 1:
			loc = locInline
		case 2:
			loc = locRef
		case 3:
			loc = locShort
		}

		if loc[0] > 0 {
			out = append(out, NewTextToken(rest[:loc[0]]))
		}

		alt := rest[loc[2]:loc[3]]
		var dest string
		var resolved bool
		switch kind {
		case 1:
			dest = rest[loc[4]:loc[5]]
			resolved = true
		case 2:
			label := rest[loc[4]:loc[5]]
			if label == "" {
				label = alt
			}
			dest, resolved = r.linkRefs[strings.ToLower(label)]
		case 3:
			dest, resolved = r.linkRefs[strings.ToLower(alt)]
		}

		if !resolved {
			if r.strictMode {
				return nil, fmt.Errorf("reader: unresolved markdown image reference %q in %s", alt, r.path)
			}
			out = append(out, NewTextToken(rest[loc[0]:loc[1]]))
		} else {
			ext := strings.TrimPrefix(extOf(dest), ".")
			itype, ierr := llm.ImageTypeFromExtension(ext)
			if ierr != nil {
				itype = llm.ImageTypePNG
			}
			payload := ImagePayload{Key: dest, Type: itype}
			if bytes, err := r.loadLocalImage(dest); err == nil {
				payload.Bytes = bytes
			} else if r.strictMode {
				return nil, fmt.Errorf("reader: load image %q in %s: %w", dest, r.path, err)
			}
			out = append(out, NewImageToken(payload))
		}

		rest = rest[loc[1]:]
	}
	return out, nil
}

func (r *MarkdownReader) loadLocalImage(dest string) ([]byte, error) {
	if strings.Contains(dest, "://") {
		return nil, fmt.Errorf("reader: remote image references are not fetched")
	}
	abs := dest
	if !filepath.IsAbs(dest) {
		abs = filepath.Join(filepath.Dir(r.path), dest)
	}
	return os.ReadFile(abs)
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

func (r *MarkdownReader) PopAllTokens() []AtomicToken {
	out := r.tokens
	r.tokens = nil
	return out
}

func (r *MarkdownReader) HasMoreToRead() bool        { return !r.exhausted }
func (r *MarkdownReader) ChunkHeader() []AtomicToken { return nil }
func (r *MarkdownReader) ChunkFooter() []AtomicToken { return nil }
func (r *MarkdownReader) Key() string                { return "markdown_reader_v0" }
