// Package archive implements the compressed, typed block-stream codec
// that serializes a whole knowledge base (or a subset of it) so it can
// be cloned, pushed or pulled between hosts.
package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Type identifies the domain object a block's body decodes to.
type Type uint8

const (
	TypeIndex      Type = 1
	TypeChunk      Type = 2
	TypeImageBytes Type = 3
	TypeImageDesc  Type = 4
	TypeMeta       Type = 5
	TypePrompt     Type = 6
	TypeConfig     Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeIndex:
		return "Index"
	case TypeChunk:
		return "Chunk"
	case TypeImageBytes:
		return "ImageBytes"
	case TypeImageDesc:
		return "ImageDesc"
	case TypeMeta:
		return "Meta"
	case TypePrompt:
		return "Prompt"
	case TypeConfig:
		return "Config"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// headerSize is the fixed 5-byte block header: type[1] || body_len[4 BE].
const headerSize = 5

// flushThreshold is the approximate accumulated payload size, in bytes,
// at which the writer side starts a new Chunk/ImageBytes/ImageDesc
// block, once accumulated payload reaches roughly 1 MiB.
const flushThreshold = 1 << 20

// encodeBlock gzip-compresses the JSON encoding of payload and prepends
// the 5-byte header, producing one self-contained block.
func encodeBlock(t Type, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal %s block: %w", t, err)
	}

	var body bytes.Buffer
	gz, err := gzip.NewWriterLevel(&body, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("archive: gzip writer: %w", err)
	}
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("archive: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("archive: gzip close: %w", err)
	}

	out := make([]byte, headerSize+body.Len())
	out[0] = byte(t)
	binary.BigEndian.PutUint32(out[1:5], uint32(body.Len()))
	copy(out[headerSize:], body.Bytes())
	return out, nil
}

// decodeBody gunzips a block's body and JSON-decodes it into dst.
func decodeBody(body []byte, dst any) error {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archive: gzip reader: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return fmt.Errorf("archive: gzip read: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("archive: unmarshal %T: %w", dst, err)
	}
	return nil
}

// readBlockHeader reads one 5-byte header from r, returning the block
// type and its body length. io.EOF signals a clean end of stream.
func readBlockHeader(r io.Reader) (Type, uint32, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	return Type(hdr[0]), binary.BigEndian.Uint32(hdr[1:5]), nil
}
