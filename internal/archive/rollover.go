package archive

import (
	"fmt"
	"os"
)

// rolloverWriter concatenates encoded blocks into one or more output
// files, starting a new file before a block that would push a non-empty
// current file past sizeLimit, named `{output}-{seq:04}`. sizeLimit <= 0
// disables rollover entirely (a single output file).
type rolloverWriter struct {
	outputPrefix string
	sizeLimit    int64

	seq     int
	file    *os.File
	written int64
	paths   []string
}

func newRolloverWriter(outputPrefix string, sizeLimit int64) *rolloverWriter {
	return &rolloverWriter{outputPrefix: outputPrefix, sizeLimit: sizeLimit}
}

// writeBlock appends one already-encoded block, rolling to a new file
// first if the current file is non-empty and this block would exceed
// sizeLimit (a lone oversized block is always written, never split).
func (w *rolloverWriter) writeBlock(block []byte) error {
	if w.file == nil {
		if err := w.openNext(); err != nil {
			return err
		}
	}
	if w.sizeLimit > 0 && w.written > 0 && w.written+int64(len(block)) > w.sizeLimit {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("archive: close %s: %w", w.file.Name(), err)
		}
		w.file = nil
		if err := w.openNext(); err != nil {
			return err
		}
	}
	n, err := w.file.Write(block)
	if err != nil {
		return fmt.Errorf("archive: write %s: %w", w.file.Name(), err)
	}
	w.written += int64(n)
	return nil
}

func (w *rolloverWriter) openNext() error {
	path := fmt.Sprintf("%s-%04d", w.outputPrefix, w.seq)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", path, err)
	}
	w.file = f
	w.written = 0
	w.paths = append(w.paths, path)
	w.seq++
	return nil
}

// Close finalizes the current output file, if any, and returns every
// archive file path written.
func (w *rolloverWriter) Close() ([]string, error) {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return nil, fmt.Errorf("archive: close %s: %w", w.file.Name(), err)
		}
		w.file = nil
	}
	return w.paths, nil
}
