package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends entries to a ledger file. Appends are serialized and each
// row is flushed before Append returns.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
}

// OpenWriter opens path for appending, creating parent directories as
// needed. The header row is written when the file is new or empty.
func OpenWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	// #nosec G304 -- ledger path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger for append: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat ledger: %w", err)
	}
	if err := terminateLastRow(f, info.Size()); err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{file: f, csv: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.write(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return w, nil
}

// terminateLastRow appends a newline when the file does not end with one, so
// a row cut short by a crash stays on its own line.
func terminateLastRow(f *os.File, size int64) error {
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return fmt.Errorf("read ledger tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate ledger tail: %w", err)
	}
	return nil
}

// Append writes one row.
func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(e.Record())
}

func (w *Writer) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush ledger row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	flushErr := w.csv.Error()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("flush ledger: %w", flushErr)
	}
	return nil
}
