package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Rejection describes one input row the normalizer refused.
type Rejection struct {
	Line   int
	Key    string
	Field  string
	Reason string
	Raw    map[string]string
}

// RejectsWriter writes skipped rows to a CSV file for later inspection.
// It is safe for concurrent use.
type RejectsWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	count  int
}

// NewRejectsWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewRejectsWriter(path string) (*RejectsWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("rejects: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rejects: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"line", "external_id", "field", "reason", "raw"}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rejects: write header: %w", err)
	}
	w.Flush()

	return &RejectsWriter{file: f, writer: w}, nil
}

// Reject appends one rejected row.
func (r *RejectsWriter) Reject(rej Rejection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := []string{
		strconv.Itoa(rej.Line),
		rej.Key,
		rej.Field,
		rej.Reason,
		formatRaw(rej.Raw),
	}
	if err := r.writer.Write(row); err != nil {
		return fmt.Errorf("rejects: write row: %w", err)
	}
	r.count++

	r.writer.Flush()
	return r.writer.Error()
}

// Count returns the number of rows written so far.
func (r *RejectsWriter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes and closes the underlying file. A failed final flush is
// reported along with any close error.
func (r *RejectsWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writer.Flush()
	return errors.Join(r.writer.Error(), r.file.Close())
}

// formatRaw renders the raw row as key=value pairs in header-name order.
func formatRaw(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+raw[k])
	}
	return strings.Join(parts, ";")
}
