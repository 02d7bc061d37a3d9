// Package source decodes the CSV listings export into raw rows.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"listings-ingest/models"
)

// RowError is a CSV line that could not be split into the header's columns.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("source: line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ReadResult holds every decoded row plus the lines that failed to decode.
type ReadResult struct {
	Header []string
	Rows   []models.RawRow
	Errors []*RowError
}

// ReadFile decodes the CSV file at path.
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a CSV stream whose first record is the header. Field names
// keep their original casing. A pandas index column (empty header name) is
// ignored.
func Read(r io.Reader) (*ReadResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("source: empty input, header row required")
	}
	if err != nil {
		return nil, fmt.Errorf("source: read header: %w", err)
	}
	header = cleanHeader(header)

	res := &ReadResult{Header: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				res.Errors = append(res.Errors, &RowError{Line: parseErr.StartLine, Err: err})
				continue
			}
			return nil, fmt.Errorf("source: read: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(record) {
			continue
		}
		if len(record) != len(header) {
			res.Errors = append(res.Errors, &RowError{
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", len(header), len(record)),
			})
			continue
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			fields[name] = record[i]
		}
		res.Rows = append(res.Rows, models.RawRow{Line: line, Fields: fields})
	}

	return res, nil
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, name := range h {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		if strings.HasPrefix(name, "Unnamed:") {
			name = ""
		}
		out[i] = name
	}
	return out
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
