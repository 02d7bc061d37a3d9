package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"listings-ingest/models"
	"listings-ingest/source"
	"listings-ingest/storage"
	"listings-ingest/utils"
)

const csvHeader = "CID,UNIT,W_ID,UTYPE,BEDS,AREA,PRICE,DATE,IS_MODE,IS_DEL\n"

func newTestLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, utils.LevelInfo) }

func rawRow(line int, kv ...string) models.RawRow {
	fields := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	return models.RawRow{Line: line, Fields: fields}
}

// validRow is a complete row using the export's original header names.
func validRow(line int) models.RawRow {
	return rawRow(line,
		"CID", "12", "UNIT", "Villa Park", "W_ID", "501", "UTYPE", "Villa",
		"BEDS", "4", "AREA", "350.5", "PRICE", "2500000", "DATE", "05.11.2023",
		"IS_MODE", "", "IS_DEL", "nan",
	)
}

func openTestSession(t *testing.T) *storage.Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listings.db")
	s, err := storage.Open(context.Background(), "sqlite", path, nil, newTestLogger())
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readCSV(t *testing.T, body string) *source.ReadResult {
	t.Helper()
	res, err := source.Read(strings.NewReader(csvHeader + body))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return res
}

func newTestIngestor(t *testing.T, s *storage.Session, strategy models.Strategy, batch int, opts IngestOptions) *Ingestor {
	t.Helper()
	planner, err := NewPlanner(strategy, newTestLogger())
	if err != nil {
		t.Fatalf("planner: %v", err)
	}
	return NewIngestor(planner, s, storage.NewWriter(s, batch, newTestLogger()), opts, newTestLogger())
}

type emptyIDs struct{}

func (emptyIDs) ExistingIDs(context.Context) (*utils.IDSet, error) { return utils.NewIDSet(), nil }

type failingIDs struct{}

func (failingIDs) ExistingIDs(context.Context) (*utils.IDSet, error) {
	panic("existing ids must not be queried")
}

type failingWriter struct{}

func (failingWriter) Apply(context.Context, *models.Plan) (storage.WriteResult, error) {
	panic("writer must not be called")
}
