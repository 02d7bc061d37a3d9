package storage

import (
	"context"
	"errors"
	"testing"

	"listings-ingest/models"
)

func inserts(ids ...int64) []models.Operation {
	ops := make([]models.Operation, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, models.Operation{Kind: models.OpInsert, Record: listing(id, "Unit", 100*id)})
	}
	return ops
}

func TestWriterEmptyPlan(t *testing.T) {
	s := openTestSession(t)
	w := NewWriter(s, 10, quietLogger())

	res, err := w.Apply(context.Background(), &models.Plan{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.SubBatches != 0 || res.Committed != 0 {
		t.Errorf("empty plan should open no transaction, got %+v", res)
	}

	if _, err := w.Apply(context.Background(), nil); err != nil {
		t.Fatalf("nil plan: %v", err)
	}
}

func TestWriterCommitsInSubBatches(t *testing.T) {
	s := openTestSession(t)
	w := NewWriter(s, 3, quietLogger())

	res, err := w.Apply(context.Background(), &models.Plan{Ops: inserts(1, 2, 3, 4, 5, 6, 7)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Committed != 7 {
		t.Errorf("committed: got %d, want 7", res.Committed)
	}
	if res.SubBatches != 3 {
		t.Errorf("sub-batches: got %d, want 3 (3+3+1)", res.SubBatches)
	}

	n, _ := s.Count(context.Background())
	if n != 7 {
		t.Errorf("stored rows: got %d, want 7", n)
	}
}

func TestWriterRollsBackOnlyFailingSubBatch(t *testing.T) {
	s := openTestSession(t)
	ctx := context.Background()
	w := NewWriter(s, 2, quietLogger())

	// Sub-batch 1: {1, 2} commits. Sub-batch 2: {3, 1} hits the unique key.
	res, err := w.Apply(ctx, &models.Plan{Ops: inserts(1, 2, 3, 1, 4)})
	if err == nil {
		t.Fatal("expected a write failure")
	}

	var wf *WriteFailure
	if !errors.As(err, &wf) {
		t.Fatalf("expected *WriteFailure, got %T: %v", err, err)
	}
	if wf.ExternalID != 1 || wf.SubBatch != 2 || wf.Kind != models.OpInsert {
		t.Errorf("failure fields: %+v", wf)
	}
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if res.Committed != 2 || res.SubBatches != 1 {
		t.Errorf("result: got %+v, want 2 committed in 1 sub-batch", res)
	}

	ids, err := s.ExistingIDs(ctx)
	if err != nil {
		t.Fatalf("existing ids: %v", err)
	}
	if ids.Contains(3) {
		t.Error("row 3 belonged to the rolled back sub-batch and must not be stored")
	}
	if ids.Contains(4) {
		t.Error("operations after the failure must not run")
	}
	if ids.Size() != 2 {
		t.Errorf("stored ids: got %d, want 2", ids.Size())
	}
}

func TestWriterUpsertOverwritesAndIsIdempotent(t *testing.T) {
	s := openTestSession(t)
	ctx := context.Background()
	w := NewWriter(s, 10, quietLogger())

	first := listing(9, "Old Name", 100)
	if _, err := w.Apply(ctx, &models.Plan{Ops: []models.Operation{{Kind: models.OpUpsert, Record: first}}}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	yes := true
	second := listing(9, "New Name", 250)
	second.IsDeleted = &yes
	plan := &models.Plan{Ops: []models.Operation{{Kind: models.OpUpsert, Record: second}}}
	for i := 0; i < 2; i++ {
		if _, err := w.Apply(ctx, plan); err != nil {
			t.Fatalf("upsert #%d: %v", i+1, err)
		}
	}

	got, err := s.FetchAll(ctx)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows: got %d, want 1", len(got))
	}
	if got[0].UnitName != "New Name" || got[0].Price != 250 {
		t.Errorf("row not overwritten: %+v", got[0])
	}
	if got[0].IsDeleted == nil || !*got[0].IsDeleted {
		t.Error("is_deleted should be overwritten to true")
	}
}

func TestWriterRejectsMissingDate(t *testing.T) {
	s := openTestSession(t)
	w := NewWriter(s, 10, quietLogger())

	bad := listing(5, "No Date", 10)
	bad.ListingDate = models.Date{}
	_, err := w.Apply(context.Background(), &models.Plan{Ops: []models.Operation{{Kind: models.OpUpsert, Record: bad}}})

	var wf *WriteFailure
	if !errors.As(err, &wf) {
		t.Fatalf("expected *WriteFailure, got %v", err)
	}
	if wf.ExternalID != 5 {
		t.Errorf("failing key: got %d, want 5", wf.ExternalID)
	}
	if IsUniqueViolation(err) {
		t.Error("NOT NULL failure must not be classified as unique violation")
	}
}

func TestWriterCancelledContextIsNotConnectionLoss(t *testing.T) {
	s := openTestSession(t)
	w := NewWriter(s, 10, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := w.Apply(ctx, &models.Plan{Ops: inserts(1, 2)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		t.Errorf("cancellation must not be reported as connection loss: %v", err)
	}
	if res.Committed != 0 {
		t.Errorf("committed: got %d, want 0", res.Committed)
	}
}

func TestDialectSQL(t *testing.T) {
	pg, err := DialectFor("pgx")
	if err != nil {
		t.Fatal(err)
	}
	if pg.DriverName != "pgx" || pg.Name != "postgres" {
		t.Errorf("pgx dialect: %+v", pg)
	}
	if got := pg.Placeholder(3); got != "$3" {
		t.Errorf("postgres placeholder: got %q", got)
	}
	if got := SQLite.Placeholder(3); got != "?" {
		t.Errorf("sqlite placeholder: got %q", got)
	}
	if got := pg.Lower("unit_name"); got != "LOWER(unit_name)" {
		t.Errorf("postgres lower: got %q", got)
	}
	if got := SQLite.Lower("unit_name"); got != "unicode_lower(unit_name)" {
		t.Errorf("sqlite lower: got %q", got)
	}

	want := "INSERT INTO listings (complex_id, unit_name, external_id, unit_type, beds, area, price, listing_date, is_model, is_deleted) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (external_id) DO UPDATE SET " +
		"complex_id = excluded.complex_id, unit_name = excluded.unit_name, unit_type = excluded.unit_type, " +
		"beds = excluded.beds, area = excluded.area, price = excluded.price, listing_date = excluded.listing_date, " +
		"is_model = excluded.is_model, is_deleted = excluded.is_deleted"
	if got := pg.UpsertSQL(); got != want {
		t.Errorf("upsert SQL:\n got %s\nwant %s", got, want)
	}
}
