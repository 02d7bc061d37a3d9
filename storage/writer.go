package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"listings-ingest/models"
	"listings-ingest/utils"
)

// DefaultBatchSize is the number of operations committed per transaction.
const DefaultBatchSize = 10

// WriteResult reports how much of a plan reached the store.
type WriteResult struct {
	Committed  int
	SubBatches int
}

// Writer applies reconciliation plans inside bounded transactions.
// After every batchSize operations the work is committed, so a failure
// only loses the sub-batch in flight.
type Writer struct {
	session   *Session
	batchSize int
	insertSQL string
	upsertSQL string
	logger    *utils.Logger
}

// NewWriter creates a Writer committing every batchSize operations.
func NewWriter(session *Session, batchSize int, logger *utils.Logger) *Writer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Writer{
		session:   session,
		batchSize: batchSize,
		insertSQL: session.dialect.InsertSQL(),
		upsertSQL: session.dialect.UpsertSQL(),
		logger:    logger,
	}
}

// Apply writes the plan in order. On failure the failing sub-batch is
// rolled back and the returned result counts only committed operations.
// Nothing is retried.
func (w *Writer) Apply(ctx context.Context, plan *models.Plan) (WriteResult, error) {
	var res WriteResult
	if plan.Len() == 0 {
		w.logger.Debug("[writer] empty plan, nothing to write")
		return res, nil
	}

	ops := plan.Ops
	for start := 0; start < len(ops); start += w.batchSize {
		end := start + w.batchSize
		if end > len(ops) {
			end = len(ops)
		}

		n := res.SubBatches + 1
		if err := w.applyBatch(ctx, n, ops[start:end]); err != nil {
			w.logger.Error("[writer] sub-batch %d rolled back (%d committed before it): %v",
				n, res.Committed, err)
			return res, err
		}

		res.Committed += end - start
		res.SubBatches = n
		w.logger.Debug("[writer] committed sub-batch %d (%d/%d operations)", n, res.Committed, len(ops))
	}

	return res, nil
}

func (w *Writer) applyBatch(ctx context.Context, n int, ops []models.Operation) (err error) {
	tx, err := w.session.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Sprintf("begin sub-batch %d", n), err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			w.logger.Warn("[writer] rollback of sub-batch %d: %v", n, rbErr)
		}
	}()

	stmts := make(map[models.OpKind]*sql.Stmt, 2)
	for _, op := range ops {
		stmt, ok := stmts[op.Kind]
		if !ok {
			stmt, err = tx.PrepareContext(ctx, w.statementFor(op.Kind))
			if err != nil {
				return w.failure(n, op, fmt.Errorf("prepare: %w", err))
			}
			stmts[op.Kind] = stmt
		}

		if _, err = stmt.ExecContext(ctx, listingArgs(op.Record)...); err != nil {
			return w.failure(n, op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return w.failure(n, ops[len(ops)-1], fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (w *Writer) failure(n int, op models.Operation, err error) error {
	if IsUniqueViolation(err) && op.Kind == models.OpInsert {
		w.logger.Warn("[writer] external_id %d already stored, possibly by a concurrent run", op.Record.ExternalID)
	}
	return &WriteFailure{
		ExternalID: op.Record.ExternalID,
		Kind:       op.Kind,
		SubBatch:   n,
		Err:        classify("write", err),
	}
}

func (w *Writer) statementFor(kind models.OpKind) string {
	if kind == models.OpUpsert {
		return w.upsertSQL
	}
	return w.insertSQL
}

// listingArgs matches listingColumns.
func listingArgs(l *models.Listing) []any {
	var date any
	if !l.ListingDate.IsZero() {
		date = l.ListingDate.String()
	}
	return []any{
		l.ComplexID, l.UnitName, l.ExternalID, l.UnitType, l.Beds,
		l.Area, l.Price, date, nullBool(l.IsModel), nullBool(l.IsDeleted),
	}
}
