package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"listings-ingest/models"
)

const pgUniqueViolation = "23505"

// WriteFailure reports the operation whose sub-batch the store rejected.
// Sub-batches committed before it stay committed.
type WriteFailure struct {
	ExternalID int64
	Kind       models.OpKind
	SubBatch   int
	Err        error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("storage: %s of external_id %d failed in sub-batch %d: %v",
		e.Kind, e.ExternalID, e.SubBatch, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// ConnectionError means the store could not be reached. It is fatal to a run.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("storage: connection lost during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsUniqueViolation reports whether err is a unique-constraint violation
// from any supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

func isConnectionLoss(err error) bool {
	// context.DeadlineExceeded satisfies net.Error.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify wraps connection-level failures so callers can treat them as fatal.
func classify(op string, err error) error {
	if isConnectionLoss(err) {
		return &ConnectionError{Op: op, Err: err}
	}
	return err
}
