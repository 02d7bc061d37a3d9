package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"listings-ingest/models"
	"listings-ingest/utils"
)

// Session owns the store connection for the duration of one run.
// Callers must Close it on every exit path.
type Session struct {
	db      *sql.DB
	dialect Dialect
	logger  *utils.Logger
}

// Open connects to the store, waits for it to answer, and creates the
// listings table if it does not exist yet.
func Open(ctx context.Context, driver, dsn string, retry *utils.RetryConfig, logger *utils.Logger) (*Session, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	if dialect.Name == SQLite.Name {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("storage: create database dir: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1, Logger: logger}
	}
	if err := retry.Do(ctx, "storage ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	s := &Session{db: db, dialect: dialect, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	logger.Debug("[store] session open (driver=%s)", dialect.DriverName)
	return s, nil
}

// sqliteDSN adds the pragmas the engine relies on unless the caller set
// their own query string.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (s *Session) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Dialect returns the SQL dialect of the connected store.
func (s *Session) Dialect() Dialect { return s.dialect }

// QueryContext runs a read query against the store.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// ExistingIDs loads every external_id already stored with a single query.
func (s *Session) ExistingIDs(ctx context.Context) (*utils.IDSet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT external_id FROM "+TableName)
	if err != nil {
		return nil, classify("load existing ids", fmt.Errorf("storage: existing ids: %w", err))
	}
	defer rows.Close()

	ids := utils.NewIDSet()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan external_id: %w", err)
		}
		ids.Add(id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored listings.
func (s *Session) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+TableName).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

// FetchAll retrieves all stored listings ordered by external_id.
func (s *Session) FetchAll(ctx context.Context) ([]*models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, complex_id, unit_name, unit_type, beds, area, price,
		       listing_date, is_model, is_deleted
		FROM listings
		ORDER BY external_id
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		var isModel, isDeleted sql.NullBool
		if err := rows.Scan(
			&l.ExternalID, &l.ComplexID, &l.UnitName, &l.UnitType, &l.Beds,
			&l.Area, &l.Price, &l.ListingDate, &isModel, &isDeleted,
		); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		l.IsModel = boolPtr(isModel)
		l.IsDeleted = boolPtr(isDeleted)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Close releases the connection pool.
func (s *Session) Close() error {
	return s.db.Close()
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
