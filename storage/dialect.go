package storage

import (
	"database/sql/driver"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/lib/pq"
	"modernc.org/sqlite"
)

// sqliteLower replaces SQLite's built-in LOWER, which folds ASCII only.
const sqliteLower = "unicode_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(sqliteLower, 1, unicodeLower); err != nil {
		panic(fmt.Sprintf("storage: register %s: %v", sqliteLower, err))
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}

// TableName is the single table the engine reads and writes.
const TableName = "listings"

// listingColumns is the column order used by every write statement.
var listingColumns = []string{
	"complex_id", "unit_name", "external_id", "unit_type", "beds",
	"area", "price", "listing_date", "is_model", "is_deleted",
}

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	Name       string
	DriverName string
	numbered   bool
	lower      string
	schema     []string
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "postgres",
		numbered:   true,
		lower:      "LOWER",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS listings (
				id           BIGSERIAL PRIMARY KEY,
				complex_id   BIGINT           NOT NULL,
				unit_name    VARCHAR(255)     NOT NULL,
				external_id  BIGINT           NOT NULL,
				unit_type    VARCHAR(255)     NOT NULL,
				beds         INT              NOT NULL,
				area         DOUBLE PRECISION NOT NULL,
				price        BIGINT           NOT NULL,
				listing_date DATE             NOT NULL,
				is_model     BOOLEAN,
				is_deleted   BOOLEAN,
				CONSTRAINT listings_external_id_key UNIQUE (external_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_price     ON listings(price)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_area      ON listings(area)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_unit_name ON listings(unit_name)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_unit_type ON listings(unit_type)`,
		},
	}

	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		lower:      sqliteLower,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS listings (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				complex_id   INTEGER NOT NULL,
				unit_name    TEXT    NOT NULL,
				external_id  INTEGER NOT NULL UNIQUE,
				unit_type    TEXT    NOT NULL,
				beds         INTEGER NOT NULL,
				area         REAL    NOT NULL,
				price        INTEGER NOT NULL,
				listing_date TEXT    NOT NULL,
				is_model     BOOLEAN,
				is_deleted   BOOLEAN
			)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_price     ON listings(price)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_area      ON listings(area)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_unit_name ON listings(unit_name)`,
			`CREATE INDEX IF NOT EXISTS idx_listings_unit_type ON listings(unit_type)`,
		},
	}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "pgx":
		d := Postgres
		d.DriverName = "pgx"
		return d, nil
	case "sqlite":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("storage: unsupported driver %q", driver)
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Lower wraps a column expression in the dialect's Unicode-aware
// lower-casing function.
func (d Dialect) Lower(expr string) string {
	return d.lower + "(" + expr + ")"
}

func (d Dialect) placeholders(count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(i + 1)
	}
	return strings.Join(marks, ", ")
}

// InsertSQL is a plain insert; a second row with the same external_id
// violates the unique constraint.
func (d Dialect) InsertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(listingColumns, ", "), d.placeholders(len(listingColumns)))
}

// UpsertSQL inserts or overwrites every non-key column in one statement,
// leaving conflict resolution to the store.
func (d Dialect) UpsertSQL() string {
	sets := make([]string, 0, len(listingColumns)-1)
	for _, c := range listingColumns {
		if c == "external_id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return d.InsertSQL() + " ON CONFLICT (external_id) DO UPDATE SET " + strings.Join(sets, ", ")
}
