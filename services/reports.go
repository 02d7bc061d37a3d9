package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"listings-ingest/models"
	"listings-ingest/storage"
	"listings-ingest/utils"
)

// Report titles, in the order RunAll returns them.
const (
	ReportMostExpensive      = "Most expensive units"
	ReportLargestArea        = "Largest units by area"
	ReportVillaCountByUnit   = "Villas per unit"
	ReportCountByTypeAndUnit = "Listings per unit and type"
	ReportSearchByUnitName   = "Search results"
)

// VillaType is the unit type counted by VillaCountByUnit.
const VillaType = "Villa"

const listingSelect = `SELECT unit_name, unit_type, beds, area, price, listing_date FROM listings`

// QueryError reports a failed report query. Stored data is unaffected.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("report %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ReportEngine runs the fixed library of read-only report queries.
type ReportEngine struct {
	store       storage.Querier
	concurrency int
	logger      *utils.Logger
}

// NewReportEngine creates a ReportEngine reading from store.
func NewReportEngine(store storage.Querier, concurrency int, logger *utils.Logger) *ReportEngine {
	return &ReportEngine{store: store, concurrency: concurrency, logger: logger}
}

// MostExpensive returns every listing tied at the highest price.
func (e *ReportEngine) MostExpensive(ctx context.Context) ([]models.ListingSummary, error) {
	return e.listings(ctx, ReportMostExpensive,
		listingSelect+` WHERE price = (SELECT MAX(price) FROM listings) ORDER BY unit_name, external_id`)
}

// LargestArea returns every listing tied at the largest area.
func (e *ReportEngine) LargestArea(ctx context.Context) ([]models.ListingSummary, error) {
	return e.listings(ctx, ReportLargestArea,
		listingSelect+` WHERE area = (SELECT MAX(area) FROM listings) ORDER BY unit_name, external_id`)
}

// SearchByUnitName returns listings whose unit name contains term,
// ignoring case. The term is bound, and LIKE wildcards in it match literally.
func (e *ReportEngine) SearchByUnitName(ctx context.Context, term string) ([]models.ListingSummary, error) {
	d := e.store.Dialect()
	query := listingSelect + ` WHERE ` + d.Lower("unit_name") + ` LIKE ` + d.Placeholder(1) + ` ESCAPE '\' ORDER BY unit_name, external_id`
	return e.listings(ctx, ReportSearchByUnitName, query, LikePattern(term))
}

// CountByTypeAndUnit counts listings per (unit, type), smallest groups first.
func (e *ReportEngine) CountByTypeAndUnit(ctx context.Context) ([]models.UnitTypeCount, error) {
	rows, err := e.store.QueryContext(ctx, `
		SELECT COUNT(*) AS cnt, unit_name, unit_type
		FROM listings
		GROUP BY unit_name, unit_type
		ORDER BY cnt, unit_name, unit_type`)
	if err != nil {
		return nil, &QueryError{Query: ReportCountByTypeAndUnit, Err: err}
	}
	defer rows.Close()

	var out []models.UnitTypeCount
	for rows.Next() {
		var r models.UnitTypeCount
		if err := rows.Scan(&r.Count, &r.UnitName, &r.UnitType); err != nil {
			return nil, &QueryError{Query: ReportCountByTypeAndUnit, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: ReportCountByTypeAndUnit, Err: err}
	}
	return out, nil
}

// VillaCountByUnit counts Villa listings per unit, largest first.
func (e *ReportEngine) VillaCountByUnit(ctx context.Context) ([]models.UnitCount, error) {
	d := e.store.Dialect()
	rows, err := e.store.QueryContext(ctx, `
		SELECT unit_name, COUNT(*) AS cnt
		FROM listings
		WHERE unit_type = `+d.Placeholder(1)+`
		GROUP BY unit_name
		ORDER BY cnt DESC, unit_name`, VillaType)
	if err != nil {
		return nil, &QueryError{Query: ReportVillaCountByUnit, Err: err}
	}
	defer rows.Close()

	var out []models.UnitCount
	for rows.Next() {
		var r models.UnitCount
		if err := rows.Scan(&r.UnitName, &r.Count); err != nil {
			return nil, &QueryError{Query: ReportVillaCountByUnit, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: ReportVillaCountByUnit, Err: err}
	}
	return out, nil
}

// RunAll executes the four fixed reports concurrently and returns them
// in a fixed order. The first failure, in that order, is returned.
func (e *ReportEngine) RunAll(ctx context.Context) ([]*models.Table, error) {
	jobs := []func() (*models.Table, error){
		func() (*models.Table, error) {
			rows, err := e.MostExpensive(ctx)
			return models.ListingTable(ReportMostExpensive, rows), err
		},
		func() (*models.Table, error) {
			rows, err := e.LargestArea(ctx)
			return models.ListingTable(ReportLargestArea, rows), err
		},
		func() (*models.Table, error) {
			rows, err := e.VillaCountByUnit(ctx)
			return models.UnitCountTable(ReportVillaCountByUnit, rows), err
		},
		func() (*models.Table, error) {
			rows, err := e.CountByTypeAndUnit(ctx)
			return models.UnitTypeCountTable(ReportCountByTypeAndUnit, rows), err
		},
	}

	tables := make([]*models.Table, len(jobs))
	errs := make([]error, len(jobs))

	pool := utils.NewWorkerPool(e.concurrency)
	for i, job := range jobs {
		pool.Submit(func() {
			tables[i], errs[i] = job()
		})
	}
	pool.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	e.logger.Debug("[report] ran %d reports", len(tables))
	return tables, nil
}

// Search runs SearchByUnitName and wraps the result as a Table.
func (e *ReportEngine) Search(ctx context.Context, term string) (*models.Table, error) {
	rows, err := e.SearchByUnitName(ctx, term)
	if err != nil {
		return nil, err
	}
	return models.ListingTable(fmt.Sprintf("%s for %q", ReportSearchByUnitName, term), rows), nil
}

func (e *ReportEngine) listings(ctx context.Context, name, query string, args ...any) ([]models.ListingSummary, error) {
	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Query: name, Err: err}
	}
	defer rows.Close()

	out, err := scanListings(rows)
	if err != nil {
		return nil, &QueryError{Query: name, Err: err}
	}
	return out, nil
}

func scanListings(rows *sql.Rows) ([]models.ListingSummary, error) {
	var out []models.ListingSummary
	for rows.Next() {
		var r models.ListingSummary
		if err := rows.Scan(&r.UnitName, &r.UnitType, &r.Beds, &r.Area, &r.Price, &r.ListingDate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LikePattern builds a lower-cased substring pattern for LIKE ... ESCAPE '\'.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
