package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"listings-ingest/models"
	"listings-ingest/utils"
)

// sourceDateLayout is day.month.year; single-digit day and month are accepted.
const sourceDateLayout = "2.1.2006"

var errMissing = errors.New("value is missing")

// naValues are the empty-cell markers a pandas CSV export may contain.
var naValues = map[string]struct{}{
	"": {}, "nan": {}, "na": {}, "n/a": {}, "null": {}, "none": {}, "#n/a": {}, "<na>": {}, "-nan": {},
}

// fieldAliases maps canonical field names to the lower-cased header names
// that may carry them.
var fieldAliases = map[string][]string{
	"external_id":  {"external_id", "w_id"},
	"complex_id":   {"complex_id", "cid"},
	"unit_name":    {"unit_name", "unit"},
	"unit_type":    {"unit_type", "utype"},
	"beds":         {"beds"},
	"area":         {"area"},
	"price":        {"price"},
	"listing_date": {"listing_date", "date"},
	"is_model":     {"is_model", "is_mode"},
	"is_deleted":   {"is_deleted", "is_del"},
}

// MalformedRecordError reports a row that could not be normalized.
type MalformedRecordError struct {
	Line  int
	Field string
	Value string
	Row   models.RawRow
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at line %d: field %q (%q): %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Normalizer converts raw CSV rows into canonical listings.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// NormalizeKeys lower-cases and trims every field name once.
func NormalizeKeys(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Normalize converts one raw row into a Listing.
func (n *Normalizer) Normalize(row models.RawRow) (*models.Listing, error) {
	r := &rowReader{raw: row, fields: NormalizeKeys(row.Fields)}

	l := &models.Listing{
		ExternalID: r.integer("external_id"),
		ComplexID:  r.integer("complex_id"),
		UnitName:   r.text("unit_name"),
		UnitType:   r.text("unit_type"),
		Beds:       int(r.integer("beds")),
		Area:       r.number("area"),
		Price:      r.integer("price"),
		IsModel:    r.optionalBool("is_model"),
		IsDeleted:  r.optionalBool("is_deleted"),
	}
	l.ListingDate = r.date("listing_date")

	if r.err != nil {
		return nil, r.err
	}

	switch {
	case l.Beds < 0:
		return nil, r.malformed("beds", errors.New("must not be negative"))
	case l.Area <= 0:
		return nil, r.malformed("area", errors.New("must be positive"))
	case l.Price <= 0:
		return nil, r.malformed("price", errors.New("must be positive"))
	}

	return l, nil
}

// NormalizeAll normalizes a batch. With skip set, malformed rows are
// logged and returned separately; otherwise the first one aborts.
func (n *Normalizer) NormalizeAll(rows []models.RawRow, skip bool) ([]*models.Listing, []*MalformedRecordError, error) {
	out := make([]*models.Listing, 0, len(rows))
	var rejected []*MalformedRecordError

	for _, row := range rows {
		l, err := n.Normalize(row)
		if err == nil {
			out = append(out, l)
			continue
		}

		var mre *MalformedRecordError
		if !errors.As(err, &mre) {
			return nil, nil, err
		}
		if !skip {
			return nil, nil, mre
		}
		n.logger.Warn("[normalizer] skipping line %d (external_id %q): %v", row.Line, row.Key(), mre)
		rejected = append(rejected, mre)
	}

	n.logger.Info("[normalizer] Normalized %d → %d listings (skipped %d)",
		len(rows), len(out), len(rejected))
	return out, rejected, nil
}

// ParseSourceDate parses a day.month.year date. Calendar-invalid dates
// such as 31.02.2023 are rejected.
func ParseSourceDate(s string) (models.Date, error) {
	t, err := time.Parse(sourceDateLayout, strings.TrimSpace(s))
	if err != nil {
		return models.Date{}, err
	}
	return models.DateOf(t), nil
}

// IsMissing reports whether a raw cell holds an empty-cell marker.
func IsMissing(v string) bool {
	_, ok := naValues[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// rowReader extracts typed fields, keeping only the first failure.
type rowReader struct {
	raw    models.RawRow
	fields map[string]string
	err    error
}

func (r *rowReader) malformed(field string, err error) error {
	return &MalformedRecordError{
		Line:  r.raw.Line,
		Field: field,
		Value: r.value(field),
		Row:   r.raw,
		Err:   err,
	}
}

func (r *rowReader) fail(field string, err error) {
	if r.err == nil {
		r.err = r.malformed(field, err)
	}
}

func (r *rowReader) value(field string) string {
	for _, alias := range fieldAliases[field] {
		if v, ok := r.fields[alias]; ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// required returns the cell or records a failure when it is absent.
func (r *rowReader) required(field string) (string, bool) {
	v := r.value(field)
	if IsMissing(v) {
		r.fail(field, errMissing)
		return "", false
	}
	return v, true
}

func (r *rowReader) text(field string) string {
	v, _ := r.required(field)
	return v
}

// integer accepts integral float renderings such as "3.0", which pandas
// writes for integer columns holding NA.
func (r *rowReader) integer(field string) int64 {
	v, ok := r.required(field)
	if !ok {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		r.fail(field, errors.New("not an integer"))
		return 0
	}
	// 2^63 is exactly representable as a float64, MaxInt64 is not.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		r.fail(field, errors.New("out of range"))
		return 0
	}
	return int64(f)
}

func (r *rowReader) number(field string) float64 {
	v, ok := r.required(field)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		r.fail(field, errors.New("not a number"))
		return 0
	}
	return f
}

func (r *rowReader) date(field string) models.Date {
	v, ok := r.required(field)
	if !ok {
		return models.Date{}
	}
	d, err := ParseSourceDate(v)
	if err != nil {
		r.fail(field, fmt.Errorf("want day.month.year: %w", err))
		return models.Date{}
	}
	return d
}

// optionalBool returns nil for an absent cell; absence is never false.
func (r *rowReader) optionalBool(field string) *bool {
	v := r.value(field)
	if IsMissing(v) {
		return nil
	}
	var b bool
	switch strings.ToLower(v) {
	case "true", "t", "yes", "y", "1", "1.0":
		b = true
	case "false", "f", "no", "n", "0", "0.0":
		b = false
	default:
		r.fail(field, errors.New("not a boolean"))
		return nil
	}
	return &b
}
