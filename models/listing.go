package models

import "strings"

// RawRow holds one decoded CSV row exactly as it appeared in the export.
// Keys keep the header's original casing until the normalizer runs.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// Key returns the raw external identifier of the row, or "" when the
// column is missing. Used to name rejected rows in logs.
func (r RawRow) Key() string {
	for _, alias := range keyAliases {
		for k, v := range r.Fields {
			if strings.EqualFold(strings.TrimSpace(k), alias) {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// keyAliases lists the identifier headers in order of preference.
var keyAliases = []string{"external_id", "w_id"}

// Listing is the canonical, validated unit listing ready for storage.
// IsModel and IsDeleted stay nil when the export left them empty.
type Listing struct {
	ExternalID  int64
	ComplexID   int64
	UnitName    string
	UnitType    string
	Beds        int
	Area        float64
	Price       int64
	ListingDate Date
	IsModel     *bool
	IsDeleted   *bool
}

// Summary projects the listing onto the columns the reports print.
func (l *Listing) Summary() ListingSummary {
	return ListingSummary{
		UnitName:    l.UnitName,
		UnitType:    l.UnitType,
		Beds:        l.Beds,
		Area:        l.Area,
		Price:       l.Price,
		ListingDate: l.ListingDate,
	}
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	RowsRead        int
	Normalized      int
	Malformed       int
	Duplicates      int
	ExistingSkipped int
	New             int
	Updates         int
	Planned         int
	Committed       int
	SubBatches      int
	// StoredRows is the table size after the run, or -1 when it could not be counted.
	StoredRows int
}
