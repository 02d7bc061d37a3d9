package models

// ListingSummary is a row of the listing-shaped reports.
type ListingSummary struct {
	UnitName    string
	UnitType    string
	Beds        int
	Area        float64
	Price       int64
	ListingDate Date
}

// UnitTypeCount is a row of the per-(unit, type) count report.
type UnitTypeCount struct {
	Count    int
	UnitName string
	UnitType string
}

// UnitCount is a row of the per-unit count report.
type UnitCount struct {
	UnitName string
	Count    int
}

// Table is a column-labelled report result handed to the printer.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]any
}

var ListingHeaders = []string{"Unit", "Type", "Beds", "Area", "Price", "Date"}

// ListingTable converts listing rows into a Table.
func ListingTable(title string, rows []ListingSummary) *Table {
	t := &Table{Title: title, Headers: ListingHeaders, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.UnitName, r.UnitType, r.Beds, r.Area, r.Price, r.ListingDate.String()})
	}
	return t
}

// UnitTypeCountTable converts grouped counts into a Table.
func UnitTypeCountTable(title string, rows []UnitTypeCount) *Table {
	t := &Table{Title: title, Headers: []string{"Count", "Unit", "Type"}, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Count, r.UnitName, r.UnitType})
	}
	return t
}

// UnitCountTable converts per-unit counts into a Table.
func UnitCountTable(title string, rows []UnitCount) *Table {
	t := &Table{Title: title, Headers: []string{"Unit", "Count"}, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.UnitName, r.Count})
	}
	return t
}
