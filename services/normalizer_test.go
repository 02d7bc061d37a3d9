package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"listings-ingest/models"
)

func TestNormalizeValidRow(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	l, err := n.Normalize(validRow(2))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if l.ExternalID != 501 || l.ComplexID != 12 {
		t.Errorf("ids: got %d/%d", l.ExternalID, l.ComplexID)
	}
	if l.UnitName != "Villa Park" || l.UnitType != "Villa" {
		t.Errorf("names: got %q/%q", l.UnitName, l.UnitType)
	}
	if l.Beds != 4 || l.Area != 350.5 || l.Price != 2500000 {
		t.Errorf("numbers: beds %d area %v price %d", l.Beds, l.Area, l.Price)
	}
	if got := l.ListingDate.String(); got != "2023-11-05" {
		t.Errorf("date: got %s, want 2023-11-05", got)
	}
	if l.IsModel != nil || l.IsDeleted != nil {
		t.Error("missing flags must be nil, not false")
	}
}

func TestParseSourceDate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"05.11.2023", "2023-11-05", false},
		{"5.1.2023", "2023-01-05", false},
		{" 09.08.2023 ", "2023-08-09", false},
		{"29.02.2024", "2024-02-29", false},
		{"31.12.1999", "1999-12-31", false},
		{"29.02.2023", "", true},
		{"31.02.2023", "", true},
		{"00.01.2023", "", true},
		{"12.13.2023", "", true},
		{"2023-11-05", "", true},
		{"05/11/2023", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSourceDate(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSourceDate(%q) = %s; want error", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSourceDate(%q): %v", tt.raw, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseSourceDate(%q) = %s; want %s", tt.raw, got, tt.want)
		}
	}
}

// Every calendar day must come back with the same day, month and year it
// was written with.
func TestParseSourceDateRoundTrip(t *testing.T) {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Year() < 2025; d = d.AddDate(0, 0, 1) {
		raw := fmt.Sprintf("%02d.%02d.%04d", d.Day(), int(d.Month()), d.Year())
		got, err := ParseSourceDate(raw)
		if err != nil {
			t.Fatalf("ParseSourceDate(%q): %v", raw, err)
		}
		if want := d.Format(models.DateLayout); got.String() != want {
			t.Fatalf("ParseSourceDate(%q) = %s; want %s", raw, got, want)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	tests := []struct {
		raw  string
		want *bool
	}{
		{"", nil},
		{"nan", nil},
		{"NaN", nil},
		{"NULL", nil},
		{"True", boolp(true)},
		{"1.0", boolp(true)},
		{"false", boolp(false)},
		{"0", boolp(false)},
	}

	for _, tt := range tests {
		row := validRow(2)
		row.Fields["IS_MODE"] = tt.raw
		l, err := n.Normalize(row)
		if err != nil {
			t.Errorf("IS_MODE=%q: %v", tt.raw, err)
			continue
		}
		switch {
		case tt.want == nil && l.IsModel != nil:
			t.Errorf("IS_MODE=%q: got %v, want nil", tt.raw, *l.IsModel)
		case tt.want != nil && (l.IsModel == nil || *l.IsModel != *tt.want):
			t.Errorf("IS_MODE=%q: got %v, want %v", tt.raw, l.IsModel, *tt.want)
		}
	}
}

func TestNormalizeLargeIntegralFloats(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	row := validRow(2)
	row.Fields["W_ID"] = "9.0e18"
	l, err := n.Normalize(row)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if l.ExternalID != 9000000000000000000 {
		t.Errorf("external_id: got %d", l.ExternalID)
	}
}

func TestNormalizeHeaderCasing(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	row := rawRow(3,
		"complex_id", "1", "Unit_Name", "Creek Rise", "External_ID", "9", "unit_type", "Townhouse",
		"Beds", "3.0", "Area", "120", "Price", "800000", "Listing_Date", "1.2.2023",
	)

	l, err := n.Normalize(row)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if l.ExternalID != 9 || l.UnitName != "Creek Rise" || l.Beds != 3 {
		t.Errorf("unexpected listing: %+v", l)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer(newTestLogger())

	tests := []struct {
		name  string
		field string
		set   func(models.RawRow)
	}{
		{"missing price", "price", func(r models.RawRow) { r.Fields["PRICE"] = "" }},
		{"nan price", "price", func(r models.RawRow) { r.Fields["PRICE"] = "NaN" }},
		{"zero price", "price", func(r models.RawRow) { r.Fields["PRICE"] = "0" }},
		{"fractional beds", "beds", func(r models.RawRow) { r.Fields["BEDS"] = "2.5" }},
		{"negative beds", "beds", func(r models.RawRow) { r.Fields["BEDS"] = "-1" }},
		{"text area", "area", func(r models.RawRow) { r.Fields["AREA"] = "big" }},
		{"bad date", "listing_date", func(r models.RawRow) { r.Fields["DATE"] = "31.02.2023" }},
		{"bad flag", "is_deleted", func(r models.RawRow) { r.Fields["IS_DEL"] = "maybe" }},
		{"missing id", "external_id", func(r models.RawRow) { delete(r.Fields, "W_ID") }},
		{"id above int64", "external_id", func(r models.RawRow) { r.Fields["W_ID"] = "1e19" }},
		{"id just above int64", "external_id", func(r models.RawRow) { r.Fields["W_ID"] = "9.3e18" }},
		{"id at 2^63", "external_id", func(r models.RawRow) { r.Fields["W_ID"] = "9223372036854775808.0" }},
		{"price below int64", "price", func(r models.RawRow) { r.Fields["PRICE"] = "-1e19" }},
		{"missing unit", "unit_name", func(r models.RawRow) { r.Fields["UNIT"] = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow(7)
			tt.set(row)

			_, err := n.Normalize(row)
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("expected MalformedRecordError, got %v", err)
			}
			if mre.Field != tt.field {
				t.Errorf("field: got %q, want %q", mre.Field, tt.field)
			}
			if mre.Line != 7 {
				t.Errorf("line: got %d, want 7", mre.Line)
			}
			if mre.Row.Fields == nil {
				t.Error("error should carry the raw row")
			}
		})
	}
}

func TestNormalizeAllPolicy(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	bad := validRow(3)
	bad.Fields["DATE"] = "2023-11-05"
	rows := []models.RawRow{validRow(2), bad, validRow(4)}

	if _, _, err := n.NormalizeAll(rows, false); err == nil {
		t.Error("abort policy should fail on the malformed row")
	}

	out, rejected, err := n.NormalizeAll(rows, true)
	if err != nil {
		t.Fatalf("skip policy: %v", err)
	}
	if len(out) != 2 || len(rejected) != 1 {
		t.Errorf("skip policy: got %d ok / %d rejected, want 2 / 1", len(out), len(rejected))
	}
	if rejected[0].Line != 3 {
		t.Errorf("rejected line: got %d, want 3", rejected[0].Line)
	}
}

func boolp(b bool) *bool { return &b }
