package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical storage form of a listing date.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// Scan accepts what the supported drivers hand back for a DATE/TEXT column.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("models: cannot scan %T into Date", src)
	}
}

func (d *Date) parse(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("models: parse date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}
