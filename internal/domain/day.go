package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dayLayout is the storage and wire format of a Day.
const dayLayout = "2006-01-02"

// DefaultReferenceOffset is the fixed offset (UTC+5) that defines "today"
// for every quota counter.
const DefaultReferenceOffset = 5 * time.Hour

// Day is a calendar date in the reference timezone. It is stored as a plain
// DATE column and compared with date semantics only, never as a timestamp.
//
// The zero value is not a valid day; use Epoch for "never reset".
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

// Epoch is the implicit last-reset date of a quota row that does not exist.
// It precedes every real day, so the first write always starts a fresh count.
var Epoch = Day{Year: 1970, Month: time.January, Dom: 1}

// ReferenceDay returns the calendar date of t shifted by offset.
// The computation is (t in UTC + offset) truncated to a date.
func ReferenceDay(t time.Time, offset time.Duration) Day {
	s := t.UTC().Add(offset)
	return Day{Year: s.Year(), Month: s.Month(), Dom: s.Day()}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, err
	}
	return Day{Year: t.Year(), Month: t.Month(), Dom: t.Day()}, nil
}

// MustParseDay is ParseDay that panics on malformed input. Intended for
// constants and tests.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the day as YYYY-MM-DD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Dom)
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Dom == 0 }

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Dom < o.Dom
}

// Start returns the UTC instant at which d begins in a timezone with the
// given offset. Together with Start of the next day it bounds the window of
// timestamps that ReferenceDay maps to d.
func (d Day) Start(offset time.Duration) time.Time {
	return time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, time.UTC).Add(-offset)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	t := time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return Day{Year: t.Year(), Month: t.Month(), Dom: t.Day()}
}

// Value implements driver.Valuer. Days are written as YYYY-MM-DD text so the
// same statement works against SQLite (lexical order) and Postgres (DATE).
func (d Day) Value() (driver.Value, error) {
	if d.IsZero() {
		return Epoch.String(), nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner. Postgres hands back time.Time for DATE
// columns, SQLite hands back text (or time.Time for declared DATE columns).
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Epoch
		return nil
	case time.Time:
		*d = Day{Year: v.Year(), Month: v.Month(), Dom: v.Day()}
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("domain.Day: cannot scan %T", src)
	}
}

func (d *Day) scanString(s string) error {
	if len(s) > len(dayLayout) {
		s = s[:len(dayLayout)]
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return fmt.Errorf("domain.Day: %w", err)
	}
	*d = parsed
	return nil
}

// MarshalJSON renders the day as a JSON string.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string produced by MarshalJSON.
func (d *Day) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("domain.Day: invalid JSON %s", b)
	}
	parsed, err := ParseDay(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
