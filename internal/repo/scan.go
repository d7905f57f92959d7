package repo

import (
	"fmt"
	"time"
)

// sqliteTimeLayouts are the text forms the pure-Go SQLite driver writes for
// time.Time values, plus the plain forms used by hand-written statements.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// flexTime is a nullable timestamp that accepts either a driver time.Time or
// its text rendering. Raw RETURNING rows on SQLite lose the declared column
// type, so the driver cannot convert them for us.
type flexTime struct {
	t     time.Time
	valid bool
}

// Scan implements sql.Scanner.
func (f *flexTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = flexTime{}
		return nil
	case time.Time:
		*f = flexTime{t: v, valid: true}
		return nil
	case []byte:
		return f.parse(string(v))
	case string:
		return f.parse(v)
	default:
		return fmt.Errorf("repo: cannot scan %T into timestamp", src)
	}
}

func (f *flexTime) parse(s string) error {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime{t: t, valid: true}
			return nil
		}
	}
	return fmt.Errorf("repo: unrecognized timestamp %q", s)
}

// Ptr returns the timestamp in UTC, or nil when NULL.
func (f flexTime) Ptr() *time.Time {
	if !f.valid {
		return nil
	}
	t := f.t.UTC()
	return &t
}
