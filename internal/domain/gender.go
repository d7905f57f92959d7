package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Gender is the closed set of genders an ad can declare. Which value is
// eligible for the automatic premium bonus is configuration, not code.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

// ParseGender maps wire values, including the legacy Russian labels the web
// client used to send, onto the closed enum. Unknown values map to
// GenderOther and ok=false.
func ParseGender(s string) (g Gender, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f", "woman", "girl", "девушка", "женщина":
		return GenderFemale, true
	case "male", "m", "man", "guy", "мужчина", "парень":
		return GenderMale, true
	case "other", "any", "пара", "другое":
		return GenderOther, true
	default:
		return GenderOther, false
	}
}

// Valid reports whether g is one of the enum members.
func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderOther:
		return true
	}
	return false
}

// Value implements driver.Valuer.
func (g Gender) Value() (driver.Value, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("domain.Gender: invalid value %q", string(g))
	}
	return string(g), nil
}

// Scan implements sql.Scanner.
func (g *Gender) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*g = Gender(v)
	case []byte:
		*g = Gender(v)
	default:
		return fmt.Errorf("domain.Gender: cannot scan %T", src)
	}
	if !g.Valid() {
		return fmt.Errorf("domain.Gender: invalid value %q", string(*g))
	}
	return nil
}
