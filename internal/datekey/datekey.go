// Package datekey normalizes timestamps to calendar days and renders them as
// the YYYY-MM-DD keys used for lookups and on the wire.
//
// All computations use the location carried by the time value. The shop runs
// in a single timezone, so no conversion is ever performed.
package datekey

import (
	"fmt"
	"time"
)

// Layout is the canonical key format.
const Layout = "2006-01-02"

// Key is a calendar day rendered as YYYY-MM-DD.
type Key string

// Day returns midnight of t's calendar day in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Of returns the key for t's calendar day.
func Of(t time.Time) Key {
	return Key(Day(t).Format(Layout))
}

// Today returns the key for the current local day.
func Today() Key {
	return Of(time.Now())
}

// Parse returns local midnight for the given YYYY-MM-DD string.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// String returns the key as a string.
func (k Key) String() string {
	return string(k)
}

// Valid reports whether k is a well-formed calendar day.
func (k Key) Valid() bool {
	_, err := time.Parse(Layout, string(k))
	return err == nil
}

// Time returns local midnight for k. Invalid keys yield the zero time.
func (k Key) Time() time.Time {
	t, err := Parse(string(k))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the key n days after k (n may be negative).
func (k Key) AddDays(n int) Key {
	t := k.Time()
	if t.IsZero() {
		return k
	}
	return Of(t.AddDate(0, 0, n))
}
