package state

import (
	"fmt"
	"time"
)

// dayLayout is the canonical calendar day format.
const dayLayout = "2006-01-02"

// Day is a calendar day in yyyy-mm-dd form. Days compare correctly as
// plain strings, which keeps state snapshots deterministic and
// JSON-friendly. All day arithmetic goes through time.Time at UTC noon
// to stay clear of DST boundaries.
type Day string

// ParseDay validates and returns a Day.
func ParseDay(s string) (Day, error) {
	if _, err := time.ParseInLocation(dayLayout, s, time.UTC); err != nil {
		return "", fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day(s), nil
}

// MustDay is like ParseDay but panics on error. Use only in tests or
// with literals known to be valid.
func MustDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DayOf returns the calendar day of a timestamp in UTC.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// time returns the day anchored at UTC noon.
func (d Day) time() time.Time {
	t, err := time.ParseInLocation(dayLayout, string(d), time.UTC)
	if err != nil {
		panic(fmt.Sprintf("invalid day %q: %v", d, err))
	}
	return t.Add(12 * time.Hour)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day(d.time().AddDate(0, 0, 1).Format(dayLayout))
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return string(d) < string(other)
}

// DaysBetween returns the number of calendar days from a to b.
// Positive when b is later, negative when earlier, zero when equal.
func DaysBetween(a, b Day) int {
	hours := b.time().Sub(a.time()).Hours()
	return int(hours / 24)
}
