package state

import (
	"testing"
	"time"
)

func TestParseDay_Valid(t *testing.T) {
	d, err := ParseDay("2026-03-01")
	if err != nil {
		t.Fatalf("ParseDay() failed: %v", err)
	}
	if d != Day("2026-03-01") {
		t.Errorf("got %q", d)
	}
}

func TestParseDay_Invalid(t *testing.T) {
	for _, s := range []string{"", "2026-13-01", "03/01/2026", "2026-3-1", "garbage"} {
		if _, err := ParseDay(s); err == nil {
			t.Errorf("ParseDay(%q) should fail", s)
		}
	}
}

func TestDay_Next_MonthBoundary(t *testing.T) {
	cases := map[Day]Day{
		"2026-01-31": "2026-02-01",
		"2026-02-28": "2026-03-01",
		"2024-02-28": "2024-02-29", // leap year
		"2026-12-31": "2027-01-01",
	}
	for in, want := range cases {
		if got := in.Next(); got != want {
			t.Errorf("%s.Next() = %s, want %s", in, got, want)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		a, b Day
		want int
	}{
		{"2026-03-01", "2026-03-01", 0},
		{"2026-03-01", "2026-03-02", 1},
		{"2026-03-02", "2026-03-01", -1},
		{"2026-02-27", "2026-03-02", 3},
		{"2025-01-01", "2026-01-01", 365},
	}
	for _, c := range cases {
		if got := DaysBetween(c.a, c.b); got != c.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestDaysBetween_AcrossDSTDates(t *testing.T) {
	// US DST change falls on 2026-03-08; UTC-noon arithmetic must not care.
	if got := DaysBetween("2026-03-07", "2026-03-09"); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestDayOf(t *testing.T) {
	ts := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("plus5", 5*3600))
	if got := DayOf(ts); got != Day("2026-03-01") {
		t.Errorf("DayOf() = %s, want 2026-03-01", got)
	}
}
