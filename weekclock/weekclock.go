/*
Package weekclock provides ISO 8601 week calendar math.

PURPOSE:
  Every ledger bucket in this system is keyed by an ISO week. This package
  is the single source of truth for:
  - Which ISO week a calendar date belongs to (week number + week year)
  - The Monday..Sunday boundary instants of a given ISO week
  - Inclusive interval overlap tests between date windows

ISO 8601 RULES:
  - Weeks run Monday through Sunday
  - Week 1 is the week containing the year's first Thursday
  - A date near a year boundary may belong to week 52/53 of the previous
    year or week 1 of the next year (the "week year" differs from the
    calendar year)

DESIGN:
  All functions are pure and total for any valid calendar date. Dates are
  normalized to UTC midnight before any comparison so that callers never
  have to care about wall-clock components or time zones.

SEE ALSO:
  - ledger/types.go: WeekKey, derived through this package
  - ledger/summary.go: window overlap and exact-week matching
*/
package weekclock

import (
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD form used for day-map keys and
// API date parameters.
const DateLayout = "2006-01-02"

// =============================================================================
// WEEK KEY COMPUTATION
// =============================================================================

// WeekOf returns the ISO week number and ISO week year for a date.
// The week year can differ from the calendar year around January 1st.
func WeekOf(t time.Time) (week, year int) {
	year, week = Day(t).ISOWeek()
	return week, year
}

// BoundsOf returns the Monday 00:00:00 UTC and Sunday 23:59:59.999 UTC
// instants of the given ISO week.
//
// January 4th is always inside week 1 of its ISO year, which anchors the
// computation without any special-casing of week 52/53 years.
func BoundsOf(week, year int) (start, end time.Time) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	// Monday of week 1.
	week1Monday := jan4.AddDate(0, 0, -(isoWeekday(jan4) - 1))
	start = week1Monday.AddDate(0, 0, (week-1)*7)
	end = EndOfDay(start.AddDate(0, 0, 6))
	return start, end
}

// isoWeekday maps time.Weekday (Sunday=0) to ISO weekday (Monday=1..Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// =============================================================================
// DAY NORMALIZATION
// =============================================================================

// Day truncates a time to UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 UTC of the same calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// DayKey formats a date as its canonical YYYY-MM-DD map key.
func DayKey(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight instant.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// =============================================================================
// INTERVALS
// =============================================================================

// RangesOverlap reports whether [aStart, aEnd] intersects [bStart, bEnd],
// both intervals inclusive on both ends. Comparison is day-granular.
func RangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !Day(aStart).After(Day(bEnd)) && !Day(aEnd).Before(Day(bStart))
}

// WithinDays reports whether t falls inside [start, end], day-granular.
func WithinDays(t, start, end time.Time) bool {
	d := Day(t)
	return !d.Before(Day(start)) && !d.After(Day(end))
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ParseDayRange extracts the two YYYY-MM-DD dates from a range string.
// Accepts any separator between the dates ("2025-11-03 – 2025-11-09",
// "2025-11-03..2025-11-09", ...), matching the loose formats the UI sends.
func ParseDayRange(s string) (start, end time.Time, err error) {
	dates := datePattern.FindAllString(s, -1)
	if len(dates) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date range %q: expected two YYYY-MM-DD dates", s)
	}
	if start, err = ParseDay(dates[0]); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = ParseDay(dates[1]); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
