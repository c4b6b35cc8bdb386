// Package calendar provides day-granularity date arithmetic for the
// reservation engine. All dates are timezone-naive calendar dates
// represented as midnight UTC.
package calendar

import "time"

const day = 24 * time.Hour

// Truncate normalizes t to its calendar date: midnight UTC, the
// canonical representation used across storage and the occupancy index.
func Truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatesBetween returns the ordered, gap-free list of calendar dates in
// the half-open range [startInclusive, endExclusive). The result is
// empty when startInclusive >= endExclusive; there is no invalid-input
// error path.
func DatesBetween(startInclusive, endExclusive time.Time) []time.Time {
	start := Truncate(startInclusive)
	end := Truncate(endExclusive)
	if !start.Before(end) {
		return nil
	}

	dates := make([]time.Time, 0, end.Sub(start)/day)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// DaysBetween returns the number of whole calendar days from a to b.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)) / day)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return Truncate(a).Equal(Truncate(b))
}
