package entitlement

import "time"

// ResolvePeriod maps a reset policy and a reference instant to the inclusive
// [start, end] date bucket the usage counter lives in. Boundaries are
// computed in the reference instant's location at date precision. An
// unrecognized policy falls back to the lifetime bucket rather than failing.
func ResolvePeriod(policy ResetPeriod, ref time.Time) (start, end time.Time) {
	loc := ref.Location()
	switch policy {
	case ResetPeriodDaily:
		start = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		return start, start
	case ResetPeriodWeekly:
		day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		weekday := int(ref.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = day.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 6)
	case ResetPeriodMonthly:
		start = time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, -1)
	case ResetPeriodYearly:
		start = time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return start, time.Date(ref.Year(), time.December, 31, 0, 0, 0, 0, loc)
	}
	return time.Date(1970, time.January, 1, 0, 0, 0, 0, loc),
		time.Date(9999, time.December, 31, 0, 0, 0, 0, loc)
}
