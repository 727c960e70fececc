package schedule

import "time"

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped shifts base by the given number of calendar months and pins the
// result to targetDay, clamped into the target month. Negative deltas roll back
// across year boundaries.
func AddMonthsClamped(base Date, months, targetDay int) Date {
	index := int(base.m-1) + months
	year := base.y + floorDiv(index, 12)
	month := time.Month(index-floorDiv(index, 12)*12) + 1
	return Date{y: year, m: month, d: clampDay(year, month, targetDay)}
}

// ComputeNextRunAt returns the first fire date of a template anchored to reference.
// executeDay is clamped into reference's month; when that day is already before
// today the result moves forward by exactly one interval and no further, so a
// reference stale by several intervals still yields a date in the past.
func ComputeNextRunAt(reference Date, executeDay, intervalMonths int, today Date) Date {
	next := Date{y: reference.y, m: reference.m, d: clampDay(reference.y, reference.m, executeDay)}
	if next.Before(today) {
		next = AddMonthsClamped(next, NormalizeInterval(intervalMonths), executeDay)
	}
	return next
}

// NormalizeInterval coerces a non-positive interval to one month.
func NormalizeInterval(intervalMonths int) int {
	if intervalMonths < 1 {
		return 1
	}
	return intervalMonths
}

// NormalizeExecuteDay clamps a requested day of month into [1, 31].
func NormalizeExecuteDay(day int) int {
	switch {
	case day < 1:
		return 1
	case day > 31:
		return 31
	default:
		return day
	}
}

func clampDay(year int, month time.Month, day int) int {
	if day < 1 {
		return 1
	}
	if last := DaysIn(year, month); day > last {
		return last
	}
	return day
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
