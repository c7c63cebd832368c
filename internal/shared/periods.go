package shared

import (
	"time"
)

// BillingCycle enumerates timesheet billing cycles.
type BillingCycle string

const (
	// CycleWeekly covers Monday through Sunday.
	CycleWeekly BillingCycle = "WEEKLY"
	// CycleBiweekly covers two calendar weeks anchored to a fixed Monday.
	CycleBiweekly BillingCycle = "BIWEEKLY"
	// CycleMonthly covers a full calendar month.
	CycleMonthly BillingCycle = "MONTHLY"
)

// biweeklyAnchor is a fixed Monday used to keep two-week windows stable
// across the calendar. 2024-01-01 was a Monday.
var biweeklyAnchor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Valid reports whether the cycle is a known value.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleBiweekly, CycleMonthly:
		return true
	}
	return false
}

// TruncateDay strips the time-of-day component in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodContaining returns the [start, end] window of the billing cycle
// containing day. Both bounds are inclusive dates at midnight UTC.
func PeriodContaining(cycle BillingCycle, day time.Time) (time.Time, time.Time, error) {
	d := TruncateDay(day)
	switch cycle {
	case CycleWeekly:
		start := startOfWeek(d)
		return start, start.AddDate(0, 0, 6), nil
	case CycleBiweekly:
		weekStart := startOfWeek(d)
		weeks := int(weekStart.Sub(biweeklyAnchor).Hours() / (24 * 7))
		if weeks%2 != 0 {
			weekStart = weekStart.AddDate(0, 0, -7)
		}
		return weekStart, weekStart.AddDate(0, 0, 13), nil
	case CycleMonthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1), nil
	default:
		return time.Time{}, time.Time{}, Validationf("unknown billing cycle %q", cycle)
	}
}

// startOfWeek returns the Monday on or before d.
func startOfWeek(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WithinPeriod reports whether day falls inside [start, end] inclusive.
func WithinPeriod(day, start, end time.Time) bool {
	d := TruncateDay(day)
	return !d.Before(TruncateDay(start)) && !d.After(TruncateDay(end))
}
