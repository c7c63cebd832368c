package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPeriodContaining(t *testing.T) {
	cases := []struct {
		name      string
		cycle     BillingCycle
		day       string
		wantStart string
		wantEnd   string
	}{
		{"weekly midweek", CycleWeekly, "2026-03-04", "2026-03-02", "2026-03-08"},
		{"weekly on monday", CycleWeekly, "2026-03-02", "2026-03-02", "2026-03-08"},
		{"weekly on sunday", CycleWeekly, "2026-03-08", "2026-03-02", "2026-03-08"},

		// Biweekly windows are anchored to Monday 2024-01-01.
		{"biweekly anchor day", CycleBiweekly, "2024-01-01", "2024-01-01", "2024-01-14"},
		{"biweekly second week", CycleBiweekly, "2024-01-10", "2024-01-01", "2024-01-14"},
		{"biweekly next window", CycleBiweekly, "2024-01-15", "2024-01-15", "2024-01-28"},
		{"biweekly before anchor", CycleBiweekly, "2023-12-31", "2023-12-18", "2023-12-31"},
		{"biweekly two weeks before anchor", CycleBiweekly, "2023-12-20", "2023-12-18", "2023-12-31"},

		{"monthly midmonth", CycleMonthly, "2026-02-10", "2026-02-01", "2026-02-28"},
		{"monthly leap february", CycleMonthly, "2024-02-15", "2024-02-01", "2024-02-29"},
		{"monthly on last day", CycleMonthly, "2026-03-31", "2026-03-01", "2026-03-31"},
		{"monthly on first day", CycleMonthly, "2026-04-01", "2026-04-01", "2026-04-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := PeriodContaining(tc.cycle, date(tc.day))
			require.NoError(t, err)
			require.Equal(t, date(tc.wantStart), start)
			require.Equal(t, date(tc.wantEnd), end)
		})
	}
}

func TestPeriodContainingStripsTimeOfDay(t *testing.T) {
	noon := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	start, end, err := PeriodContaining(CycleWeekly, noon)
	require.NoError(t, err)
	require.Equal(t, date("2026-03-02"), start)
	require.Equal(t, date("2026-03-08"), end)
}

func TestPeriodContainingUnknownCycle(t *testing.T) {
	_, _, err := PeriodContaining(BillingCycle("QUARTERLY"), date("2026-03-04"))
	require.True(t, IsValidation(err))
}

func TestBillingCycleValid(t *testing.T) {
	require.True(t, CycleWeekly.Valid())
	require.True(t, CycleBiweekly.Valid())
	require.True(t, CycleMonthly.Valid())
	require.False(t, BillingCycle("DAILY").Valid())
	require.False(t, BillingCycle("").Valid())
}

func TestWithinPeriodBoundsInclusive(t *testing.T) {
	start, end := date("2026-03-02"), date("2026-03-08")

	require.True(t, WithinPeriod(date("2026-03-02"), start, end))
	require.True(t, WithinPeriod(date("2026-03-08"), start, end))
	require.True(t, WithinPeriod(time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), start, end))
	require.False(t, WithinPeriod(date("2026-03-01"), start, end))
	require.False(t, WithinPeriod(date("2026-03-09"), start, end))
}
