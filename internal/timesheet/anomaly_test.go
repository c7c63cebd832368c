package timesheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScanExcessiveHours(t *testing.T) {
	entries := []TimeEntry{
		{ID: 1, EntryDate: day("2026-03-02"), HoursRegular: 8, HoursOvertime: 9},
	}
	anomalies, score := Scan(entries)

	require.Len(t, anomalies, 1)
	require.Equal(t, RuleExcessiveHours, anomalies[0].Rule)
	require.Equal(t, SeverityHigh, anomalies[0].Severity)
	require.InDelta(t, 0.5, score, 1e-9)
}

func TestScanWeekendWork(t *testing.T) {
	// 2026-03-07 is a Saturday.
	entries := []TimeEntry{
		{ID: 1, EntryDate: day("2026-03-07"), HoursRegular: 4},
	}
	anomalies, score := Scan(entries)

	require.Len(t, anomalies, 1)
	require.Equal(t, RuleWeekendWork, anomalies[0].Rule)
	require.Equal(t, SeverityMedium, anomalies[0].Severity)
	require.InDelta(t, 0.25, score, 1e-9)
}

func TestScanWeekendPTONotFlagged(t *testing.T) {
	entries := []TimeEntry{
		{ID: 1, EntryDate: day("2026-03-07"), HoursRegular: 8, PTO: true},
	}
	anomalies, score := Scan(entries)

	require.Empty(t, anomalies)
	require.Zero(t, score)
}

func TestScanZeroHourWeekendNotFlagged(t *testing.T) {
	entries := []TimeEntry{
		{ID: 1, EntryDate: day("2026-03-07"), Sick: true},
	}
	anomalies, score := Scan(entries)

	require.Empty(t, anomalies)
	require.Zero(t, score)
}

func TestScanTimeMismatch(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	entries := []TimeEntry{
		{
			ID:           1,
			EntryDate:    day("2026-03-02"),
			HoursRegular: 10,
			StartTime:    &start,
			EndTime:      &end,
			BreakMinutes: 30,
		},
	}
	anomalies, _ := Scan(entries)

	require.Len(t, anomalies, 1)
	require.Equal(t, RuleTimeMismatch, anomalies[0].Rule)
}

func TestScanTimeWithinTolerance(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)
	entries := []TimeEntry{
		{
			ID:           1,
			EntryDate:    day("2026-03-02"),
			HoursRegular: 8,
			StartTime:    &start,
			EndTime:      &end,
			BreakMinutes: 30,
		},
	}
	anomalies, _ := Scan(entries)
	require.Empty(t, anomalies)
}

func TestRiskScoreCapped(t *testing.T) {
	var anomalies []Anomaly
	for i := 0; i < 5; i++ {
		anomalies = append(anomalies, Anomaly{Rule: RuleExcessiveHours, Severity: SeverityHigh})
	}
	require.InDelta(t, 1.0, RiskScore(anomalies), 1e-9)
}
