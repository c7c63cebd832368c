package timesheet

import (
	"fmt"
	"math"
	"time"
)

// Anomaly rule identifiers and severities.
const (
	RuleExcessiveHours = "excessive_hours"
	RuleWeekendWork    = "weekend_work"
	RuleTimeMismatch   = "time_mismatch"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Severity weights feeding the advisory risk score.
var severityWeights = map[string]float64{
	SeverityHigh:   0.5,
	SeverityMedium: 0.25,
	SeverityLow:    0.1,
}

// excessiveHoursThreshold marks a single day above which recorded hours
// are treated as almost certainly a typo.
const excessiveHoursThreshold = 16.0

// timeMismatchTolerance is the allowed gap, in hours, between recorded
// hours and the clock-derived span before the entry is flagged.
const timeMismatchTolerance = 0.5

// Anomaly flags a suspicious entry. Anomalies are advisory: they inform
// approvers but never block submission or approval.
type Anomaly struct {
	EntryID   int64     `json:"entry_id"`
	EntryDate time.Time `json:"entry_date"`
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	Detail    string    `json:"detail"`
}

// Scan evaluates every entry against the anomaly rules and returns the
// findings together with a risk score in [0, 1].
func Scan(entries []TimeEntry) ([]Anomaly, float64) {
	var found []Anomaly

	for _, e := range entries {
		if total := e.TotalHours(); total > excessiveHoursThreshold {
			found = append(found, Anomaly{
				EntryID:   e.ID,
				EntryDate: e.EntryDate,
				Rule:      RuleExcessiveHours,
				Severity:  SeverityHigh,
				Detail:    fmt.Sprintf("%.2f hours recorded in a single day", total),
			})
		}

		// PTO on a weekend is a scheduling artifact, not worked time.
		if wd := e.Weekday(); (wd == time.Saturday || wd == time.Sunday) && !e.PTO && e.TotalHours() > 0 {
			found = append(found, Anomaly{
				EntryID:   e.ID,
				EntryDate: e.EntryDate,
				Rule:      RuleWeekendWork,
				Severity:  SeverityMedium,
				Detail:    fmt.Sprintf("%.2f hours recorded on %s", e.TotalHours(), wd),
			})
		}

		if e.StartTime != nil && e.EndTime != nil {
			span := e.EndTime.Sub(*e.StartTime).Hours() - float64(e.BreakMinutes)/60
			if diff := math.Abs(span - e.TotalHours()); diff > timeMismatchTolerance {
				found = append(found, Anomaly{
					EntryID:   e.ID,
					EntryDate: e.EntryDate,
					Rule:      RuleTimeMismatch,
					Severity:  SeverityMedium,
					Detail:    fmt.Sprintf("recorded %.2fh but clock span is %.2fh", e.TotalHours(), span),
				})
			}
		}
	}

	return found, RiskScore(found)
}

// RiskScore folds anomaly severities into a single score capped at 1.0.
func RiskScore(anomalies []Anomaly) float64 {
	var score float64
	for _, a := range anomalies {
		score += severityWeights[a.Severity]
	}
	return math.Min(score, 1.0)
}
