package timesheet

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/crewledger/crewledger/internal/notify"
	"github.com/crewledger/crewledger/internal/placement"
	"github.com/crewledger/crewledger/internal/shared"
)

// RepositoryPort defines data access methods used by the service.
type RepositoryPort interface {
	CreateTimesheet(ctx context.Context, ts *Timesheet) (*Timesheet, error)
	GetTimesheet(ctx context.Context, id int64) (*Timesheet, error)
	GetTimesheetForPeriod(ctx context.Context, placementID int64, periodStart time.Time) (*Timesheet, error)
	ListTimesheets(ctx context.Context, req ListTimesheetsRequest) ([]Timesheet, error)
	ListEntries(ctx context.Context, timesheetID int64) ([]TimeEntry, error)
	ListApprovedUnbilled(ctx context.Context, customerID int64) ([]Timesheet, error)
	ListSubmittedIDs(ctx context.Context) ([]int64, error)
	SaveRiskScore(ctx context.Context, timesheetID int64, score float64) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// PlacementPort is the slice of the placement module the service needs.
type PlacementPort interface {
	GetActivePlacement(ctx context.Context, id int64) (placement.Placement, error)
}

// Service implements the timesheet lifecycle.
type Service struct {
	repo       RepositoryPort
	placements PlacementPort
	notifier   notify.Notifier
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, placements PlacementPort, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, placements: placements, notifier: notifier, logger: logger}
}

// Detail bundles a timesheet with its entries and current anomaly scan.
type Detail struct {
	Timesheet Timesheet   `json:"timesheet"`
	Entries   []TimeEntry `json:"entries"`
	Anomalies []Anomaly   `json:"anomalies"`
}

// CreateTimesheet opens a draft sheet for the billing period containing
// input.PeriodDate, snapshotting the placement's rates.
func (s *Service) CreateTimesheet(ctx context.Context, input CreateTimesheetInput) (*Timesheet, error) {
	p, err := s.placements.GetActivePlacement(ctx, input.PlacementID)
	if err != nil {
		return nil, err
	}

	day := input.PeriodDate
	if day.IsZero() {
		day = time.Now().UTC()
	}
	start, end, err := shared.PeriodContaining(p.BillingCycle, day)
	if err != nil {
		return nil, err
	}

	ts := &Timesheet{
		PlacementID:  p.ID,
		CandidateID:  p.CandidateID,
		CustomerID:   p.CustomerID,
		PeriodStart:  start,
		PeriodEnd:    end,
		BillingCycle: p.BillingCycle,
		RegularRate:  p.RegularRate,
		OvertimeRate: p.OvertimeRate,
		BillRate:     p.BillRate,
	}
	return s.repo.CreateTimesheet(ctx, ts)
}

// EnsureTimesheet creates the sheet for the period containing day if it
// does not exist yet. The scheduler calls this at cycle boundaries, so it
// must be idempotent.
func (s *Service) EnsureTimesheet(ctx context.Context, placementID int64, day time.Time) (*Timesheet, bool, error) {
	p, err := s.placements.GetActivePlacement(ctx, placementID)
	if err != nil {
		return nil, false, err
	}
	start, _, err := shared.PeriodContaining(p.BillingCycle, day)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetTimesheetForPeriod(ctx, placementID, start)
	if err == nil {
		return existing, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, err
	}

	ts, err := s.CreateTimesheet(ctx, CreateTimesheetInput{PlacementID: placementID, PeriodDate: day})
	if err != nil {
		return nil, false, err
	}
	return ts, true, nil
}

// GetTimesheet returns a sheet with entries and a fresh anomaly scan.
func (s *Service) GetTimesheet(ctx context.Context, id int64) (*Detail, error) {
	ts, err := s.repo.GetTimesheet(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	anomalies, _ := Scan(entries)
	return &Detail{Timesheet: *ts, Entries: entries, Anomalies: anomalies}, nil
}

// ListTimesheets returns sheets matching the filter.
func (s *Service) ListTimesheets(ctx context.Context, req ListTimesheetsRequest) ([]Timesheet, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	return s.repo.ListTimesheets(ctx, req)
}

// ApprovedUnbilled returns approved sheets awaiting invoicing.
func (s *Service) ApprovedUnbilled(ctx context.Context, customerID int64) ([]Timesheet, error) {
	return s.repo.ListApprovedUnbilled(ctx, customerID)
}

// SubmittedIDs returns the ids the anomaly sweep should visit.
func (s *Service) SubmittedIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListSubmittedIDs(ctx)
}

// --- Entry Mutations ---

// AddEntry appends a day to a draft sheet and recomputes totals in the
// same transaction.
func (s *Service) AddEntry(ctx context.Context, timesheetID int64, input EntryInput) (*TimeEntry, error) {
	var created *TimeEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, timesheetID)
		if err != nil {
			return err
		}
		if err := validateEntry(ts, input); err != nil {
			return err
		}
		created, err = tx.CreateEntry(ctx, timesheetID, input)
		if err != nil {
			return err
		}
		return recomputeAndSave(ctx, tx, ts)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateEntry rewrites a day on a draft sheet.
func (s *Service) UpdateEntry(ctx context.Context, timesheetID, entryID int64, input EntryInput) (*TimeEntry, error) {
	var updated *TimeEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, timesheetID)
		if err != nil {
			return err
		}
		if err := validateEntry(ts, input); err != nil {
			return err
		}
		updated, err = tx.UpdateEntry(ctx, entryID, input)
		if err != nil {
			return err
		}
		if updated.TimesheetID != timesheetID {
			return shared.NotFoundf("time entry %d", entryID)
		}
		return recomputeAndSave(ctx, tx, ts)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEntry removes a day from a draft sheet.
func (s *Service) DeleteEntry(ctx context.Context, timesheetID, entryID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, timesheetID)
		if err != nil {
			return err
		}
		if ts.Status != StatusDraft {
			return shared.InvalidState("timesheet", string(ts.Status), "delete entry")
		}
		if err := tx.DeleteEntry(ctx, entryID); err != nil {
			return err
		}
		return recomputeAndSave(ctx, tx, ts)
	})
}

// --- Lifecycle ---

// Submit moves a draft sheet to submitted. The sheet must have at least
// one entry with recorded hours. The anomaly scan runs on the way out and
// stamps the advisory risk score; anomalies never block submission.
func (s *Service) Submit(ctx context.Context, id int64) (*Timesheet, error) {
	var entries []TimeEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ts.Status.CanTransition(StatusSubmitted) {
			return shared.InvalidState("timesheet", string(ts.Status), "submit")
		}
		entries, err = tx.ListEntries(ctx, id)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return shared.Validationf("timesheet has no entries")
		}
		totals := Recompute(entries, ts.Rates())
		if totals.TotalHours <= 0 {
			return shared.Validationf("timesheet has no recorded hours")
		}
		if err := verifyTotals(entries, totals); err != nil {
			return err
		}
		if err := tx.SaveTotals(ctx, id, totals); err != nil {
			return err
		}
		_, score := Scan(entries)
		if err := tx.SaveRiskScore(ctx, id, score); err != nil {
			return err
		}
		return tx.MarkSubmitted(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventTimesheetSubmitted, id, nil))
	return s.repo.GetTimesheet(ctx, id)
}

// Approve finalizes a submitted sheet. Approved hours are frozen and
// become billable.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (*Timesheet, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, input.TimesheetID)
		if err != nil {
			return err
		}
		if !ts.Status.CanTransition(StatusApproved) {
			return shared.InvalidState("timesheet", string(ts.Status), "approve")
		}
		return tx.MarkApproved(ctx, input.TimesheetID, input.ApproverID, input.Notes)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventTimesheetApproved, input.TimesheetID, map[string]any{
		"approver_id": input.ApproverID,
	}))
	return s.repo.GetTimesheet(ctx, input.TimesheetID)
}

// Reject sends a submitted sheet back to the candidate with a reason.
func (s *Service) Reject(ctx context.Context, input RejectInput) (*Timesheet, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, shared.Validationf("rejection reason is required")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, input.TimesheetID)
		if err != nil {
			return err
		}
		if !ts.Status.CanTransition(StatusRejected) {
			return shared.InvalidState("timesheet", string(ts.Status), "reject")
		}
		return tx.MarkRejected(ctx, input.TimesheetID, input.ApproverID, input.Reason)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventTimesheetRejected, input.TimesheetID, map[string]any{
		"reason": input.Reason,
	}))
	return s.repo.GetTimesheet(ctx, input.TimesheetID)
}

// Recall pulls a submitted or rejected sheet back to draft so the
// candidate can fix it.
func (s *Service) Recall(ctx context.Context, id int64) (*Timesheet, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ts, err := tx.GetTimesheetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !ts.Status.CanTransition(StatusDraft) {
			return shared.InvalidState("timesheet", string(ts.Status), "recall")
		}
		return tx.MarkRecalled(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetTimesheet(ctx, id)
}

// BulkApprove approves each sheet independently. A failure on one sheet
// never rolls back the others; the summary reports per-id outcomes.
func (s *Service) BulkApprove(ctx context.Context, ids []int64, approverID int64, notes string) shared.BatchSummary {
	var summary shared.BatchSummary
	for _, id := range ids {
		if _, err := s.Approve(ctx, ApproveInput{TimesheetID: id, ApproverID: approverID, Notes: notes}); err != nil {
			summary.Failure(id, err)
			continue
		}
		summary.Success()
	}
	return summary
}

// ScanAnomalies runs the rule set against a sheet and persists the score.
func (s *Service) ScanAnomalies(ctx context.Context, id int64) ([]Anomaly, float64, error) {
	if _, err := s.repo.GetTimesheet(ctx, id); err != nil {
		return nil, 0, err
	}
	entries, err := s.repo.ListEntries(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	anomalies, score := Scan(entries)
	if err := s.repo.SaveRiskScore(ctx, id, score); err != nil {
		return nil, 0, err
	}
	return anomalies, score, nil
}

// --- Validation ---

const maxDailyHours = 24.0

func validateEntry(ts *Timesheet, input EntryInput) error {
	if ts.Status != StatusDraft {
		return shared.InvalidState("timesheet", string(ts.Status), "edit entries")
	}
	if input.EntryDate.IsZero() {
		return shared.Validationf("entry date is required")
	}
	if !shared.WithinPeriod(input.EntryDate, ts.PeriodStart, ts.PeriodEnd) {
		return shared.Validationf("entry date %s is outside the timesheet period", input.EntryDate.Format("2006-01-02"))
	}
	if input.HoursRegular < 0 || input.HoursOvertime < 0 {
		return shared.Validationf("hours cannot be negative")
	}
	if input.HoursRegular+input.HoursOvertime > maxDailyHours {
		return shared.Validationf("total hours for a day cannot exceed %.0f", maxDailyHours)
	}
	if input.BreakMinutes < 0 {
		return shared.Validationf("break minutes cannot be negative")
	}
	if input.StartTime != nil && input.EndTime != nil && !input.EndTime.After(*input.StartTime) {
		return shared.Validationf("end time must be after start time")
	}
	return nil
}

// verifyTotals re-derives the hour sums straight from the entries and
// compares them against the aggregate. A mismatch means the aggregation
// itself broke, which must abort the transaction.
func verifyTotals(entries []TimeEntry, t Totals) error {
	var hours float64
	for _, e := range entries {
		hours += e.TotalHours()
	}
	if math.Abs(hours-t.TotalHours) > 1e-6 {
		return shared.Consistencyf("total hours %.4f do not match entry sum %.4f", t.TotalHours, hours)
	}
	if math.Abs(t.PayAmount-(t.RegularAmount+t.OvertimeAmount)) > 1e-6 {
		return shared.Consistencyf("pay amount does not match its components")
	}
	return nil
}

func recomputeAndSave(ctx context.Context, tx TxRepository, ts *Timesheet) error {
	entries, err := tx.ListEntries(ctx, ts.ID)
	if err != nil {
		return err
	}
	totals := Recompute(entries, ts.Rates())
	if err := verifyTotals(entries, totals); err != nil {
		return err
	}
	return tx.SaveTotals(ctx, ts.ID, totals)
}
