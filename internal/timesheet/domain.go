package timesheet

import (
	"time"

	"github.com/crewledger/crewledger/internal/shared"
)

// Status enumerates timesheet lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// transitions is the closed table of legal status moves. Approved is
// terminal: once an invoice can reference the sheet, hours are frozen.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusDraft},
	StatusRejected:  {StatusDraft},
	StatusApproved:  {},
}

// CanTransition reports whether moving from s to target is legal.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Totals are the derived aggregates of a timesheet. They are a pure
// function of the entry set and rates, recomputed inside the same
// transaction as any entry mutation; they are never adjusted directly.
type Totals struct {
	RegularHours   float64 `json:"regular_hours"`
	OvertimeHours  float64 `json:"overtime_hours"`
	TotalHours     float64 `json:"total_hours"`
	BillableHours  float64 `json:"billable_hours"`
	RegularAmount  float64 `json:"regular_amount"`
	OvertimeAmount float64 `json:"overtime_amount"`
	PayAmount      float64 `json:"pay_amount"`
	BillAmount     float64 `json:"bill_amount"`
	Margin         float64 `json:"margin"`
}

// Rates carries the pay/bill rates effective for a timesheet.
type Rates struct {
	Regular  float64
	Overtime *float64
	Bill     *float64
}

// Timesheet records a candidate's hours for one billing period of a
// placement.
type Timesheet struct {
	ID          int64
	PlacementID int64
	CandidateID int64
	CustomerID  int64

	PeriodStart  time.Time
	PeriodEnd    time.Time
	BillingCycle shared.BillingCycle

	RegularRate  float64
	OvertimeRate *float64
	BillRate     *float64

	Status Status
	Totals Totals

	// RiskScore is advisory metadata from the anomaly scanner; it never
	// gates a transition.
	RiskScore float64

	// InvoiceID links the sheet to the invoice generated from it.
	// One-to-one: a linked sheet can never be billed again.
	InvoiceID *int64

	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	ApprovedBy      *int64
	ApprovalNotes   string
	RejectedAt      *time.Time
	RejectedBy      *int64
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rates returns the effective rate set for aggregation.
func (t *Timesheet) Rates() Rates {
	return Rates{Regular: t.RegularRate, Overtime: t.OvertimeRate, Bill: t.BillRate}
}

// TimeEntry is one day's recorded work inside a timesheet. The
// (timesheet_id, entry_date) pair is unique.
type TimeEntry struct {
	ID          int64
	TimesheetID int64

	EntryDate     time.Time
	HoursRegular  float64
	HoursOvertime float64

	Billable bool
	Holiday  bool
	PTO      bool
	Sick     bool

	StartTime    *time.Time
	EndTime      *time.Time
	BreakMinutes int

	ProjectCode     string
	TaskDescription string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalHours is always derived from its two sources, never stored
// independently of them.
func (e TimeEntry) TotalHours() float64 {
	return e.HoursRegular + e.HoursOvertime
}

// Weekday is derived from the entry date, not caller-supplied.
func (e TimeEntry) Weekday() time.Weekday {
	return e.EntryDate.Weekday()
}

// --- Input DTOs ---

// CreateTimesheetInput opens a draft timesheet for a placement. The
// period is derived from the placement's billing cycle around PeriodDate.
type CreateTimesheetInput struct {
	PlacementID int64
	PeriodDate  time.Time
}

// EntryInput carries the mutable fields of a time entry.
type EntryInput struct {
	EntryDate       time.Time
	HoursRegular    float64
	HoursOvertime   float64
	Billable        bool
	Holiday         bool
	PTO             bool
	Sick            bool
	StartTime       *time.Time
	EndTime         *time.Time
	BreakMinutes    int
	ProjectCode     string
	TaskDescription string
}

// ApproveInput carries approval metadata.
type ApproveInput struct {
	TimesheetID int64
	ApproverID  int64
	Notes       string
}

// RejectInput carries rejection metadata.
type RejectInput struct {
	TimesheetID int64
	ApproverID  int64
	Reason      string
}

// ListTimesheetsRequest filters timesheet listings.
type ListTimesheetsRequest struct {
	Status      Status
	PlacementID int64
	CustomerID  int64
	FromDate    time.Time
	ToDate      time.Time
	Limit       int
	Offset      int
}
