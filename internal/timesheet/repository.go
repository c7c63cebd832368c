package timesheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewledger/crewledger/internal/shared"
)

// querier is the common surface of pgxpool.Pool and pgx.Tx, letting the
// same queries run inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for timesheets.
type Repository struct {
	queries
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: queries{db: pool}, pool: pool}
}

// TxRepository exposes the operations available inside a transaction.
type TxRepository interface {
	GetTimesheetForUpdate(ctx context.Context, id int64) (*Timesheet, error)
	ListEntries(ctx context.Context, timesheetID int64) ([]TimeEntry, error)
	CreateEntry(ctx context.Context, timesheetID int64, input EntryInput) (*TimeEntry, error)
	UpdateEntry(ctx context.Context, entryID int64, input EntryInput) (*TimeEntry, error)
	DeleteEntry(ctx context.Context, entryID int64) error
	SaveTotals(ctx context.Context, timesheetID int64, totals Totals) error
	SaveRiskScore(ctx context.Context, timesheetID int64, score float64) error
	MarkSubmitted(ctx context.Context, id int64) error
	MarkApproved(ctx context.Context, id int64, approverID int64, notes string) error
	MarkRejected(ctx context.Context, id int64, approverID int64, reason string) error
	MarkRecalled(ctx context.Context, id int64) error
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// queries holds every SQL operation. It runs against the pool directly or
// against an open transaction.
type queries struct {
	db querier
}

const timesheetColumns = `
	id, placement_id, candidate_id, customer_id,
	period_start, period_end, billing_cycle,
	regular_rate, overtime_rate, bill_rate,
	status, regular_hours, overtime_hours, total_hours, billable_hours,
	regular_amount, overtime_amount, pay_amount, bill_amount, margin,
	risk_score, invoice_id,
	submitted_at, approved_at, approved_by, approval_notes,
	rejected_at, rejected_by, rejection_reason,
	created_at, updated_at`

// CreateTimesheet opens a new draft timesheet.
func (q *queries) CreateTimesheet(ctx context.Context, ts *Timesheet) (*Timesheet, error) {
	query := `
		INSERT INTO timesheets (
			placement_id, candidate_id, customer_id,
			period_start, period_end, billing_cycle,
			regular_rate, overtime_rate, bill_rate,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'DRAFT', NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var overtimeRate, billRate pgtype.Float8
	if ts.OvertimeRate != nil {
		overtimeRate = pgtype.Float8{Float64: *ts.OvertimeRate, Valid: true}
	}
	if ts.BillRate != nil {
		billRate = pgtype.Float8{Float64: *ts.BillRate, Valid: true}
	}

	err := q.db.QueryRow(ctx, query,
		ts.PlacementID,
		ts.CandidateID,
		ts.CustomerID,
		ts.PeriodStart,
		ts.PeriodEnd,
		string(ts.BillingCycle),
		ts.RegularRate,
		overtimeRate,
		billRate,
	).Scan(&ts.ID, &ts.CreatedAt, &ts.UpdatedAt)

	if isUniqueViolation(err) {
		return nil, shared.Validationf("timesheet already exists for placement %d in this period", ts.PlacementID)
	}
	if err != nil {
		return nil, err
	}

	ts.Status = StatusDraft
	return ts, nil
}

// GetTimesheet retrieves a timesheet by ID.
func (q *queries) GetTimesheet(ctx context.Context, id int64) (*Timesheet, error) {
	row := q.db.QueryRow(ctx, `SELECT`+timesheetColumns+` FROM timesheets WHERE id = $1`, id)
	return scanTimesheet(row, id)
}

// GetTimesheetForUpdate locks the timesheet row for the duration of the
// enclosing transaction so concurrent mutations serialize.
func (q *queries) GetTimesheetForUpdate(ctx context.Context, id int64) (*Timesheet, error) {
	row := q.db.QueryRow(ctx, `SELECT`+timesheetColumns+` FROM timesheets WHERE id = $1 FOR UPDATE`, id)
	return scanTimesheet(row, id)
}

// GetTimesheetForPeriod finds the sheet covering a placement period, used
// by the scheduler to keep sheet creation idempotent.
func (q *queries) GetTimesheetForPeriod(ctx context.Context, placementID int64, periodStart time.Time) (*Timesheet, error) {
	row := q.db.QueryRow(ctx,
		`SELECT`+timesheetColumns+` FROM timesheets WHERE placement_id = $1 AND period_start = $2`,
		placementID, periodStart,
	)
	return scanTimesheet(row, placementID)
}

// ListTimesheets returns timesheets with optional filtering.
func (q *queries) ListTimesheets(ctx context.Context, req ListTimesheetsRequest) ([]Timesheet, error) {
	query := `SELECT` + timesheetColumns + ` FROM timesheets WHERE 1=1`

	args := []any{}
	argNum := 1

	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if req.PlacementID > 0 {
		query += fmt.Sprintf(" AND placement_id = $%d", argNum)
		args = append(args, req.PlacementID)
		argNum++
	}
	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if !req.FromDate.IsZero() {
		query += fmt.Sprintf(" AND period_start >= $%d", argNum)
		args = append(args, req.FromDate)
		argNum++
	}
	if !req.ToDate.IsZero() {
		query += fmt.Sprintf(" AND period_end <= $%d", argNum)
		args = append(args, req.ToDate)
		argNum++
	}

	query += " ORDER BY period_start DESC, id DESC"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows, 0)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *ts)
	}
	return sheets, rows.Err()
}

// ListApprovedUnbilled returns approved timesheets not yet linked to an
// invoice, the feed for invoice generation.
func (q *queries) ListApprovedUnbilled(ctx context.Context, customerID int64) ([]Timesheet, error) {
	query := `SELECT` + timesheetColumns + ` FROM timesheets WHERE status = 'APPROVED' AND invoice_id IS NULL`
	args := []any{}
	if customerID > 0 {
		query += " AND customer_id = $1"
		args = append(args, customerID)
	}
	query += " ORDER BY period_start, id"

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sheets []Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows, 0)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *ts)
	}
	return sheets, rows.Err()
}

// ListSubmittedIDs returns the ids of all submitted timesheets, the scan
// set for the nightly anomaly sweep.
func (q *queries) ListSubmittedIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM timesheets WHERE status = 'SUBMITTED' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Entry Operations ---

const entryColumns = `
	id, timesheet_id, entry_date, hours_regular, hours_overtime,
	billable, holiday, pto, sick,
	start_time, end_time, break_minutes,
	project_code, task_description, created_at, updated_at`

// ListEntries returns the entries of a timesheet ordered by date.
func (q *queries) ListEntries(ctx context.Context, timesheetID int64) ([]TimeEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT`+entryColumns+` FROM time_entries WHERE timesheet_id = $1 ORDER BY entry_date`,
		timesheetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// GetEntry retrieves a single entry.
func (q *queries) GetEntry(ctx context.Context, entryID int64) (*TimeEntry, error) {
	row := q.db.QueryRow(ctx, `SELECT`+entryColumns+` FROM time_entries WHERE id = $1`, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("time entry %d", entryID)
	}
	return e, err
}

// CreateEntry inserts a new entry. A second entry on the same date trips
// the unique index and surfaces as a validation error.
func (q *queries) CreateEntry(ctx context.Context, timesheetID int64, input EntryInput) (*TimeEntry, error) {
	query := `
		INSERT INTO time_entries (
			timesheet_id, entry_date, hours_regular, hours_overtime,
			billable, holiday, pto, sick,
			start_time, end_time, break_minutes,
			project_code, task_description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	e := entryFromInput(timesheetID, input)
	err := q.db.QueryRow(ctx, query,
		timesheetID,
		input.EntryDate,
		input.HoursRegular,
		input.HoursOvertime,
		input.Billable,
		input.Holiday,
		input.PTO,
		input.Sick,
		input.StartTime,
		input.EndTime,
		input.BreakMinutes,
		input.ProjectCode,
		input.TaskDescription,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)

	if isUniqueViolation(err) {
		return nil, shared.Validationf("entry already exists for %s", input.EntryDate.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEntry rewrites an entry in place.
func (q *queries) UpdateEntry(ctx context.Context, entryID int64, input EntryInput) (*TimeEntry, error) {
	query := `
		UPDATE time_entries SET
			entry_date = $2, hours_regular = $3, hours_overtime = $4,
			billable = $5, holiday = $6, pto = $7, sick = $8,
			start_time = $9, end_time = $10, break_minutes = $11,
			project_code = $12, task_description = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING timesheet_id, created_at, updated_at`

	e := entryFromInput(0, input)
	e.ID = entryID
	err := q.db.QueryRow(ctx, query,
		entryID,
		input.EntryDate,
		input.HoursRegular,
		input.HoursOvertime,
		input.Billable,
		input.Holiday,
		input.PTO,
		input.Sick,
		input.StartTime,
		input.EndTime,
		input.BreakMinutes,
		input.ProjectCode,
		input.TaskDescription,
	).Scan(&e.TimesheetID, &e.CreatedAt, &e.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("time entry %d", entryID)
	}
	if isUniqueViolation(err) {
		return nil, shared.Validationf("entry already exists for %s", input.EntryDate.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntry removes an entry.
func (q *queries) DeleteEntry(ctx context.Context, entryID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("time entry %d", entryID)
	}
	return nil
}

// SaveTotals persists recomputed aggregates.
func (q *queries) SaveTotals(ctx context.Context, timesheetID int64, t Totals) error {
	query := `
		UPDATE timesheets SET
			regular_hours = $2, overtime_hours = $3, total_hours = $4, billable_hours = $5,
			regular_amount = $6, overtime_amount = $7, pay_amount = $8,
			bill_amount = $9, margin = $10, updated_at = NOW()
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query, timesheetID,
		t.RegularHours, t.OvertimeHours, t.TotalHours, t.BillableHours,
		t.RegularAmount, t.OvertimeAmount, t.PayAmount, t.BillAmount, t.Margin,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("timesheet %d", timesheetID)
	}
	return nil
}

// SaveRiskScore persists the advisory anomaly score.
func (q *queries) SaveRiskScore(ctx context.Context, timesheetID int64, score float64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE timesheets SET risk_score = $2, updated_at = NOW() WHERE id = $1`,
		timesheetID, score,
	)
	return err
}

// --- Status Transitions ---

// MarkSubmitted moves a draft sheet to submitted. The status guard in the
// WHERE clause is the last line of defense under concurrency.
func (q *queries) MarkSubmitted(ctx context.Context, id int64) error {
	return q.markStatus(ctx, id, `
		UPDATE timesheets
		SET status = 'SUBMITTED', submitted_at = NOW(),
			rejected_at = NULL, rejected_by = NULL, rejection_reason = '',
			updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`)
}

// MarkApproved finalizes a submitted sheet.
func (q *queries) MarkApproved(ctx context.Context, id int64, approverID int64, notes string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE timesheets
		SET status = 'APPROVED', approved_at = NOW(), approved_by = $2, approval_notes = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'SUBMITTED'`,
		id, approverID, notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Consistencyf("timesheet %d changed status during approval", id)
	}
	return nil
}

// MarkRejected sends a submitted sheet back with a reason.
func (q *queries) MarkRejected(ctx context.Context, id int64, approverID int64, reason string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE timesheets
		SET status = 'REJECTED', rejected_at = NOW(), rejected_by = $2, rejection_reason = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'SUBMITTED'`,
		id, approverID, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Consistencyf("timesheet %d changed status during rejection", id)
	}
	return nil
}

// MarkRecalled returns a submitted or rejected sheet to draft.
func (q *queries) MarkRecalled(ctx context.Context, id int64) error {
	return q.markStatus(ctx, id, `
		UPDATE timesheets
		SET status = 'DRAFT', submitted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('SUBMITTED', 'REJECTED')`)
}

func (q *queries) markStatus(ctx context.Context, id int64, query string) error {
	tag, err := q.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Consistencyf("timesheet %d changed status concurrently", id)
	}
	return nil
}

// --- Helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func entryFromInput(timesheetID int64, input EntryInput) *TimeEntry {
	return &TimeEntry{
		TimesheetID:     timesheetID,
		EntryDate:       input.EntryDate,
		HoursRegular:    input.HoursRegular,
		HoursOvertime:   input.HoursOvertime,
		Billable:        input.Billable,
		Holiday:         input.Holiday,
		PTO:             input.PTO,
		Sick:            input.Sick,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		BreakMinutes:    input.BreakMinutes,
		ProjectCode:     input.ProjectCode,
		TaskDescription: input.TaskDescription,
	}
}

func scanTimesheet(row pgx.Row, id int64) (*Timesheet, error) {
	var ts Timesheet
	var cycle string
	var overtimeRate, billRate pgtype.Float8
	var invoiceID, approvedBy, rejectedBy pgtype.Int8
	var submittedAt, approvedAt, rejectedAt pgtype.Timestamptz
	var approvalNotes, rejectionReason pgtype.Text

	err := row.Scan(
		&ts.ID, &ts.PlacementID, &ts.CandidateID, &ts.CustomerID,
		&ts.PeriodStart, &ts.PeriodEnd, &cycle,
		&ts.RegularRate, &overtimeRate, &billRate,
		&ts.Status, &ts.Totals.RegularHours, &ts.Totals.OvertimeHours,
		&ts.Totals.TotalHours, &ts.Totals.BillableHours,
		&ts.Totals.RegularAmount, &ts.Totals.OvertimeAmount,
		&ts.Totals.PayAmount, &ts.Totals.BillAmount, &ts.Totals.Margin,
		&ts.RiskScore, &invoiceID,
		&submittedAt, &approvedAt, &approvedBy, &approvalNotes,
		&rejectedAt, &rejectedBy, &rejectionReason,
		&ts.CreatedAt, &ts.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("timesheet %d", id)
	}
	if err != nil {
		return nil, err
	}

	ts.BillingCycle = shared.BillingCycle(cycle)
	if overtimeRate.Valid {
		v := overtimeRate.Float64
		ts.OvertimeRate = &v
	}
	if billRate.Valid {
		v := billRate.Float64
		ts.BillRate = &v
	}
	if invoiceID.Valid {
		v := invoiceID.Int64
		ts.InvoiceID = &v
	}
	if submittedAt.Valid {
		ts.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		ts.ApprovedAt = &approvedAt.Time
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		ts.ApprovedBy = &v
	}
	if approvalNotes.Valid {
		ts.ApprovalNotes = approvalNotes.String
	}
	if rejectedAt.Valid {
		ts.RejectedAt = &rejectedAt.Time
	}
	if rejectedBy.Valid {
		v := rejectedBy.Int64
		ts.RejectedBy = &v
	}
	if rejectionReason.Valid {
		ts.RejectionReason = rejectionReason.String
	}

	return &ts, nil
}

func scanEntry(row pgx.Row) (*TimeEntry, error) {
	var e TimeEntry
	var startTime, endTime pgtype.Timestamptz
	var projectCode, taskDescription pgtype.Text

	err := row.Scan(
		&e.ID, &e.TimesheetID, &e.EntryDate, &e.HoursRegular, &e.HoursOvertime,
		&e.Billable, &e.Holiday, &e.PTO, &e.Sick,
		&startTime, &endTime, &e.BreakMinutes,
		&projectCode, &taskDescription, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startTime.Valid {
		e.StartTime = &startTime.Time
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if projectCode.Valid {
		e.ProjectCode = projectCode.String
	}
	if taskDescription.Valid {
		e.TaskDescription = taskDescription.String
	}

	return &e, nil
}
