package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewledger/crewledger/internal/shared"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for invoices.
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
	CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error)
	CreateLine(ctx context.Context, invoiceID int64, input LineItemInput) (*LineItem, error)
	UpdateLine(ctx context.Context, lineID int64, input LineItemInput) (*LineItem, error)
	DeleteLine(ctx context.Context, lineID int64) error
	CreatePayment(ctx context.Context, input RecordPaymentInput) (*Payment, error)
	SumPayments(ctx context.Context, invoiceID int64) (float64, error)
	CreateCreditMemo(ctx context.Context, invoiceID int64, number string, amount float64, reason string) (*CreditMemo, error)
	SumCreditMemos(ctx context.Context, invoiceID int64) (float64, error)
	CountCreditMemos(ctx context.Context, invoiceID int64) (int, error)
	SaveTotals(ctx context.Context, invoiceID int64, t Totals, status Status, overpaid bool) error
	MarkSent(ctx context.Context, id int64) error
	MarkVoided(ctx context.Context, id int64, reason string) error
	LinkTimesheet(ctx context.Context, timesheetID, invoiceID int64) error
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

type queries struct {
	db querier
}

const invoiceColumns = `
	id, number, customer_id, invoice_date, due_date, period_start, period_end,
	payment_terms, tax_rate, discount_pct,
	status, subtotal, tax_amount, discount_amount, credit_total,
	total_amount, amount_paid, amount_due, overpaid,
	timesheet_id, sent_at, voided_at, void_reason,
	created_at, updated_at`

// CreateInvoice opens a draft invoice with a generated number.
func (q *queries) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	if inv.Number == "" {
		number, err := q.GenerateInvoiceNumber(ctx)
		if err != nil {
			return nil, err
		}
		inv.Number = number
	}

	query := `
		INSERT INTO invoices (
			number, customer_id, invoice_date, due_date, period_start, period_end,
			payment_terms, tax_rate, discount_pct, timesheet_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'DRAFT', NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := q.db.QueryRow(ctx, query,
		inv.Number,
		inv.CustomerID,
		inv.InvoiceDate,
		inv.DueDate,
		inv.PeriodStart,
		inv.PeriodEnd,
		string(inv.PaymentTerms),
		inv.TaxRate,
		inv.DiscountPct,
		inv.TimesheetID,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inv.Status = StatusDraft
	return inv, nil
}

// GetInvoice retrieves an invoice by ID.
func (q *queries) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT`+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row, id)
}

// GetInvoiceForUpdate locks the invoice row for the duration of the
// enclosing transaction.
func (q *queries) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT`+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row, id)
}

// ListInvoices returns invoices with optional filtering.
func (q *queries) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	query := `SELECT` + invoiceColumns + ` FROM invoices WHERE 1=1`

	args := []any{}
	argNum := 1

	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}
	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if !req.FromDate.IsZero() {
		query += fmt.Sprintf(" AND invoice_date >= $%d", argNum)
		args = append(args, req.FromDate)
		argNum++
	}
	if !req.ToDate.IsZero() {
		query += fmt.Sprintf(" AND invoice_date <= $%d", argNum)
		args = append(args, req.ToDate)
		argNum++
	}

	query += " ORDER BY invoice_date DESC, id DESC"

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

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows, 0)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// SaveTotals persists recalculated monetary fields and the derived status.
func (q *queries) SaveTotals(ctx context.Context, invoiceID int64, t Totals, status Status, overpaid bool) error {
	query := `
		UPDATE invoices SET
			subtotal = $2, tax_amount = $3, discount_amount = $4, credit_total = $5,
			total_amount = $6, amount_paid = $7, amount_due = $8,
			status = $9, overpaid = $10, updated_at = NOW()
		WHERE id = $1`

	tag, err := q.db.Exec(ctx, query, invoiceID,
		t.Subtotal, t.TaxAmount, t.DiscountAmount, t.CreditTotal,
		t.TotalAmount, t.AmountPaid, t.AmountDue,
		string(status), overpaid,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("invoice %d", invoiceID)
	}
	return nil
}

// MarkSent moves a draft invoice to sent.
func (q *queries) MarkSent(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'SENT', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'DRAFT'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Consistencyf("invoice %d changed status during send", id)
	}
	return nil
}

// MarkVoided voids an invoice. The status guard excludes paid invoices.
func (q *queries) MarkVoided(ctx context.Context, id int64, reason string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'VOID', voided_at = NOW(), void_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('PAID', 'VOID')`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Consistencyf("invoice %d changed status during void", id)
	}
	return nil
}

// LinkTimesheet claims a timesheet for an invoice. The IS NULL guard makes
// the one-to-one link atomic: a second generation attempt affects no rows.
func (q *queries) LinkTimesheet(ctx context.Context, timesheetID, invoiceID int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE timesheets
		SET invoice_id = $2, updated_at = NOW()
		WHERE id = $1 AND invoice_id IS NULL`, timesheetID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.InvalidState("timesheet", "billed", "generate invoice")
	}
	return nil
}

// GenerateInvoiceNumber allocates the next sequential invoice number.
func (q *queries) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := q.db.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", seq), nil
}

// --- Line Items ---

const lineColumns = `
	id, invoice_id, description, quantity, unit_price, taxable, amount,
	timesheet_id, time_entry_id, created_at`

// ListLines returns the line items of an invoice.
func (q *queries) ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT`+lineColumns+` FROM invoice_line_items WHERE invoice_id = $1 ORDER BY id`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LineItem
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, rows.Err()
}

// CreateLine inserts a line item with its derived amount.
func (q *queries) CreateLine(ctx context.Context, invoiceID int64, input LineItemInput) (*LineItem, error) {
	query := `
		INSERT INTO invoice_line_items (
			invoice_id, description, quantity, unit_price, taxable, amount,
			timesheet_id, time_entry_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at`

	line := &LineItem{
		InvoiceID:   invoiceID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Taxable:     input.Taxable,
		Amount:      lineAmount(input.Quantity, input.UnitPrice),
		TimesheetID: input.TimesheetID,
		TimeEntryID: input.TimeEntryID,
	}

	err := q.db.QueryRow(ctx, query,
		invoiceID,
		input.Description,
		input.Quantity,
		input.UnitPrice,
		input.Taxable,
		line.Amount,
		input.TimesheetID,
		input.TimeEntryID,
	).Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine rewrites a line item, re-deriving its amount.
func (q *queries) UpdateLine(ctx context.Context, lineID int64, input LineItemInput) (*LineItem, error) {
	query := `
		UPDATE invoice_line_items SET
			description = $2, quantity = $3, unit_price = $4, taxable = $5, amount = $6
		WHERE id = $1
		RETURNING invoice_id, timesheet_id, time_entry_id, created_at`

	line := &LineItem{
		ID:          lineID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Taxable:     input.Taxable,
		Amount:      lineAmount(input.Quantity, input.UnitPrice),
	}

	var timesheetID, timeEntryID pgtype.Int8
	err := q.db.QueryRow(ctx, query,
		lineID,
		input.Description,
		input.Quantity,
		input.UnitPrice,
		input.Taxable,
		line.Amount,
	).Scan(&line.InvoiceID, &timesheetID, &timeEntryID, &line.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("line item %d", lineID)
	}
	if err != nil {
		return nil, err
	}

	if timesheetID.Valid {
		v := timesheetID.Int64
		line.TimesheetID = &v
	}
	if timeEntryID.Valid {
		v := timeEntryID.Int64
		line.TimeEntryID = &v
	}
	return line, nil
}

// DeleteLine removes a line item.
func (q *queries) DeleteLine(ctx context.Context, lineID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM invoice_line_items WHERE id = $1`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("line item %d", lineID)
	}
	return nil
}

// --- Payments ---

// CreatePayment records an immutable payment row.
func (q *queries) CreatePayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	query := `
		INSERT INTO invoice_payments (
			invoice_id, payment_date, amount, method, reference, created_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`

	p := &Payment{
		InvoiceID:   input.InvoiceID,
		PaymentDate: input.PaymentDate,
		Amount:      input.Amount,
		Method:      input.Method,
		Reference:   input.Reference,
	}
	err := q.db.QueryRow(ctx, query,
		input.InvoiceID,
		input.PaymentDate,
		input.Amount,
		input.Method,
		input.Reference,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment retrieves a payment by ID.
func (q *queries) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	err := q.db.QueryRow(ctx, `
		SELECT id, invoice_id, payment_date, amount, method, reference, created_at
		FROM invoice_payments WHERE id = $1`, id,
	).Scan(&p.ID, &p.InvoiceID, &p.PaymentDate, &p.Amount, &p.Method, &p.Reference, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("payment %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments returns the payments against an invoice in order received.
func (q *queries) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, invoice_id, payment_date, amount, method, reference, created_at
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PaymentDate, &p.Amount, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SumPayments totals the cash received against an invoice.
func (q *queries) SumPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1`,
		invoiceID,
	).Scan(&sum)
	return sum, err
}

// --- Credit Memos ---

// CreateCreditMemo inserts a credit memo row.
func (q *queries) CreateCreditMemo(ctx context.Context, invoiceID int64, number string, amount float64, reason string) (*CreditMemo, error) {
	query := `
		INSERT INTO credit_memos (invoice_id, number, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`

	memo := &CreditMemo{
		InvoiceID: invoiceID,
		Number:    number,
		Amount:    amount,
		Reason:    reason,
	}
	err := q.db.QueryRow(ctx, query, invoiceID, number, amount, reason).
		Scan(&memo.ID, &memo.CreatedAt)
	if err != nil {
		return nil, err
	}
	return memo, nil
}

// ListCreditMemos returns the memos issued against an invoice.
func (q *queries) ListCreditMemos(ctx context.Context, invoiceID int64) ([]CreditMemo, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, invoice_id, number, amount, reason, created_at
		FROM credit_memos WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memos []CreditMemo
	for rows.Next() {
		var m CreditMemo
		if err := rows.Scan(&m.ID, &m.InvoiceID, &m.Number, &m.Amount, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

// SumCreditMemos totals the credit issued against an invoice.
func (q *queries) SumCreditMemos(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_memos WHERE invoice_id = $1`,
		invoiceID,
	).Scan(&sum)
	return sum, err
}

// CountCreditMemos counts the memos issued against an invoice, used for
// sequential memo numbering.
func (q *queries) CountCreditMemos(ctx context.Context, invoiceID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_memos WHERE invoice_id = $1`,
		invoiceID,
	).Scan(&count)
	return count, err
}

// --- Scanning ---

func scanInvoice(row pgx.Row, id int64) (*Invoice, error) {
	var inv Invoice
	var terms string
	var timesheetID pgtype.Int8
	var sentAt, voidedAt pgtype.Timestamptz
	var voidReason pgtype.Text

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID,
		&inv.InvoiceDate, &inv.DueDate, &inv.PeriodStart, &inv.PeriodEnd,
		&terms, &inv.TaxRate, &inv.DiscountPct,
		&inv.Status, &inv.Totals.Subtotal, &inv.Totals.TaxAmount,
		&inv.Totals.DiscountAmount, &inv.Totals.CreditTotal,
		&inv.Totals.TotalAmount, &inv.Totals.AmountPaid, &inv.Totals.AmountDue,
		&inv.Overpaid,
		&timesheetID, &sentAt, &voidedAt, &voidReason,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundf("invoice %d", id)
	}
	if err != nil {
		return nil, err
	}

	inv.PaymentTerms = PaymentTerms(terms)
	if timesheetID.Valid {
		v := timesheetID.Int64
		inv.TimesheetID = &v
	}
	if sentAt.Valid {
		inv.SentAt = &sentAt.Time
	}
	if voidedAt.Valid {
		inv.VoidedAt = &voidedAt.Time
	}
	if voidReason.Valid {
		inv.VoidReason = voidReason.String
	}
	return &inv, nil
}

func scanLine(row pgx.Row) (*LineItem, error) {
	var line LineItem
	var timesheetID, timeEntryID pgtype.Int8

	err := row.Scan(
		&line.ID, &line.InvoiceID, &line.Description,
		&line.Quantity, &line.UnitPrice, &line.Taxable, &line.Amount,
		&timesheetID, &timeEntryID, &line.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if timesheetID.Valid {
		v := timesheetID.Int64
		line.TimesheetID = &v
	}
	if timeEntryID.Valid {
		v := timeEntryID.Int64
		line.TimeEntryID = &v
	}
	return &line, nil
}
