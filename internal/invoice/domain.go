package invoice

import (
	"time"
)

// Status enumerates invoice lifecycle states.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSent          Status = "SENT"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusVoid          Status = "VOID"
)

// AcceptsLineEdits reports whether line items may still be mutated. Once
// money has moved the line set is frozen.
func (s Status) AcceptsLineEdits() bool {
	return s == StatusDraft || s == StatusSent
}

// AcceptsPayments reports whether payments may be recorded.
func (s Status) AcceptsPayments() bool {
	return s == StatusDraft || s == StatusSent || s == StatusPartiallyPaid
}

// Terminal reports whether the status accepts no further changes of any
// kind. Paid invoices still accept credit memos.
func (s Status) Terminal() bool {
	return s == StatusVoid
}

// PaymentTerms maps agreed terms to a due-date offset.
type PaymentTerms string

const (
	TermsDueOnReceipt PaymentTerms = "due_on_receipt"
	TermsNet15        PaymentTerms = "net_15"
	TermsNet30        PaymentTerms = "net_30"
	TermsNet45        PaymentTerms = "net_45"
	TermsNet60        PaymentTerms = "net_60"
)

// Days returns the number of days after the invoice date the invoice
// falls due. Unknown terms default to net 30.
func (t PaymentTerms) Days() int {
	switch t {
	case TermsDueOnReceipt:
		return 0
	case TermsNet15:
		return 15
	case TermsNet45:
		return 45
	case TermsNet60:
		return 60
	default:
		return 30
	}
}

// Totals are the derived monetary fields of an invoice. They are always
// recomputed from line items, payments and credit memos; the only inputs
// that are not derived are the tax and discount rates.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	TaxAmount      float64 `json:"tax_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	CreditTotal    float64 `json:"credit_total"`
	TotalAmount    float64 `json:"total_amount"`
	AmountPaid     float64 `json:"amount_paid"`
	AmountDue      float64 `json:"amount_due"`
}

// Invoice bills a customer for one timesheet period.
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64

	InvoiceDate time.Time
	DueDate     time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time

	PaymentTerms PaymentTerms

	// TaxRate and DiscountPct are externally supplied percentages.
	// Zero means unset.
	TaxRate     float64
	DiscountPct float64

	Status Status
	Totals Totals

	// Overpaid marks an invoice whose payments exceed its total. The
	// ledger accepts the payment and expects a credit memo to follow.
	Overpaid bool

	TimesheetID *int64

	SentAt     *time.Time
	VoidedAt   *time.Time
	VoidReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is one billable unit on an invoice, optionally traceable to a
// time entry.
type LineItem struct {
	ID        int64
	InvoiceID int64

	Description string
	Quantity    float64
	UnitPrice   float64
	Taxable     bool

	// Amount is always quantity times unit price.
	Amount float64

	TimesheetID *int64
	TimeEntryID *int64

	CreatedAt time.Time
}

// Payment records money received against an invoice. Payments are
// immutable; corrections are new payments or credit memos.
type Payment struct {
	ID        int64
	InvoiceID int64

	PaymentDate time.Time
	Amount      float64
	Method      string
	Reference   string

	CreatedAt time.Time
}

// CreditMemo offsets revenue recognized on an invoice without touching
// cash received. Issuing one raises total_amount and amount_due.
type CreditMemo struct {
	ID        int64
	InvoiceID int64

	Number string
	Amount float64
	Reason string

	CreatedAt time.Time
}

// --- Input DTOs ---

// CreateInvoiceInput opens a draft invoice.
type CreateInvoiceInput struct {
	CustomerID   int64
	InvoiceDate  time.Time
	PeriodStart  time.Time
	PeriodEnd    time.Time
	PaymentTerms PaymentTerms
	TaxRate      float64
	DiscountPct  float64
}

// LineItemInput carries the mutable fields of a line item.
type LineItemInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
	Taxable     bool
	TimesheetID *int64
	TimeEntryID *int64
}

// RecordPaymentInput applies money against an invoice.
type RecordPaymentInput struct {
	InvoiceID   int64
	PaymentDate time.Time
	Amount      float64
	Method      string
	Reference   string
}

// CreditMemoInput issues a credit memo.
type CreditMemoInput struct {
	InvoiceID int64
	Amount    float64
	Reason    string
}

// GenerateInput drives invoice generation from an approved timesheet.
type GenerateInput struct {
	TimesheetID int64
	ApplyMarkup bool
	// MarkupPct overrides the default markup when ApplyMarkup is set.
	// Nil means use the default.
	MarkupPct *float64
	TaxRate   float64
}

// BulkGenerateInput generates invoices for every approved, unbilled
// timesheet in the window.
type BulkGenerateInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	CustomerID  int64
	ApplyMarkup bool
	MarkupPct   *float64
	TaxRate     float64
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	Status     Status
	CustomerID int64
	FromDate   time.Time
	ToDate     time.Time
	Limit      int
	Offset     int
}

// Detail bundles an invoice with its lines, payments and credit memos.
type Detail struct {
	Invoice     Invoice      `json:"invoice"`
	Lines       []LineItem   `json:"lines"`
	Payments    []Payment    `json:"payments"`
	CreditMemos []CreditMemo `json:"credit_memos"`
}
