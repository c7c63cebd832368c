// Package aging classifies open invoices into days-overdue buckets for
// collections reporting.
package aging

import (
	"time"

	"github.com/crewledger/crewledger/internal/shared"
)

// OpenInvoice is the per-invoice snapshot the engine folds over.
type OpenInvoice struct {
	InvoiceID  int64     `json:"invoice_id"`
	Number     string    `json:"number"`
	CustomerID int64     `json:"customer_id"`
	DueDate    time.Time `json:"due_date"`
	AmountDue  float64   `json:"amount_due"`
	Status     string    `json:"status"`
}

// Bucket aggregates the invoices in one days-overdue range.
type Bucket struct {
	InvoiceCount  int           `json:"invoice_count"`
	TotalAmount   float64       `json:"total_amount"`
	CustomerCount int           `json:"customer_count"`
	Invoices      []OpenInvoice `json:"invoices"`

	customers map[int64]struct{}
}

func (b *Bucket) add(inv OpenInvoice) {
	if b.customers == nil {
		b.customers = make(map[int64]struct{})
	}
	b.InvoiceCount++
	b.TotalAmount += inv.AmountDue
	b.Invoices = append(b.Invoices, inv)
	if _, seen := b.customers[inv.CustomerID]; !seen {
		b.customers[inv.CustomerID] = struct{}{}
		b.CustomerCount++
	}
}

// Report is the full aging snapshot as of one explicit date.
type Report struct {
	AsOf             time.Time `json:"as_of"`
	Current          Bucket    `json:"current"`
	Days30           Bucket    `json:"days_30"`
	Days60           Bucket    `json:"days_60"`
	Days90           Bucket    `json:"days_90"`
	Days120Plus      Bucket    `json:"days_120_plus"`
	TotalOutstanding float64   `json:"total_outstanding"`
}

// Build folds open invoices into the aging report. The as-of date is an
// explicit parameter, never ambient clock time, so reports stay
// deterministic and testable. Pure: no mutation, safe to run concurrently
// with ledger writes.
func Build(asOf time.Time, invoices []OpenInvoice) (*Report, error) {
	if asOf.IsZero() {
		return nil, shared.Validationf("as-of date is required")
	}

	report := &Report{AsOf: shared.TruncateDay(asOf)}
	for _, inv := range invoices {
		report.TotalOutstanding += inv.AmountDue
		report.bucketFor(inv.DueDate).add(inv)
	}
	return report, nil
}

func (r *Report) bucketFor(dueDate time.Time) *Bucket {
	days := int(r.AsOf.Sub(shared.TruncateDay(dueDate)).Hours() / 24)
	switch {
	case days <= 0:
		return &r.Current
	case days <= 30:
		return &r.Days30
	case days <= 60:
		return &r.Days60
	case days <= 90:
		return &r.Days90
	default:
		return &r.Days120Plus
	}
}
