package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crewledger/crewledger/internal/shared"
	"github.com/crewledger/crewledger/internal/timesheet"
)

// defaultMarkupPct applies when markup is requested without an explicit
// percentage.
const defaultMarkupPct = 15.0

// TimesheetPort is the slice of the timesheet module the generator needs.
type TimesheetPort interface {
	GetTimesheet(ctx context.Context, id int64) (*timesheet.Detail, error)
	ApprovedUnbilled(ctx context.Context, customerID int64) ([]timesheet.Timesheet, error)
}

// GenerationSummary reports the outcome of a bulk generation run.
type GenerationSummary struct {
	Invoices []Invoice           `json:"invoices"`
	Summary  shared.BatchSummary `json:"summary"`
}

// GenerateFromTimesheet builds an invoice from one approved timesheet.
// The timesheet link is claimed inside the same transaction as invoice
// creation, so a second generation attempt fails instead of double
// billing.
func (s *Service) GenerateFromTimesheet(ctx context.Context, input GenerateInput) (*Detail, error) {
	detail, err := s.timesheets.GetTimesheet(ctx, input.TimesheetID)
	if err != nil {
		return nil, err
	}
	ts := detail.Timesheet

	if ts.Status != timesheet.StatusApproved {
		return nil, shared.InvalidState("timesheet", string(ts.Status), "generate invoice")
	}
	if ts.InvoiceID != nil {
		return nil, shared.InvalidState("timesheet", "billed", "generate invoice")
	}
	if input.MarkupPct != nil && *input.MarkupPct < 0 {
		return nil, shared.Validationf("markup percentage cannot be negative")
	}

	unitPrice := ts.RegularRate
	if ts.BillRate != nil {
		unitPrice = *ts.BillRate
	}
	if input.ApplyMarkup {
		markup := defaultMarkupPct
		if input.MarkupPct != nil {
			markup = *input.MarkupPct
		}
		unitPrice *= 1 + markup/100
	}

	invoiceDate := shared.TruncateDay(time.Now())
	tsID := ts.ID

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv := &Invoice{
			CustomerID:   ts.CustomerID,
			InvoiceDate:  invoiceDate,
			DueDate:      invoiceDate.AddDate(0, 0, TermsNet30.Days()),
			PeriodStart:  ts.PeriodStart,
			PeriodEnd:    ts.PeriodEnd,
			PaymentTerms: TermsNet30,
			TaxRate:      input.TaxRate,
			TimesheetID:  &tsID,
		}
		if _, err := tx.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.LinkTimesheet(ctx, ts.ID, inv.ID); err != nil {
			return err
		}

		for _, entry := range detail.Entries {
			if entry.TotalHours() <= 0 {
				continue
			}
			entryID := entry.ID
			if _, err := tx.CreateLine(ctx, inv.ID, LineItemInput{
				Description: lineDescription(entry),
				Quantity:    entry.TotalHours(),
				UnitPrice:   unitPrice,
				Taxable:     entry.Billable,
				TimesheetID: &tsID,
				TimeEntryID: &entryID,
			}); err != nil {
				return err
			}
		}

		invoiceID = inv.ID
		return s.recalc(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.bumpCache(ctx)
	return s.GetInvoice(ctx, invoiceID)
}

// BulkGenerate invoices every approved, unbilled timesheet in the window.
// Per-sheet failures are collected; one bad sheet never aborts the batch.
func (s *Service) BulkGenerate(ctx context.Context, input BulkGenerateInput) (*GenerationSummary, error) {
	sheets, err := s.timesheets.ApprovedUnbilled(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}

	result := &GenerationSummary{}
	for _, ts := range sheets {
		if !input.PeriodStart.IsZero() && ts.PeriodStart.Before(input.PeriodStart) {
			continue
		}
		if !input.PeriodEnd.IsZero() && ts.PeriodEnd.After(input.PeriodEnd) {
			continue
		}
		detail, err := s.GenerateFromTimesheet(ctx, GenerateInput{
			TimesheetID: ts.ID,
			ApplyMarkup: input.ApplyMarkup,
			MarkupPct:   input.MarkupPct,
			TaxRate:     input.TaxRate,
		})
		if err != nil {
			result.Summary.Failure(ts.ID, err)
			continue
		}
		result.Summary.Success()
		result.Invoices = append(result.Invoices, detail.Invoice)
	}
	return result, nil
}

func lineDescription(entry timesheet.TimeEntry) string {
	parts := []string{entry.EntryDate.Format("2006-01-02")}
	if entry.ProjectCode != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.ProjectCode))
	}
	if entry.TaskDescription != "" {
		parts = append(parts, entry.TaskDescription)
	} else {
		parts = append(parts, "contract hours")
	}
	return strings.Join(parts, " ")
}
