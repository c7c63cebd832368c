package invoice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crewledger/crewledger/internal/shared"
	"github.com/crewledger/crewledger/internal/timesheet"
)

func approvedSheet(id, customerID int64) *timesheet.Detail {
	return &timesheet.Detail{
		Timesheet: timesheet.Timesheet{
			ID:          id,
			PlacementID: 1,
			CandidateID: 20,
			CustomerID:  customerID,
			PeriodStart: day("2026-03-02"),
			PeriodEnd:   day("2026-03-08"),
			RegularRate: 50,
			BillRate:    ptr(80),
			Status:      timesheet.StatusApproved,
		},
		Entries: []timesheet.TimeEntry{
			{ID: 1, TimesheetID: id, EntryDate: day("2026-03-02"), HoursRegular: 8, Billable: true, ProjectCode: "ACME"},
			{ID: 2, TimesheetID: id, EntryDate: day("2026-03-03"), HoursRegular: 8, Billable: true},
			{ID: 3, TimesheetID: id, EntryDate: day("2026-03-04"), HoursRegular: 8, HoursOvertime: 2, Billable: true},
			{ID: 4, TimesheetID: id, EntryDate: day("2026-03-05"), PTO: true},
		},
	}
}

func TestGenerateFromTimesheet(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)

	detail, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{TimesheetID: 7})
	require.NoError(t, err)

	inv := detail.Invoice
	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, int64(10), inv.CustomerID)
	require.Equal(t, TermsNet30, inv.PaymentTerms)
	require.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)
	require.NotNil(t, inv.TimesheetID)
	require.Equal(t, int64(7), *inv.TimesheetID)

	// The zero-hour PTO entry produces no line.
	require.Len(t, detail.Lines, 3)
	for _, line := range detail.Lines {
		require.InDelta(t, 80, line.UnitPrice, 1e-9)
	}
	require.InDelta(t, 26*80, inv.Totals.Subtotal, 1e-9)
	require.Contains(t, detail.Lines[0].Description, "2026-03-02")
	require.Contains(t, detail.Lines[0].Description, "ACME")
}

func TestGenerateAppliesDefaultMarkup(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)

	detail, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{
		TimesheetID: 7,
		ApplyMarkup: true,
	})
	require.NoError(t, err)

	for _, line := range detail.Lines {
		require.InDelta(t, 80*1.15, line.UnitPrice, 1e-9)
	}
}

func TestGenerateAppliesExplicitMarkup(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)

	detail, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{
		TimesheetID: 7,
		ApplyMarkup: true,
		MarkupPct:   ptr(20),
	})
	require.NoError(t, err)
	require.InDelta(t, 96, detail.Lines[0].UnitPrice, 1e-9)
}

func TestGenerateFallsBackToRegularRate(t *testing.T) {
	env := newTestEnv()
	sheet := approvedSheet(7, 10)
	sheet.Timesheet.BillRate = nil
	env.sheets.details[7] = sheet

	detail, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{TimesheetID: 7})
	require.NoError(t, err)
	require.InDelta(t, 50, detail.Lines[0].UnitPrice, 1e-9)
}

func TestGenerateRequiresApprovedTimesheet(t *testing.T) {
	env := newTestEnv()
	sheet := approvedSheet(7, 10)
	sheet.Timesheet.Status = timesheet.StatusSubmitted
	env.sheets.details[7] = sheet

	_, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{TimesheetID: 7})
	require.True(t, shared.IsInvalidState(err))
}

func TestGenerateTwiceFails(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)

	_, err := env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{TimesheetID: 7})
	require.NoError(t, err)

	_, err = env.svc.GenerateFromTimesheet(context.Background(), GenerateInput{TimesheetID: 7})
	require.True(t, shared.IsInvalidState(err))
}

func TestBulkGeneratePartialFailure(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)
	env.sheets.details[8] = approvedSheet(8, 11)

	// Pre-claim sheet 8 so its generation fails mid-batch.
	require.NoError(t, env.repo.LinkTimesheet(context.Background(), 8, 99))

	summary, err := env.svc.BulkGenerate(context.Background(), BulkGenerateInput{})
	require.NoError(t, err)

	require.Equal(t, 2, summary.Summary.Total)
	require.Equal(t, 1, summary.Summary.Succeeded)
	require.Equal(t, 1, summary.Summary.Failed)
	require.Len(t, summary.Summary.Errors, 1)
	require.Equal(t, int64(8), summary.Summary.Errors[0].ID)
	require.Len(t, summary.Invoices, 1)
}

func TestBulkGenerateFiltersByCustomerAndWindow(t *testing.T) {
	env := newTestEnv()
	env.sheets.details[7] = approvedSheet(7, 10)
	env.sheets.details[8] = approvedSheet(8, 11)

	summary, err := env.svc.BulkGenerate(context.Background(), BulkGenerateInput{CustomerID: 10})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Summary.Total)
	require.Equal(t, int64(10), summary.Invoices[0].CustomerID)

	// A window that excludes the period yields an empty batch.
	env2 := newTestEnv()
	env2.sheets.details[7] = approvedSheet(7, 10)
	summary, err = env2.svc.BulkGenerate(context.Background(), BulkGenerateInput{
		PeriodStart: day("2026-04-01"),
		PeriodEnd:   day("2026-04-30"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, summary.Summary.Total)
	require.Empty(t, summary.Invoices)
}
