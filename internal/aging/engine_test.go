package aging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBuildRequiresAsOf(t *testing.T) {
	_, err := Build(time.Time{}, nil)
	require.Error(t, err)
}

func TestBuildBucketBoundaries(t *testing.T) {
	asOf := day("2024-03-01")
	cases := []struct {
		name    string
		dueDate string
		bucket  func(r *Report) *Bucket
	}{
		{"due today is current", "2024-03-01", func(r *Report) *Bucket { return &r.Current }},
		{"due tomorrow is current", "2024-03-02", func(r *Report) *Bucket { return &r.Current }},
		{"one day overdue", "2024-02-29", func(r *Report) *Bucket { return &r.Days30 }},
		{"thirty days overdue", "2024-01-31", func(r *Report) *Bucket { return &r.Days30 }},
		{"forty five days overdue", "2024-01-15", func(r *Report) *Bucket { return &r.Days60 }},
		{"ninety days overdue", "2023-12-02", func(r *Report) *Bucket { return &r.Days90 }},
		{"ancient invoice", "2023-10-01", func(r *Report) *Bucket { return &r.Days120Plus }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := Build(asOf, []OpenInvoice{
				{InvoiceID: 1, CustomerID: 10, DueDate: day(tc.dueDate), AmountDue: 500},
			})
			require.NoError(t, err)
			bucket := tc.bucket(report)
			require.Equal(t, 1, bucket.InvoiceCount)
			require.InDelta(t, 500, bucket.TotalAmount, 1e-9)
		})
	}
}

func TestBuildAggregates(t *testing.T) {
	asOf := day("2024-03-01")
	invoices := []OpenInvoice{
		{InvoiceID: 1, CustomerID: 10, DueDate: day("2024-02-15"), AmountDue: 1000},
		{InvoiceID: 2, CustomerID: 10, DueDate: day("2024-02-20"), AmountDue: 250},
		{InvoiceID: 3, CustomerID: 11, DueDate: day("2024-02-25"), AmountDue: 500},
		{InvoiceID: 4, CustomerID: 12, DueDate: day("2024-03-10"), AmountDue: 2000},
	}

	report, err := Build(asOf, invoices)
	require.NoError(t, err)

	require.Equal(t, 3, report.Days30.InvoiceCount)
	require.InDelta(t, 1750, report.Days30.TotalAmount, 1e-9)
	// Two invoices share a customer.
	require.Equal(t, 2, report.Days30.CustomerCount)
	require.Len(t, report.Days30.Invoices, 3)

	require.Equal(t, 1, report.Current.InvoiceCount)
	require.InDelta(t, 3750, report.TotalOutstanding, 1e-9)
}

func TestBuildEmptyLedger(t *testing.T) {
	report, err := Build(day("2024-03-01"), nil)
	require.NoError(t, err)
	require.Zero(t, report.TotalOutstanding)
	require.Zero(t, report.Current.InvoiceCount)
}
