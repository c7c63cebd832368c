package invoice

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecalcTotalsWithTax(t *testing.T) {
	lines := []LineItem{
		{Description: "contract hours", Quantity: 26, UnitPrice: 80, Amount: 2080, Taxable: true},
	}

	totals := recalcTotals(lines, 8, 0, 0, 0)

	require.InDelta(t, 2080, totals.Subtotal, 1e-9)
	require.InDelta(t, 166.4, totals.TaxAmount, 1e-9)
	require.Zero(t, totals.DiscountAmount)
	require.InDelta(t, 2246.4, totals.TotalAmount, 1e-9)
	require.InDelta(t, 2246.4, totals.AmountDue, 1e-9)
}

func TestRecalcTotalsAfterPartialPayment(t *testing.T) {
	lines := []LineItem{
		{Quantity: 26, UnitPrice: 80, Amount: 2080, Taxable: true},
	}

	totals := recalcTotals(lines, 8, 0, 1000, 0)

	require.InDelta(t, 1000, totals.AmountPaid, 1e-9)
	require.InDelta(t, 1246.4, totals.AmountDue, 1e-9)
}

func TestRecalcTotalsTaxOnlyOnTaxableLines(t *testing.T) {
	lines := []LineItem{
		{Quantity: 10, UnitPrice: 100, Amount: 1000, Taxable: true},
		{Quantity: 1, UnitPrice: 500, Amount: 500, Taxable: false},
	}

	totals := recalcTotals(lines, 10, 0, 0, 0)

	require.InDelta(t, 1500, totals.Subtotal, 1e-9)
	require.InDelta(t, 100, totals.TaxAmount, 1e-9)
	require.InDelta(t, 1600, totals.TotalAmount, 1e-9)
}

func TestRecalcTotalsDiscount(t *testing.T) {
	lines := []LineItem{
		{Quantity: 10, UnitPrice: 100, Amount: 1000, Taxable: true},
	}

	totals := recalcTotals(lines, 0, 10, 0, 0)

	require.InDelta(t, 100, totals.DiscountAmount, 1e-9)
	require.InDelta(t, 900, totals.TotalAmount, 1e-9)
}

func TestRecalcTotalsCreditRaisesTotalAndDue(t *testing.T) {
	lines := []LineItem{
		{Quantity: 10, UnitPrice: 100, Amount: 1000, Taxable: false},
	}

	before := recalcTotals(lines, 0, 0, 1000, 0)
	require.InDelta(t, 0, before.AmountDue, 1e-9)

	after := recalcTotals(lines, 0, 0, 1000, 250)
	require.InDelta(t, 1250, after.TotalAmount, 1e-9)
	require.InDelta(t, 250, after.AmountDue, 1e-9)
	// Cash received is untouched.
	require.InDelta(t, 1000, after.AmountPaid, 1e-9)
}

func TestVerifyTotalsCatchesDrift(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		totals := recalcTotals([]LineItem{{Amount: 100, Taxable: true}}, 5, 0, 20, 0)
		require.NoError(t, verifyTotals(totals))
	})
	t.Run("broken total", func(t *testing.T) {
		totals := Totals{Subtotal: 100, TotalAmount: 90, AmountDue: 90}
		require.Error(t, verifyTotals(totals))
	})
	t.Run("broken due", func(t *testing.T) {
		totals := Totals{Subtotal: 100, TotalAmount: 100, AmountPaid: 40, AmountDue: 100}
		require.Error(t, verifyTotals(totals))
	})
}

func TestStatusForPayments(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		totals  Totals
		want    Status
	}{
		{"draft stays without payments", StatusDraft, Totals{TotalAmount: 100}, StatusDraft},
		{"sent stays without payments", StatusSent, Totals{TotalAmount: 100}, StatusSent},
		{"partial payment", StatusSent, Totals{TotalAmount: 100, AmountPaid: 40}, StatusPartiallyPaid},
		{"full payment", StatusSent, Totals{TotalAmount: 100, AmountPaid: 100}, StatusPaid},
		{"overpayment", StatusPartiallyPaid, Totals{TotalAmount: 100, AmountPaid: 120}, StatusPaid},
		{"void is sticky", StatusVoid, Totals{TotalAmount: 100, AmountPaid: 100}, StatusVoid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, statusForPayments(tc.current, tc.totals))
		})
	}
}
