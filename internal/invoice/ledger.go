package invoice

import (
	"math"

	"github.com/crewledger/crewledger/internal/shared"
)

const totalsEpsilon = 1e-6

// recalcTotals derives every monetary field of an invoice from its line
// items, recorded payments and issued credit memos. Credit memos raise
// the total owed; they never touch the cash already received.
func recalcTotals(lines []LineItem, taxRate, discountPct, amountPaid, creditTotal float64) Totals {
	var t Totals
	var taxableSubtotal float64

	for _, line := range lines {
		t.Subtotal += line.Amount
		if line.Taxable {
			taxableSubtotal += line.Amount
		}
	}

	if taxRate > 0 {
		t.TaxAmount = taxableSubtotal * taxRate / 100
	}
	if discountPct > 0 {
		t.DiscountAmount = t.Subtotal * discountPct / 100
	}

	t.CreditTotal = creditTotal
	t.TotalAmount = t.Subtotal + t.TaxAmount - t.DiscountAmount + creditTotal
	t.AmountPaid = amountPaid
	t.AmountDue = t.TotalAmount - amountPaid

	return t
}

// lineAmount derives a line's amount from its sources.
func lineAmount(quantity, unitPrice float64) float64 {
	return quantity * unitPrice
}

// validateLineInput enforces the structural rules for a line item.
func validateLineInput(input LineItemInput) error {
	if input.Quantity <= 0 {
		return shared.Validationf("quantity must be positive")
	}
	if input.UnitPrice <= 0 {
		return shared.Validationf("unit price must be positive")
	}
	if input.Description == "" {
		return shared.Validationf("description is required")
	}
	return nil
}

// verifyTotals re-checks the ledger identities after a recalc. A failure
// here is a bug in the ledger itself and must abort the transaction.
func verifyTotals(t Totals) error {
	expectedTotal := t.Subtotal + t.TaxAmount - t.DiscountAmount + t.CreditTotal
	if math.Abs(t.TotalAmount-expectedTotal) > totalsEpsilon {
		return shared.Consistencyf("invoice total %.4f does not match its components %.4f", t.TotalAmount, expectedTotal)
	}
	if math.Abs(t.AmountDue-(t.TotalAmount-t.AmountPaid)) > totalsEpsilon {
		return shared.Consistencyf("amount due %.4f does not match total minus paid", t.AmountDue)
	}
	return nil
}

// statusForPayments derives the payment-driven status after a recalc.
// Draft and sent stay as they are until money arrives.
func statusForPayments(current Status, t Totals) Status {
	if current == StatusVoid {
		return current
	}
	switch {
	case t.AmountPaid >= t.TotalAmount && t.AmountPaid > 0:
		return StatusPaid
	case t.AmountPaid > 0:
		return StatusPartiallyPaid
	default:
		return current
	}
}
