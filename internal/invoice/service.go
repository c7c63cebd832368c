package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crewledger/crewledger/internal/mirror"
	"github.com/crewledger/crewledger/internal/notify"
	"github.com/crewledger/crewledger/internal/shared"
)

// RepositoryPort defines data access methods used by the service.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListCreditMemos(ctx context.Context, invoiceID int64) ([]CreditMemo, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// CacheBumper invalidates derived read models (the aging report cache)
// after ledger writes. Failures are logged, never propagated.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service implements the invoice ledger.
type Service struct {
	repo       RepositoryPort
	timesheets TimesheetPort
	notifier   notify.Notifier
	mirror     mirror.Pusher
	cache      CacheBumper
	logger     *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, timesheets TimesheetPort, notifier notify.Notifier, pusher mirror.Pusher, cache CacheBumper, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		timesheets: timesheets,
		notifier:   notifier,
		mirror:     pusher,
		cache:      cache,
		logger:     logger,
	}
}

// CreateInvoice opens a manual draft invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*Invoice, error) {
	if input.CustomerID <= 0 {
		return nil, shared.Validationf("customer id is required")
	}
	if input.TaxRate < 0 || input.DiscountPct < 0 {
		return nil, shared.Validationf("tax rate and discount cannot be negative")
	}

	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = shared.TruncateDay(time.Now())
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = TermsNet30
	}

	inv := &Invoice{
		CustomerID:   input.CustomerID,
		InvoiceDate:  invoiceDate,
		DueDate:      invoiceDate.AddDate(0, 0, terms.Days()),
		PeriodStart:  input.PeriodStart,
		PeriodEnd:    input.PeriodEnd,
		PaymentTerms: terms,
		TaxRate:      input.TaxRate,
		DiscountPct:  input.DiscountPct,
	}
	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return created, nil
}

// GetInvoice returns an invoice with lines, payments and credit memos.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Detail, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	memos, err := s.repo.ListCreditMemos(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Invoice: *inv, Lines: lines, Payments: payments, CreditMemos: memos}, nil
}

// GetPayment returns a single payment, used by the mirror push worker.
func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListInvoices returns invoices matching the filter.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	return s.repo.ListInvoices(ctx, req)
}

// --- Line Items ---

// AddLine appends a line item and recalculates totals in the same
// transaction.
func (s *Service) AddLine(ctx context.Context, invoiceID int64, input LineItemInput) (*LineItem, error) {
	if err := validateLineInput(input); err != nil {
		return nil, err
	}

	var created *LineItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.AcceptsLineEdits() {
			return shared.InvalidState("invoice", string(inv.Status), "edit line items")
		}
		created, err = tx.CreateLine(ctx, invoiceID, input)
		if err != nil {
			return err
		}
		return s.recalc(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return created, nil
}

// UpdateLine rewrites a line item and recalculates totals.
func (s *Service) UpdateLine(ctx context.Context, invoiceID, lineID int64, input LineItemInput) (*LineItem, error) {
	if err := validateLineInput(input); err != nil {
		return nil, err
	}

	var updated *LineItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.AcceptsLineEdits() {
			return shared.InvalidState("invoice", string(inv.Status), "edit line items")
		}
		updated, err = tx.UpdateLine(ctx, lineID, input)
		if err != nil {
			return err
		}
		if updated.InvoiceID != invoiceID {
			return shared.NotFoundf("line item %d", lineID)
		}
		return s.recalc(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return updated, nil
}

// DeleteLine removes a line item and recalculates totals.
func (s *Service) DeleteLine(ctx context.Context, invoiceID, lineID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.AcceptsLineEdits() {
			return shared.InvalidState("invoice", string(inv.Status), "edit line items")
		}
		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return err
		}
		return s.recalc(ctx, tx, inv)
	})
	if err != nil {
		return err
	}
	s.bumpCache(ctx)
	return nil
}

// --- Lifecycle ---

// SendInvoice moves a draft invoice to sent, notifies, and schedules a
// mirror push.
func (s *Service) SendInvoice(ctx context.Context, id int64) (*Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.InvalidState("invoice", string(inv.Status), "send")
		}
		return tx.MarkSent(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventInvoiceSent, id, nil))
	s.mirror.PushInvoice(ctx, id)
	s.bumpCache(ctx)
	return s.repo.GetInvoice(ctx, id)
}

// RecordPayment applies money against an invoice. Payments are additive;
// overpayment is accepted, flagged, and expected to be settled with a
// credit memo.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	if input.Amount <= 0 {
		return nil, shared.Validationf("payment amount must be positive")
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = shared.TruncateDay(time.Now())
	}

	var payment *Payment
	var overpaid bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.AcceptsPayments() {
			return shared.InvalidState("invoice", string(inv.Status), "record payment")
		}
		payment, err = tx.CreatePayment(ctx, input)
		if err != nil {
			return err
		}
		totals, err := s.recalcFromSources(ctx, tx, inv)
		if err != nil {
			return err
		}
		overpaid = totals.AmountDue < -totalsEpsilon
		return tx.SaveTotals(ctx, inv.ID, totals, statusForPayments(inv.Status, totals), overpaid)
	})
	if err != nil {
		return nil, err
	}

	if overpaid && s.logger != nil {
		s.logger.Warn("invoice overpaid",
			slog.Int64("invoice_id", input.InvoiceID),
			slog.Float64("amount", input.Amount),
		)
	}
	s.notifier.Notify(ctx, notify.NewEvent(notify.EventPaymentRecorded, payment.ID, map[string]any{
		"invoice_id": input.InvoiceID,
		"amount":     input.Amount,
	}))
	s.mirror.PushPayment(ctx, payment.ID)
	s.bumpCache(ctx)
	return payment, nil
}

// VoidInvoice retires an invoice. Paid invoices cannot be voided; void is
// terminal.
func (s *Service) VoidInvoice(ctx context.Context, id int64, reason string) (*Invoice, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, shared.Validationf("void reason is required")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusPaid || inv.Status == StatusVoid {
			return shared.InvalidState("invoice", string(inv.Status), "void")
		}
		return tx.MarkVoided(ctx, id, reason)
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return s.repo.GetInvoice(ctx, id)
}

// CreateCreditMemo issues a sequentially numbered credit memo. The memo
// raises total_amount and amount_due without touching cash received, so a
// fully paid invoice reopens for collection.
func (s *Service) CreateCreditMemo(ctx context.Context, input CreditMemoInput) (*CreditMemo, error) {
	if input.Amount <= 0 {
		return nil, shared.Validationf("credit memo amount must be positive")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, shared.Validationf("credit memo reason is required")
	}

	var memo *CreditMemo
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return shared.InvalidState("invoice", string(inv.Status), "issue credit memo")
		}
		count, err := tx.CountCreditMemos(ctx, inv.ID)
		if err != nil {
			return err
		}
		number := creditMemoNumber(inv.Number, count+1)
		memo, err = tx.CreateCreditMemo(ctx, inv.ID, number, input.Amount, input.Reason)
		if err != nil {
			return err
		}
		return s.recalc(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.NewEvent(notify.EventCreditMemoIssued, memo.ID, map[string]any{
		"invoice_id": input.InvoiceID,
		"amount":     input.Amount,
	}))
	s.bumpCache(ctx)
	return memo, nil
}

// --- Internal ---

func creditMemoNumber(invoiceNumber string, seq int) string {
	return fmt.Sprintf("CM-%s-%d", invoiceNumber, seq)
}

// recalc re-derives and persists totals from source rows inside tx.
func (s *Service) recalc(ctx context.Context, tx TxRepository, inv *Invoice) error {
	totals, err := s.recalcFromSources(ctx, tx, inv)
	if err != nil {
		return err
	}
	overpaid := totals.AmountDue < -totalsEpsilon
	return tx.SaveTotals(ctx, inv.ID, totals, statusForPayments(inv.Status, totals), overpaid)
}

func (s *Service) recalcFromSources(ctx context.Context, tx TxRepository, inv *Invoice) (Totals, error) {
	lines, err := tx.ListLines(ctx, inv.ID)
	if err != nil {
		return Totals{}, err
	}
	paid, err := tx.SumPayments(ctx, inv.ID)
	if err != nil {
		return Totals{}, err
	}
	credit, err := tx.SumCreditMemos(ctx, inv.ID)
	if err != nil {
		return Totals{}, err
	}
	totals := recalcTotals(lines, inv.TaxRate, inv.DiscountPct, paid, credit)
	if err := verifyTotals(totals); err != nil {
		return Totals{}, err
	}
	return totals, nil
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump aging cache", slog.Any("error", err))
	}
}
