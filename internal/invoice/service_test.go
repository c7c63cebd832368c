package invoice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crewledger/crewledger/internal/mirror"
	"github.com/crewledger/crewledger/internal/notify"
	"github.com/crewledger/crewledger/internal/shared"
	"github.com/crewledger/crewledger/internal/timesheet"
)

type memoryRepo struct {
	invoices   map[int64]*Invoice
	lines      map[int64]*LineItem
	payments   map[int64]*Payment
	memos      map[int64]*CreditMemo
	linked     map[int64]int64
	nextID     int64
	nextLineID int64
	nextPayID  int64
	nextMemoID int64
	numberSeq  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[int64]*Invoice),
		lines:    make(map[int64]*LineItem),
		payments: make(map[int64]*Payment),
		memos:    make(map[int64]*CreditMemo),
		linked:   make(map[int64]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	r.nextID++
	r.numberSeq++
	inv.ID = r.nextID
	if inv.Number == "" {
		inv.Number = fmt.Sprintf("INV-%06d", r.numberSeq)
	}
	inv.Status = StatusDraft
	copied := *inv
	r.invoices[inv.ID] = &copied
	return inv, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.NotFoundf("invoice %d", id)
	}
	copied := *inv
	return &copied, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		if req.CustomerID > 0 && inv.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memoryRepo) ListLines(ctx context.Context, invoiceID int64) ([]LineItem, error) {
	var out []LineItem
	for _, line := range r.lines {
		if line.InvoiceID == invoiceID {
			out = append(out, *line)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateLine(ctx context.Context, invoiceID int64, input LineItemInput) (*LineItem, error) {
	r.nextLineID++
	line := &LineItem{
		ID:          r.nextLineID,
		InvoiceID:   invoiceID,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		Taxable:     input.Taxable,
		Amount:      lineAmount(input.Quantity, input.UnitPrice),
		TimesheetID: input.TimesheetID,
		TimeEntryID: input.TimeEntryID,
	}
	r.lines[line.ID] = line
	copied := *line
	return &copied, nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, lineID int64, input LineItemInput) (*LineItem, error) {
	line, ok := r.lines[lineID]
	if !ok {
		return nil, shared.NotFoundf("line item %d", lineID)
	}
	line.Description = input.Description
	line.Quantity = input.Quantity
	line.UnitPrice = input.UnitPrice
	line.Taxable = input.Taxable
	line.Amount = lineAmount(input.Quantity, input.UnitPrice)
	copied := *line
	return &copied, nil
}

func (r *memoryRepo) DeleteLine(ctx context.Context, lineID int64) error {
	if _, ok := r.lines[lineID]; !ok {
		return shared.NotFoundf("line item %d", lineID)
	}
	delete(r.lines, lineID)
	return nil
}

func (r *memoryRepo) CreatePayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	r.nextPayID++
	p := &Payment{
		ID:          r.nextPayID,
		InvoiceID:   input.InvoiceID,
		PaymentDate: input.PaymentDate,
		Amount:      input.Amount,
		Method:      input.Method,
		Reference:   input.Reference,
	}
	r.payments[p.ID] = p
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, shared.NotFoundf("payment %d", id)
	}
	copied := *p
	return &copied, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) SumPayments(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (r *memoryRepo) CreateCreditMemo(ctx context.Context, invoiceID int64, number string, amount float64, reason string) (*CreditMemo, error) {
	r.nextMemoID++
	m := &CreditMemo{
		ID:        r.nextMemoID,
		InvoiceID: invoiceID,
		Number:    number,
		Amount:    amount,
		Reason:    reason,
	}
	r.memos[m.ID] = m
	copied := *m
	return &copied, nil
}

func (r *memoryRepo) ListCreditMemos(ctx context.Context, invoiceID int64) ([]CreditMemo, error) {
	var out []CreditMemo
	for _, m := range r.memos {
		if m.InvoiceID == invoiceID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memoryRepo) SumCreditMemos(ctx context.Context, invoiceID int64) (float64, error) {
	var sum float64
	for _, m := range r.memos {
		if m.InvoiceID == invoiceID {
			sum += m.Amount
		}
	}
	return sum, nil
}

func (r *memoryRepo) CountCreditMemos(ctx context.Context, invoiceID int64) (int, error) {
	count := 0
	for _, m := range r.memos {
		if m.InvoiceID == invoiceID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) SaveTotals(ctx context.Context, invoiceID int64, t Totals, status Status, overpaid bool) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return shared.NotFoundf("invoice %d", invoiceID)
	}
	inv.Totals = t
	inv.Status = status
	inv.Overpaid = overpaid
	return nil
}

func (r *memoryRepo) MarkSent(ctx context.Context, id int64) error {
	inv := r.invoices[id]
	if inv.Status != StatusDraft {
		return shared.Consistencyf("invoice %d changed status during send", id)
	}
	now := time.Now()
	inv.Status = StatusSent
	inv.SentAt = &now
	return nil
}

func (r *memoryRepo) MarkVoided(ctx context.Context, id int64, reason string) error {
	inv := r.invoices[id]
	if inv.Status == StatusPaid || inv.Status == StatusVoid {
		return shared.Consistencyf("invoice %d changed status during void", id)
	}
	now := time.Now()
	inv.Status = StatusVoid
	inv.VoidedAt = &now
	inv.VoidReason = reason
	return nil
}

func (r *memoryRepo) LinkTimesheet(ctx context.Context, timesheetID, invoiceID int64) error {
	if _, taken := r.linked[timesheetID]; taken {
		return shared.InvalidState("timesheet", "billed", "generate invoice")
	}
	r.linked[timesheetID] = invoiceID
	return nil
}

type fakeTimesheets struct {
	details map[int64]*timesheet.Detail
	repo    *memoryRepo
}

func (f *fakeTimesheets) GetTimesheet(ctx context.Context, id int64) (*timesheet.Detail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, shared.NotFoundf("timesheet %d", id)
	}
	copied := *d
	if invID, linked := f.repo.linked[id]; linked {
		copied.Timesheet.InvoiceID = &invID
	}
	return &copied, nil
}

func (f *fakeTimesheets) ApprovedUnbilled(ctx context.Context, customerID int64) ([]timesheet.Timesheet, error) {
	var out []timesheet.Timesheet
	for _, d := range f.details {
		if d.Timesheet.Status != timesheet.StatusApproved {
			continue
		}
		if customerID > 0 && d.Timesheet.CustomerID != customerID {
			continue
		}
		out = append(out, d.Timesheet)
	}
	return out, nil
}

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	n.events = append(n.events, event)
}

type recordingPusher struct {
	invoices []int64
	payments []int64
}

func (p *recordingPusher) PushInvoice(ctx context.Context, invoiceID int64) {
	p.invoices = append(p.invoices, invoiceID)
}

func (p *recordingPusher) PushPayment(ctx context.Context, paymentID int64) {
	p.payments = append(p.payments, paymentID)
}

type countingBumper struct {
	bumps int
}

func (b *countingBumper) Bump(ctx context.Context) error {
	b.bumps++
	return nil
}

var _ mirror.Pusher = (*recordingPusher)(nil)

type testEnv struct {
	svc      *Service
	repo     *memoryRepo
	sheets   *fakeTimesheets
	notifier *recordingNotifier
	pusher   *recordingPusher
	bumper   *countingBumper
}

func newTestEnv() *testEnv {
	repo := newMemoryRepo()
	sheets := &fakeTimesheets{details: make(map[int64]*timesheet.Detail), repo: repo}
	notifier := &recordingNotifier{}
	pusher := &recordingPusher{}
	bumper := &countingBumper{}
	svc := NewService(repo, sheets, notifier, pusher, bumper, nil)
	return &testEnv{svc: svc, repo: repo, sheets: sheets, notifier: notifier, pusher: pusher, bumper: bumper}
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func ptr(v float64) *float64 { return &v }

func mustCreateInvoice(t *testing.T, env *testEnv, taxRate float64) *Invoice {
	t.Helper()
	inv, err := env.svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CustomerID: 10,
		TaxRate:    taxRate,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceDefaults(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)

	require.Equal(t, StatusDraft, inv.Status)
	require.Equal(t, TermsNet30, inv.PaymentTerms)
	require.Equal(t, inv.InvoiceDate.AddDate(0, 0, 30), inv.DueDate)
	require.Equal(t, "INV-000001", inv.Number)
}

func TestAddLineRecalculatesTotals(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 8)

	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "contract hours",
		Quantity:    26,
		UnitPrice:   80,
		Taxable:     true,
	})
	require.NoError(t, err)

	stored := env.repo.invoices[inv.ID]
	require.InDelta(t, 2080, stored.Totals.Subtotal, 1e-9)
	require.InDelta(t, 166.4, stored.Totals.TaxAmount, 1e-9)
	require.InDelta(t, 2246.4, stored.Totals.TotalAmount, 1e-9)
	require.InDelta(t, 2246.4, stored.Totals.AmountDue, 1e-9)
}

func TestLineValidation(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)

	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "bad", Quantity: 0, UnitPrice: 80,
	})
	require.True(t, shared.IsValidation(err))

	_, err = env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "bad", Quantity: 1, UnitPrice: -5,
	})
	require.True(t, shared.IsValidation(err))
}

func TestPartialThenFullPayment(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 8)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "contract hours", Quantity: 26, UnitPrice: 80, Taxable: true,
	})
	require.NoError(t, err)
	_, err = env.svc.SendInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 1000, Method: "wire",
	})
	require.NoError(t, err)

	stored := env.repo.invoices[inv.ID]
	require.Equal(t, StatusPartiallyPaid, stored.Status)
	require.InDelta(t, 1000, stored.Totals.AmountPaid, 1e-9)
	require.InDelta(t, 1246.4, stored.Totals.AmountDue, 1e-9)

	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 1246.4, Method: "wire",
	})
	require.NoError(t, err)

	stored = env.repo.invoices[inv.ID]
	require.Equal(t, StatusPaid, stored.Status)
	require.InDelta(t, 0, stored.Totals.AmountDue, 1e-6)
	require.False(t, stored.Overpaid)
}

func TestPaymentsAreMonotonic(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 10, UnitPrice: 100,
	})
	require.NoError(t, err)

	var lastPaid float64
	for _, amount := range []float64{100, 250, 50} {
		_, err := env.svc.RecordPayment(context.Background(), RecordPaymentInput{
			InvoiceID: inv.ID, Amount: amount,
		})
		require.NoError(t, err)
		paid := env.repo.invoices[inv.ID].Totals.AmountPaid
		require.Greater(t, paid, lastPaid)
		lastPaid = paid
	}
}

func TestPaymentValidation(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)

	_, err := env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 0})
	require.True(t, shared.IsValidation(err))

	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: -10})
	require.True(t, shared.IsValidation(err))
}

func TestOverpaymentAcceptedAndFlagged(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 10, UnitPrice: 100,
	})
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: 1500,
	})
	require.NoError(t, err)

	stored := env.repo.invoices[inv.ID]
	require.Equal(t, StatusPaid, stored.Status)
	require.True(t, stored.Overpaid)
	require.InDelta(t, -500, stored.Totals.AmountDue, 1e-9)
}

func TestNoPaymentsAfterPaidOrVoid(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 1, UnitPrice: 100,
	})
	require.NoError(t, err)
	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 100})
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 10})
	require.True(t, shared.IsInvalidState(err))

	voided := mustCreateInvoice(t, env, 0)
	_, err = env.svc.VoidInvoice(context.Background(), voided.ID, "duplicate")
	require.NoError(t, err)
	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: voided.ID, Amount: 10})
	require.True(t, shared.IsInvalidState(err))
}

func TestLineEditsFrozenAfterPayment(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	line, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 1, UnitPrice: 100,
	})
	require.NoError(t, err)
	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 40})
	require.NoError(t, err)

	_, err = env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "more", Quantity: 1, UnitPrice: 50,
	})
	require.True(t, shared.IsInvalidState(err))

	_, err = env.svc.UpdateLine(context.Background(), inv.ID, line.ID, LineItemInput{
		Description: "hours", Quantity: 2, UnitPrice: 100,
	})
	require.True(t, shared.IsInvalidState(err))

	err = env.svc.DeleteLine(context.Background(), inv.ID, line.ID)
	require.True(t, shared.IsInvalidState(err))
}

func TestVoidPaidInvoiceFails(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 1, UnitPrice: 100,
	})
	require.NoError(t, err)
	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 100})
	require.NoError(t, err)

	_, err = env.svc.VoidInvoice(context.Background(), inv.ID, "mistake")
	require.True(t, shared.IsInvalidState(err))
}

func TestSendInvoice(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)

	sent, err := env.svc.SendInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	require.Equal(t, []int64{inv.ID}, env.pusher.invoices)
	require.Equal(t, notify.EventInvoiceSent, env.notifier.events[0].Type)

	_, err = env.svc.SendInvoice(context.Background(), inv.ID)
	require.True(t, shared.IsInvalidState(err))
}

func TestCreditMemoNumberingAndTotals(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 10, UnitPrice: 100,
	})
	require.NoError(t, err)

	first, err := env.svc.CreateCreditMemo(context.Background(), CreditMemoInput{
		InvoiceID: inv.ID, Amount: 100, Reason: "rate correction",
	})
	require.NoError(t, err)
	require.Equal(t, "CM-INV-000001-1", first.Number)

	second, err := env.svc.CreateCreditMemo(context.Background(), CreditMemoInput{
		InvoiceID: inv.ID, Amount: 50, Reason: "rate correction",
	})
	require.NoError(t, err)
	require.Equal(t, "CM-INV-000001-2", second.Number)

	stored := env.repo.invoices[inv.ID]
	require.InDelta(t, 1150, stored.Totals.TotalAmount, 1e-9)
	require.InDelta(t, 1150, stored.Totals.AmountDue, 1e-9)
	require.InDelta(t, 0, stored.Totals.AmountPaid, 1e-9)
}

func TestCreditMemoReopensPaidInvoice(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.AddLine(context.Background(), inv.ID, LineItemInput{
		Description: "hours", Quantity: 10, UnitPrice: 100,
	})
	require.NoError(t, err)
	_, err = env.svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, env.repo.invoices[inv.ID].Status)

	_, err = env.svc.CreateCreditMemo(context.Background(), CreditMemoInput{
		InvoiceID: inv.ID, Amount: 200, Reason: "billing adjustment",
	})
	require.NoError(t, err)

	stored := env.repo.invoices[inv.ID]
	require.Equal(t, StatusPartiallyPaid, stored.Status)
	require.InDelta(t, 200, stored.Totals.AmountDue, 1e-9)
}

func TestCreditMemoOnVoidFails(t *testing.T) {
	env := newTestEnv()
	inv := mustCreateInvoice(t, env, 0)
	_, err := env.svc.VoidInvoice(context.Background(), inv.ID, "duplicate")
	require.NoError(t, err)

	_, err = env.svc.CreateCreditMemo(context.Background(), CreditMemoInput{
		InvoiceID: inv.ID, Amount: 10, Reason: "x",
	})
	require.True(t, shared.IsInvalidState(err))
}
