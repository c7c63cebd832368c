package invoice

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/shared"
)

// Handler manages invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listInvoices)
	r.Post("/", h.createInvoice)
	r.Post("/generate", h.generate)
	r.Post("/bulk-generate", h.bulkGenerate)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getInvoice)
		r.Post("/send", h.send)
		r.Post("/void", h.voidInvoice)
		r.Post("/payments", h.recordPayment)
		r.Post("/credit-memos", h.createCreditMemo)

		r.Post("/lines", h.addLine)
		r.Put("/lines/{lineID}", h.updateLine)
		r.Delete("/lines/{lineID}", h.deleteLine)
	})
}

type createInvoiceRequest struct {
	CustomerID   int64   `json:"customer_id" validate:"required,gt=0"`
	InvoiceDate  string  `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	PeriodStart  string  `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd    string  `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	PaymentTerms string  `json:"payment_terms" validate:"omitempty,oneof=due_on_receipt net_15 net_30 net_45 net_60"`
	TaxRate      float64 `json:"tax_rate" validate:"gte=0,lte=100"`
	DiscountPct  float64 `json:"discount_pct" validate:"gte=0,lte=100"`
}

type lineItemRequest struct {
	Description string  `json:"description" validate:"required,max=1024"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"required,gt=0"`
	Taxable     bool    `json:"taxable"`
}

type recordPaymentRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	PaymentDate string  `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Method      string  `json:"method" validate:"max=64"`
	Reference   string  `json:"reference" validate:"max=128"`
}

type creditMemoRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Reason string  `json:"reason" validate:"required,max=1024"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=1024"`
}

type generateRequest struct {
	TimesheetID int64    `json:"timesheet_id" validate:"required,gt=0"`
	ApplyMarkup bool     `json:"apply_markup"`
	MarkupPct   *float64 `json:"markup_pct" validate:"omitempty,gte=0,lte=100"`
	TaxRate     float64  `json:"tax_rate" validate:"gte=0,lte=100"`
}

type bulkGenerateRequest struct {
	PeriodStart string   `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd   string   `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	CustomerID  int64    `json:"customer_id" validate:"gte=0"`
	ApplyMarkup bool     `json:"apply_markup"`
	MarkupPct   *float64 `json:"markup_pct" validate:"omitempty,gte=0,lte=100"`
	TaxRate     float64  `json:"tax_rate" validate:"gte=0,lte=100"`
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListInvoicesRequest{Status: Status(q.Get("status"))}
	req.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))
	if from := q.Get("from"); from != "" {
		req.FromDate, _ = time.Parse("2006-01-02", from)
	}
	if to := q.Get("to"); to != "" {
		req.ToDate, _ = time.Parse("2006-01-02", to)
	}

	invoices, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, invoices)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}

	input := CreateInvoiceInput{
		CustomerID:   req.CustomerID,
		PaymentTerms: PaymentTerms(req.PaymentTerms),
		TaxRate:      req.TaxRate,
		DiscountPct:  req.DiscountPct,
	}
	input.InvoiceDate = parseDate(req.InvoiceDate)
	input.PeriodStart = parseDate(req.PeriodStart)
	input.PeriodEnd = parseDate(req.PeriodEnd)

	inv, err := h.service.CreateInvoice(r.Context(), input)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	detail, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.SendInvoice(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, inv)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req voidRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.VoidInvoice(r.Context(), id, req.Reason)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, inv)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req recordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		InvoiceID:   id,
		PaymentDate: parseDate(req.PaymentDate),
		Amount:      req.Amount,
		Method:      req.Method,
		Reference:   req.Reference,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, payment)
}

func (h *Handler) createCreditMemo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req creditMemoRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	memo, err := h.service.CreateCreditMemo(r.Context(), CreditMemoInput{
		InvoiceID: id,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, memo)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	detail, err := h.service.GenerateFromTimesheet(r.Context(), GenerateInput{
		TimesheetID: req.TimesheetID,
		ApplyMarkup: req.ApplyMarkup,
		MarkupPct:   req.MarkupPct,
		TaxRate:     req.TaxRate,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, detail)
}

func (h *Handler) bulkGenerate(w http.ResponseWriter, r *http.Request) {
	var req bulkGenerateRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	summary, err := h.service.BulkGenerate(r.Context(), BulkGenerateInput{
		PeriodStart: parseDate(req.PeriodStart),
		PeriodEnd:   parseDate(req.PeriodEnd),
		CustomerID:  req.CustomerID,
		ApplyMarkup: req.ApplyMarkup,
		MarkupPct:   req.MarkupPct,
		TaxRate:     req.TaxRate,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req lineItemRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	line, err := h.service.AddLine(r.Context(), id, req.toInput())
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req lineItemRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	line, err := h.service.UpdateLine(r.Context(), id, lineID, req.toInput())
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, line)
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteLine(r.Context(), id, lineID); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req lineItemRequest) toInput() LineItemInput {
	return LineItemInput{
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Taxable:     req.Taxable,
	}
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := app.DecodeJSON(r, dst); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		return shared.Validationf("%s", err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid %s", name)
	}
	return id, nil
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// The format is validated before conversion.
	d, _ := time.Parse("2006-01-02", s)
	return d
}
