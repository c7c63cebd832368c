package timesheet

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

// Handler manages timesheet endpoints.
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

// MountRoutes registers timesheet routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listTimesheets)
	r.Post("/", h.createTimesheet)
	r.Post("/bulk-approve", h.bulkApprove)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.getTimesheet)
		r.Post("/submit", h.submit)
		r.Post("/approve", h.approve)
		r.Post("/reject", h.reject)
		r.Post("/recall", h.recall)
		r.Get("/anomalies", h.scanAnomalies)

		r.Post("/entries", h.addEntry)
		r.Put("/entries/{entryID}", h.updateEntry)
		r.Delete("/entries/{entryID}", h.deleteEntry)
	})
}

type createTimesheetRequest struct {
	PlacementID int64  `json:"placement_id" validate:"required,gt=0"`
	PeriodDate  string `json:"period_date" validate:"omitempty,datetime=2006-01-02"`
}

type entryRequest struct {
	EntryDate       string     `json:"entry_date" validate:"required,datetime=2006-01-02"`
	HoursRegular    float64    `json:"hours_regular" validate:"gte=0,lte=24"`
	HoursOvertime   float64    `json:"hours_overtime" validate:"gte=0,lte=24"`
	Billable        bool       `json:"billable"`
	Holiday         bool       `json:"holiday"`
	PTO             bool       `json:"pto"`
	Sick            bool       `json:"sick"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	BreakMinutes    int        `json:"break_minutes" validate:"gte=0"`
	ProjectCode     string     `json:"project_code" validate:"max=64"`
	TaskDescription string     `json:"task_description" validate:"max=1024"`
}

type approveRequest struct {
	ApproverID int64  `json:"approver_id" validate:"required,gt=0"`
	Notes      string `json:"notes" validate:"max=1024"`
}

type rejectRequest struct {
	ApproverID int64  `json:"approver_id" validate:"required,gt=0"`
	Reason     string `json:"reason" validate:"required,max=1024"`
}

type bulkApproveRequest struct {
	TimesheetIDs []int64 `json:"timesheet_ids" validate:"required,min=1,dive,gt=0"`
	ApproverID   int64   `json:"approver_id" validate:"required,gt=0"`
	Notes        string  `json:"notes" validate:"max=1024"`
}

func (h *Handler) listTimesheets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListTimesheetsRequest{Status: Status(q.Get("status"))}
	req.PlacementID, _ = strconv.ParseInt(q.Get("placement_id"), 10, 64)
	req.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))
	if from := q.Get("from"); from != "" {
		req.FromDate, _ = time.Parse("2006-01-02", from)
	}
	if to := q.Get("to"); to != "" {
		req.ToDate, _ = time.Parse("2006-01-02", to)
	}

	sheets, err := h.service.ListTimesheets(r.Context(), req)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, sheets)
}

func (h *Handler) createTimesheet(w http.ResponseWriter, r *http.Request) {
	var req createTimesheetRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}

	input := CreateTimesheetInput{PlacementID: req.PlacementID}
	if req.PeriodDate != "" {
		input.PeriodDate, _ = time.Parse("2006-01-02", req.PeriodDate)
	}

	ts, err := h.service.CreateTimesheet(r.Context(), input)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, ts)
}

func (h *Handler) getTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	detail, err := h.service.GetTimesheet(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	ts, err := h.service.Submit(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, ts)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req approveRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	ts, err := h.service.Approve(r.Context(), ApproveInput{
		TimesheetID: id,
		ApproverID:  req.ApproverID,
		Notes:       req.Notes,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, ts)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req rejectRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	ts, err := h.service.Reject(r.Context(), RejectInput{
		TimesheetID: id,
		ApproverID:  req.ApproverID,
		Reason:      req.Reason,
	})
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, ts)
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	ts, err := h.service.Recall(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, ts)
}

func (h *Handler) bulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkApproveRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	summary := h.service.BulkApprove(r.Context(), req.TimesheetIDs, req.ApproverID, req.Notes)
	app.RespondJSON(w, http.StatusOK, summary)
}

func (h *Handler) scanAnomalies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	anomalies, score, err := h.service.ScanAnomalies(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, map[string]any{
		"anomalies":  anomalies,
		"risk_score": score,
	})
}

func (h *Handler) addEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req entryRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.AddEntry(r.Context(), id, req.toInput())
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	entryID, err := pathID(r, "entryID")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	var req entryRequest
	if err := h.decode(r, &req); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.UpdateEntry(r.Context(), id, entryID, req.toInput())
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	entryID, err := pathID(r, "entryID")
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteEntry(r.Context(), id, entryID); err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req entryRequest) toInput() EntryInput {
	// The date format is validated before conversion.
	date, _ := time.Parse("2006-01-02", req.EntryDate)
	return EntryInput{
		EntryDate:       date,
		HoursRegular:    req.HoursRegular,
		HoursOvertime:   req.HoursOvertime,
		Billable:        req.Billable,
		Holiday:         req.Holiday,
		PTO:             req.PTO,
		Sick:            req.Sick,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		BreakMinutes:    req.BreakMinutes,
		ProjectCode:     req.ProjectCode,
		TaskDescription: req.TaskDescription,
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
