package aging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/shared"
)

// Handler manages aging report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers aging routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.report)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			app.RespondError(w, h.logger, shared.Validationf("invalid as_of date"))
			return
		}
		asOf = parsed
	}

	report, err := h.service.Report(r.Context(), asOf)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, report)
}
