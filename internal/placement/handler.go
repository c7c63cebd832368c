package placement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crewledger/crewledger/internal/app"
	"github.com/crewledger/crewledger/internal/shared"
)

// Handler manages placement endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers placement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listActive)
	r.Get("/{id}", h.getPlacement)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	placements, err := h.service.ListActive(r.Context())
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, placements)
}

func (h *Handler) getPlacement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		app.RespondError(w, h.logger, shared.Validationf("invalid placement id"))
		return
	}
	p, err := h.service.GetActivePlacement(r.Context(), id)
	if err != nil {
		app.RespondError(w, h.logger, err)
		return
	}
	app.RespondJSON(w, http.StatusOK, p)
}
