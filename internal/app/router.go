package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crewledger/crewledger/internal/observability"
)

// Mounter attaches a feature's routes onto a sub-router.
type Mounter interface {
	MountRoutes(r chi.Router)
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	PlacementHandler Mounter
	TimesheetHandler Mounter
	InvoiceHandler   Mounter
	AgingHandler     Mounter
	JobHandler       Mounter
}

// NewRouter constructs the chi.Router with CrewLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.PlacementHandler != nil {
			api.Route("/placements", params.PlacementHandler.MountRoutes)
		}
		if params.TimesheetHandler != nil {
			api.Route("/timesheets", params.TimesheetHandler.MountRoutes)
		}
		if params.InvoiceHandler != nil {
			api.Route("/invoices", params.InvoiceHandler.MountRoutes)
		}
		if params.AgingHandler != nil {
			api.Route("/aging", params.AgingHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
