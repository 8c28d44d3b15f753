package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tabsera/settlement/internal/rates"
	"github.com/tabsera/settlement/internal/registry"
	"github.com/tabsera/settlement/internal/repository"
	"github.com/tabsera/settlement/internal/settlement"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	reg *registry.Registry,
	settRepo *repository.SettlementRepo,
	revRepo *repository.ReviewRepo,
	generator *settlement.Generator,
	tracker *settlement.Tracker,
	lifecycle *settlement.Lifecycle,
	importer *rates.Importer,
) http.Handler {
	h := &Handlers{
		registry:  reg,
		settRepo:  settRepo,
		revRepo:   revRepo,
		generator: generator,
		tracker:   tracker,
		lifecycle: lifecycle,
		importer:  importer,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Contracts.
		r.Post("/contracts", h.CreateContract)
		r.Get("/centers/{id}/contract", h.GetActiveContract)

		// Live collection view.
		r.Get("/centers/{id}/collection", h.GetCollection)

		// Exchange rates.
		r.Post("/rates/import", h.ImportRates)

		// Settlements.
		r.Post("/settlements/generate", h.GenerateBatch)
		r.Get("/settlements", h.ListSettlements)
		r.Get("/settlements/overdue", h.ListOverdue)
		r.Get("/settlements/export", h.ExportSettlements)
		r.Get("/settlements/{id}", h.GetSettlement)
		r.Post("/settlements/{id}/mark-paid", h.MarkPaid)

		// Manual-review queue.
		r.Get("/review-queue", h.ListReviewQueue)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
