package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/taxops/einvoicing-system/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the service.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.Identity)

			r.Route("/invoices", func(r chi.Router) {
				r.Post("/", h.CreateInvoice)
				r.Get("/", h.ListInvoices)

				r.Route("/{ref}", func(r chi.Router) {
					r.Get("/", h.GetInvoice)
					r.Put("/", h.UpdateInvoice)
					r.Post("/validate", h.ValidateInvoice)
					r.Post("/submit", h.SubmitInvoice)
				})
			})

			r.Get("/scenarios/progress", h.ListScenarioProgress)
			r.Post("/catalog/refresh", h.RefreshCatalog)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
