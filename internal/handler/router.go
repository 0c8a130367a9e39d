package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/clientbook/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса clientbook.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	if h.instrument != nil {
		r.Use(h.instrument)
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", h.AddClient)
			r.Get("/", h.SearchClients)
			r.Get("/stats", h.ClientStatistics)
			r.Get("/{id}", h.GetClient)
			r.Patch("/{id}", h.UpdateClient)
			r.Delete("/{id}", h.DeleteClient)
			r.Get("/{id}/orders", h.ClientOrders)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.SearchOrders)
			r.Get("/stats", h.OrderStatistics)
			r.Get("/{id}", h.GetOrder)
			r.Patch("/{id}/status", h.UpdateOrderStatus)
			r.Delete("/{id}", h.DeleteOrder)
		})

		r.Get("/dashboard", h.Dashboard)
		r.Post("/import/{kind}", h.Import)
		r.Get("/import/template/{kind}", h.Template)
		r.Get("/export/{kind}", h.Export)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
