/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/sales/*       Manual sales
  /api/transfers/*   Branch transfers
  /api/restocks/*    Inbound deliveries
  /api/waste/*       Spoilage records
  /api/issuances/*   Staff issuances, returns, settlement
  /api/stock/*       Availability, closing stock, reports
  /api/items/*       Item registry
  /health            Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Delete("/{id}", h.DeleteSale)
		})

		r.Post("/transfers", h.CreateTransfer)
		r.Post("/restocks", h.RecordRestock)
		r.Post("/waste", h.RecordWaste)

		r.Route("/issuances", func(r chi.Router) {
			r.Post("/", h.CreateIssuance)
			r.Post("/{id}/returns", h.RecordReturn)
			r.Post("/settle", h.SettleIssuances)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/availability", h.GetAvailability)
			r.Post("/closing", h.EnterClosingStock)
			r.Post("/closing/auto-save", h.AutoSaveClosingStock)
			r.Get("/report", h.GetStockReport)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.SaveItem)
			r.Get("/{id}", h.GetItem)
		})
	})

	return r
}
