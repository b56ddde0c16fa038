/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Honours X-Forwarded-For behind a proxy
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. requestLog: Structured request logging via zerolog
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/payments/*        Day-shape weekly payment buckets
  /api/multipayments/*   Range-shape weekly payment buckets
  /api/bank-color        Settlement color annotations
  /api/dashboard/*       Aggregated reports
  /api/parties/*         Party directory
  /api/expenses/*        Expense register

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Day-shape payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListDayPayments)
			r.Post("/bulk", h.BulkUpsertDayPayments)
		})

		// Range-shape payment routes
		r.Route("/multipayments", func(r chi.Router) {
			r.Get("/", h.ListRangePayments)
			r.Post("/bulk", h.BulkUpsertRangePayments)
		})

		// Annotation routes
		r.Put("/bank-color", h.SetColor)

		// Report routes
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/range-summary", h.GetRangeSummary)
		})

		// Party routes
		r.Route("/parties", func(r chi.Router) {
			r.Get("/", h.ListParties)
			r.Post("/", h.CreateParty)
			r.Get("/{id}", h.GetParty)
			r.Put("/{id}", h.UpdateParty)
			r.Delete("/{id}", h.DeactivateParty)
		})

		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestLog logs one line per request with method, path, status and latency.
func requestLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
