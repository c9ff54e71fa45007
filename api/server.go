/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For
  3. Logger:     slog request logging (RequestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/parents/*        Parents, conditions, session, adjustment
  /api/scenarios/*      Demo payment plans
  /metrics              Prometheus
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *slog.Logger
	// Gatherer serves /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/parents", func(r chi.Router) {
			r.Get("/", h.ListParents)
			r.Post("/", h.CreateParent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetParent)
				r.Put("/reference", h.SetReference)
				r.Get("/snapshot", h.GetSnapshot)
				r.Post("/advance", h.Advance)

				// Immediate operations
				r.Route("/conditions", func(r chi.Router) {
					r.Get("/", h.ListConditions)
					r.Put("/order", h.ReorderConditions)
					r.Delete("/{cid}", h.DeleteCondition)
					r.Get("/{cid}/schedule", h.GetSchedule)
				})

				// Staged operations
				r.Route("/session", func(r chi.Router) {
					r.Post("/edits", h.EditCondition)
					r.Post("/drafts", h.AddDraft)
					r.Patch("/drafts/{index}", h.EditDraft)
					r.Delete("/drafts/{index}", h.RemoveDraft)
					r.Post("/commit", h.Commit)
					r.Post("/discard", h.Discard)
				})

				r.Get("/adjustment", h.PreviewAdjustment)
				r.Post("/adjustment", h.ApplyAdjustment)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
