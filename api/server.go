/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request logging with the request ID
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters and latency
  5. CORS:       Cross-origin requests for the roadmap frontend

RATE LIMITING:
  POST /api/capacity/validate is called on every debounced form edit, so it
  alone carries a ulule/limiter memory-store limit (e.g. "20-S" per client IP).

ROUTE GROUPS:
  /api/capacity/*      Admission check and activity analysis
  /api/governance/*    Team, quotas, alert
  /api/commitments/*   Commitment lifecycle and projections
  /api/roadmap         Roadmap view
  /api/roles/*         Role catalog
  /api/scenarios/*     Demo scenarios
  /metrics             Prometheus
  /healthz             Liveness

SECURITY NOTE:
  No authentication middleware. Governance writes are expected to be
  authorized upstream.

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	limiterhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// ValidateRate is a limiter formatted rate such as "20-S". Empty disables it.
	ValidateRate   string
	MetricsEnabled bool
}

// DefaultRouterOptions matches the config package defaults.
func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		ValidateRate:   "20-S",
		MetricsEnabled: true,
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) (*chi.Mux, error) {
	validateLimit := func(next http.Handler) http.Handler { return next }
	if opts.ValidateRate != "" {
		rate, err := limiter.NewRateFromFormatted(opts.ValidateRate)
		if err != nil {
			return nil, err
		}
		validateLimit = limiterhttp.NewMiddleware(limiter.New(memory.NewStore(), rate)).Handler
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	if opts.MetricsEnabled {
		r.Use(instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerActor, headerRole},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/capacity", func(r chi.Router) {
			r.With(validateLimit).Post("/validate", h.ValidateCapacity)
			r.Post("/analyze", h.AnalyzeActivities)
		})

		r.Route("/governance", func(r chi.Router) {
			r.Get("/", h.GetGovernance)
			r.Put("/team", h.UpdateTeam)
			r.Put("/quotas", h.UpdateQuotas)
			r.Get("/alert", h.GetAlert)
		})

		r.Route("/commitments", func(r chi.Router) {
			r.Get("/", h.ListCommitments)
			r.Post("/", h.CreateCommitment)
			r.Get("/{id}", h.GetCommitment)
			r.Put("/{id}", h.UpdateCommitment)
			r.Post("/{id}/lock", h.LockCommitment)
			r.Post("/{id}/unlock", h.UnlockCommitment)
			r.Get("/{id}/buckets", h.GetBuckets)
		})

		r.Get("/roadmap", h.GetRoadmap)

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Put("/{id}", h.UpdateRole)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r, nil
}

// requestLogger logs one line per request with logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Error("request failed")
				return
			}
			entry.Debug("request")
		})
	}
}
