package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/quiz-mailer/internal/infra/http/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
	Jobs           *JobHandler
	Status         *StatusHandler
	Health         *HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		MaxAge:         300,
	}))
	r.Use(middleware.Metrics)

	r.Get("/health", cfg.Health.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/reconcile-orphans", cfg.Jobs.ReconcileOrphans)
		r.Post("/resolve-pending", cfg.Jobs.ResolvePending)
		r.Post("/deliver", cfg.Jobs.Deliver)
	})

	r.Get("/leads/{leadType}/{leadID}/emails", cfg.Status.HandleLeadEmails)
	r.Get("/emails/failures", cfg.Status.HandleFailures)

	return r
}
