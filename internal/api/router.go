// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/middleware"
)

// NewRouter builds the chi route tree.
func NewRouter(h *Handler, mw *Middleware) http.Handler {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	r := chi.NewRouter()

	// Global middleware, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())
	r.Use(middleware.AccessLog)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("No route for " + r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", h.Health)

		// Reads
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit())
			r.Get("/sites/{siteID}/daily", h.SiteDailyMetrics)
			r.Get("/sites/{siteID}/monthly", h.SiteMonthlyMetrics)
			r.Get("/courses/{courseID}/daily", h.CourseDailyMetrics)
			r.Get("/pipeline-errors", h.PipelineErrors)
			r.Get("/backfill/{jobID}", h.BackfillStatus)
		})

		// Pipeline runs
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimitWrite())
			r.Post("/pipeline/course", h.RunCourse)
			r.Post("/pipeline/site", h.RunSite)
			r.Post("/backfill", h.StartBackfill)
		})
	})

	return r
}

// NewServer configures the HTTP server for cfg. A zero timeout means 30s.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       2 * timeout,
	}
}
