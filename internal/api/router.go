// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/oceanus/internal/config"
)

// NewRouter assembles the HTTP routing tree.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Operational endpoints stay outside the API rate limit so probes
	// and scrapers are never throttled by client traffic.
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RequestsPerMinute, time.Minute))
		r.Use(Metrics)

		r.Get("/datasets", h.Datasets)
		r.Get("/datasets/{id}/dates", h.DatasetDates)
		r.Get("/extract", h.Extract)
		r.Post("/extract/batch", h.ExtractBatch)

		r.Get("/recovery/report", h.RecoveryReport)
		r.Post("/recovery/scan", h.RecoveryScan)
	})

	return r
}
