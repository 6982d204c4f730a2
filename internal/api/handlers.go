// Oceanus - Oceanographic Point-Data Extraction and Recovery Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oceanus

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/oceanus/internal/catalog"
	"github.com/tomtom215/oceanus/internal/extract"
	"github.com/tomtom215/oceanus/internal/logging"
	"github.com/tomtom215/oceanus/internal/pointcache"
	"github.com/tomtom215/oceanus/internal/recovery"
	"github.com/tomtom215/oceanus/internal/validation"
)

const isoDate = "2006-01-02"

// Handler serves the API endpoints.
type Handler struct {
	orchestrator *extract.Orchestrator
	scheduler    *recovery.Scheduler // nil when recovery is disabled
	cache        *pointcache.Cache
	startTime    time.Time
}

// NewHandler creates a Handler. scheduler may be nil when recovery is
// disabled; the recovery endpoints then answer 503.
func NewHandler(o *extract.Orchestrator, s *recovery.Scheduler, c *pointcache.Cache) *Handler {
	return &Handler{
		orchestrator: o,
		scheduler:    s,
		cache:        c,
		startTime:    time.Now(),
	}
}

// Datasets returns the dataset catalog.
// GET /api/v1/datasets
func (h *Handler) Datasets(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.orchestrator.Catalog())
}

// DatasetDates returns the dates a dataset holds valid data for.
// GET /api/v1/datasets/{id}/dates
func (h *Handler) DatasetDates(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	dates, err := h.orchestrator.AvailableDates(id)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownDataset) {
			rw.Error(http.StatusNotFound, ErrCodeNotFound, "unknown dataset: "+id)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("dataset", id).Msg("available dates failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "failed to list available dates")
		return
	}

	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(isoDate)
	}
	rw.Success(map[string]interface{}{"dataset": id, "dates": out})
}

// Extract serves one point extraction.
// GET /api/v1/extract?dataset=sst&lat=48.5&lon=-125.25&date=2024-06-01
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := parseExtractRequest(r)
	if err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "invalid extraction request", validationDetails(err))
		return
	}

	result, err := h.orchestrator.Extract(r.Context(), req.Dataset, req.Lat, req.Lon, req.Date)
	if err != nil {
		h.extractError(rw, r, err)
		return
	}
	rw.Success(result)
}

// ExtractBatch fans one coordinate out across several datasets.
// POST /api/v1/extract/batch
func (h *Handler) ExtractBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "invalid batch request", validationDetails(err))
		return
	}

	batch, err := h.orchestrator.ExtractMany(r.Context(), req.Datasets, req.Lat, req.Lon, req.Date)
	if err != nil {
		h.extractError(rw, r, err)
		return
	}
	rw.Success(batch)
}

// RecoveryReport returns the report of the most recent recovery run.
// GET /api/v1/recovery/report
func (h *Handler) RecoveryReport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.scheduler == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "recovery is disabled")
		return
	}

	report, err := h.scheduler.LastReport()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to load recovery report")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "failed to load recovery report")
		return
	}
	if report == nil {
		rw.Error(http.StatusNotFound, ErrCodeNotFound, "no recovery run has completed yet")
		return
	}
	rw.Success(report)
}

// RecoveryScan triggers a recovery run and returns its report.
// POST /api/v1/recovery/scan
func (h *Handler) RecoveryScan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.scheduler == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "recovery is disabled")
		return
	}

	report, err := h.scheduler.Run(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("recovery run failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "recovery run failed: "+err.Error())
		return
	}
	rw.Success(report)
}

// Health reports process liveness, uptime and cache efficiency.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.GetStats()
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":   "ok",
		"uptime_s": int64(time.Since(h.startTime).Seconds()),
		"datasets": len(h.orchestrator.Catalog()),
		"cache": map[string]interface{}{
			"entries":    stats.Entries,
			"cost_bytes": stats.CostBytes,
			"hits":       stats.Hits,
			"misses":     stats.Misses,
			"evictions":  stats.Evictions,
		},
	})
}

func (h *Handler) extractError(rw *ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownDataset):
		rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, extract.ErrInvalidCoordinate), errors.Is(err, extract.ErrInvalidDate):
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("extraction failed")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "extraction failed")
	}
}

// validationDetails flattens validator output into the error envelope.
func validationDetails(err error) interface{} {
	var verrs *validation.Errors
	if errors.As(err, &verrs) {
		return verrs.Fields
	}
	return err.Error()
}
