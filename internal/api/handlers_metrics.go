// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/validation"
)

// dateRangeQuery holds the optional from/to query parameters.
type dateRangeQuery struct {
	From string `json:"from" validate:"omitempty,datefor"`
	To   string `json:"to" validate:"omitempty,datefor"`
}

// metricsFilter parses from/to into f. It writes the error response and
// reports false on invalid input.
func metricsFilter(rw *ResponseWriter, r *http.Request, f *database.MetricsFilter) bool {
	q := dateRangeQuery{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return false
	}
	// Both parse: the validator already checked the layout.
	f.From, _ = parseDay(q.From)
	f.To, _ = parseDay(q.To)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		rw.BadRequest("from must not be after to")
		return false
	}
	return true
}

func siteIDParam(rw *ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "siteID"), 10, 64)
	if err != nil || id <= 0 {
		rw.BadRequest("siteID must be a positive integer")
		return 0, false
	}
	return id, true
}

// SiteDailyMetrics lists a site's daily rows ordered by date.
func (h *Handler) SiteDailyMetrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	siteID, ok := siteIDParam(rw, r)
	if !ok {
		return
	}
	f := database.MetricsFilter{SiteID: siteID}
	if !metricsFilter(rw, r, &f) {
		return
	}

	rows, err := h.store.ListSiteDailyMetrics(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if rows == nil {
		rows = []models.SiteDailyMetrics{}
	}
	rw.List(rows, len(rows))
}

// CourseDailyMetrics lists a course's daily rows ordered by date.
func (h *Handler) CourseDailyMetrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	courseID := chi.URLParam(r, "courseID")
	if courseID == "" {
		rw.BadRequest("courseID is required")
		return
	}
	f := database.MetricsFilter{CourseID: courseID}
	if !metricsFilter(rw, r, &f) {
		return
	}

	rows, err := h.store.ListCourseDailyMetrics(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if rows == nil {
		rows = []models.CourseDailyMetrics{}
	}
	rw.List(rows, len(rows))
}

// SiteMonthlyMetrics lists the site-wide monthly active user rows. from and
// to select whole months.
func (h *Handler) SiteMonthlyMetrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	siteID, ok := siteIDParam(rw, r)
	if !ok {
		return
	}
	f := database.MetricsFilter{SiteID: siteID}
	if !metricsFilter(rw, r, &f) {
		return
	}

	rows, err := h.store.ListMonthlyActiveMetrics(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if rows == nil {
		rows = []models.MonthlyActiveMetrics{}
	}
	rw.List(rows, len(rows))
}

type pipelineErrorsQuery struct {
	Type  string `json:"type" validate:"omitempty,errortype"`
	Limit int    `json:"limit" validate:"min=1,max=1000"`
}

const defaultErrorLimit = 100

// PipelineErrors lists captured pipeline errors newest first.
func (h *Handler) PipelineErrors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := pipelineErrorsQuery{Type: r.URL.Query().Get("type"), Limit: defaultErrorLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		q.Limit = limit
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr)
		return
	}

	rows, err := h.store.ListPipelineErrors(r.Context(), database.PipelineErrorFilter{
		ErrorType: models.ErrorType(q.Type),
		Limit:     q.Limit,
	})
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if rows == nil {
		rows = []models.PipelineError{}
	}
	rw.List(rows, len(rows))
}
