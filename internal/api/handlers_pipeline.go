// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/pipeline"
)

// RunCourseRequest is the body of POST /api/v1/pipeline/course.
type RunCourseRequest struct {
	CourseID string `json:"course_id" validate:"required,max=255"`
	DateFor  string `json:"date_for" validate:"omitempty,datefor"`
	Force    bool   `json:"force"`
}

// RunSiteRequest is the body of POST /api/v1/pipeline/site.
type RunSiteRequest struct {
	SiteID  int64  `json:"site_id" validate:"required,gt=0"`
	DateFor string `json:"date_for" validate:"omitempty,datefor"`
	Force   bool   `json:"force"`
}

// RunResult reports one load. Created is false when an existing row was
// returned or updated.
type RunResult struct {
	Metrics interface{} `json:"metrics"`
	Created bool        `json:"created"`
}

// RunCourse loads course daily metrics for one course and date, yesterday
// by default.
func (h *Handler) RunCourse(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req RunCourseRequest
	if !decodeBody(rw, r, &req) {
		return
	}
	dateFor, _ := parseDay(req.DateFor)

	m, created, err := h.runner.RunCourseDailyMetrics(r.Context(), req.CourseID, dateFor, req.Force)
	if err != nil {
		writeRunError(rw, err)
		return
	}
	rw.Success(RunResult{Metrics: m, Created: created})
}

// RunSite loads site daily metrics. The course rows of that date must exist.
func (h *Handler) RunSite(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req RunSiteRequest
	if !decodeBody(rw, r, &req) {
		return
	}
	dateFor, _ := parseDay(req.DateFor)

	m, created, err := h.runner.RunSiteDailyMetrics(r.Context(), req.SiteID, dateFor, req.Force)
	if err != nil {
		writeRunError(rw, err)
		return
	}
	rw.Success(RunResult{Metrics: m, Created: created})
}

// BackfillRequest is the body of POST /api/v1/backfill.
type BackfillRequest struct {
	SiteID      int64  `json:"site_id" validate:"gte=0"`
	Start       string `json:"start" validate:"omitempty,datefor"`
	End         string `json:"end" validate:"omitempty,datefor"`
	Force       bool   `json:"force"`
	Resume      bool   `json:"resume"`
	SkipMonthly bool   `json:"skip_monthly"`
}

// StartBackfill accepts a backfill and runs it in the background. Poll
// GET /api/v1/backfill/{jobID} for progress.
func (h *Handler) StartBackfill(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.jobs == nil {
		rw.ServiceUnavailable("Backfill is not available")
		return
	}
	var body BackfillRequest
	if !decodeBody(rw, r, &body) {
		return
	}
	start, _ := parseDay(body.Start)
	end, _ := parseDay(body.End)

	// Reject bad ranges here; the job would only fail later.
	if err := checkRange(start, end); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	job, err := h.jobs.Submit(backfill.Request{
		SiteID:      body.SiteID,
		Start:       start,
		End:         end,
		Force:       body.Force,
		Resume:      body.Resume,
		SkipMonthly: body.SkipMonthly,
	})
	if errors.Is(err, backfill.ErrAlreadyRunning) {
		rw.Conflict("A backfill is already running")
		return
	}
	if err != nil {
		rw.PipelineError(err)
		return
	}
	rw.Accepted(job)
}

// checkRange applies the date rule to both ends.
func checkRange(start, end time.Time) error {
	now := time.Now()
	last, err := pipeline.DateForRule(end, now)
	if err != nil {
		return err
	}
	if start.IsZero() {
		return nil
	}
	if _, err := pipeline.DateForRule(start, now); err != nil {
		return err
	}
	if start.After(last) {
		return fmt.Errorf("%w: start %s is after end %s", backfill.ErrInvalidRange,
			start.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	return nil
}

// BackfillStatus returns a job with its live or final summary.
func (h *Handler) BackfillStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.jobs == nil {
		rw.ServiceUnavailable("Backfill is not available")
		return
	}
	job, ok := h.jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		rw.NotFound("Backfill job not found")
		return
	}
	rw.Success(job)
}
