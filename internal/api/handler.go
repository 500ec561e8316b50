// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package api serves stored metrics and pipeline controls over HTTP with chi.
//
// Every response uses the APIResponse envelope. Write endpoints validate
// their JSON bodies with the validation package and run under a stricter
// rate limit than reads.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/pipeline"
	"github.com/tomtom215/figures/internal/platform"
	"github.com/tomtom215/figures/internal/validation"
)

// MetricsStore is the read side of the metrics tables. *database.DB satisfies it.
type MetricsStore interface {
	Ping(ctx context.Context) error
	ListSiteDailyMetrics(ctx context.Context, f database.MetricsFilter) ([]models.SiteDailyMetrics, error)
	ListCourseDailyMetrics(ctx context.Context, f database.MetricsFilter) ([]models.CourseDailyMetrics, error)
	ListMonthlyActiveMetrics(ctx context.Context, f database.MetricsFilter) ([]models.MonthlyActiveMetrics, error)
	ListPipelineErrors(ctx context.Context, f database.PipelineErrorFilter) ([]models.PipelineError, error)
}

// PipelineRunner runs single loads on demand. *pipeline.Runner satisfies it.
type PipelineRunner interface {
	RunCourseDailyMetrics(ctx context.Context, courseID string, dateFor time.Time, force bool) (*models.CourseDailyMetrics, bool, error)
	RunSiteDailyMetrics(ctx context.Context, siteID int64, dateFor time.Time, force bool) (*models.SiteDailyMetrics, bool, error)
}

// Backfiller is satisfied by *backfill.Orchestrator.
type Backfiller interface {
	Backfill(ctx context.Context, req backfill.Request) (*backfill.Summary, error)
	Progress() *backfill.Summary
	IsRunning() bool
}

var (
	_ MetricsStore   = (*database.DB)(nil)
	_ PipelineRunner = (*pipeline.Runner)(nil)
	_ Backfiller     = (*backfill.Orchestrator)(nil)
)

// Handler holds the dependencies of every endpoint.
type Handler struct {
	store     MetricsStore
	runner    PipelineRunner
	jobs      *BackfillJobs
	version   string
	startTime time.Time
}

type HandlerOption func(*Handler)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handler) { h.version = v }
}

// WithBackfillJobs replaces the default job registry.
func WithBackfillJobs(jobs *BackfillJobs) HandlerOption {
	return func(h *Handler) { h.jobs = jobs }
}

// NewHandler wires the endpoints. backfiller may be nil, in which case the
// backfill endpoints answer 503.
func NewHandler(store MetricsStore, runner PipelineRunner, backfiller Backfiller, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		runner:    runner,
		version:   "dev",
		startTime: time.Now(),
	}
	if backfiller != nil {
		h.jobs = NewBackfillJobs(context.Background(), backfiller)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeBody reads a JSON body into dst and validates it. It writes the error
// response itself and reports false when the handler should stop.
func decodeBody(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(rw.w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		rw.BadRequest("Invalid JSON body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError(verr)
		return false
	}
	return true
}

// parseDay parses an optional YYYY-MM-DD value. Empty yields the zero time.
func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// writeRunError maps pipeline failures to HTTP statuses.
func writeRunError(rw *ResponseWriter, err error) {
	var future *pipeline.DateForCannotBeFutureError
	var unlinked *pipeline.UnlinkedCourseError
	switch {
	case errors.As(err, &future):
		rw.BadRequest(err.Error())
	case errors.As(err, &unlinked), errors.Is(err, database.ErrNotFound),
		errors.Is(err, platform.ErrSiteNotFound), errors.Is(err, platform.ErrCourseNotFound):
		rw.NotFound(err.Error())
	case errors.Is(err, backfill.ErrInvalidRange):
		rw.BadRequest(err.Error())
	default:
		rw.PipelineError(err)
	}
}
