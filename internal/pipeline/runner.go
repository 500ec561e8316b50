// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

/*
Package pipeline computes learner analytics from the platform mirror.

Loaders:
  - Course daily metrics: enrollments, active learners, progress and completions per course and day
  - Site daily metrics: rollup of the course rows plus user counts and the cumulative active user count
  - Monthly active users: distinct learners per site or course and calendar month
  - Learner progress: one grade snapshot per enrollment, refreshed only after new activity

Every loader takes a RunContext and upserts by the natural key of its table.
An existing row is returned untouched unless the run forces an update.

Site daily metrics read the course rows of the same day and the site row of
the previous day, so course rows must be loaded first and days must be loaded
in ascending order. Concurrent runs for the same site are the caller's
responsibility to serialize.

Data errors for a single learner or course go to the ErrorSink and do not stop
the run.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

// Store is the metrics persistence used by the loaders. Getters return
// database.ErrNotFound for missing rows.
type Store interface {
	ErrorStore

	GetCourseDailyMetrics(ctx context.Context, courseID string, dateFor time.Time) (*models.CourseDailyMetrics, error)
	UpsertCourseDailyMetrics(ctx context.Context, m *models.CourseDailyMetrics) (*models.CourseDailyMetrics, error)
	CourseDailyMetricsForSiteDate(ctx context.Context, siteID int64, dateFor time.Time) ([]models.CourseDailyMetrics, error)

	GetSiteDailyMetrics(ctx context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error)
	UpsertSiteDailyMetrics(ctx context.Context, m *models.SiteDailyMetrics) (*models.SiteDailyMetrics, error)
	LatestSiteDailyMetricsBefore(ctx context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error)

	LatestLearnerCourseGradeMetrics(ctx context.Context, userID int64, courseID string) (*models.LearnerCourseGradeMetrics, error)
	UpsertLearnerCourseGradeMetrics(ctx context.Context, m *models.LearnerCourseGradeMetrics) (*models.LearnerCourseGradeMetrics, error)

	GetMonthlyActiveMetrics(ctx context.Context, siteID int64, courseID string, year, month int) (*models.MonthlyActiveMetrics, error)
	UpsertMonthlyActiveMetrics(ctx context.Context, m *models.MonthlyActiveMetrics) (*models.MonthlyActiveMetrics, error)
}

var _ Store = (*database.DB)(nil)

// RunContext carries everything a loader needs for one unit of work.
type RunContext struct {
	Site        *models.Site
	DateFor     time.Time
	ForceUpdate bool
}

// Runner wires the loaders to the platform, the grade source and the store.
type Runner struct {
	scope  *platform.Scope
	grades platform.GradeSource
	store  Store
	sink   *ErrorSink
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides the clock used by the effective-date rule.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. A nil sink logs errors without persisting them.
func NewRunner(scope *platform.Scope, grades platform.GradeSource, store Store, sink *ErrorSink, opts ...Option) *Runner {
	if sink == nil {
		sink = NewErrorSink(nil, false)
	}
	r := &Runner{
		scope:  scope,
		grades: grades,
		store:  store,
		sink:   sink,
		now:    time.Now,
		logger: logging.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Scope() *platform.Scope { return r.scope }

func (r *Runner) Sink() *ErrorSink { return r.sink }

// Now returns the runner's clock reading.
func (r *Runner) Now() time.Time { return r.now() }

// NewRunContext applies the effective-date rule to dateFor.
func (r *Runner) NewRunContext(site *models.Site, dateFor time.Time, force bool) (RunContext, error) {
	d, err := DateForRule(dateFor, r.now())
	if err != nil {
		return RunContext{}, err
	}
	return RunContext{Site: site, DateFor: d, ForceUpdate: force}, nil
}

// Site looks up a site through the resolver.
func (r *Runner) Site(ctx context.Context, siteID int64) (*models.Site, error) {
	return r.scope.Resolver().Site(ctx, siteID)
}

func (r *Runner) siteForCourse(ctx context.Context, courseID string) (*models.Site, error) {
	site, err := r.scope.Resolver().SiteForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, &UnlinkedCourseError{CourseID: courseID}
	}
	return site, nil
}

// RunCourseDailyMetrics loads course daily metrics for courseID. A zero
// dateFor means yesterday.
func (r *Runner) RunCourseDailyMetrics(ctx context.Context, courseID string, dateFor time.Time, force bool) (*models.CourseDailyMetrics, bool, error) {
	start := time.Now()
	rc, err := r.NewRunContext(nil, dateFor, force)
	if err != nil {
		return nil, false, err
	}
	site, err := r.siteForCourse(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	rc.Site = site

	m, created, err := r.LoadCourseDaily(ctx, rc, courseID)
	metrics.RecordPipelineRun("course_daily", time.Since(start), err)
	return m, created, err
}

// RunSiteDailyMetrics loads site daily metrics for siteID. A zero dateFor
// means yesterday.
func (r *Runner) RunSiteDailyMetrics(ctx context.Context, siteID int64, dateFor time.Time, force bool) (*models.SiteDailyMetrics, bool, error) {
	start := time.Now()
	rc, err := r.NewRunContext(nil, dateFor, force)
	if err != nil {
		return nil, false, err
	}
	site, err := r.Site(ctx, siteID)
	if err != nil {
		return nil, false, err
	}
	rc.Site = site

	m, created, err := r.LoadSiteDaily(ctx, rc)
	metrics.RecordPipelineRun("site_daily", time.Since(start), err)
	return m, created, err
}

// DailySummary reports one RunDailyMetrics call.
type DailySummary struct {
	DateFor       time.Time `json:"date_for"`
	Sites         int       `json:"sites"`
	CoursesLoaded int       `json:"courses_loaded"`
	CoursesFailed int       `json:"courses_failed"`
	SitesFailed   int       `json:"sites_failed"`
}

// RunDailyMetrics loads course then site daily metrics for every site. Course
// and site failures are sent to the error sink and the run continues.
func (r *Runner) RunDailyMetrics(ctx context.Context, dateFor time.Time, force bool) (*DailySummary, error) {
	start := time.Now()
	rc, err := r.NewRunContext(nil, dateFor, force)
	if err != nil {
		return nil, err
	}
	sites, err := r.scope.Sites(ctx)
	if err != nil {
		metrics.RecordPipelineRun("daily", time.Since(start), err)
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	summary := &DailySummary{DateFor: rc.DateFor, Sites: len(sites)}
	for i := range sites {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		siteRC := rc
		siteRC.Site = &sites[i]
		loaded, failed, err := r.runSiteDay(ctx, siteRC)
		summary.CoursesLoaded += loaded
		summary.CoursesFailed += failed
		if err != nil {
			summary.SitesFailed++
			r.sink.LogError(ctx, map[string]any{
				"msg":      "Unable to load site daily metrics",
				"date_for": rc.DateFor.Format(time.DateOnly),
				"error":    err.Error(),
			}, models.ErrorTypeSite, ForSite(sites[i].ID))
		}
	}

	metrics.RecordPipelineRun("daily", time.Since(start), nil)
	r.logger.Info().
		Str("date_for", rc.DateFor.Format(time.DateOnly)).
		Int("sites", summary.Sites).
		Int("courses_loaded", summary.CoursesLoaded).
		Int("courses_failed", summary.CoursesFailed).
		Int("sites_failed", summary.SitesFailed).
		Dur("elapsed", time.Since(start)).
		Msg("daily metrics run complete")
	return summary, nil
}

func (r *Runner) runSiteDay(ctx context.Context, rc RunContext) (loaded, failed int, err error) {
	courses, err := r.scope.CourseIDsForSite(ctx, rc.Site)
	if err != nil {
		return 0, 0, err
	}
	for _, courseID := range courses {
		if _, _, err := r.LoadCourseDaily(ctx, rc, courseID); err != nil {
			failed++
			r.sink.LogError(ctx, map[string]any{
				"msg":      "Unable to load course daily metrics",
				"date_for": rc.DateFor.Format(time.DateOnly),
				"error":    err.Error(),
			}, models.ErrorTypeCourse, ForCourse(courseID), ForSite(rc.Site.ID))
			continue
		}
		loaded++
	}
	if _, _, err := r.LoadSiteDaily(ctx, rc); err != nil {
		return loaded, failed, err
	}
	return loaded, failed, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
