// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

const siteDailyTable = "site_daily_metrics"

// LoadSiteDaily computes and upserts the site daily metrics row for
// (rc.Site, rc.DateFor). The course rows for the same day must already exist;
// missing ones are logged and count as zero.
func (r *Runner) LoadSiteDaily(ctx context.Context, rc RunContext) (*models.SiteDailyMetrics, bool, error) {
	if rc.Site == nil {
		return nil, false, fmt.Errorf("site daily metrics: %w", platform.ErrSiteNotFound)
	}
	rc.DateFor = AsDate(rc.DateFor)

	existing, err := r.store.GetSiteDailyMetrics(ctx, rc.Site.ID, rc.DateFor)
	if err != nil && !isNotFound(err) {
		return nil, false, fmt.Errorf("failed to read site daily metrics: %w", err)
	}
	if existing != nil && !rc.ForceUpdate {
		metrics.RecordMetricsWrite(siteDailyTable, false, true)
		return existing, false, nil
	}

	missing, err := r.MissingCourseDailyMetrics(ctx, rc.Site, rc.DateFor)
	if err != nil {
		return nil, false, err
	}
	if len(missing) > 0 {
		logging.Ctx(ctx).Warn().
			Int64("site_id", rc.Site.ID).
			Str("date_for", rc.DateFor.Format(time.DateOnly)).
			Strs("course_ids", missing).
			Msg("course daily metrics missing for site rollup")
	}

	data, err := r.extractSiteDaily(ctx, rc)
	if err != nil {
		return nil, false, err
	}
	saved, err := r.store.UpsertSiteDailyMetrics(ctx, data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save site daily metrics: %w", err)
	}
	created := existing == nil
	metrics.RecordMetricsWrite(siteDailyTable, created, false)
	logging.Ctx(ctx).Debug().
		Int64("site_id", rc.Site.ID).
		Str("date_for", rc.DateFor.Format(time.DateOnly)).
		Int("cumulative_active_user_count", saved.CumulativeActiveUserCount).
		Bool("created", created).
		Msg("site daily metrics loaded")
	return saved, created, nil
}

func (r *Runner) extractSiteDaily(ctx context.Context, rc RunContext) (*models.SiteDailyMetrics, error) {
	site := rc.Site
	next := NextDay(rc.DateFor)

	users, err := r.scope.UsersForSite(ctx, site, next)
	if err != nil {
		return nil, err
	}
	courses, err := r.scope.CoursesForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	courseCount := 0
	for _, c := range courses {
		if c.OpenForEnrollmentBy(rc.DateFor) {
			courseCount++
		}
	}

	courseRows, err := r.store.CourseDailyMetricsForSiteDate(ctx, site.ID, rc.DateFor)
	if err != nil {
		return nil, fmt.Errorf("failed to read course daily metrics for site %d: %w", site.ID, err)
	}
	todays, enrollments := 0, 0
	for _, row := range courseRows {
		todays += row.ActiveLearnersToday
		enrollments += row.EnrollmentCount
	}

	previous := 0
	prev, err := r.store.LatestSiteDailyMetricsBefore(ctx, site.ID, rc.DateFor)
	switch {
	case err == nil:
		previous = prev.CumulativeActiveUserCount
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to read previous site daily metrics: %w", err)
	}

	monthActivity, err := r.scope.ActivityForSite(ctx, site, platform.ActivityQuery{From: MonthStart(rc.DateFor), Before: next})
	if err != nil {
		return nil, err
	}

	return &models.SiteDailyMetrics{
		SiteID:                    site.ID,
		DateFor:                   rc.DateFor,
		CumulativeActiveUserCount: previous + todays,
		TodaysActiveUserCount:     todays,
		TotalUserCount:            len(users),
		CourseCount:               courseCount,
		TotalEnrollmentCount:      enrollments,
		MAU:                       distinctLearners(monthActivity),
	}, nil
}

// MissingCourseDailyMetrics returns the site courses whose first enrollment is
// on or before dateFor and that have no course daily metrics row for that day.
// Courses without enrollments are never loaded, so they are never missing.
func (r *Runner) MissingCourseDailyMetrics(ctx context.Context, site *models.Site, dateFor time.Time) ([]string, error) {
	dateFor = AsDate(dateFor)
	rows, err := r.store.CourseDailyMetricsForSiteDate(ctx, site.ID, dateFor)
	if err != nil {
		return nil, fmt.Errorf("failed to read course daily metrics for site %d: %w", site.ID, err)
	}
	have := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		have[row.CourseID] = struct{}{}
	}

	courseIDs, err := r.scope.CourseIDsForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	firsts, err := r.scope.Reader().FirstEnrollments(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to read first enrollments for site %d: %w", site.ID, err)
	}
	var missing []string
	for _, id := range CoursesStartedBy(courseIDs, firsts, dateFor) {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CoursesStartedBy returns the course ids whose first enrollment is on or
// before dateFor, in the input order. firsts comes from
// platform.Reader.FirstEnrollments.
func CoursesStartedBy(courseIDs []string, firsts map[string]time.Time, dateFor time.Time) []string {
	dateFor = AsDate(dateFor)
	var out []string
	for _, id := range courseIDs {
		first, ok := firsts[id]
		if ok && !AsDate(first).After(dateFor) {
			out = append(out, id)
		}
	}
	return out
}
