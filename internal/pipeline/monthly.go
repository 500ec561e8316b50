// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

const monthlyTable = "monthly_active_metrics"

// FillMonth stores the site's monthly active user count for monthFor's
// month. records, when non-nil, replaces the activity lookup and is filtered
// to the month. An existing row is returned unchanged unless overwrite is set.
func (r *Runner) FillMonth(ctx context.Context, site *models.Site, monthFor time.Time, records []models.ActivityRecord, overwrite bool) (*models.MonthlyActiveMetrics, bool, error) {
	month := MonthStart(monthFor)
	existing, err := r.existingMonth(ctx, site.ID, "", month)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !overwrite {
		metrics.RecordMetricsWrite(monthlyTable, false, true)
		return existing, false, nil
	}

	if records == nil {
		records, err = r.scope.ActivityForSite(ctx, site, platform.ActivityQuery{From: month, Before: month.AddDate(0, 1, 0)})
		if err != nil {
			return nil, false, err
		}
	} else {
		records = modifiedInMonth(records, month)
	}

	return r.saveMonth(ctx, &models.MonthlyActiveMetrics{
		SiteID:          site.ID,
		Year:            month.Year(),
		Month:           int(month.Month()),
		ActiveUserCount: distinctLearners(records),
	}, existing == nil)
}

// RunMonthlyFill fills the site monthly active users for siteID.
func (r *Runner) RunMonthlyFill(ctx context.Context, siteID int64, monthFor time.Time, overwrite bool) (*models.MonthlyActiveMetrics, bool, error) {
	start := time.Now()
	site, err := r.Site(ctx, siteID)
	if err != nil {
		return nil, false, err
	}
	m, created, err := r.FillMonth(ctx, site, monthFor, nil, overwrite)
	metrics.RecordPipelineRun("monthly", time.Since(start), err)
	return m, created, err
}

// FillLastMonth fills the calendar month before the current one.
func (r *Runner) FillLastMonth(ctx context.Context, siteID int64, overwrite bool) (*models.MonthlyActiveMetrics, bool, error) {
	return r.RunMonthlyFill(ctx, siteID, PreviousMonth(r.now()), overwrite)
}

// CollectCourseMAU stores the monthly active user count of one course.
func (r *Runner) CollectCourseMAU(ctx context.Context, siteID int64, courseID string, monthFor time.Time, overwrite bool) (*models.MonthlyActiveMetrics, bool, error) {
	site, err := r.Site(ctx, siteID)
	if err != nil {
		return nil, false, err
	}
	inSite, err := r.scope.CourseInSite(ctx, site, courseID)
	if err != nil {
		return nil, false, err
	}
	if !inSite {
		return nil, false, &InvalidDataError{
			Table:  monthlyTable,
			Field:  "course_id",
			Reason: fmt.Sprintf("course %s does not belong to site %d", courseID, site.ID),
		}
	}

	month := MonthStart(monthFor)
	existing, err := r.existingMonth(ctx, site.ID, courseID, month)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && !overwrite {
		metrics.RecordMetricsWrite(monthlyTable, false, true)
		return existing, false, nil
	}

	records, err := r.scope.ActivityForCourse(ctx, courseID, platform.ActivityQuery{From: month, Before: month.AddDate(0, 1, 0)})
	if err != nil {
		return nil, false, err
	}
	return r.saveMonth(ctx, &models.MonthlyActiveMetrics{
		SiteID:          site.ID,
		CourseID:        courseID,
		Year:            month.Year(),
		Month:           int(month.Month()),
		ActiveUserCount: distinctLearners(records),
	}, existing == nil)
}

// MonthlySummary reports one RunMonthlyMetrics call.
type MonthlySummary struct {
	Month        time.Time `json:"month"`
	Sites        int       `json:"sites"`
	CourseRows   int       `json:"course_rows"`
	SitesFailed  int       `json:"sites_failed"`
	CourseFailed int       `json:"courses_failed"`
}

// RunMonthlyMetrics fills last month's site and course monthly active users
// for every site.
func (r *Runner) RunMonthlyMetrics(ctx context.Context, overwrite bool) (*MonthlySummary, error) {
	month := PreviousMonth(r.now())
	sites, err := r.scope.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	summary := &MonthlySummary{Month: month, Sites: len(sites)}
	for i := range sites {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		site := &sites[i]
		if _, _, err := r.FillMonth(ctx, site, month, nil, overwrite); err != nil {
			summary.SitesFailed++
			r.sink.LogError(ctx, map[string]any{
				"msg":   "Unable to fill site monthly metrics",
				"month": month.Format("2006-01"),
				"error": err.Error(),
			}, models.ErrorTypeSite, ForSite(site.ID))
			continue
		}
		courses, err := r.scope.CourseIDsForSite(ctx, site)
		if err != nil {
			summary.SitesFailed++
			continue
		}
		for _, courseID := range courses {
			if _, _, err := r.CollectCourseMAU(ctx, site.ID, courseID, month, overwrite); err != nil {
				summary.CourseFailed++
				r.sink.LogError(ctx, map[string]any{
					"msg":   "Unable to collect course MAU",
					"month": month.Format("2006-01"),
					"error": err.Error(),
				}, models.ErrorTypeCourse, ForCourse(courseID), ForSite(site.ID))
				continue
			}
			summary.CourseRows++
		}
	}
	return summary, nil
}

// BackfillMonthlyMetricsForSite fills every month from the site's first
// activity through the last completed month. It returns nil when the site has
// no activity.
func (r *Runner) BackfillMonthlyMetricsForSite(ctx context.Context, siteID int64, overwrite bool) ([]models.MonthlyActiveMetrics, error) {
	site, err := r.Site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	courseIDs, err := r.scope.CourseIDsForSite(ctx, site)
	if err != nil {
		return nil, err
	}
	if len(courseIDs) == 0 {
		return nil, nil
	}
	first, ok, err := r.scope.Reader().FirstActivity(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to find first activity for site %d: %w", siteID, err)
	}
	if !ok {
		return nil, nil
	}

	last := PreviousMonth(r.now())
	records, err := r.scope.ActivityForSite(ctx, site, platform.ActivityQuery{
		From:   MonthStart(first),
		Before: last.AddDate(0, 1, 0),
	})
	if err != nil {
		return nil, err
	}

	var filled []models.MonthlyActiveMetrics
	for _, month := range MonthsBetween(first, last) {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		m, _, err := r.FillMonth(ctx, site, month, records, overwrite)
		if err != nil {
			return filled, err
		}
		filled = append(filled, *m)
	}
	return filled, nil
}

func (r *Runner) existingMonth(ctx context.Context, siteID int64, courseID string, month time.Time) (*models.MonthlyActiveMetrics, error) {
	m, err := r.store.GetMonthlyActiveMetrics(ctx, siteID, courseID, month.Year(), int(month.Month()))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read monthly metrics: %w", err)
	}
	return m, nil
}

func (r *Runner) saveMonth(ctx context.Context, m *models.MonthlyActiveMetrics, created bool) (*models.MonthlyActiveMetrics, bool, error) {
	saved, err := r.store.UpsertMonthlyActiveMetrics(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save monthly metrics: %w", err)
	}
	metrics.RecordMetricsWrite(monthlyTable, created, false)
	return saved, created, nil
}

func modifiedInMonth(records []models.ActivityRecord, month time.Time) []models.ActivityRecord {
	end := month.AddDate(0, 1, 0)
	out := make([]models.ActivityRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Modified.Before(month) && rec.Modified.Before(end) {
			out = append(out, rec)
		}
	}
	return out
}
