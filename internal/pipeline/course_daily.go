// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

const courseDailyTable = "course_daily_metrics"

// LoadCourseDaily computes and upserts the course daily metrics row for
// (courseID, rc.DateFor). An existing row is returned unchanged unless
// rc.ForceUpdate is set. created reports whether the row is new.
func (r *Runner) LoadCourseDaily(ctx context.Context, rc RunContext, courseID string) (*models.CourseDailyMetrics, bool, error) {
	if rc.Site == nil {
		return nil, false, &UnlinkedCourseError{CourseID: courseID}
	}
	rc.DateFor = AsDate(rc.DateFor)

	existing, err := r.store.GetCourseDailyMetrics(ctx, courseID, rc.DateFor)
	if err != nil && !isNotFound(err) {
		return nil, false, fmt.Errorf("failed to read course daily metrics: %w", err)
	}
	if existing != nil && !rc.ForceUpdate {
		metrics.RecordMetricsWrite(courseDailyTable, false, true)
		return existing, false, nil
	}

	data, err := r.extractCourseDaily(ctx, rc, courseID)
	if err != nil {
		return nil, false, err
	}
	if err := validateCourseDaily(data); err != nil {
		return nil, false, err
	}

	saved, err := r.store.UpsertCourseDailyMetrics(ctx, data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save course daily metrics: %w", err)
	}
	created := existing == nil
	metrics.RecordMetricsWrite(courseDailyTable, created, false)
	logging.Ctx(ctx).Debug().
		Str("course_id", courseID).
		Str("date_for", rc.DateFor.Format(time.DateOnly)).
		Bool("created", created).
		Msg("course daily metrics loaded")
	return saved, created, nil
}

func (r *Runner) extractCourseDaily(ctx context.Context, rc RunContext, courseID string) (*models.CourseDailyMetrics, error) {
	reader := r.scope.Reader()
	next := NextDay(rc.DateFor)

	enrollments, err := reader.Enrollments(ctx, platform.EnrollmentQuery{
		CourseIDs:     []string{courseID},
		CreatedBefore: next,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments for %s: %w", courseID, err)
	}
	staff, err := reader.CourseStaffIDs(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load staff for %s: %w", courseID, err)
	}

	active, err := r.scope.ActivityForCourse(ctx, courseID, platform.ActivityQuery{From: rc.DateFor, Before: next})
	if err != nil {
		return nil, err
	}

	avgProgress, err := r.courseProgress(ctx, rc, courseID, enrollments)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Ctx(ctx).Error().Err(err).
			Str("course_id", courseID).
			Str("date_for", rc.DateFor.Format(time.DateOnly)).
			Msg("course progress calculation failed")
		avgProgress = 0.0
	}

	completions, err := reader.Completions(ctx, platform.CompletionQuery{
		CourseIDs:     []string{courseID},
		CreatedBefore: next,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load completions for %s: %w", courseID, err)
	}

	return &models.CourseDailyMetrics{
		SiteID:                rc.Site.ID,
		CourseID:              courseID,
		DateFor:               rc.DateFor,
		EnrollmentCount:       countLearnerEnrollments(enrollments, staff),
		ActiveLearnersToday:   distinctLearners(active),
		AverageProgress:       avgProgress,
		AverageDaysToComplete: int(math.Round(averageDaysToComplete(completions, enrollments))),
		NumLearnersCompleted:  len(completions),
	}, nil
}

// countLearnerEnrollments counts active enrollments of users without a course
// staff role.
func countLearnerEnrollments(enrollments []models.Enrollment, staff []int64) int {
	excluded := make(map[int64]struct{}, len(staff))
	for _, id := range staff {
		excluded[id] = struct{}{}
	}
	n := 0
	for _, e := range enrollments {
		if !e.IsActive {
			continue
		}
		if _, ok := excluded[e.UserID]; ok {
			continue
		}
		n++
	}
	return n
}

// averageDaysToComplete is the mean number of whole days between enrollment
// and completion. Completions without a matching enrollment are skipped.
func averageDaysToComplete(completions []models.Completion, enrollments []models.Enrollment) float64 {
	enrolled := make(map[int64]time.Time, len(enrollments))
	for _, e := range enrollments {
		if first, ok := enrolled[e.UserID]; !ok || e.Created.Before(first) {
			enrolled[e.UserID] = e.Created
		}
	}

	var total float64
	n := 0
	for _, c := range completions {
		start, ok := enrolled[c.UserID]
		if !ok {
			continue
		}
		total += math.Floor(c.CreatedDate.Sub(start).Hours() / 24)
		n++
	}
	if n == 0 {
		return 0.0
	}
	return total / float64(n)
}

func validateCourseDaily(m *models.CourseDailyMetrics) error {
	switch {
	case m.AverageProgress < 0 || m.AverageProgress > 1:
		return &InvalidDataError{Table: courseDailyTable, Field: "average_progress", Reason: fmt.Sprintf("%v is outside [0, 1]", m.AverageProgress)}
	case m.EnrollmentCount < 0:
		return &InvalidDataError{Table: courseDailyTable, Field: "enrollment_count", Reason: "negative"}
	case m.ActiveLearnersToday < 0:
		return &InvalidDataError{Table: courseDailyTable, Field: "active_learners_today", Reason: "negative"}
	}
	return nil
}
