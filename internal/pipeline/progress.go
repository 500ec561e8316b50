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

	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

const learnerGradeTable = "learner_course_grade_metrics"

// progressData summarizes a learner's graded sections.
type progressData struct {
	pointsPossible   float64
	pointsEarned     float64
	sectionsWorked   int
	sectionsPossible int
}

// summarizeSections totals graded sections only. A section counts as worked
// once any points are earned in it.
func summarizeSections(sections []models.GradedSection) progressData {
	var p progressData
	for _, s := range sections {
		if !s.IsGraded() {
			continue
		}
		p.sectionsPossible++
		p.pointsPossible += s.Possible
		p.pointsEarned += s.Earned
		if s.Earned > 0 {
			p.sectionsWorked++
		}
	}
	return p
}

// needsProgressUpdate decides whether an enrollment needs a new snapshot.
//
//	snapshot  activity  result
//	no        no        false (not started)
//	yes       yes       snapshot day is before the activity day
//	no        yes       true
//	yes       no        false, and a course data error is logged
func (r *Runner) needsProgressUpdate(ctx context.Context, lcgm *models.LearnerCourseGradeMetrics, sm *models.ActivityRecord) bool {
	switch {
	case lcgm == nil && sm == nil:
		return false
	case lcgm != nil && sm != nil:
		return lcgm.DateFor.Before(AsDate(sm.Modified))
	case sm != nil:
		return true
	default:
		r.sink.LogError(ctx, map[string]any{
			"msg": "LearnerCourseGradeMetrics record exists without StudentModule",
		}, models.ErrorTypeCourse, ForUser(lcgm.UserID), ForCourse(lcgm.CourseID))
		return false
	}
}

// collectEnrollmentProgress returns the current progress snapshot for e,
// writing a new one when the learner has activity newer than the last
// snapshot. It returns nil when the learner has neither.
func (r *Runner) collectEnrollmentProgress(ctx context.Context, rc RunContext, e models.Enrollment, idx *ActivityIndex) (*models.LearnerCourseGradeMetrics, error) {
	var sm *models.ActivityRecord
	if rec, ok := idx.Latest(e.UserID, e.CourseID); ok {
		sm = &rec
	}

	lcgm, err := r.store.LatestLearnerCourseGradeMetrics(ctx, e.UserID, e.CourseID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to load progress for user %d: %w", e.UserID, err)
	}

	if !r.needsProgressUpdate(ctx, lcgm, sm) {
		return lcgm, nil
	}

	sections, err := r.grades.LearnerGradeStructure(ctx, e.UserID, e.CourseID)
	if err != nil {
		r.sink.LogError(ctx, map[string]any{
			"msg":       "Unable to get course blocks",
			"username":  e.Username,
			"course_id": e.CourseID,
			"exception": err.Error(),
		}, models.ErrorTypeGrades, ForUser(e.UserID), ForCourse(e.CourseID))
		// Zero progress for this learner; the snapshot is not stored.
		return &models.LearnerCourseGradeMetrics{
			UserID:   e.UserID,
			CourseID: e.CourseID,
			DateFor:  rc.DateFor,
		}, nil
	}

	p := summarizeSections(sections)
	saved, err := r.store.UpsertLearnerCourseGradeMetrics(ctx, &models.LearnerCourseGradeMetrics{
		SiteID:           siteID(rc),
		UserID:           e.UserID,
		CourseID:         e.CourseID,
		DateFor:          rc.DateFor,
		PointsPossible:   p.pointsPossible,
		PointsEarned:     p.pointsEarned,
		SectionsWorked:   p.sectionsWorked,
		SectionsPossible: p.sectionsPossible,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save progress for user %d: %w", e.UserID, err)
	}
	metrics.RecordMetricsWrite(learnerGradeTable, lcgm == nil, false)
	return saved, nil
}

// courseProgress collects progress for every enrollment and returns the mean
// progress percent rounded to two decimals. Enrollments without progress data
// are logged and left out of the mean.
func (r *Runner) courseProgress(ctx context.Context, rc RunContext, courseID string, enrollments []models.Enrollment) (float64, error) {
	records, err := r.scope.ActivityForCourse(ctx, courseID, platform.ActivityQuery{})
	if err != nil {
		return 0, err
	}
	// Unbounded, so a snapshot written by a later run still finds the
	// activity it was computed from.
	idx := NewActivityIndex(records)

	percentages := make([]float64, 0, len(enrollments))
	for _, e := range enrollments {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		m, err := r.collectEnrollmentProgress(ctx, rc, e, idx)
		if err != nil {
			return 0, err
		}
		if m == nil {
			r.sink.LogError(ctx, map[string]any{
				"msg": fmt.Sprintf("Unable to create or retrieve enrollment metrics for user %s and course %s",
					e.Username, courseID),
			}, models.ErrorTypeCourse, ForUser(e.UserID), ForCourse(courseID))
			continue
		}
		percentages = append(percentages, m.ProgressPercent())
	}
	return averageProgress(percentages), nil
}

func averageProgress(percentages []float64) float64 {
	if len(percentages) == 0 {
		return 0.0
	}
	var sum float64
	for _, p := range percentages {
		sum += p
	}
	return roundTo(sum/float64(len(percentages)), 2)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// UpdateProgressForActiveEnrollments refreshes progress snapshots for the
// learners whose activity in courseID was created or modified on dateFor.
// It returns the number of snapshots written or confirmed current.
func (r *Runner) UpdateProgressForActiveEnrollments(ctx context.Context, courseID string, dateFor time.Time) (int, error) {
	rc, err := r.NewRunContext(nil, dateFor, false)
	if err != nil {
		return 0, err
	}
	site, err := r.siteForCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	rc.Site = site

	active, err := r.scope.ActivityForCourse(ctx, courseID, platform.ActivityQuery{
		From:           rc.DateFor,
		Before:         NextDay(rc.DateFor),
		IncludeCreated: true,
	})
	if err != nil {
		return 0, err
	}
	learners := NewActivityIndex(active).Learners()
	if len(learners) == 0 {
		return 0, nil
	}

	records, err := r.scope.ActivityForCourse(ctx, courseID, platform.ActivityQuery{})
	if err != nil {
		return 0, err
	}
	idx := NewActivityIndex(records)

	updated := 0
	for _, userID := range learners {
		enrollments, err := r.scope.Reader().Enrollments(ctx, platform.EnrollmentQuery{
			CourseIDs: []string{courseID},
			UserID:    userID,
		})
		if err != nil {
			return updated, err
		}
		for _, e := range enrollments {
			m, err := r.collectEnrollmentProgress(ctx, rc, e, idx)
			if err != nil {
				return updated, err
			}
			if m != nil {
				updated++
			}
		}
	}
	return updated, nil
}

func siteID(rc RunContext) int64 {
	if rc.Site == nil {
		return 0
	}
	return rc.Site.ID
}
