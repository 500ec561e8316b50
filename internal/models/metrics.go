// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package models

import (
	"fmt"
	"time"
)

// CourseDailyMetrics is one day's snapshot for one course. Unique on (course_id, date_for).
type CourseDailyMetrics struct {
	ID                    int64     `json:"id"`
	SiteID                int64     `json:"site_id"`
	CourseID              string    `json:"course_id"`
	DateFor               time.Time `json:"date_for"`
	EnrollmentCount       int       `json:"enrollment_count"`
	ActiveLearnersToday   int       `json:"active_learners_today"`
	AverageProgress       float64   `json:"average_progress"`         // 0.0 - 1.0, two decimals
	AverageDaysToComplete int       `json:"average_days_to_complete"` // rounded to whole days
	NumLearnersCompleted  int       `json:"num_learners_completed"`
	Created               time.Time `json:"created"`
	Modified              time.Time `json:"modified"`
}

func (m CourseDailyMetrics) String() string {
	return fmt.Sprintf("id:%d, date_for:%s, course_id:%s", m.ID, m.DateFor.Format(time.DateOnly), m.CourseID)
}

// SiteDailyMetrics is one day's snapshot for one site. Unique on (site_id, date_for).
//
// CumulativeActiveUserCount is the previous record's cumulative count plus
// TodaysActiveUserCount, so days must be loaded in ascending order without gaps.
type SiteDailyMetrics struct {
	ID                        int64     `json:"id"`
	SiteID                    int64     `json:"site_id"`
	DateFor                   time.Time `json:"date_for"`
	CumulativeActiveUserCount int       `json:"cumulative_active_user_count"`
	TodaysActiveUserCount     int       `json:"todays_active_user_count"`
	TotalUserCount            int       `json:"total_user_count"`
	CourseCount               int       `json:"course_count"`
	TotalEnrollmentCount      int       `json:"total_enrollment_count"`
	MAU                       int       `json:"mau"` // distinct learners from the 1st of the month through date_for
	Created                   time.Time `json:"created"`
	Modified                  time.Time `json:"modified"`
}

func (m SiteDailyMetrics) String() string {
	return fmt.Sprintf("id:%d, date_for:%s, site_id:%d", m.ID, m.DateFor.Format(time.DateOnly), m.SiteID)
}

// LearnerCourseGradeMetrics is a point-in-time progress snapshot for one
// learner in one course. The current view is the row with the latest DateFor.
type LearnerCourseGradeMetrics struct {
	ID               int64     `json:"id"`
	SiteID           int64     `json:"site_id"`
	UserID           int64     `json:"user_id"`
	CourseID         string    `json:"course_id"`
	DateFor          time.Time `json:"date_for"`
	PointsPossible   float64   `json:"points_possible"`
	PointsEarned     float64   `json:"points_earned"`
	SectionsWorked   int       `json:"sections_worked"`
	SectionsPossible int       `json:"sections_possible"`
	Created          time.Time `json:"created"`
	Modified         time.Time `json:"modified"`
}

// ProgressPercent is SectionsWorked / SectionsPossible, or 0 for a course with
// no graded sections.
func (m LearnerCourseGradeMetrics) ProgressPercent() float64 {
	if m.SectionsPossible == 0 {
		return 0.0
	}
	return float64(m.SectionsWorked) / float64(m.SectionsPossible)
}

// IsCompleted is true once every graded section has been worked.
func (m LearnerCourseGradeMetrics) IsCompleted() bool {
	return m.SectionsWorked > 0 && m.SectionsWorked == m.SectionsPossible
}

// MonthlyActiveMetrics counts distinct active learners for a month. CourseID is
// empty for the site-wide row. Unique on (site_id, course_id, year, month).
type MonthlyActiveMetrics struct {
	ID              int64     `json:"id"`
	SiteID          int64     `json:"site_id"`
	CourseID        string    `json:"course_id,omitempty"`
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	ActiveUserCount int       `json:"active_user_count"`
	Created         time.Time `json:"created"`
	Modified        time.Time `json:"modified"`
}

// IsSiteScope reports whether the row covers the whole site.
func (m MonthlyActiveMetrics) IsSiteScope() bool {
	return m.CourseID == ""
}

// MonthFor returns the first day of the row's month in UTC.
func (m MonthlyActiveMetrics) MonthFor() time.Time {
	return time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC)
}
