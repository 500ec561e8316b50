// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package models

import (
	"testing"
	"time"
)

func TestLearnerCourseGradeMetricsProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		worked    int
		possible  int
		percent   float64
		completed bool
	}{
		{"no graded sections", 0, 0, 0.0, false},
		{"not started", 0, 4, 0.0, false},
		{"half way", 2, 4, 0.5, false},
		{"finished", 4, 4, 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := LearnerCourseGradeMetrics{SectionsWorked: tt.worked, SectionsPossible: tt.possible}
			if got := m.ProgressPercent(); got != tt.percent {
				t.Errorf("ProgressPercent() = %v, want %v", got, tt.percent)
			}
			if got := m.IsCompleted(); got != tt.completed {
				t.Errorf("IsCompleted() = %v, want %v", got, tt.completed)
			}
		})
	}
}

func TestCourseOpenForEnrollmentBy(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	lateThatDay := time.Date(2020, 3, 1, 23, 59, 0, 0, time.UTC)
	nextDay := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)

	if !(Course{Created: nextDay, EnrollmentStart: &lateThatDay}).OpenForEnrollmentBy(day) {
		t.Error("expected enrollment start late on the day to count")
	}
	if (Course{Created: day, EnrollmentStart: &nextDay}).OpenForEnrollmentBy(day) {
		t.Error("expected enrollment start the next day not to count")
	}
	if !(Course{Created: day}).OpenForEnrollmentBy(day) {
		t.Error("expected creation date fallback to count")
	}
}

func TestErrorTypeValid(t *testing.T) {
	t.Parallel()

	for _, et := range []ErrorType{ErrorTypeUnspecified, ErrorTypeGrades, ErrorTypeCourse, ErrorTypeSite} {
		if !et.Valid() {
			t.Errorf("expected %s to be valid", et)
		}
	}
	if ErrorType("NETWORK").Valid() {
		t.Error("expected unknown error type to be invalid")
	}
	if ErrorTypeGrades.Description() != "Grades data error" {
		t.Errorf("unexpected description %q", ErrorTypeGrades.Description())
	}
}

func TestMonthlyActiveMetricsScope(t *testing.T) {
	t.Parallel()

	site := MonthlyActiveMetrics{SiteID: 1, Year: 2020, Month: 2}
	if !site.IsSiteScope() {
		t.Error("expected empty course id to be site scope")
	}
	if got := site.MonthFor(); !got.Equal(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("MonthFor() = %v", got)
	}
	course := MonthlyActiveMetrics{SiteID: 1, CourseID: "course-v1:A+B+C"}
	if course.IsSiteScope() {
		t.Error("expected course row not to be site scope")
	}
}
