// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform/platformtest"
)

func TestSiteDailyMetricsCumulativeScenario(t *testing.T) {
	t.Parallel()

	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1, Domain: "s.example"}}
	p.UserList = []models.User{
		{ID: 1, DateJoined: day(2020, 1, 1)},
		{ID: 2, DateJoined: day(2020, 3, 1).Add(23 * time.Hour)},
		{ID: 3, DateJoined: day(2020, 3, 2)},
	}
	r, store := newTestRunner(t, p, day(2020, 3, 10))
	ctx := context.Background()

	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 1, CourseID: "a", DateFor: day(2020, 3, 1), ActiveLearnersToday: 4, EnrollmentCount: 10})
	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 1, CourseID: "b", DateFor: day(2020, 3, 1), ActiveLearnersToday: 3, EnrollmentCount: 5})
	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 2, CourseID: "x", DateFor: day(2020, 3, 1), ActiveLearnersToday: 50})

	first, created, err := r.RunSiteDailyMetrics(ctx, 1, day(2020, 3, 1), false)
	if err != nil {
		t.Fatalf("RunSiteDailyMetrics(03-01) error = %v", err)
	}
	if !created {
		t.Error("expected a new row")
	}
	if first.CumulativeActiveUserCount != 7 || first.TodaysActiveUserCount != 7 {
		t.Errorf("03-01 cumulative=%d todays=%d, want 7 and 7", first.CumulativeActiveUserCount, first.TodaysActiveUserCount)
	}
	if first.TotalEnrollmentCount != 15 {
		t.Errorf("TotalEnrollmentCount = %d, want 15", first.TotalEnrollmentCount)
	}
	if first.TotalUserCount != 2 {
		t.Errorf("TotalUserCount = %d, want 2", first.TotalUserCount)
	}

	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 1, CourseID: "a", DateFor: day(2020, 3, 2), ActiveLearnersToday: 1})
	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 1, CourseID: "b", DateFor: day(2020, 3, 2), ActiveLearnersToday: 2})

	second, _, err := r.RunSiteDailyMetrics(ctx, 1, day(2020, 3, 2), false)
	if err != nil {
		t.Fatalf("RunSiteDailyMetrics(03-02) error = %v", err)
	}
	if second.CumulativeActiveUserCount != 10 {
		t.Errorf("03-02 cumulative = %d, want 10", second.CumulativeActiveUserCount)
	}

	again, created, err := r.RunSiteDailyMetrics(ctx, 1, day(2020, 3, 1), false)
	if err != nil {
		t.Fatalf("rerun error = %v", err)
	}
	if created || again.ID != first.ID {
		t.Error("rerun without force must return the stored row")
	}
}

func TestSiteDailyMetricsNoCourseRows(t *testing.T) {
	t.Parallel()

	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1}}
	r, _ := newTestRunner(t, p, day(2020, 3, 10))

	m, _, err := r.RunSiteDailyMetrics(context.Background(), 1, day(2020, 3, 1), false)
	if err != nil {
		t.Fatalf("RunSiteDailyMetrics() error = %v", err)
	}
	if m.TodaysActiveUserCount != 0 || m.CumulativeActiveUserCount != 0 || m.TotalEnrollmentCount != 0 {
		t.Errorf("expected zero counts, got %+v", m)
	}
}

func TestSiteDailyMetricsFutureDate(t *testing.T) {
	t.Parallel()

	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1}}
	r, store := newTestRunner(t, p, day(2020, 3, 10))

	_, _, err := r.RunSiteDailyMetrics(context.Background(), 1, day(2020, 3, 11), true)
	var futureErr *DateForCannotBeFutureError
	if !errors.As(err, &futureErr) {
		t.Fatalf("expected DateForCannotBeFutureError, got %v", err)
	}
	if store.WriteCount() != 0 {
		t.Error("a rejected date must not write rows")
	}
}

// dailyPlatform has one course with activity on 2020-03-01, 03-02 and 03-04.
func dailyPlatform() *platformtest.Platform {
	const course = "course-v1:S+1+2020"
	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1}}
	start := day(2020, 2, 1)
	p.CourseList = []models.Course{
		{ID: course, Created: day(2020, 1, 1), EnrollmentStart: &start},
		{ID: "course-v1:S+2+2020", Created: day(2020, 3, 3)},
	}
	p.UserList = []models.User{
		{ID: 1, DateJoined: day(2020, 1, 1)},
		{ID: 2, DateJoined: day(2020, 1, 1)},
		{ID: 3, DateJoined: day(2020, 3, 3)},
	}
	for i, uid := range []int64{1, 2, 3} {
		p.EnrollmentSet = append(p.EnrollmentSet, models.Enrollment{
			ID: int64(i + 1), UserID: uid, CourseID: course, Created: day(2020, 2, 1), IsActive: true,
		})
	}
	activity := []struct {
		user int64
		when time.Time
	}{
		{1, day(2020, 3, 1).Add(8 * time.Hour)},
		{2, day(2020, 3, 1).Add(9 * time.Hour)},
		{1, day(2020, 3, 2).Add(10 * time.Hour)},
		{1, day(2020, 3, 4).Add(1 * time.Hour)},
		{2, day(2020, 3, 4).Add(2 * time.Hour)},
		{3, day(2020, 3, 4).Add(3 * time.Hour)},
	}
	for i, a := range activity {
		p.Activity = append(p.Activity, models.ActivityRecord{
			ID: int64(i + 1), StudentID: a.user, CourseID: course, ModuleID: "m", Created: a.when, Modified: a.when,
		})
	}
	return p
}

func TestDailyMetricsCumulativeInvariant(t *testing.T) {
	t.Parallel()

	p := dailyPlatform()
	r, store := newTestRunner(t, p, day(2020, 3, 20))
	ctx := context.Background()

	days := DaysBetween(day(2020, 3, 1), day(2020, 3, 4))
	for _, d := range days {
		summary, err := r.RunDailyMetrics(ctx, d, false)
		if err != nil {
			t.Fatalf("RunDailyMetrics(%s) error = %v", d.Format(time.DateOnly), err)
		}
		if summary.CoursesFailed != 0 || summary.SitesFailed != 0 {
			t.Fatalf("unexpected failures: %+v", summary)
		}
	}

	wantTodays := []int{2, 1, 0, 3}
	var prev *models.SiteDailyMetrics
	for i, d := range days {
		m, err := store.GetSiteDailyMetrics(ctx, 1, d)
		if err != nil {
			t.Fatalf("missing site row for %s: %v", d.Format(time.DateOnly), err)
		}
		if m.TodaysActiveUserCount != wantTodays[i] {
			t.Errorf("%s todays = %d, want %d", d.Format(time.DateOnly), m.TodaysActiveUserCount, wantTodays[i])
		}
		if prev == nil {
			if m.CumulativeActiveUserCount != m.TodaysActiveUserCount {
				t.Errorf("first day cumulative = %d, want %d", m.CumulativeActiveUserCount, m.TodaysActiveUserCount)
			}
		} else if m.CumulativeActiveUserCount != prev.CumulativeActiveUserCount+m.TodaysActiveUserCount {
			t.Errorf("%s cumulative = %d, want %d", d.Format(time.DateOnly),
				m.CumulativeActiveUserCount, prev.CumulativeActiveUserCount+m.TodaysActiveUserCount)
		}
		prev = m
	}

	last, _ := store.GetSiteDailyMetrics(ctx, 1, day(2020, 3, 4))
	if last.MAU != 3 {
		t.Errorf("MAU = %d, want 3", last.MAU)
	}
	if last.CourseCount != 2 {
		t.Errorf("CourseCount = %d, want 2", last.CourseCount)
	}
	if last.TotalUserCount != 3 {
		t.Errorf("TotalUserCount = %d, want 3", last.TotalUserCount)
	}
}

func TestDailyMetricsContinuesPastCourseFailure(t *testing.T) {
	t.Parallel()

	p := dailyPlatform()
	r, store := newTestRunner(t, p, day(2020, 3, 20))
	store.FailCourseDaily["course-v1:S+2+2020"] = errors.New("disk full")

	summary, err := r.RunDailyMetrics(context.Background(), day(2020, 3, 4), false)
	if err != nil {
		t.Fatalf("RunDailyMetrics() error = %v", err)
	}
	if summary.CoursesLoaded != 1 || summary.CoursesFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := store.GetSiteDailyMetrics(context.Background(), 1, day(2020, 3, 4)); err != nil {
		t.Errorf("site row must still be written: %v", err)
	}
	if len(store.ErrorsOfType(models.ErrorTypeCourse)) != 1 {
		t.Error("expected the course failure in the error sink")
	}
}

func TestMissingCourseDailyMetrics(t *testing.T) {
	t.Parallel()

	p := dailyPlatform()
	p.EnrollmentSet = append(p.EnrollmentSet, models.Enrollment{
		ID: 10, UserID: 3, CourseID: "course-v1:S+2+2020", Created: day(2020, 3, 3).Add(5 * time.Hour), IsActive: true,
	})
	p.CourseList = append(p.CourseList, models.Course{ID: "course-v1:S+3+2020", Created: day(2020, 1, 1)})
	r, store := newTestRunner(t, p, day(2020, 3, 20))
	store.PutCourseDaily(models.CourseDailyMetrics{SiteID: 1, CourseID: "course-v1:S+1+2020", DateFor: day(2020, 3, 4)})

	missing, err := r.MissingCourseDailyMetrics(context.Background(), &models.Site{ID: 1}, day(2020, 3, 4))
	if err != nil {
		t.Fatalf("MissingCourseDailyMetrics() error = %v", err)
	}
	if len(missing) != 1 || missing[0] != "course-v1:S+2+2020" {
		t.Errorf("missing = %v", missing)
	}

	missing, _ = r.MissingCourseDailyMetrics(context.Background(), &models.Site{ID: 1}, day(2020, 3, 2))
	if len(missing) != 1 || missing[0] != "course-v1:S+1+2020" {
		t.Errorf("course first enrolled after the date must not be reported, got %v", missing)
	}
}

func TestCoursesStartedBy(t *testing.T) {
	t.Parallel()

	firsts := map[string]time.Time{
		"a": day(2020, 3, 1).Add(23 * time.Hour),
		"b": day(2020, 3, 2),
	}
	got := CoursesStartedBy([]string{"a", "b", "c"}, firsts, day(2020, 3, 1))
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("CoursesStartedBy() = %v, want [a]", got)
	}
}
