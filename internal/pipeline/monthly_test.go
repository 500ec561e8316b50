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

const monthCourse = "course-v1:M+1+2020"

func monthlyPlatform() *platformtest.Platform {
	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1}}
	p.CourseList = []models.Course{{ID: monthCourse, Created: day(2019, 12, 1)}}
	add := func(id, user int64, when time.Time) {
		p.Activity = append(p.Activity, models.ActivityRecord{
			ID: id, StudentID: user, CourseID: monthCourse, Created: when, Modified: when,
		})
	}
	add(1, 1, day(2020, 1, 20))
	add(2, 1, day(2020, 2, 3))
	add(3, 1, day(2020, 2, 28).Add(23*time.Hour))
	add(4, 2, day(2020, 2, 14))
	add(5, 3, day(2020, 3, 1))
	return p
}

func TestFillMonth(t *testing.T) {
	t.Parallel()

	p := monthlyPlatform()
	r, _ := newTestRunner(t, p, day(2020, 4, 15))
	ctx := context.Background()

	m, created, err := r.RunMonthlyFill(ctx, 1, day(2020, 2, 17), false)
	if err != nil {
		t.Fatalf("RunMonthlyFill() error = %v", err)
	}
	if !created || m.ActiveUserCount != 2 || m.Year != 2020 || m.Month != 2 || !m.IsSiteScope() {
		t.Errorf("unexpected row %+v created=%v", m, created)
	}

	p.Activity = append(p.Activity, models.ActivityRecord{ID: 6, StudentID: 3, CourseID: monthCourse, Modified: day(2020, 2, 20)})

	kept, created, err := r.RunMonthlyFill(ctx, 1, day(2020, 2, 1), false)
	if err != nil {
		t.Fatalf("rerun error = %v", err)
	}
	if created || kept.ActiveUserCount != 2 {
		t.Errorf("rerun without overwrite must keep the row, got %+v", kept)
	}

	updated, created, err := r.RunMonthlyFill(ctx, 1, day(2020, 2, 1), true)
	if err != nil {
		t.Fatalf("overwrite error = %v", err)
	}
	if created || updated.ActiveUserCount != 3 || updated.ID != m.ID {
		t.Errorf("overwrite = %+v created=%v", updated, created)
	}
}

func TestFillMonthWithRecords(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t, platformtest.New(), day(2020, 4, 15))
	records := []models.ActivityRecord{
		{StudentID: 1, Modified: day(2020, 1, 31).Add(23 * time.Hour)},
		{StudentID: 2, Modified: day(2020, 2, 1)},
		{StudentID: 2, Modified: day(2020, 2, 2)},
		{StudentID: 3, Modified: day(2020, 3, 1)},
	}
	m, _, err := r.FillMonth(context.Background(), &models.Site{ID: 7}, day(2020, 2, 1), records, false)
	if err != nil {
		t.Fatalf("FillMonth() error = %v", err)
	}
	if m.ActiveUserCount != 1 || m.SiteID != 7 {
		t.Errorf("FillMonth() = %+v", m)
	}
}

func TestCollectCourseMAU(t *testing.T) {
	t.Parallel()

	p := monthlyPlatform()
	r, store := newTestRunner(t, p, day(2020, 4, 15))

	m, created, err := r.CollectCourseMAU(context.Background(), 1, monthCourse, day(2020, 2, 1), false)
	if err != nil {
		t.Fatalf("CollectCourseMAU() error = %v", err)
	}
	if !created || m.CourseID != monthCourse || m.ActiveUserCount != 2 {
		t.Errorf("CollectCourseMAU() = %+v", m)
	}
	if _, err := store.GetMonthlyActiveMetrics(context.Background(), 1, "", 2020, 2); err == nil {
		t.Error("course MAU must not write the site row")
	}
}

func TestCollectCourseMAUWrongSite(t *testing.T) {
	t.Parallel()

	p := monthlyPlatform()
	p.SiteList = append(p.SiteList, models.Site{ID: 2})
	p.Organizations = []models.Organization{{ID: 10, Name: "one"}}
	p.OrgSites[10] = []int64{1}
	p.OrgCourses[10] = []string{monthCourse}
	r, _ := newTestRunnerMultisite(t, p, day(2020, 4, 15))

	_, _, err := r.CollectCourseMAU(context.Background(), 2, monthCourse, day(2020, 2, 1), false)
	var invalid *InvalidDataError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidDataError, got %v", err)
	}
}

func TestBackfillMonthlyMetricsForSite(t *testing.T) {
	t.Parallel()

	p := monthlyPlatform()
	r, _ := newTestRunner(t, p, day(2020, 4, 15))

	rows, err := r.BackfillMonthlyMetricsForSite(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("BackfillMonthlyMetricsForSite() error = %v", err)
	}
	want := map[int]int{1: 1, 2: 2, 3: 1}
	if len(rows) != len(want) {
		t.Fatalf("expected %d months, got %d: %+v", len(want), len(rows), rows)
	}
	for _, row := range rows {
		if row.ActiveUserCount != want[row.Month] {
			t.Errorf("month %d count = %d, want %d", row.Month, row.ActiveUserCount, want[row.Month])
		}
	}
}

func TestBackfillMonthlyMetricsNoActivity(t *testing.T) {
	t.Parallel()

	p := platformtest.New()
	p.SiteList = []models.Site{{ID: 1}}
	r, _ := newTestRunner(t, p, day(2020, 4, 15))

	rows, err := r.BackfillMonthlyMetricsForSite(context.Background(), 1, false)
	if err != nil || rows != nil {
		t.Errorf("BackfillMonthlyMetricsForSite() = %v, %v; want nil, nil", rows, err)
	}
}

func TestRunMonthlyMetrics(t *testing.T) {
	t.Parallel()

	p := monthlyPlatform()
	r, store := newTestRunner(t, p, day(2020, 3, 9))

	summary, err := r.RunMonthlyMetrics(context.Background(), false)
	if err != nil {
		t.Fatalf("RunMonthlyMetrics() error = %v", err)
	}
	if !summary.Month.Equal(day(2020, 2, 1)) || summary.CourseRows != 1 || summary.SitesFailed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	site, err := store.GetMonthlyActiveMetrics(context.Background(), 1, "", 2020, 2)
	if err != nil || site.ActiveUserCount != 2 {
		t.Errorf("site row = %+v, %v", site, err)
	}
}
