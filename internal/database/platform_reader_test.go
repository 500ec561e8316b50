// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/figures/internal/platform"
)

func TestPlatformReaderSitesAndOrganizations(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)
	ctx := context.Background()

	sites, err := db.Sites(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "sites", len(sites), 2)

	_, err = db.Site(ctx, 42)
	if !errors.Is(err, platform.ErrSiteNotFound) {
		t.Errorf("expected ErrSiteNotFound, got %v", err)
	}

	orgs, err := db.OrganizationsForCourse(ctx, "course-v1:B+1+2020")
	checkNoError(t, err)
	if len(orgs) != 1 || orgs[0].ID != 20 {
		t.Errorf("organizations = %+v", orgs)
	}

	siteOrgs, err := db.OrganizationsForSite(ctx, 1)
	checkNoError(t, err)
	checkIntEqual(t, "site 1 orgs", len(siteOrgs), 1)

	orgSites, err := db.SitesForOrganization(ctx, 20)
	checkNoError(t, err)
	if len(orgSites) != 1 || orgSites[0].Domain != "beta.example" {
		t.Errorf("sites for org 20 = %+v", orgSites)
	}
}

func TestPlatformReaderCoursesAndUsers(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)
	ctx := context.Background()

	courses, err := db.Courses(ctx, platform.CourseQuery{OrgIDs: []int64{10}})
	checkNoError(t, err)
	if len(courses) != 1 || courses[0].EnrollmentStart == nil {
		t.Fatalf("courses = %+v", courses)
	}

	course, err := db.Course(ctx, "course-v1:B+1+2020")
	checkNoError(t, err)
	if course.EnrollmentStart != nil {
		t.Error("expected nil enrollment start")
	}

	_, err = db.Course(ctx, "missing")
	if !errors.Is(err, platform.ErrCourseNotFound) {
		t.Errorf("expected ErrCourseNotFound, got %v", err)
	}

	users, err := db.Users(ctx, platform.UserQuery{OrgIDs: []int64{10}, JoinedBefore: day(2020, 1, 31)})
	checkNoError(t, err)
	if len(users) != 1 || users[0].Username != "ann" {
		t.Errorf("users = %+v", users)
	}
}

func TestPlatformReaderEnrollments(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)
	ctx := context.Background()

	enrollments, err := db.Enrollments(ctx, platform.EnrollmentQuery{
		CourseIDs:     []string{"course-v1:A+1+2020"},
		CreatedBefore: day(2020, 2, 1),
	})
	checkNoError(t, err)
	if len(enrollments) != 1 || enrollments[0].Username != "ann" {
		t.Errorf("enrollments = %+v", enrollments)
	}

	active, err := db.Enrollments(ctx, platform.EnrollmentQuery{ActiveOnly: true})
	checkNoError(t, err)
	checkIntEqual(t, "active enrollments", len(active), 2)

	first, err := db.FirstEnrollments(ctx, []string{"course-v1:A+1+2020", "course-v1:B+1+2020", "none"})
	checkNoError(t, err)
	checkIntEqual(t, "first enrollments", len(first), 2)
	if !first["course-v1:A+1+2020"].Equal(day(2020, 1, 10)) {
		t.Errorf("first enrollment = %v", first["course-v1:A+1+2020"])
	}

	staff, err := db.CourseStaffIDs(ctx, "course-v1:A+1+2020")
	checkNoError(t, err)
	if len(staff) != 1 || staff[0] != 2 {
		t.Errorf("staff = %v", staff)
	}
}

func TestPlatformReaderActivityWindow(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)
	ctx := context.Background()
	from, before := day(2020, 3, 1), day(2020, 3, 2)

	modified, err := db.ActivityRecords(ctx, platform.ActivityQuery{
		CourseIDs: []string{"course-v1:A+1+2020"},
		From:      from,
		Before:    before,
	})
	checkNoError(t, err)
	if len(modified) != 1 || modified[0].StudentID != 1 {
		t.Errorf("modified window = %+v", modified)
	}

	withCreated, err := db.ActivityRecords(ctx, platform.ActivityQuery{
		CourseIDs:      []string{"course-v1:A+1+2020"},
		From:           from,
		Before:         before,
		IncludeCreated: true,
	})
	checkNoError(t, err)
	checkIntEqual(t, "created or modified", len(withCreated), 2)

	first, ok, err := db.FirstActivity(ctx, []string{"course-v1:A+1+2020"})
	checkNoError(t, err)
	if !ok || !first.Equal(day(2020, 1, 10)) {
		t.Errorf("first activity = %v, %v", first, ok)
	}

	_, ok, err = db.FirstActivity(ctx, []string{"none"})
	checkNoError(t, err)
	if ok {
		t.Error("expected no activity")
	}
}

func TestPlatformReaderCompletionsAndGrades(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)
	ctx := context.Background()

	completions, err := db.Completions(ctx, platform.CompletionQuery{CreatedBefore: day(2020, 2, 20)})
	checkNoError(t, err)
	checkIntEqual(t, "completions before", len(completions), 0)

	completions, err = db.Completions(ctx, platform.CompletionQuery{CreatedBefore: day(2020, 2, 21)})
	checkNoError(t, err)
	checkIntEqual(t, "completions", len(completions), 1)

	sections, err := db.LearnerGradeStructure(ctx, 1, "course-v1:A+1+2020")
	checkNoError(t, err)
	checkIntEqual(t, "sections", len(sections), 2)
	checkStringEqual(t, "label", sections[0].Label, "HW 01")
}

func TestImportSnapshotJSON(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	doc := `{
		"sites": [{"id": 1, "domain": "example.com"}],
		"courses": [{"id": "course-v1:X+1+2021", "created": "2021-01-01T00:00:00Z"}],
		"users": [{"id": 4, "username": "dee", "date_joined": "2021-01-02T00:00:00Z", "is_active": true}],
		"enrollments": [{"id": 9, "user_id": 4, "course_id": "course-v1:X+1+2021", "created": "2021-01-03T00:00:00Z", "is_active": true}],
		"graded_sections": [{"user_id": 4, "course_id": "course-v1:X+1+2021", "label": "Quiz", "earned": 1, "possible": 2}]
	}`
	stats, err := db.ImportSnapshot(ctx, strings.NewReader(doc))
	checkNoError(t, err)
	checkIntEqual(t, "total", stats.Total(), 5)

	// Re-import replaces by primary key.
	_, err = db.ImportSnapshot(ctx, strings.NewReader(doc))
	checkNoError(t, err)
	counts, err := db.GetRecordCounts(ctx)
	checkNoError(t, err)
	checkInt64Equal(t, "enrollments", counts["enrollments"], 1)

	sections, err := db.LearnerGradeStructure(ctx, 4, "course-v1:X+1+2021")
	checkNoError(t, err)
	if len(sections) != 1 || sections[0].Possible != 2 {
		t.Errorf("sections = %+v", sections)
	}

	_, err = db.ImportSnapshot(ctx, strings.NewReader("{not json"))
	checkError(t, err)
}

func TestEnrollmentsCreatedBeforeUsesUTC(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seedPlatform(t, db)

	loc := time.FixedZone("UTC+2", 2*3600)
	enrollments, err := db.Enrollments(context.Background(), platform.EnrollmentQuery{
		CourseIDs:     []string{"course-v1:A+1+2020"},
		CreatedBefore: time.Date(2020, 1, 10, 2, 0, 1, 0, loc), // 00:00:01 UTC
	})
	checkNoError(t, err)
	checkIntEqual(t, "enrollments", len(enrollments), 1)
}
