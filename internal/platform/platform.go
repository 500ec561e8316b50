// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package platform defines the read-only view Figures has of the learning
// platform: sites, courses, users, enrollments, activity records, completions
// and grades. The pipeline depends only on these interfaces.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/figures/internal/models"
)

var (
	ErrSiteNotFound   = errors.New("site not found")
	ErrCourseNotFound = errors.New("course not found")

	// ErrMultipleOrganizations is returned in multisite mode when a course is
	// mapped to more than one organization.
	ErrMultipleOrganizations = errors.New("multiple organizations found for course")

	// ErrOrganizationSiteMapping is returned when an organization does not map
	// to exactly one site.
	ErrOrganizationSiteMapping = errors.New("organization must map to exactly one site")
)

// CourseQuery filters courses. Empty slices do not filter.
type CourseQuery struct {
	IDs    []string
	OrgIDs []int64
}

// UserQuery filters users. A zero JoinedBefore does not filter.
type UserQuery struct {
	OrgIDs       []int64
	JoinedBefore time.Time
}

// EnrollmentQuery filters enrollments. Zero values do not filter.
type EnrollmentQuery struct {
	CourseIDs     []string
	UserID        int64
	CreatedBefore time.Time
	ActiveOnly    bool
}

// ActivityQuery selects activity records whose modified timestamp falls in the
// half-open window [From, Before). With IncludeCreated a record also matches
// when its created timestamp is in the window. Zero bounds are open.
type ActivityQuery struct {
	CourseIDs      []string
	StudentID      int64
	From           time.Time
	Before         time.Time
	IncludeCreated bool
}

// CompletionQuery filters completions. A zero CreatedBefore does not filter.
type CompletionQuery struct {
	CourseIDs     []string
	CreatedBefore time.Time
}

// Reader is the accessor surface of the learning platform.
type Reader interface {
	Sites(ctx context.Context) ([]models.Site, error)
	Site(ctx context.Context, id int64) (*models.Site, error)

	Courses(ctx context.Context, q CourseQuery) ([]models.Course, error)
	Course(ctx context.Context, id string) (*models.Course, error)
	Users(ctx context.Context, q UserQuery) ([]models.User, error)

	OrganizationsForCourse(ctx context.Context, courseID string) ([]models.Organization, error)
	OrganizationsForSite(ctx context.Context, siteID int64) ([]models.Organization, error)
	SitesForOrganization(ctx context.Context, orgID int64) ([]models.Site, error)

	Enrollments(ctx context.Context, q EnrollmentQuery) ([]models.Enrollment, error)
	// FirstEnrollments maps each course id to its earliest enrollment creation time.
	// Courses without enrollments are absent.
	FirstEnrollments(ctx context.Context, courseIDs []string) (map[string]time.Time, error)
	// CourseStaffIDs returns users with a staff, instructor or ccx coach role.
	CourseStaffIDs(ctx context.Context, courseID string) ([]int64, error)

	ActivityRecords(ctx context.Context, q ActivityQuery) ([]models.ActivityRecord, error)
	// FirstActivity returns the earliest created timestamp among activity records
	// of the given courses. ok is false when there are none.
	FirstActivity(ctx context.Context, courseIDs []string) (first time.Time, ok bool, err error)

	Completions(ctx context.Context, q CompletionQuery) ([]models.Completion, error)
}

// GradeSource returns a learner's graded section structure for a course.
type GradeSource interface {
	LearnerGradeStructure(ctx context.Context, userID int64, courseID string) ([]models.GradedSection, error)
}
