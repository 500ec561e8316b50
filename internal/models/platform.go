// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package models holds the records Figures reads from the learning platform and
// the metrics rows it writes.
package models

import "time"

// Site is a tenant of the learning platform. Figures never creates sites.
type Site struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Name   string `json:"name,omitempty"`
}

// Organization groups courses and users. In multisite mode an organization
// maps to exactly one site.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Course is identified by its opaque course key, e.g. "course-v1:edX+DemoX+Demo_Course".
type Course struct {
	ID              string     `json:"id"`
	Name            string     `json:"name,omitempty"`
	Created         time.Time  `json:"created"`
	EnrollmentStart *time.Time `json:"enrollment_start,omitempty"`
}

// OpenForEnrollmentBy reports whether enrollment had started on or before the
// end of day. Courses without an enrollment start fall back to their creation time.
func (c Course) OpenForEnrollmentBy(day time.Time) bool {
	start := c.Created
	if c.EnrollmentStart != nil {
		start = *c.EnrollmentStart
	}
	return start.Before(day.AddDate(0, 0, 1))
}

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DateJoined  time.Time `json:"date_joined"`
	IsActive    bool      `json:"is_active"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
}

// Enrollment is a (user, course) pair. It has no foreign key to activity
// records; the two are joined on (user_id, course_id).
type Enrollment struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	CourseID string    `json:"course_id"`
	Created  time.Time `json:"created"`
	IsActive bool      `json:"is_active"`
}

// ActivityRecord is one learner interaction unit ("StudentModule" on the platform).
type ActivityRecord struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	CourseID  string    `json:"course_id"`
	ModuleID  string    `json:"module_id,omitempty"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// Completion is a certificate issued to a learner for a course.
type Completion struct {
	UserID      int64     `json:"user_id"`
	CourseID    string    `json:"course_id"`
	CreatedDate time.Time `json:"created_date"`
}

// Course role names that are excluded from learner enrollment counts.
const (
	RoleStaff      = "staff"
	RoleInstructor = "instructor"
	RoleCCXCoach   = "ccx_coach"
)

// CourseRole grants a user a non-learner role in a course.
type CourseRole struct {
	UserID   int64  `json:"user_id"`
	CourseID string `json:"course_id"`
	Role     string `json:"role"`
}

// GradedSection is one subsection of a learner's grade structure as reported by
// the grading subsystem.
type GradedSection struct {
	Label    string  `json:"label"`
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
}

// IsGraded reports whether the section carries any possible points.
func (s GradedSection) IsGraded() bool {
	return s.Possible > 0
}
