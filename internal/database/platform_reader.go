// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/platform"
)

var (
	_ platform.Reader      = (*DB)(nil)
	_ platform.GradeSource = (*DB)(nil)
)

func scanSite(row rowScanner) (models.Site, error) {
	var s models.Site
	err := row.Scan(&s.ID, &s.Domain, &s.Name)
	return s, err
}

// Sites lists every site in the mirror.
func (db *DB) Sites(ctx context.Context) ([]models.Site, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	sites, err := queryAndScan(ctx, db, `SELECT id, domain, name FROM sites ORDER BY id`, nil, scanSite)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return sites, nil
}

// Site returns one site or platform.ErrSiteNotFound.
func (db *DB) Site(ctx context.Context, id int64) (*models.Site, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	s, err := scanSite(db.conn.QueryRowContext(ctx, `SELECT id, domain, name FROM sites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, platform.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site %d: %w", id, err)
	}
	return &s, nil
}

func scanCourse(row rowScanner) (models.Course, error) {
	var (
		c     models.Course
		start sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Created, &start)
	if start.Valid {
		t := start.Time
		c.EnrollmentStart = &t
	}
	return c, err
}

// Courses lists courses matching q.
func (db *DB) Courses(ctx context.Context, q platform.CourseQuery) ([]models.Course, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT id, name, created, enrollment_start FROM courses WHERE 1=1`)
	addInFilter(qb, "id", q.IDs)
	if len(q.OrgIDs) > 0 {
		qb.addFilter(fmt.Sprintf("id IN (SELECT course_id FROM organization_courses WHERE organization_id IN (%s))",
			placeholders(len(q.OrgIDs))), int64Args(q.OrgIDs)...)
	}
	query, args := qb.build("ORDER BY id")

	courses, err := queryAndScan(ctx, db, query, args, scanCourse)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}

// Course returns one course or platform.ErrCourseNotFound.
func (db *DB) Course(ctx context.Context, id string) (*models.Course, error) {
	courses, err := db.Courses(ctx, platform.CourseQuery{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, platform.ErrCourseNotFound
	}
	return &courses[0], nil
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DateJoined, &u.IsActive, &u.IsStaff, &u.IsSuperuser)
	return u, err
}

// Users lists users matching q.
func (db *DB) Users(ctx context.Context, q platform.UserQuery) ([]models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT id, username, email, date_joined, is_active, is_staff, is_superuser FROM users WHERE 1=1`)
	if len(q.OrgIDs) > 0 {
		qb.addFilter(fmt.Sprintf("id IN (SELECT user_id FROM organization_users WHERE organization_id IN (%s))",
			placeholders(len(q.OrgIDs))), int64Args(q.OrgIDs)...)
	}
	if !q.JoinedBefore.IsZero() {
		qb.addFilter("date_joined < ?", q.JoinedBefore.UTC())
	}
	query, args := qb.build("ORDER BY id")

	users, err := queryAndScan(ctx, db, query, args, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func scanOrganization(row rowScanner) (models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name)
	return o, err
}

// OrganizationsForCourse lists the organizations a course is mapped to.
func (db *DB) OrganizationsForCourse(ctx context.Context, courseID string) ([]models.Organization, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return queryAndScan(ctx, db, `
		SELECT o.id, o.name FROM organizations o
		JOIN organization_courses oc ON oc.organization_id = o.id
		WHERE oc.course_id = ? ORDER BY o.id`,
		[]interface{}{courseID}, scanOrganization)
}

// OrganizationsForSite lists the organizations mapped to a site.
func (db *DB) OrganizationsForSite(ctx context.Context, siteID int64) ([]models.Organization, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return queryAndScan(ctx, db, `
		SELECT o.id, o.name FROM organizations o
		JOIN organization_sites os ON os.organization_id = o.id
		WHERE os.site_id = ? ORDER BY o.id`,
		[]interface{}{siteID}, scanOrganization)
}

// SitesForOrganization lists the sites an organization is mapped to.
func (db *DB) SitesForOrganization(ctx context.Context, orgID int64) ([]models.Site, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return queryAndScan(ctx, db, `
		SELECT s.id, s.domain, s.name FROM sites s
		JOIN organization_sites os ON os.site_id = s.id
		WHERE os.organization_id = ? ORDER BY s.id`,
		[]interface{}{orgID}, scanSite)
}

func scanEnrollment(row rowScanner) (models.Enrollment, error) {
	var e models.Enrollment
	err := row.Scan(&e.ID, &e.UserID, &e.Username, &e.CourseID, &e.Created, &e.IsActive)
	return e, err
}

// Enrollments lists enrollments matching q, with the learner's username.
func (db *DB) Enrollments(ctx context.Context, q platform.EnrollmentQuery) ([]models.Enrollment, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`
		SELECT e.id, e.user_id, COALESCE(u.username, ''), e.course_id, e.created, e.is_active
		FROM enrollments e LEFT JOIN users u ON u.id = e.user_id
		WHERE 1=1`)
	addInFilter(qb, "e.course_id", q.CourseIDs)
	if q.UserID != 0 {
		qb.addFilter("e.user_id = ?", q.UserID)
	}
	if !q.CreatedBefore.IsZero() {
		qb.addFilter("e.created < ?", q.CreatedBefore.UTC())
	}
	if q.ActiveOnly {
		qb.addFilter("e.is_active")
	}
	query, args := qb.build("ORDER BY e.course_id, e.id")

	enrollments, err := queryAndScan(ctx, db, query, args, scanEnrollment)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// FirstEnrollments maps each course to its earliest enrollment time.
func (db *DB) FirstEnrollments(ctx context.Context, courseIDs []string) (map[string]time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT course_id, MIN(created) FROM enrollments WHERE 1=1`)
	addInFilter(qb, "course_id", courseIDs)
	query, args := qb.build("GROUP BY course_id")

	type first struct {
		courseID string
		created  time.Time
	}
	rows, err := queryAndScan(ctx, db, query, args, func(row rowScanner) (first, error) {
		var f first
		err := row.Scan(&f.courseID, &f.created)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load first enrollments: %w", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.courseID] = r.created
	}
	return out, nil
}

// CourseStaffIDs returns users holding a staff, instructor or ccx coach role in the course.
func (db *DB) CourseStaffIDs(ctx context.Context, courseID string) ([]int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ids, err := queryAndScan(ctx, db, `
		SELECT DISTINCT user_id FROM course_roles
		WHERE course_id = ? AND role IN (?, ?, ?)
		ORDER BY user_id`,
		[]interface{}{courseID, models.RoleStaff, models.RoleInstructor, models.RoleCCXCoach},
		func(row rowScanner) (int64, error) {
			var id int64
			err := row.Scan(&id)
			return id, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load staff for %s: %w", courseID, err)
	}
	return ids, nil
}

func scanActivity(row rowScanner) (models.ActivityRecord, error) {
	var r models.ActivityRecord
	err := row.Scan(&r.ID, &r.StudentID, &r.CourseID, &r.ModuleID, &r.Created, &r.Modified)
	return r, err
}

// timeWindow renders "col >= ? AND col < ?" for the non-zero bounds.
func timeWindow(column string, from, before time.Time) (string, []interface{}) {
	var (
		cond string
		args []interface{}
	)
	if !from.IsZero() {
		cond = column + " >= ?"
		args = append(args, from.UTC())
	}
	if !before.IsZero() {
		if cond != "" {
			cond += " AND "
		}
		cond += column + " < ?"
		args = append(args, before.UTC())
	}
	return cond, args
}

// ActivityRecords lists activity records matching q.
func (db *DB) ActivityRecords(ctx context.Context, q platform.ActivityQuery) ([]models.ActivityRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT id, student_id, course_id, module_id, created, modified FROM activity_records WHERE 1=1`)
	addInFilter(qb, "course_id", q.CourseIDs)
	if q.StudentID != 0 {
		qb.addFilter("student_id = ?", q.StudentID)
	}
	if cond, args := timeWindow("modified", q.From, q.Before); cond != "" {
		if q.IncludeCreated {
			created, createdArgs := timeWindow("created", q.From, q.Before)
			qb.addFilter("(("+cond+") OR ("+created+"))", append(args, createdArgs...)...)
		} else {
			qb.addFilter(cond, args...)
		}
	}
	query, args := qb.build("ORDER BY id")

	records, err := queryAndScan(ctx, db, query, args, scanActivity)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity records: %w", err)
	}
	return records, nil
}

// FirstActivity returns the earliest activity creation time among courseIDs.
func (db *DB) FirstActivity(ctx context.Context, courseIDs []string) (time.Time, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT MIN(created) FROM activity_records WHERE 1=1`)
	addInFilter(qb, "course_id", courseIDs)
	query, args := qb.build("")

	var first sql.NullTime
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&first); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load first activity: %w", err)
	}
	return first.Time, first.Valid, nil
}

func scanCompletion(row rowScanner) (models.Completion, error) {
	var c models.Completion
	err := row.Scan(&c.UserID, &c.CourseID, &c.CreatedDate)
	return c, err
}

// Completions lists certificates matching q.
func (db *DB) Completions(ctx context.Context, q platform.CompletionQuery) ([]models.Completion, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT user_id, course_id, created_date FROM completions WHERE 1=1`)
	addInFilter(qb, "course_id", q.CourseIDs)
	if !q.CreatedBefore.IsZero() {
		qb.addFilter("created_date < ?", q.CreatedBefore.UTC())
	}
	query, args := qb.build("ORDER BY course_id, user_id")

	completions, err := queryAndScan(ctx, db, query, args, scanCompletion)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}

// LearnerGradeStructure reads a learner's graded sections from the mirror.
func (db *DB) LearnerGradeStructure(ctx context.Context, userID int64, courseID string) ([]models.GradedSection, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	sections, err := queryAndScan(ctx, db, `
		SELECT label, earned, possible FROM graded_sections
		WHERE user_id = ? AND course_id = ? ORDER BY label`,
		[]interface{}{userID, courseID},
		func(row rowScanner) (models.GradedSection, error) {
			var s models.GradedSection
			err := row.Scan(&s.Label, &s.Earned, &s.Possible)
			return s, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load grades for user %d in %s: %w", userID, courseID, err)
	}
	return sections, nil
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
