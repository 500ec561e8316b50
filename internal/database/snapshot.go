// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/models"
)

// OrganizationLink maps an organization to a site, course or user in a snapshot.
type OrganizationLink struct {
	OrganizationID int64  `json:"organization_id"`
	SiteID         int64  `json:"site_id,omitempty"`
	CourseID       string `json:"course_id,omitempty"`
	UserID         int64  `json:"user_id,omitempty"`
}

// GradedSectionRow is one graded section of a learner in a snapshot.
type GradedSectionRow struct {
	UserID   int64  `json:"user_id"`
	CourseID string `json:"course_id"`
	models.GradedSection
}

// Snapshot is an export of the learning platform tables Figures reads.
// Importing a snapshot replaces rows with the same primary key.
type Snapshot struct {
	Sites               []models.Site           `json:"sites"`
	Organizations       []models.Organization   `json:"organizations"`
	OrganizationSites   []OrganizationLink      `json:"organization_sites"`
	OrganizationCourses []OrganizationLink      `json:"organization_courses"`
	OrganizationUsers   []OrganizationLink      `json:"organization_users"`
	Courses             []models.Course         `json:"courses"`
	Users               []models.User           `json:"users"`
	CourseRoles         []models.CourseRole     `json:"course_roles"`
	Enrollments         []models.Enrollment     `json:"enrollments"`
	ActivityRecords     []models.ActivityRecord `json:"activity_records"`
	Completions         []models.Completion     `json:"completions"`
	GradedSections      []GradedSectionRow      `json:"graded_sections"`
}

// ImportStats counts the rows written per table.
type ImportStats map[string]int

// Total returns the number of rows written across tables.
func (s ImportStats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// ImportSnapshot decodes a JSON snapshot from r and writes it in one transaction.
func (db *DB) ImportSnapshot(ctx context.Context, r io.Reader) (ImportStats, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return db.WriteSnapshot(ctx, &snap)
}

// WriteSnapshot writes snap in one transaction.
func (db *DB) WriteSnapshot(ctx context.Context, snap *Snapshot) (ImportStats, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot import: %w", err)
	}

	stats := ImportStats{}
	steps := []struct {
		table string
		write func(*sql.Tx) (int, error)
	}{
		{"sites", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO sites (id, domain, name) VALUES (?, ?, ?)`,
				snap.Sites, func(s models.Site) []interface{} { return []interface{}{s.ID, s.Domain, s.Name} })
		}},
		{"organizations", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO organizations (id, name) VALUES (?, ?)`,
				snap.Organizations, func(o models.Organization) []interface{} { return []interface{}{o.ID, o.Name} })
		}},
		{"organization_sites", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR IGNORE INTO organization_sites (organization_id, site_id) VALUES (?, ?)`,
				snap.OrganizationSites, func(l OrganizationLink) []interface{} { return []interface{}{l.OrganizationID, l.SiteID} })
		}},
		{"organization_courses", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR IGNORE INTO organization_courses (organization_id, course_id) VALUES (?, ?)`,
				snap.OrganizationCourses, func(l OrganizationLink) []interface{} { return []interface{}{l.OrganizationID, l.CourseID} })
		}},
		{"organization_users", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR IGNORE INTO organization_users (organization_id, user_id) VALUES (?, ?)`,
				snap.OrganizationUsers, func(l OrganizationLink) []interface{} { return []interface{}{l.OrganizationID, l.UserID} })
		}},
		{"courses", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO courses (id, name, created, enrollment_start) VALUES (?, ?, ?, ?)`,
				snap.Courses, func(c models.Course) []interface{} {
					var start interface{}
					if c.EnrollmentStart != nil {
						start = c.EnrollmentStart.UTC()
					}
					return []interface{}{c.ID, c.Name, c.Created.UTC(), start}
				})
		}},
		{"users", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO users (id, username, email, date_joined, is_active, is_staff, is_superuser) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				snap.Users, func(u models.User) []interface{} {
					return []interface{}{u.ID, u.Username, u.Email, u.DateJoined.UTC(), u.IsActive, u.IsStaff, u.IsSuperuser}
				})
		}},
		{"course_roles", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR IGNORE INTO course_roles (user_id, course_id, role) VALUES (?, ?, ?)`,
				snap.CourseRoles, func(r models.CourseRole) []interface{} { return []interface{}{r.UserID, r.CourseID, r.Role} })
		}},
		{"enrollments", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO enrollments (id, user_id, course_id, created, is_active) VALUES (?, ?, ?, ?, ?)`,
				snap.Enrollments, func(e models.Enrollment) []interface{} {
					return []interface{}{e.ID, e.UserID, e.CourseID, e.Created.UTC(), e.IsActive}
				})
		}},
		{"activity_records", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO activity_records (id, student_id, course_id, module_id, created, modified) VALUES (?, ?, ?, ?, ?, ?)`,
				snap.ActivityRecords, func(r models.ActivityRecord) []interface{} {
					return []interface{}{r.ID, r.StudentID, r.CourseID, r.ModuleID, r.Created.UTC(), r.Modified.UTC()}
				})
		}},
		{"completions", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO completions (user_id, course_id, created_date) VALUES (?, ?, ?)`,
				snap.Completions, func(c models.Completion) []interface{} {
					return []interface{}{c.UserID, c.CourseID, c.CreatedDate.UTC()}
				})
		}},
		{"graded_sections", func(tx *sql.Tx) (int, error) {
			return insertRows(ctx, tx, `INSERT OR REPLACE INTO graded_sections (user_id, course_id, label, earned, possible) VALUES (?, ?, ?, ?, ?)`,
				snap.GradedSections, func(g GradedSectionRow) []interface{} {
					return []interface{}{g.UserID, g.CourseID, g.Label, g.Earned, g.Possible}
				})
		}},
	}

	for _, step := range steps {
		n, err := step.write(tx)
		if err != nil {
			rollbackQuietly(tx)
			return nil, fmt.Errorf("failed to import %s: %w", step.table, err)
		}
		if n > 0 {
			stats[step.table] = n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot import: %w", err)
	}

	logging.Info().Int("rows", stats.Total()).Int("tables", len(stats)).Msg("Imported platform snapshot")
	return stats, nil
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) []interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}
