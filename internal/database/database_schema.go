// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

/*
database_schema.go - Database Schema Management

Platform mirror tables (read by the pipeline, written only by snapshot import):
  - sites, organizations, organization_sites, organization_courses, organization_users
  - courses, users, course_roles
  - enrollments, activity_records, completions, graded_sections

Metrics tables (written by the pipeline):
  - course_daily_metrics: unique on (course_id, date_for)
  - site_daily_metrics: unique on (site_id, date_for)
  - learner_course_grade_metrics: unique on (user_id, course_id, date_for)
  - monthly_active_metrics: unique on (site_id, course_id, year, month)
  - pipeline_errors: append-only

Timestamps are stored as naive TIMESTAMP values in UTC.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the mirror and metrics tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func getTableCreationQueries() []string {
	return []string{
		// ============================================
		// Platform mirror
		// ============================================
		`CREATE TABLE IF NOT EXISTS sites (
			id BIGINT PRIMARY KEY,
			domain TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS organization_sites (
			organization_id BIGINT NOT NULL,
			site_id BIGINT NOT NULL,
			PRIMARY KEY (organization_id, site_id)
		)`,
		`CREATE TABLE IF NOT EXISTS organization_courses (
			organization_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			PRIMARY KEY (organization_id, course_id)
		)`,
		`CREATE TABLE IF NOT EXISTS organization_users (
			organization_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (organization_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created TIMESTAMP NOT NULL,
			enrollment_start TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			date_joined TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_staff BOOLEAN NOT NULL DEFAULT FALSE,
			is_superuser BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS course_roles (
			user_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (user_id, course_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			created TIMESTAMP NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS activity_records (
			id BIGINT PRIMARY KEY,
			student_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			module_id TEXT NOT NULL DEFAULT '',
			created TIMESTAMP NOT NULL,
			modified TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS completions (
			user_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			created_date TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, course_id)
		)`,
		`CREATE TABLE IF NOT EXISTS graded_sections (
			user_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			label TEXT NOT NULL,
			earned DOUBLE NOT NULL DEFAULT 0,
			possible DOUBLE NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, course_id, label)
		)`,

		// ============================================
		// Metrics
		// ============================================
		`CREATE SEQUENCE IF NOT EXISTS course_daily_metrics_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS course_daily_metrics (
			id BIGINT PRIMARY KEY DEFAULT nextval('course_daily_metrics_id_seq'),
			site_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			date_for DATE NOT NULL,
			enrollment_count INTEGER NOT NULL DEFAULT 0,
			active_learners_today INTEGER NOT NULL DEFAULT 0,
			average_progress DOUBLE NOT NULL DEFAULT 0,
			average_days_to_complete INTEGER NOT NULL DEFAULT 0,
			num_learners_completed INTEGER NOT NULL DEFAULT 0,
			created TIMESTAMP NOT NULL,
			modified TIMESTAMP NOT NULL,
			UNIQUE (course_id, date_for)
		)`,
		`CREATE SEQUENCE IF NOT EXISTS site_daily_metrics_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS site_daily_metrics (
			id BIGINT PRIMARY KEY DEFAULT nextval('site_daily_metrics_id_seq'),
			site_id BIGINT NOT NULL,
			date_for DATE NOT NULL,
			cumulative_active_user_count INTEGER NOT NULL DEFAULT 0,
			todays_active_user_count INTEGER NOT NULL DEFAULT 0,
			total_user_count INTEGER NOT NULL DEFAULT 0,
			course_count INTEGER NOT NULL DEFAULT 0,
			total_enrollment_count INTEGER NOT NULL DEFAULT 0,
			mau INTEGER NOT NULL DEFAULT 0,
			created TIMESTAMP NOT NULL,
			modified TIMESTAMP NOT NULL,
			UNIQUE (site_id, date_for)
		)`,
		`CREATE SEQUENCE IF NOT EXISTS learner_course_grade_metrics_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS learner_course_grade_metrics (
			id BIGINT PRIMARY KEY DEFAULT nextval('learner_course_grade_metrics_id_seq'),
			site_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			course_id TEXT NOT NULL,
			date_for DATE NOT NULL,
			points_possible DOUBLE NOT NULL DEFAULT 0,
			points_earned DOUBLE NOT NULL DEFAULT 0,
			sections_worked INTEGER NOT NULL DEFAULT 0,
			sections_possible INTEGER NOT NULL DEFAULT 0,
			created TIMESTAMP NOT NULL,
			modified TIMESTAMP NOT NULL,
			UNIQUE (user_id, course_id, date_for)
		)`,
		`CREATE SEQUENCE IF NOT EXISTS monthly_active_metrics_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS monthly_active_metrics (
			id BIGINT PRIMARY KEY DEFAULT nextval('monthly_active_metrics_id_seq'),
			site_id BIGINT NOT NULL,
			course_id TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL,
			month INTEGER NOT NULL,
			active_user_count INTEGER NOT NULL DEFAULT 0,
			created TIMESTAMP NOT NULL,
			modified TIMESTAMP NOT NULL,
			UNIQUE (site_id, course_id, year, month)
		)`,
		`CREATE SEQUENCE IF NOT EXISTS pipeline_errors_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS pipeline_errors (
			id BIGINT PRIMARY KEY DEFAULT nextval('pipeline_errors_id_seq'),
			error_type TEXT NOT NULL,
			error_data TEXT NOT NULL,
			user_id BIGINT,
			course_id TEXT NOT NULL DEFAULT '',
			site_id BIGINT,
			created TIMESTAMP NOT NULL
		)`,
	}
}

// createIndexes creates the lookup indexes used by the pipeline queries
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

func getIndexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id, created)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_user ON enrollments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_course_modified ON activity_records(course_id, modified)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_student_course ON activity_records(student_id, course_id)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_course ON completions(course_id, created_date)`,
		`CREATE INDEX IF NOT EXISTS idx_course_daily_site_date ON course_daily_metrics(site_id, date_for)`,
		`CREATE INDEX IF NOT EXISTS idx_lcgm_user_course ON learner_course_grade_metrics(user_id, course_id)`,
	}
}
