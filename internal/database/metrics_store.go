// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/models"
)

// MetricsFilter narrows metrics listings. Zero values do not filter.
// From and To are inclusive calendar days.
type MetricsFilter struct {
	SiteID   int64
	CourseID string
	UserID   int64
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// dateParam formats t for a CAST(? AS DATE) parameter.
func dateParam(t time.Time) string {
	return asDate(t).Format(time.DateOnly)
}

func (f MetricsFilter) apply(qb *queryBuilder, dateColumn string) {
	if f.SiteID != 0 {
		qb.addFilter("site_id = ?", f.SiteID)
	}
	if f.CourseID != "" {
		qb.addFilter("course_id = ?", f.CourseID)
	}
	if f.UserID != 0 {
		qb.addFilter("user_id = ?", f.UserID)
	}
	if !f.From.IsZero() {
		qb.addFilter(dateColumn+" >= CAST(? AS DATE)", dateParam(f.From))
	}
	if !f.To.IsZero() {
		qb.addFilter(dateColumn+" <= CAST(? AS DATE)", dateParam(f.To))
	}
}

func (f MetricsFilter) pageSuffix(orderBy string) string {
	suffix := "ORDER BY " + orderBy
	if f.Limit > 0 {
		suffix += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			suffix += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}
	return suffix
}

// ============================================
// Course daily metrics
// ============================================

const courseDailyColumns = `id, site_id, course_id, date_for, enrollment_count, active_learners_today,
	average_progress, average_days_to_complete, num_learners_completed, created, modified`

func scanCourseDaily(row rowScanner) (models.CourseDailyMetrics, error) {
	var m models.CourseDailyMetrics
	err := row.Scan(&m.ID, &m.SiteID, &m.CourseID, &m.DateFor, &m.EnrollmentCount, &m.ActiveLearnersToday,
		&m.AverageProgress, &m.AverageDaysToComplete, &m.NumLearnersCompleted, &m.Created, &m.Modified)
	m.DateFor = asDate(m.DateFor)
	return m, err
}

// GetCourseDailyMetrics returns the row for (courseID, dateFor) or ErrNotFound.
func (db *DB) GetCourseDailyMetrics(ctx context.Context, courseID string, dateFor time.Time) (*models.CourseDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+courseDailyColumns+` FROM course_daily_metrics WHERE course_id = ? AND date_for = CAST(? AS DATE)`,
		courseID, dateParam(dateFor))
	m, err := scanCourseDaily(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertCourseDailyMetrics inserts or updates the row keyed on (course_id, date_for)
// and returns the stored row.
func (db *DB) UpsertCourseDailyMetrics(ctx context.Context, m *models.CourseDailyMetrics) (*models.CourseDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mu := db.acquireKeyLock("cdm|" + m.CourseID)
	defer mu.Unlock()

	now := time.Now().UTC()
	err := withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO course_daily_metrics (
				site_id, course_id, date_for, enrollment_count, active_learners_today,
				average_progress, average_days_to_complete, num_learners_completed, created, modified
			) VALUES (?, ?, CAST(? AS DATE), ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (course_id, date_for) DO UPDATE SET
				site_id = EXCLUDED.site_id,
				enrollment_count = EXCLUDED.enrollment_count,
				active_learners_today = EXCLUDED.active_learners_today,
				average_progress = EXCLUDED.average_progress,
				average_days_to_complete = EXCLUDED.average_days_to_complete,
				num_learners_completed = EXCLUDED.num_learners_completed,
				modified = EXCLUDED.modified`,
			m.SiteID, m.CourseID, dateParam(m.DateFor), m.EnrollmentCount, m.ActiveLearnersToday,
			m.AverageProgress, m.AverageDaysToComplete, m.NumLearnersCompleted, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert course daily metrics for %s on %s: %w", m.CourseID, dateParam(m.DateFor), err)
	}
	return db.GetCourseDailyMetrics(ctx, m.CourseID, m.DateFor)
}

// CourseDailyMetricsForSiteDate returns every course row of a site for one day.
func (db *DB) CourseDailyMetricsForSiteDate(ctx context.Context, siteID int64, dateFor time.Time) ([]models.CourseDailyMetrics, error) {
	return db.ListCourseDailyMetrics(ctx, MetricsFilter{SiteID: siteID, From: dateFor, To: dateFor})
}

// ListCourseDailyMetrics lists course rows ordered by date then course.
func (db *DB) ListCourseDailyMetrics(ctx context.Context, f MetricsFilter) ([]models.CourseDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT ` + courseDailyColumns + ` FROM course_daily_metrics WHERE 1=1`)
	f.apply(qb, "date_for")
	query, args := qb.build(f.pageSuffix("date_for, course_id"))

	rows, err := queryAndScan(ctx, db, query, args, scanCourseDaily)
	if err != nil {
		return nil, fmt.Errorf("failed to list course daily metrics: %w", err)
	}
	return rows, nil
}

// ============================================
// Site daily metrics
// ============================================

const siteDailyColumns = `id, site_id, date_for, cumulative_active_user_count, todays_active_user_count,
	total_user_count, course_count, total_enrollment_count, mau, created, modified`

func scanSiteDaily(row rowScanner) (models.SiteDailyMetrics, error) {
	var m models.SiteDailyMetrics
	err := row.Scan(&m.ID, &m.SiteID, &m.DateFor, &m.CumulativeActiveUserCount, &m.TodaysActiveUserCount,
		&m.TotalUserCount, &m.CourseCount, &m.TotalEnrollmentCount, &m.MAU, &m.Created, &m.Modified)
	m.DateFor = asDate(m.DateFor)
	return m, err
}

// GetSiteDailyMetrics returns the row for (siteID, dateFor) or ErrNotFound.
func (db *DB) GetSiteDailyMetrics(ctx context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+siteDailyColumns+` FROM site_daily_metrics WHERE site_id = ? AND date_for = CAST(? AS DATE)`,
		siteID, dateParam(dateFor))
	m, err := scanSiteDaily(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// LatestSiteDailyMetricsBefore returns the most recent row strictly before dateFor, or ErrNotFound.
func (db *DB) LatestSiteDailyMetricsBefore(ctx context.Context, siteID int64, dateFor time.Time) (*models.SiteDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+siteDailyColumns+` FROM site_daily_metrics
		WHERE site_id = ? AND date_for < CAST(? AS DATE)
		ORDER BY date_for DESC LIMIT 1`,
		siteID, dateParam(dateFor))
	m, err := scanSiteDaily(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertSiteDailyMetrics inserts or updates the row keyed on (site_id, date_for).
func (db *DB) UpsertSiteDailyMetrics(ctx context.Context, m *models.SiteDailyMetrics) (*models.SiteDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mu := db.acquireKeyLock(fmt.Sprintf("sdm|%d", m.SiteID))
	defer mu.Unlock()

	now := time.Now().UTC()
	err := withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO site_daily_metrics (
				site_id, date_for, cumulative_active_user_count, todays_active_user_count,
				total_user_count, course_count, total_enrollment_count, mau, created, modified
			) VALUES (?, CAST(? AS DATE), ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (site_id, date_for) DO UPDATE SET
				cumulative_active_user_count = EXCLUDED.cumulative_active_user_count,
				todays_active_user_count = EXCLUDED.todays_active_user_count,
				total_user_count = EXCLUDED.total_user_count,
				course_count = EXCLUDED.course_count,
				total_enrollment_count = EXCLUDED.total_enrollment_count,
				mau = EXCLUDED.mau,
				modified = EXCLUDED.modified`,
			m.SiteID, dateParam(m.DateFor), m.CumulativeActiveUserCount, m.TodaysActiveUserCount,
			m.TotalUserCount, m.CourseCount, m.TotalEnrollmentCount, m.MAU, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert site daily metrics for site %d on %s: %w", m.SiteID, dateParam(m.DateFor), err)
	}
	return db.GetSiteDailyMetrics(ctx, m.SiteID, m.DateFor)
}

// ListSiteDailyMetrics lists site rows ordered by date.
func (db *DB) ListSiteDailyMetrics(ctx context.Context, f MetricsFilter) ([]models.SiteDailyMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT ` + siteDailyColumns + ` FROM site_daily_metrics WHERE 1=1`)
	f.CourseID, f.UserID = "", 0
	f.apply(qb, "date_for")
	query, args := qb.build(f.pageSuffix("date_for, site_id"))

	rows, err := queryAndScan(ctx, db, query, args, scanSiteDaily)
	if err != nil {
		return nil, fmt.Errorf("failed to list site daily metrics: %w", err)
	}
	return rows, nil
}

// ============================================
// Learner course grade metrics
// ============================================

const learnerGradeColumns = `id, site_id, user_id, course_id, date_for, points_possible, points_earned,
	sections_worked, sections_possible, created, modified`

func scanLearnerGrade(row rowScanner) (models.LearnerCourseGradeMetrics, error) {
	var m models.LearnerCourseGradeMetrics
	err := row.Scan(&m.ID, &m.SiteID, &m.UserID, &m.CourseID, &m.DateFor, &m.PointsPossible, &m.PointsEarned,
		&m.SectionsWorked, &m.SectionsPossible, &m.Created, &m.Modified)
	m.DateFor = asDate(m.DateFor)
	return m, err
}

// LatestLearnerCourseGradeMetrics returns the snapshot with the greatest date_for
// for a learner in a course, or ErrNotFound.
func (db *DB) LatestLearnerCourseGradeMetrics(ctx context.Context, userID int64, courseID string) (*models.LearnerCourseGradeMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+learnerGradeColumns+` FROM learner_course_grade_metrics
		WHERE user_id = ? AND course_id = ?
		ORDER BY date_for DESC LIMIT 1`,
		userID, courseID)
	m, err := scanLearnerGrade(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertLearnerCourseGradeMetrics inserts or updates the snapshot keyed on
// (user_id, course_id, date_for).
func (db *DB) UpsertLearnerCourseGradeMetrics(ctx context.Context, m *models.LearnerCourseGradeMetrics) (*models.LearnerCourseGradeMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mu := db.acquireKeyLock(fmt.Sprintf("lcgm|%d|%s", m.UserID, m.CourseID))
	defer mu.Unlock()

	now := time.Now().UTC()
	err := withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO learner_course_grade_metrics (
				site_id, user_id, course_id, date_for, points_possible, points_earned,
				sections_worked, sections_possible, created, modified
			) VALUES (?, ?, ?, CAST(? AS DATE), ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, course_id, date_for) DO UPDATE SET
				site_id = EXCLUDED.site_id,
				points_possible = EXCLUDED.points_possible,
				points_earned = EXCLUDED.points_earned,
				sections_worked = EXCLUDED.sections_worked,
				sections_possible = EXCLUDED.sections_possible,
				modified = EXCLUDED.modified`,
			m.SiteID, m.UserID, m.CourseID, dateParam(m.DateFor), m.PointsPossible, m.PointsEarned,
			m.SectionsWorked, m.SectionsPossible, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert learner grade metrics for user %d in %s: %w", m.UserID, m.CourseID, err)
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+learnerGradeColumns+` FROM learner_course_grade_metrics
		WHERE user_id = ? AND course_id = ? AND date_for = CAST(? AS DATE)`,
		m.UserID, m.CourseID, dateParam(m.DateFor))
	stored, err := scanLearnerGrade(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &stored, nil
}

// ListLearnerCourseGradeMetrics lists snapshots ordered by date, course and user.
func (db *DB) ListLearnerCourseGradeMetrics(ctx context.Context, f MetricsFilter) ([]models.LearnerCourseGradeMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT ` + learnerGradeColumns + ` FROM learner_course_grade_metrics WHERE 1=1`)
	f.apply(qb, "date_for")
	query, args := qb.build(f.pageSuffix("date_for, course_id, user_id"))

	rows, err := queryAndScan(ctx, db, query, args, scanLearnerGrade)
	if err != nil {
		return nil, fmt.Errorf("failed to list learner grade metrics: %w", err)
	}
	return rows, nil
}

// CurrentLearnerProgress returns the latest snapshot of every learner in a course.
func (db *DB) CurrentLearnerProgress(ctx context.Context, courseID string) ([]models.LearnerCourseGradeMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := queryAndScan(ctx, db, `
		SELECT `+learnerGradeColumns+` FROM learner_course_grade_metrics
		WHERE course_id = ?
		QUALIFY ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY date_for DESC) = 1
		ORDER BY user_id`,
		[]interface{}{courseID}, scanLearnerGrade)
	if err != nil {
		return nil, fmt.Errorf("failed to load learner progress for %s: %w", courseID, err)
	}
	return rows, nil
}

// ============================================
// Monthly active metrics
// ============================================

const monthlyColumns = `id, site_id, course_id, year, month, active_user_count, created, modified`

func scanMonthly(row rowScanner) (models.MonthlyActiveMetrics, error) {
	var m models.MonthlyActiveMetrics
	err := row.Scan(&m.ID, &m.SiteID, &m.CourseID, &m.Year, &m.Month, &m.ActiveUserCount, &m.Created, &m.Modified)
	return m, err
}

// GetMonthlyActiveMetrics returns the row for (siteID, courseID, year, month) or
// ErrNotFound. An empty courseID selects the site-wide row.
func (db *DB) GetMonthlyActiveMetrics(ctx context.Context, siteID int64, courseID string, year, month int) (*models.MonthlyActiveMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+monthlyColumns+` FROM monthly_active_metrics
		WHERE site_id = ? AND course_id = ? AND year = ? AND month = ?`,
		siteID, courseID, year, month)
	m, err := scanMonthly(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpsertMonthlyActiveMetrics inserts or updates the row keyed on (site_id, course_id, year, month).
func (db *DB) UpsertMonthlyActiveMetrics(ctx context.Context, m *models.MonthlyActiveMetrics) (*models.MonthlyActiveMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	mu := db.acquireKeyLock(fmt.Sprintf("mam|%d|%s", m.SiteID, m.CourseID))
	defer mu.Unlock()

	now := time.Now().UTC()
	err := withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO monthly_active_metrics (site_id, course_id, year, month, active_user_count, created, modified)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (site_id, course_id, year, month) DO UPDATE SET
				active_user_count = EXCLUDED.active_user_count,
				modified = EXCLUDED.modified`,
			m.SiteID, m.CourseID, m.Year, m.Month, m.ActiveUserCount, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert monthly active metrics for site %d %04d-%02d: %w", m.SiteID, m.Year, m.Month, err)
	}
	return db.GetMonthlyActiveMetrics(ctx, m.SiteID, m.CourseID, m.Year, m.Month)
}

// ListMonthlyActiveMetrics lists monthly rows. From and To select whole months.
// CourseID "" in the filter returns site-wide rows only.
func (db *DB) ListMonthlyActiveMetrics(ctx context.Context, f MetricsFilter) ([]models.MonthlyActiveMetrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT ` + monthlyColumns + ` FROM monthly_active_metrics WHERE 1=1`)
	if f.SiteID != 0 {
		qb.addFilter("site_id = ?", f.SiteID)
	}
	qb.addFilter("course_id = ?", f.CourseID)
	if !f.From.IsZero() {
		qb.addFilter("year * 100 + month >= ?", f.From.Year()*100+int(f.From.Month()))
	}
	if !f.To.IsZero() {
		qb.addFilter("year * 100 + month <= ?", f.To.Year()*100+int(f.To.Month()))
	}
	query, args := qb.build(f.pageSuffix("year, month, site_id"))

	rows, err := queryAndScan(ctx, db, query, args, scanMonthly)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly active metrics: %w", err)
	}
	return rows, nil
}
