// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/figures/internal/logging"
)

// PurgeResult counts the rows deleted per table.
type PurgeResult struct {
	CourseDaily  int64 `json:"course_daily_metrics"`
	SiteDaily    int64 `json:"site_daily_metrics"`
	LearnerGrade int64 `json:"learner_course_grade_metrics"`
}

// PurgeMetrics deletes the daily rows of a site in the inclusive range [from, to].
// Site daily rows after the range keep their cumulative counts; re-run the
// backfill from `from` to rebuild them.
func (db *DB) PurgeMetrics(ctx context.Context, siteID int64, from, to time.Time) (*PurgeResult, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("purge range end %s is before start %s", dateParam(to), dateParam(from))
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin purge: %w", err)
	}

	result := &PurgeResult{}
	deletes := []struct {
		query string
		count *int64
	}{
		{`DELETE FROM course_daily_metrics WHERE site_id = ? AND date_for BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)`, &result.CourseDaily},
		{`DELETE FROM site_daily_metrics WHERE site_id = ? AND date_for BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)`, &result.SiteDaily},
		{`DELETE FROM learner_course_grade_metrics WHERE site_id = ? AND date_for BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)`, &result.LearnerGrade},
	}
	for _, d := range deletes {
		res, err := tx.ExecContext(ctx, d.query, siteID, dateParam(from), dateParam(to))
		if err != nil {
			rollbackQuietly(tx)
			return nil, fmt.Errorf("failed to purge metrics: %w", err)
		}
		if *d.count, err = res.RowsAffected(); err != nil {
			rollbackQuietly(tx)
			return nil, fmt.Errorf("failed to count purged rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purge: %w", err)
	}

	logging.Info().
		Int64("site_id", siteID).
		Str("from", dateParam(from)).
		Str("to", dateParam(to)).
		Int64("course_daily", result.CourseDaily).
		Int64("site_daily", result.SiteDaily).
		Int64("learner_grade", result.LearnerGrade).
		Msg("Purged metrics")
	return result, nil
}
