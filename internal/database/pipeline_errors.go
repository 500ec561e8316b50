// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/figures/internal/models"
)

// PipelineErrorFilter narrows the error listing. Zero values do not filter.
type PipelineErrorFilter struct {
	ErrorType models.ErrorType
	SiteID    int64
	CourseID  string
	Since     time.Time
	Limit     int
}

// InsertPipelineError appends an error record and returns its id.
func (db *DB) InsertPipelineError(ctx context.Context, e *models.PipelineError) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	data, err := json.Marshal(e.ErrorData)
	if err != nil {
		return 0, fmt.Errorf("failed to encode error data: %w", err)
	}
	created := e.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	errorType := e.ErrorType
	if !errorType.Valid() {
		errorType = models.ErrorTypeUnspecified
	}

	var id int64
	err = db.conn.QueryRowContext(ctx, `
		INSERT INTO pipeline_errors (error_type, error_data, user_id, course_id, site_id, created)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		string(errorType), string(data), nullableInt64(e.UserID), e.CourseID, nullableInt64(e.SiteID), created,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pipeline error: %w", err)
	}
	return id, nil
}

// ListPipelineErrors returns errors newest first.
func (db *DB) ListPipelineErrors(ctx context.Context, f PipelineErrorFilter) ([]models.PipelineError, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT id, error_type, error_data, user_id, course_id, site_id, created FROM pipeline_errors WHERE 1=1`)
	if f.ErrorType != "" {
		qb.addFilter("error_type = ?", string(f.ErrorType))
	}
	if f.SiteID != 0 {
		qb.addFilter("site_id = ?", f.SiteID)
	}
	if f.CourseID != "" {
		qb.addFilter("course_id = ?", f.CourseID)
	}
	if !f.Since.IsZero() {
		qb.addFilter("created >= ?", f.Since.UTC())
	}
	suffix := "ORDER BY created DESC, id DESC"
	if f.Limit > 0 {
		suffix += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	query, args := qb.build(suffix)

	rows, err := queryAndScan(ctx, db, query, args, scanPipelineError)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline errors: %w", err)
	}
	return rows, nil
}

func scanPipelineError(row rowScanner) (models.PipelineError, error) {
	var (
		e         models.PipelineError
		errorType string
		data      string
		userID    sql.NullInt64
		siteID    sql.NullInt64
	)
	if err := row.Scan(&e.ID, &errorType, &data, &userID, &e.CourseID, &siteID, &e.Created); err != nil {
		return e, err
	}
	e.ErrorType = models.ErrorType(errorType)
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if siteID.Valid {
		e.SiteID = &siteID.Int64
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &e.ErrorData); err != nil {
			e.ErrorData = map[string]any{"raw": data}
		}
	}
	return e, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
