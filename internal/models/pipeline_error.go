// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package models

import "time"

// ErrorType classifies a captured pipeline failure.
type ErrorType string

const (
	ErrorTypeUnspecified ErrorType = "UNSPECIFIED"
	ErrorTypeGrades      ErrorType = "GRADES"
	ErrorTypeCourse      ErrorType = "COURSE"
	ErrorTypeSite        ErrorType = "SITE"
)

// Valid reports whether t is one of the known error types.
func (t ErrorType) Valid() bool {
	switch t {
	case ErrorTypeUnspecified, ErrorTypeGrades, ErrorTypeCourse, ErrorTypeSite:
		return true
	}
	return false
}

// Description is the human readable label shown in listings.
func (t ErrorType) Description() string {
	switch t {
	case ErrorTypeGrades:
		return "Grades data error"
	case ErrorTypeCourse:
		return "Course data error"
	case ErrorTypeSite:
		return "Site data error"
	default:
		return "Unspecified data error"
	}
}

// PipelineError is an append-only diagnostic record. It is never updated.
type PipelineError struct {
	ID        int64          `json:"id"`
	ErrorType ErrorType      `json:"error_type"`
	ErrorData map[string]any `json:"error_data"`
	UserID    *int64         `json:"user_id,omitempty"`
	CourseID  string         `json:"course_id,omitempty"`
	SiteID    *int64         `json:"site_id,omitempty"`
	Created   time.Time      `json:"created"`
}
