// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import "fmt"

// UnlinkedCourseError is returned when a course does not belong to any site.
type UnlinkedCourseError struct {
	CourseID string
}

func (e *UnlinkedCourseError) Error() string {
	return fmt.Sprintf("no site found for course %q", e.CourseID)
}

// InvalidDataError is returned when computed metrics fail validation and are
// not stored.
type InvalidDataError struct {
	Table  string
	Field  string
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid %s.%s: %s", e.Table, e.Field, e.Reason)
}
