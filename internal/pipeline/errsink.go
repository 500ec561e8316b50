// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/models"
)

// ErrorStore persists pipeline errors.
type ErrorStore interface {
	InsertPipelineError(ctx context.Context, e *models.PipelineError) (int64, error)
}

// ErrorReporter forwards pipeline errors to an external tracker.
type ErrorReporter interface {
	ReportPipelineError(ctx context.Context, e *models.PipelineError)
}

// ErrorSink records data errors found while computing metrics. It never
// returns an error and never panics, so loaders can call it inside their
// iteration loops.
type ErrorSink struct {
	logger   zerolog.Logger
	store    ErrorStore
	logToDB  bool
	reporter ErrorReporter
}

// SinkOption configures an ErrorSink.
type SinkOption func(*ErrorSink)

// WithSinkLogger replaces the component logger.
func WithSinkLogger(logger zerolog.Logger) SinkOption {
	return func(s *ErrorSink) { s.logger = logger }
}

// WithReporter forwards every logged error to r.
func WithReporter(r ErrorReporter) SinkOption {
	return func(s *ErrorSink) { s.reporter = r }
}

// NewErrorSink creates a sink. Rows are written to store only when logToDB is
// set or the caller passes Persist. store may be nil.
func NewErrorSink(store ErrorStore, logToDB bool, opts ...SinkOption) *ErrorSink {
	s := &ErrorSink{
		logger:  logging.WithComponent("pipeline_errors"),
		store:   store,
		logToDB: logToDB,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogOption attaches context to a logged error.
type LogOption func(*models.PipelineError, *bool)

func ForUser(userID int64) LogOption {
	return func(e *models.PipelineError, _ *bool) { e.UserID = &userID }
}

func ForCourse(courseID string) LogOption {
	return func(e *models.PipelineError, _ *bool) { e.CourseID = courseID }
}

func ForSite(siteID int64) LogOption {
	return func(e *models.PipelineError, _ *bool) { e.SiteID = &siteID }
}

// Persist stores the error row even when DB error logging is disabled.
func Persist() LogOption {
	return func(_ *models.PipelineError, persist *bool) { *persist = true }
}

// LogError records data under errorType.
func (s *ErrorSink) LogError(ctx context.Context, data map[string]any, errorType models.ErrorType, opts ...LogOption) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().Interface("panic", r).Msg("error sink panicked")
		}
	}()

	if !errorType.Valid() {
		errorType = models.ErrorTypeUnspecified
	}
	entry := &models.PipelineError{
		ErrorType: errorType,
		ErrorData: data,
		Created:   time.Now().UTC(),
	}
	persist := s.logToDB
	for _, opt := range opts {
		opt(entry, &persist)
	}

	metrics.RecordPipelineError(string(errorType))
	s.emit(ctx, entry)

	if persist && s.store != nil {
		id, err := s.store.InsertPipelineError(ctx, entry)
		if err != nil {
			s.logger.Error().Err(err).Str("error_type", string(errorType)).Msg("failed to persist pipeline error")
		} else {
			entry.ID = id
		}
	}
	if s.reporter != nil {
		s.reporter.ReportPipelineError(ctx, entry)
	}
}

// emit writes the structured log event. error_data keys are sorted.
func (s *ErrorSink) emit(ctx context.Context, e *models.PipelineError) {
	payload, err := json.Marshal(e.ErrorData)
	if err != nil {
		payload, _ = json.Marshal(map[string]string{"unserializable": fmt.Sprintf("%v", e.ErrorData)})
	}

	event := s.logger.Warn().Str("error_type", string(e.ErrorType)).RawJSON("error_data", payload)
	if id := logging.RunIDFromContext(ctx); id != "" {
		event = event.Str("run_id", id)
	}
	if e.UserID != nil {
		event = event.Int64("user_id", *e.UserID)
	}
	if e.CourseID != "" {
		event = event.Str("course_id", e.CourseID)
	}
	if e.SiteID != nil {
		event = event.Int64("site_id", *e.SiteID)
	}
	event.Msg(e.ErrorType.Description())
}

// LogExecTime logs the start of description and returns a function that logs
// the elapsed time when called.
//
//	defer pipeline.LogExecTime(logger, "backfill site 1")()
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func LogExecTime(logger zerolog.Logger, description string) func() {
	start := time.Now()
	logger.Info().Str("task", description).Msg("started")
	return func() {
		logger.Info().
			Str("task", description).
			Float64("elapsed_seconds", time.Since(start).Seconds()).
			Msg("finished")
	}
}
