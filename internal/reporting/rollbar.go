// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package reporting forwards pipeline data errors to Rollbar.
package reporting

import (
	"context"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/models"
	"github.com/tomtom215/figures/internal/pipeline"
)

var _ pipeline.ErrorReporter = (*RollbarReporter)(nil)

// RollbarReporter sends each pipeline error as a Rollbar message item.
type RollbarReporter struct {
	client *rollbar.Client
}

// NewRollbarReporter returns nil when no token is configured.
func NewRollbarReporter(cfg config.ReportingConfig) *RollbarReporter {
	if !cfg.Enabled() {
		return nil
	}
	host, _ := os.Hostname()
	client := rollbar.New(cfg.RollbarToken, cfg.Environment, cfg.CodeVersion, host, "")
	return newReporter(client)
}

func newReporter(client *rollbar.Client) *RollbarReporter {
	client.SetStackTracer(errors.StackTracer)
	return &RollbarReporter{client: client}
}

// ReportPipelineError implements pipeline.ErrorReporter. GRADES and COURSE
// errors concern single learners or courses and are sent as warnings.
func (r *RollbarReporter) ReportPipelineError(ctx context.Context, e *models.PipelineError) {
	level := rollbar.WARN
	if e.ErrorType == models.ErrorTypeSite || e.ErrorType == models.ErrorTypeUnspecified {
		level = rollbar.ERR
	}

	extras := map[string]interface{}{
		"error_type": string(e.ErrorType),
		"error_data": e.ErrorData,
	}
	if e.ID != 0 {
		extras["pipeline_error_id"] = e.ID
	}
	if e.UserID != nil {
		extras["user_id"] = *e.UserID
	}
	if e.CourseID != "" {
		extras["course_id"] = e.CourseID
	}
	if e.SiteID != nil {
		extras["site_id"] = *e.SiteID
	}
	r.client.MessageWithExtrasAndContext(ctx, level, e.ErrorType.Description(), extras)
}

// Close flushes queued items.
func (r *RollbarReporter) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
