// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package metrics exposes Prometheus instrumentation for the API, the metrics
// pipeline, backfills, the grades client and the scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figures_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "figures_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Pipeline Metrics
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "figures_pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"job"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"job", "result"}, // result: "success", "failure"
	)

	MetricsRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_metrics_records_total",
			Help: "Metrics rows handled by the pipeline",
		},
		[]string{"table", "action"}, // action: "created", "updated", "skipped"
	)

	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_pipeline_errors_total",
			Help: "Errors captured by the pipeline error sink",
		},
		[]string{"error_type"},
	)

	// Backfill Metrics
	BackfillDatesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "figures_backfill_dates_processed_total",
			Help: "Dates completed by backfill runs",
		},
	)

	BackfillCourses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_backfill_courses_total",
			Help: "Course days handled by backfill runs",
		},
		[]string{"result"}, // result: "processed", "skipped", "failed"
	)

	BackfillLastDate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figures_backfill_last_date_timestamp",
			Help: "Unix timestamp of the last date completed by backfill per site",
		},
		[]string{"site_id"},
	)

	// Grades Client Metrics
	GradesRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "figures_grades_request_duration_seconds",
			Help:    "Duration of grade structure requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	GradesRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_grades_request_errors_total",
			Help: "Failed grade structure requests",
		},
		[]string{"reason"}, // reason: "status", "transport", "decode", "rate_limited"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figures_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figures_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Scheduler Metrics
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "figures_scheduler_job_runs_total",
			Help: "Scheduled job executions",
		},
		[]string{"job", "result"},
	)

	SchedulerLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figures_scheduler_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		},
		[]string{"job"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "figures_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "figures_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordPipelineRun records the outcome of one pipeline job
func RecordPipelineRun(job string, duration time.Duration, err error) {
	PipelineRunDuration.WithLabelValues(job).Observe(duration.Seconds())
	PipelineRunsTotal.WithLabelValues(job, resultLabel(err)).Inc()
}

// RecordMetricsWrite counts a metrics row that was created, updated or left as is
func RecordMetricsWrite(table string, created, skipped bool) {
	action := "updated"
	switch {
	case skipped:
		action = "skipped"
	case created:
		action = "created"
	}
	MetricsRecordsWritten.WithLabelValues(table, action).Inc()
}

// RecordPipelineError counts an error captured by the error sink
func RecordPipelineError(errorType string) {
	PipelineErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordBackfillCourse counts a backfilled course day by result
func RecordBackfillCourse(result string) {
	BackfillCourses.WithLabelValues(result).Inc()
}

// RecordGradesRequest records a grade structure request
func RecordGradesRequest(duration time.Duration, reason string) {
	GradesRequestDuration.Observe(duration.Seconds())
	if reason != "" {
		GradesRequestErrors.WithLabelValues(reason).Inc()
	}
}

// RecordSchedulerRun records a scheduled job execution
func RecordSchedulerRun(job string, err error) {
	SchedulerJobRuns.WithLabelValues(job, resultLabel(err)).Inc()
	if err == nil {
		SchedulerLastSuccess.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
