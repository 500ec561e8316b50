// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package scheduler

import (
	"context"
	"time"

	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/pipeline"
)

const (
	JobDailyMetrics   = "daily-metrics"
	JobMonthlyMetrics = "monthly-metrics"
)

// MetricsRunner is satisfied by *pipeline.Runner.
type MetricsRunner interface {
	RunDailyMetrics(ctx context.Context, dateFor time.Time, force bool) (*pipeline.DailySummary, error)
	RunMonthlyMetrics(ctx context.Context, overwrite bool) (*pipeline.MonthlySummary, error)
}

// DailyMetricsJob loads yesterday's course and site daily metrics for every
// site.
func DailyMetricsJob(r MetricsRunner, schedule string, retries int) Job {
	return Job{
		Name:     JobDailyMetrics,
		Schedule: schedule,
		Retries:  retries,
		Run: func(ctx context.Context) error {
			_, err := r.RunDailyMetrics(ctx, time.Time{}, false)
			return err
		},
	}
}

// MonthlyMetricsJob fills last month's active user rows for every site.
func MonthlyMetricsJob(r MetricsRunner, schedule string, retries int) Job {
	return Job{
		Name:     JobMonthlyMetrics,
		Schedule: schedule,
		Retries:  retries,
		Run: func(ctx context.Context) error {
			_, err := r.RunMonthlyMetrics(ctx, false)
			return err
		},
	}
}

// NewFromConfig builds the scheduler with the daily and monthly jobs.
func NewFromConfig(cfg *config.ScheduleConfig, r MetricsRunner, opts ...Option) (*Scheduler, error) {
	return New(Config{
		Enabled:       cfg.Enabled,
		CheckInterval: cfg.CheckInterval,
		Timezone:      cfg.Timezone,
		RetryDelay:    cfg.RetryDelay,
	}, []Job{
		DailyMetricsJob(r, cfg.DailyCron, cfg.Retries),
		MonthlyMetricsJob(r, cfg.MonthlyCron, cfg.Retries),
	}, opts...)
}
