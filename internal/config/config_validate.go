// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateGrades(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database threads must be >= 0, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if !c.Pipeline.MultisiteEnabled && c.Pipeline.DefaultSiteID <= 0 {
		return fmt.Errorf("FIGURES_DEFAULT_SITE_ID must be positive in standalone mode, got %d", c.Pipeline.DefaultSiteID)
	}
	if c.Pipeline.BackfillLogDir == "" {
		return fmt.Errorf("FIGURES_BACKFILL_LOG_DIR is required")
	}
	switch c.Pipeline.GradesSource {
	case GradesSourceDatabase, GradesSourceHTTP:
	default:
		return fmt.Errorf("FIGURES_GRADES_SOURCE must be %q or %q, got %q",
			GradesSourceDatabase, GradesSourceHTTP, c.Pipeline.GradesSource)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if !c.Schedule.Enabled {
		return nil
	}
	if len(strings.Fields(c.Schedule.DailyCron)) != 5 {
		return fmt.Errorf("SCHEDULE_DAILY_CRON must have 5 fields, got %q", c.Schedule.DailyCron)
	}
	if len(strings.Fields(c.Schedule.MonthlyCron)) != 5 {
		return fmt.Errorf("SCHEDULE_MONTHLY_CRON must have 5 fields, got %q", c.Schedule.MonthlyCron)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", c.Schedule.Timezone, err)
	}
	if c.Schedule.Retries < 0 {
		return fmt.Errorf("SCHEDULE_RETRIES must be >= 0, got %d", c.Schedule.Retries)
	}
	return nil
}

func (c *Config) validateGrades() error {
	if c.Pipeline.GradesSource != GradesSourceHTTP {
		return nil
	}
	if c.Grades.URL == "" {
		return fmt.Errorf("GRADES_URL is required when FIGURES_GRADES_SOURCE=http")
	}
	u, err := url.Parse(c.Grades.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("GRADES_URL must be an http(s) URL, got %q", c.Grades.URL)
	}
	if c.Grades.RequestsPerSecond <= 0 {
		return fmt.Errorf("GRADES_RPS must be positive, got %v", c.Grades.RequestsPerSecond)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
