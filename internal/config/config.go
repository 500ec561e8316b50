// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Package config loads Figures configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	Grades    GradesConfig    `koanf:"grades"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Reporting ReportingConfig `koanf:"reporting"`
}

// DatabaseConfig configures the DuckDB file holding the platform mirror and metrics tables.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = use NumCPU
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// Grade source names.
const (
	GradesSourceDatabase = "database"
	GradesSourceHTTP     = "http"
)

// PipelineConfig controls how metrics are computed and where run artifacts go.
type PipelineConfig struct {
	// MultisiteEnabled selects the organization-based site resolver.
	// When false every course belongs to DefaultSiteID.
	MultisiteEnabled bool  `koanf:"multisite_enabled"`
	DefaultSiteID    int64 `koanf:"default_site_id"`

	// LogErrorsToDB persists PipelineError rows in addition to log output.
	LogErrorsToDB bool `koanf:"log_errors_to_db"`

	BackfillLogDir string `koanf:"backfill_log_dir"`
	CheckpointPath string `koanf:"checkpoint_path"` // badger directory; empty keeps checkpoints in memory

	GradesSource string `koanf:"grades_source"` // database or http
}

// ScheduleConfig drives the in-process job scheduler used by "figures serve".
type ScheduleConfig struct {
	Enabled       bool          `koanf:"enabled"`
	DailyCron     string        `koanf:"daily_cron"`
	MonthlyCron   string        `koanf:"monthly_cron"`
	Timezone      string        `koanf:"timezone"`
	CheckInterval time.Duration `koanf:"check_interval"`
	Retries       int           `koanf:"retries"` // 0 = no automatic retry
	RetryDelay    time.Duration `koanf:"retry_delay"`
}

// GradesConfig configures the remote grading service client.
type GradesConfig struct {
	URL               string        `koanf:"url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	MaxRetries        int           `koanf:"max_retries"`
}

type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging, production
	CORSOrigins []string      `koanf:"cors_origins"`
	RateLimit   int           `koanf:"rate_limit"` // requests per minute per IP
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ReportingConfig enables forwarding of pipeline errors to Rollbar.
type ReportingConfig struct {
	RollbarToken string `koanf:"rollbar_token"`
	Environment  string `koanf:"environment"`
	CodeVersion  string `koanf:"code_version"`
}

// Enabled reports whether a Rollbar token is configured.
func (r ReportingConfig) Enabled() bool {
	return r.RollbarToken != ""
}

// Load reads configuration using the layered koanf loader.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
