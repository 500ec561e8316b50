// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first file found wins.
var DefaultConfigPaths = []string{
	"figures.yaml",
	"figures.yml",
	"/etc/figures/config.yaml",
	"/etc/figures/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/figures.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
		},
		Pipeline: PipelineConfig{
			MultisiteEnabled: false,
			DefaultSiteID:    1,
			LogErrorsToDB:    true,
			BackfillLogDir:   "/data/figures/backfill",
			CheckpointPath:   "",
			GradesSource:     GradesSourceDatabase,
		},
		Schedule: ScheduleConfig{
			Enabled:       true,
			DailyCron:     "30 2 * * *",
			MonthlyCron:   "0 4 1 * *",
			Timezone:      "UTC",
			CheckInterval: time.Minute,
			Retries:       0,
			RetryDelay:    time.Minute,
		},
		Grades: GradesConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			MaxRetries:        3,
		},
		Server: ServerConfig{
			Port:        8660,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
			CORSOrigins: []string{"*"},
			RateLimit:   120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Reporting: ReportingConfig{
			Environment: "development",
		},
	}
}

// LoadWithKoanf loads configuration in three layers:
//  1. struct defaults
//  2. YAML file from CONFIG_PATH or DefaultConfigPaths (optional)
//  3. environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths may arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"duckdb_path":              "database.path",
	"duckdb_max_memory":        "database.max_memory",
	"duckdb_threads":           "database.threads",
	"figures_multisite":        "pipeline.multisite_enabled",
	"figures_default_site_id":  "pipeline.default_site_id",
	"figures_log_errors_to_db": "pipeline.log_errors_to_db",
	"figures_backfill_log_dir": "pipeline.backfill_log_dir",
	"figures_checkpoint_path":  "pipeline.checkpoint_path",
	"figures_grades_source":    "pipeline.grades_source",
	"schedule_enabled":         "schedule.enabled",
	"schedule_daily_cron":      "schedule.daily_cron",
	"schedule_monthly_cron":    "schedule.monthly_cron",
	"schedule_timezone":        "schedule.timezone",
	"schedule_retries":         "schedule.retries",
	"grades_url":               "grades.url",
	"grades_api_key":           "grades.api_key",
	"grades_timeout":           "grades.timeout",
	"grades_rps":               "grades.requests_per_second",
	"grades_burst":             "grades.burst",
	"http_port":                "server.port",
	"http_host":                "server.host",
	"http_timeout":             "server.timeout",
	"environment":              "server.environment",
	"cors_origins":             "server.cors_origins",
	"rate_limit":               "server.rate_limit",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
	"rollbar_token":            "reporting.rollbar_token",
	"rollbar_environment":      "reporting.environment",
	"code_version":             "reporting.code_version",
}

func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
