// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package main

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/config"
	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/pipeline"
	"github.com/tomtom215/figures/internal/platform"
	"github.com/tomtom215/figures/internal/platform/gradeclient"
	"github.com/tomtom215/figures/internal/reporting"
)

// app holds the components shared by the commands. Close releases them in
// reverse order of opening.
type app struct {
	cfg          *config.Config
	db           *database.DB
	runner       *pipeline.Runner
	orchestrator *backfill.Orchestrator

	reporter   *reporting.RollbarReporter
	checkpoint *badger.DB
}

// openDatabase loads configuration and opens DuckDB, applying migrations.
func openDatabase(cmd *cobra.Command) (*config.Config, *database.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return cfg, db, nil
}

// openApp builds the full pipeline: platform scope, grade source, error sink,
// runner and backfill orchestrator.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, db, err := openDatabase(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db}

	var sinkOpts []pipeline.SinkOption
	if a.reporter = reporting.NewRollbarReporter(cfg.Reporting); a.reporter != nil {
		sinkOpts = append(sinkOpts, pipeline.WithReporter(a.reporter))
		logging.Info().Str("environment", cfg.Reporting.Environment).Msg("Forwarding pipeline errors to Rollbar")
	}
	sink := pipeline.NewErrorSink(db, cfg.Pipeline.LogErrorsToDB, sinkOpts...)

	var grades platform.GradeSource = db
	if cfg.Pipeline.GradesSource == config.GradesSourceHTTP {
		grades = gradeclient.NewCircuitBreakerClient(&cfg.Grades)
		logging.Info().Str("url", cfg.Grades.URL).Msg("Reading grades from the grades service")
	}

	resolver := platform.NewSiteResolver(db, cfg.Pipeline.MultisiteEnabled, cfg.Pipeline.DefaultSiteID)
	a.runner = pipeline.NewRunner(platform.NewScope(db, resolver), grades, db, sink)

	var checkpoints backfill.CheckpointStore = backfill.NewMemoryCheckpoints()
	if path := cfg.Pipeline.CheckpointPath; path != "" {
		store, bdb, err := backfill.OpenBadgerCheckpoints(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open checkpoint store %s: %w", path, err)
		}
		checkpoints, a.checkpoint = store, bdb
	}
	a.orchestrator = backfill.NewOrchestrator(a.runner, checkpoints,
		backfill.WithLogDir(cfg.Pipeline.BackfillLogDir))

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("multisite", cfg.Pipeline.MultisiteEnabled).
		Str("grades_source", cfg.Pipeline.GradesSource).
		Msg("Pipeline initialized")
	return a, nil
}

func (a *app) Close() {
	if a.checkpoint != nil {
		if err := a.checkpoint.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing checkpoint store")
		}
	}
	if a.reporter != nil {
		if err := a.reporter.Close(); err != nil {
			logging.Error().Err(err).Msg("Error flushing Rollbar")
		}
	}
	if err := a.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}
