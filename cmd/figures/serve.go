// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/figures/internal/api"
	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/metrics"
	"github.com/tomtom215/figures/internal/scheduler"
	"github.com/tomtom215/figures/internal/supervisor"
	"github.com/tomtom215/figures/internal/supervisor/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the metrics scheduler and the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
		return serve(cmd, !noScheduler)
	},
}

func init() {
	serveCmd.Flags().Bool("no-scheduler", false, "Serve the API only; do not run scheduled jobs")
}

func serve(cmd *cobra.Command, withScheduler bool) error {
	ctx := cmd.Context()
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Info().Str("version", version).Msg("Starting Figures with supervisor tree")

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.Timeout,
	})

	if withScheduler {
		sched, err := scheduler.NewFromConfig(&a.cfg.Schedule, a.runner)
		if err != nil {
			return fmt.Errorf("configure scheduler: %w", err)
		}
		tree.AddPipelineService(services.NewSchedulerService(sched))
	}

	// Background backfills stop with the server.
	jobs := api.NewBackfillJobs(ctx, a.orchestrator)
	handler := api.NewHandler(a.db, a.runner, a.orchestrator,
		api.WithVersion(version),
		api.WithBackfillJobs(jobs))
	router := api.NewRouter(handler, api.NewMiddleware(api.MiddlewareConfigFromServer(a.cfg.Server)))
	server := api.NewServer(a.cfg.Server, router)
	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.Timeout))

	go trackUptime(ctx)

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	err = tree.Serve(ctx)
	jobs.Wait()

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree exited: %w", err)
	}
	logging.Info().Msg("Figures stopped")
	return nil
}

func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(start).Seconds())
		}
	}
}
