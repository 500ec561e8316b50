// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

// Command figures computes and serves learner analytics metrics.
//
// # Commands
//
//	figures serve                      scheduler and REST API under a supervisor tree
//	figures run course|site|daily      load daily metrics once
//	figures run monthly|course-mau     fill monthly active users
//	figures run progress               refresh progress for active enrollments
//	figures backfill daily|monthly     load a date range in order
//	figures import <snapshot.json>     load a platform snapshot into the mirror
//	figures errors list                show captured pipeline errors
//	figures purge                      delete a site's daily rows in a date range
//	figures migrate                    apply schema migrations and print the version
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables, optionally read from a .env file first
//   - Config file (config.yaml, or the file named by --config / CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// Every command runs under a context canceled by SIGINT or SIGTERM. A
// backfill stops before its next date, keeping its checkpoint; serve shuts
// the supervisor tree down gracefully.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
