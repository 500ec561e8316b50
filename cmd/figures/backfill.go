// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/figures/internal/backfill"
	"github.com/tomtom215/figures/internal/logging"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load historical metrics",
}

var backfillDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Load course then site daily metrics for each date in a range",
	Long: `Load course then site daily metrics for each date from --start to --end, in
ascending order. Site cumulative counts depend on the previous day, so dates are
never loaded out of order. Without --start the range begins at the earliest
enrollment of each site. Monthly active users are then filled for every
completed month since the site's first activity unless --skip-monthly is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDateFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseDateFlag(cmd, "end")
		if err != nil {
			return err
		}
		siteID, _ := cmd.Flags().GetInt64("site")
		force, _ := cmd.Flags().GetBool("force")
		resume, _ := cmd.Flags().GetBool("resume")
		skipMonthly, _ := cmd.Flags().GetBool("skip-monthly")
		clearCheckpoint, _ := cmd.Flags().GetBool("clear-checkpoint")

		return withApp(cmd, func(a *app) error {
			ctx := cmd.Context()
			if clearCheckpoint && siteID != 0 {
				if err := a.orchestrator.ClearCheckpoint(ctx, siteID); err != nil {
					return err
				}
			}
			summary, err := a.orchestrator.Backfill(ctx, backfill.Request{
				SiteID:      siteID,
				Start:       start,
				End:         end,
				Force:       force,
				Resume:      resume,
				SkipMonthly: skipMonthly,
			})
			if summary != nil {
				if perr := printJSON(cmd, summary); perr != nil {
					return perr
				}
			}
			if err != nil && summary != nil {
				logging.Warn().Msg("Backfill interrupted; rerun with --resume to continue after the last completed date")
			}
			return err
		})
	},
}

var backfillMonthlyCmd = &cobra.Command{
	Use:   "monthly <site-id>",
	Short: "Fill monthly active users for every month since the site's first activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, err := parseSiteID(args[0])
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		return withApp(cmd, func(a *app) error {
			rows, err := a.runner.BackfillMonthlyMetricsForSite(cmd.Context(), siteID, overwrite)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		})
	},
}

func init() {
	f := backfillDailyCmd.Flags()
	f.Int64("site", 0, "Backfill one site (default every site)")
	f.String("start", "", "First date, YYYY-MM-DD (default earliest enrollment)")
	f.String("end", "", "Last date, YYYY-MM-DD (default yesterday)")
	f.Bool("force", false, "Recompute rows that already exist")
	f.Bool("resume", false, "Skip dates at or before the saved checkpoint")
	f.Bool("skip-monthly", false, "Do not fill monthly active users after the daily pass")
	f.Bool("clear-checkpoint", false, "Forget the saved checkpoint of --site first")

	backfillMonthlyCmd.Flags().Bool("overwrite", false, "Replace existing monthly rows")

	backfillCmd.AddCommand(backfillDailyCmd, backfillMonthlyCmd)
}
