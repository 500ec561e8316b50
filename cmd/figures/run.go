// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/figures/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline step now",
}

var runCourseCmd = &cobra.Command{
	Use:   "course <course-id>",
	Short: "Load course daily metrics for one course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dateFor, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(a *app) error {
			m, created, err := a.runner.RunCourseDailyMetrics(cmd.Context(), args[0], dateFor, force)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"metrics": m, "created": created})
		})
	},
}

var runSiteCmd = &cobra.Command{
	Use:   "site <site-id>",
	Short: "Load site daily metrics for one site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, err := parseSiteID(args[0])
		if err != nil {
			return err
		}
		dateFor, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(a *app) error {
			m, created, err := a.runner.RunSiteDailyMetrics(cmd.Context(), siteID, dateFor, force)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"metrics": m, "created": created})
		})
	},
}

var runDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Load course then site daily metrics for every site",
	RunE: func(cmd *cobra.Command, args []string) error {
		dateFor, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(a *app) error {
			summary, err := a.runner.RunDailyMetrics(cmd.Context(), dateFor, force)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		})
	},
}

var runMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Fill monthly active users; last month for every site by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		siteID, _ := cmd.Flags().GetInt64("site")
		month, err := parseDateFlag(cmd, "month")
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			ctx := cmd.Context()
			if siteID == 0 {
				if !month.IsZero() {
					return fmt.Errorf("--month requires --site")
				}
				summary, err := a.runner.RunMonthlyMetrics(ctx, overwrite)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			}
			if month.IsZero() {
				m, created, err := a.runner.FillLastMonth(ctx, siteID, overwrite)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"metrics": m, "created": created})
			}
			m, created, err := a.runner.RunMonthlyFill(ctx, siteID, month, overwrite)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"metrics": m, "created": created})
		})
	},
}

var runCourseMAUCmd = &cobra.Command{
	Use:   "course-mau <site-id> <course-id>",
	Short: "Collect one course's monthly active users",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, err := parseSiteID(args[0])
		if err != nil {
			return err
		}
		month, err := parseDateFlag(cmd, "month")
		if err != nil {
			return err
		}
		overwrite, _ := cmd.Flags().GetBool("overwrite")
		return withApp(cmd, func(a *app) error {
			if month.IsZero() {
				month = pipeline.PreviousMonth(a.runner.Now())
			}
			m, created, err := a.runner.CollectCourseMAU(cmd.Context(), siteID, args[1], month, overwrite)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"metrics": m, "created": created})
		})
	},
}

var runProgressCmd = &cobra.Command{
	Use:   "progress <course-id>",
	Short: "Refresh progress snapshots of enrollments active on a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dateFor, err := parseDateFlag(cmd, "date")
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			if dateFor, err = pipeline.DateForRule(dateFor, a.runner.Now()); err != nil {
				return err
			}
			updated, err := a.runner.UpdateProgressForActiveEnrollments(cmd.Context(), args[0], dateFor)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"course_id": args[0],
				"date_for":  dateFor.Format(time.DateOnly),
				"updated":   updated,
			})
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{runCourseCmd, runSiteCmd, runDailyCmd, runProgressCmd} {
		c.Flags().String("date", "", "Date to load, YYYY-MM-DD (default yesterday)")
	}
	for _, c := range []*cobra.Command{runCourseCmd, runSiteCmd, runDailyCmd} {
		c.Flags().Bool("force", false, "Recompute rows that already exist")
	}
	for _, c := range []*cobra.Command{runMonthlyCmd, runCourseMAUCmd} {
		c.Flags().String("month", "", "Any day of the month to fill, YYYY-MM-DD (default last month)")
		c.Flags().Bool("overwrite", false, "Replace existing monthly rows")
	}
	runMonthlyCmd.Flags().Int64("site", 0, "Fill one site only")

	runCmd.AddCommand(runCourseCmd, runSiteCmd, runDailyCmd, runMonthlyCmd, runCourseMAUCmd, runProgressCmd)
}

// withApp opens the pipeline, runs fn and closes everything afterwards.
func withApp(cmd *cobra.Command, fn func(*app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseSiteID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("site id must be a positive integer, got %q", s)
	}
	return id, nil
}
