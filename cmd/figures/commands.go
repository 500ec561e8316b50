// Figures - Learner Analytics Metrics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/figures

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/figures/internal/database"
	"github.com/tomtom215/figures/internal/logging"
	"github.com/tomtom215/figures/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Load a platform snapshot into the DuckDB mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closeDB(db)

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		stats, err := db.ImportSnapshot(cmd.Context(), f)
		if err != nil {
			return err
		}
		logging.Info().Int("rows", stats.Total()).Str("file", args[0]).Msg("Snapshot imported")
		return printJSON(cmd, stats)
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect captured pipeline errors",
}

var errorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline errors, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		errorType, _ := cmd.Flags().GetString("type")
		siteID, _ := cmd.Flags().GetInt64("site")
		asJSON, _ := cmd.Flags().GetBool("json")

		t := models.ErrorType(strings.ToUpper(errorType))
		if t != "" && !t.Valid() {
			return fmt.Errorf("unknown error type %q", errorType)
		}

		_, db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closeDB(db)

		rows, err := db.ListPipelineErrors(cmd.Context(), database.PipelineErrorFilter{
			ErrorType: t,
			SiteID:    siteID,
			Limit:     limit,
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pipeline errors found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tTYPE\tSITE\tCOURSE\tUSER\tMESSAGE")
		for _, e := range rows {
			msg, _ := e.ErrorData["msg"].(string)
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.Created.Local().Format(time.DateTime), e.ErrorType,
				optionalID(e.SiteID), e.CourseID, optionalID(e.UserID), msg)
		}
		return w.Flush()
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <site-id>",
	Short: "Delete a site's daily metrics rows in a date range",
	Long: `Delete course, site and learner progress daily rows of a site between --from
and --to inclusive. Site rows after the range keep their cumulative counts; run
"figures backfill daily --site ID --start FROM --force" to rebuild them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, err := parseSiteID(args[0])
		if err != nil {
			return err
		}
		from, err := parseDateFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := parseDateFlag(cmd, "to")
		if err != nil {
			return err
		}
		if from.IsZero() || to.IsZero() {
			return fmt.Errorf("--from and --to are required")
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("purge deletes metrics rows; pass --yes to confirm")
		}

		_, db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closeDB(db)

		result, err := db.PurgeMetrics(cmd.Context(), siteID, from, to)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables, apply pending migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		// database.New applies pending migrations.
		_, db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer closeDB(db)

		ctx := cmd.Context()
		schemaVersion, err := db.GetCurrentSchemaVersion(ctx)
		if err != nil {
			return err
		}
		history, err := db.GetMigrationHistory(ctx)
		if err != nil {
			return err
		}
		counts, err := db.GetRecordCounts(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]interface{}{
			"schema_version": schemaVersion,
			"migrations":     history,
			"record_counts":  counts,
		})
	},
}

func init() {
	errorsListCmd.Flags().Int("limit", 50, "Maximum rows")
	errorsListCmd.Flags().String("type", "", "Filter by type: UNSPECIFIED, GRADES, COURSE or SITE")
	errorsListCmd.Flags().Int64("site", 0, "Filter by site")
	errorsListCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	errorsCmd.AddCommand(errorsListCmd)

	purgeCmd.Flags().String("from", "", "First date to delete, YYYY-MM-DD")
	purgeCmd.Flags().String("to", "", "Last date to delete, YYYY-MM-DD")
	purgeCmd.Flags().Bool("yes", false, "Confirm the deletion")
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}

func closeDB(db *database.DB) {
	if err := db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}
