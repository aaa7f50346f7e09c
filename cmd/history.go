/*
Copyright © 2026 AVI COHEN
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aviciot/queryscope/internal/normalize"
	"github.com/aviciot/queryscope/internal/output"
	"github.com/aviciot/queryscope/internal/qerror"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and maintain recorded query history",
	Long: `Inspect the execution snapshots and performance summaries recorded by
previous analyze runs, and prune old snapshots.

Commands that take a [file] argument fingerprint the statement the same way
analyze does, so formatting and literal values do not matter.`,
}

var historySummaryCmd = &cobra.Command{
	Use:     "summary <file>",
	Short:   "Show the performance summary for a query shape",
	Example: `  queryscope history summary query.sql --profile prod`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")

		sql, err := readSQL(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()
		if env.Store == nil {
			return noStoreErr()
		}

		fp := normalize.Normalize(sql).Fingerprint
		summary, err := env.Store.Summary(ctx, fp, env.DBName, env.InstanceID)
		if err != nil {
			return err
		}
		if summary == nil {
			fmt.Printf("No history recorded for fingerprint %s.\n", fp[:12])
			return nil
		}
		return output.RenderJSON(os.Stdout, summary)
	},
}

var historyRecentCmd = &cobra.Command{
	Use:     "recent <file>",
	Short:   "List recent execution snapshots for a query shape",
	Example: `  queryscope history recent query.sql --profile prod --limit 5`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		limit, _ := cmd.Flags().GetInt("limit")

		sql, err := readSQL(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()
		if env.Store == nil {
			return noStoreErr()
		}

		fp := normalize.Normalize(sql).Fingerprint
		snaps, err := env.Store.RecentSnapshots(ctx, fp, env.DBName, env.InstanceID, limit)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Printf("No history recorded for fingerprint %s.\n", fp[:12])
			return nil
		}
		return output.RenderJSON(os.Stdout, snaps)
	},
}

var historyPruneCmd = &cobra.Command{
	Use:     "prune",
	Short:   "Delete snapshots older than the retention window",
	Example: `  queryscope history prune --profile prod --keep-days 90`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		keepDays, _ := cmd.Flags().GetInt("keep-days")

		if keepDays <= 0 {
			return qerror.New(qerror.UsageError,
				"invalid retention window",
				"pass --keep-days with a positive number of days")
		}

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()
		if env.Store == nil {
			return noStoreErr()
		}

		cutoff := time.Now().AddDate(0, 0, -keepDays)
		removed, err := env.Store.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d snapshots older than %s.\n", removed, cutoff.Format("2006-01-02"))
		return nil
	},
}

var historyRegressionsCmd = &cobra.Command{
	Use:     "regressions",
	Short:   "Count regressions recorded for this database",
	Example: `  queryscope history regressions --profile prod --since-days 7`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		sinceDays, _ := cmd.Flags().GetInt("since-days")

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()
		if env.Store == nil {
			return noStoreErr()
		}

		since := time.Now().AddDate(0, 0, -sinceDays)
		total, unique, err := env.Store.RegressionCount(ctx, env.DBName, since)
		if err != nil {
			return err
		}
		fmt.Printf("%d regressions across %d query shapes since %s.\n",
			total, unique, since.Format("2006-01-02"))
		return nil
	},
}

func noStoreErr() error {
	return qerror.New(qerror.StoreError,
		"history storage is unavailable",
		"check the history database connection for this profile")
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historySummaryCmd)
	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyRegressionsCmd)

	for _, c := range []*cobra.Command{historySummaryCmd, historyRecentCmd, historyPruneCmd, historyRegressionsCmd} {
		c.Flags().StringP("db", "d", "", "PostgreSQL connection string")
		c.Flags().StringP("profile", "p", "", "Use named profile from config")
		c.MarkFlagsMutuallyExclusive("db", "profile")
	}
	historyRecentCmd.Flags().Int("limit", 10, "Maximum snapshots to list")
	historyPruneCmd.Flags().Int("keep-days", 90, "Retention window in days")
	historyRegressionsCmd.Flags().Int("since-days", 7, "Lookback window in days")
}
