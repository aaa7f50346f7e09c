/*
Copyright © 2026 AVI COHEN
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aviciot/queryscope/internal/output"
	"github.com/aviciot/queryscope/internal/pipeline"
	"github.com/aviciot/queryscope/internal/qerror"
	"github.com/aviciot/queryscope/internal/validator"
)

var compareCmd = &cobra.Command{
	Use:   "compare <file1> <file2>",
	Short: "Compare the estimated plans of two candidate queries",
	Long: `Compare two read-only SQL statements against the same database. Both are
planned, never executed, and the estimated plans are diffed node by node.

Either file (but not both) can be "-" to read from stdin. Nothing is
written to history; comparison is for evaluating rewrites side by side.`,
	Example: `  # Compare two rewrites
  queryscope compare old.sql new.sql --profile prod

  # Read one candidate from stdin
  cat old.sql | queryscope compare - new.sql --profile prod`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}
		if args[0] == "-" && args[1] == "-" {
			return qerror.New(qerror.UsageError,
				"both inputs cannot be stdin",
				"pass at most one \"-\" argument")
		}

		sqlA, err := readSQL(args[0])
		if err != nil {
			return err
		}
		sqlB, err := readSQL(args[1])
		if err != nil {
			return err
		}
		// Both candidates must clear the security phase before any pool is
		// opened.
		if err := validator.CheckSecurity(sqlA, validator.DefaultLimits); err != nil {
			return err
		}
		if err := validator.CheckSecurity(sqlB, validator.DefaultLimits); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()

		envelope, err := pipeline.Compare(ctx, env, sqlA, sqlB)
		if err != nil {
			return err
		}

		switch format {
		case "json":
			return output.RenderJSON(os.Stdout, envelope)
		default:
			return output.RenderComparisonText(os.Stdout, envelope)
		}
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	compareCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	compareCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	compareCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
