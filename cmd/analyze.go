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
	"github.com/aviciot/queryscope/internal/validator"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze one SQL query against a live database",
	Long: `Analyze a read-only SQL statement: validate it, collect its estimated
plan, gather object statistics, detect anti-patterns, and compare against
the recorded history of the same query shape.

Use "-" to read the statement from stdin. The statement is planned inside
a rolled-back transaction and never executed.`,
	Example: `  # Analyze from a file
  queryscope analyze query.sql --profile prod

  # Plan shape only, no catalog or history access
  queryscope analyze query.sql --profile prod --depth plan_only

  # Compact JSON for tool consumers
  cat query.sql | queryscope analyze - --profile prod --preset compact --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")
		depthFlag, _ := cmd.Flags().GetString("depth")
		presetFlag, _ := cmd.Flags().GetString("preset")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}
		depth, err := output.ParseDepth(depthFlag)
		if err != nil {
			return err
		}
		preset, err := output.ParsePreset(presetFlag)
		if err != nil {
			return err
		}

		sql, err := readSQL(args[0])
		if err != nil {
			return err
		}
		// The security phase runs before any pool is opened, so a rejected
		// statement never causes a connection attempt.
		if err := validator.CheckSecurity(sql, validator.DefaultLimits); err != nil {
			return err
		}

		ctx := cmd.Context()
		env, closeEnv, err := buildEnv(ctx, db, profileName)
		if err != nil {
			return err
		}
		defer closeEnv()

		result, err := pipeline.Analyze(ctx, env, sql, depth, preset)
		if err != nil {
			return err
		}

		switch format {
		case "json":
			return output.RenderJSON(os.Stdout, result)
		default:
			return output.RenderAnalysisText(os.Stdout, result)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	analyzeCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	analyzeCmd.Flags().String("depth", "standard", "Analysis depth: standard, with_metadata, plan_only")
	analyzeCmd.Flags().String("preset", "standard", "Output preset: standard, compact, minimal")
	analyzeCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
