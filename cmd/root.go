/*
Copyright © 2026 AVI COHEN
*/
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aviciot/queryscope/internal/qerror"
)

var Version = "dev"

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	Level(zerolog.WarnLevel).
	With().Timestamp().Logger()

func init() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log = log.Level(zerolog.DebugLevel)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:           "queryscope",
	SilenceUsage:  true,
	SilenceErrors: true,
	Short:         "Analyze SQL queries for anti-patterns and performance regressions",
	Long: `queryscope explains read-only SQL against a live PostgreSQL database,
detects plan anti-patterns, and tracks plan and cost history per query
shape so regressions surface the next time the same query is analyzed.

Queries are planned, never executed; every statement runs inside a
rolled-back transaction.`,
	Example: `  # Analyze a query against a saved profile
  queryscope analyze query.sql --profile prod

  # Compare two candidate rewrites
  queryscope compare old.sql new.sql --profile prod

  # Show the recorded history of a query shape
  queryscope history summary query.sql --profile prod`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := qerror.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(qerror.ExitCode(err))
	}
}
