package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "feedstats",
		Short:   "Live throughput and coverage statistics for a market-data feed",
		Version: version,
		Long: `feedstats subscribes to a market-data book stream (or replays a capture),
counts live updates and initial snapshots per instrument, and prints a
report every few seconds with 1s, 10s and 60s rates and universe coverage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no subcommand is provided, print help
			return cmd.Help()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	return cmd
}

// Execute runs the root command and reports any error on stderr.
// This is called by main.Main().
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
