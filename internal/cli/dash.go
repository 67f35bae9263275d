package cli

import (
	"github.com/spf13/cobra"

	"phasewatch/internal/dashboard"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the interactive run dashboard",
	Long: `Open the interactive run dashboard.

Shows live per-phase metrics for the current run. The view reloads whenever
the state directory changes on disk, so it can run alongside an active agent
session.`,
	RunE: runDash,
}

func init() {
	rootCmd.AddCommand(dashCmd)
}

func runDash(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	return dashboard.Run(store)
}
