package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"phasewatch/internal/logger"
)

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Acknowledge an interrupt and bypass rules for the next prompt",
	Long: `Acknowledge an interrupt and bypass rules for the next prompt.

After a guardrail interrupt, this marks the violation as handled: rule
evaluation is suppressed for exactly the next prompt request in the current
phase, then resumes normally.`,
	RunE: runContinue,
}

func init() {
	rootCmd.AddCommand(continueCmd)
}

func runContinue(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	state, err := store.Load()
	if err != nil {
		return err
	}
	if state.Workflow == nil {
		return fmt.Errorf("no workflow run in progress")
	}

	state.Workflow.BypassOnce = true
	if err := store.Save(state); err != nil {
		return err
	}

	logger.Info().Str("node", state.Workflow.CurrentNode).Msg("One-shot rule bypass armed")
	fmt.Printf("Rules bypassed for the next prompt in node %q.\n", state.Workflow.CurrentNode)
	return nil
}
