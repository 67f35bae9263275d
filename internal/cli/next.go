package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"phasewatch/internal/config"
	"phasewatch/internal/logger"
	"phasewatch/internal/storage"
	"phasewatch/internal/workflow"
)

var (
	nextWorkflowFile string
	nextForce        string
)

var nextCmd = &cobra.Command{
	Use:   "next [claims...]",
	Short: "Advance the workflow and print the next prompt",
	Long: `Advance the workflow and print the next prompt.

Claims are matched against the current node's transitions in declaration
order; the first match selects the next node. With no matching claim the
workflow stays on the current node.

If the entered node declares guardrail rules, metrics are re-derived from
the event log and the rules evaluated; a violation replaces the prompt with
an interrupt. Use --force to skip all rules once, or --force=<type> to skip
one rule kind.`,
	RunE: runNext,
}

func init() {
	nextCmd.Flags().StringVarP(&nextWorkflowFile, "workflow", "w", "", "Workflow definition file (default: <workflow_dir>/<mode>.yaml)")
	nextCmd.Flags().StringVar(&nextForce, "force", "", "Bypass rule evaluation (optionally naming one rule type)")
	nextCmd.Flags().Lookup("force").NoOptDefVal = "all"
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	state, err := store.Load()
	if err != nil {
		return err
	}
	if state.Workflow == nil {
		return fmt.Errorf("no workflow run in progress; start one with 'phasewatch init --workflow <file>'")
	}

	w, err := workflow.Load(workflowPath(store, cfg, state.Workflow.Mode))
	if err != nil {
		return err
	}

	var force *workflow.Force
	if cmd.Flags().Changed("force") {
		force = &workflow.Force{}
		if nextForce != "all" {
			force.RuleType = nextForce
		}
	}

	result, err := workflow.Advance(w, store, state.Workflow, args, force, time.Now())
	if err != nil {
		return err
	}

	state.Workflow = result.State
	if err := store.Save(state); err != nil {
		return err
	}

	if result.Interrupted {
		logger.Info().Str("node", result.To).Msg("Guardrail interrupt issued")
	} else if result.From != result.To {
		logger.Info().Str("from", result.From).Str("to", result.To).Msg("Workflow advanced")
	}

	if w.IsTerminal(result.To) && !result.Interrupted {
		fmt.Printf("Workflow complete at node %q.\n", result.To)
		return nil
	}

	fmt.Println(result.Prompt)
	return nil
}

// workflowPath resolves the active workflow definition: explicit flag wins,
// otherwise <workflow_dir>/<mode>.yaml relative to the project root.
func workflowPath(store *storage.Store, cfg *config.Config, mode string) string {
	if nextWorkflowFile != "" {
		return nextWorkflowFile
	}
	dir := cfg.Settings.WorkflowDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(store.Dir()), dir)
	}
	return filepath.Join(dir, mode+".yaml")
}
