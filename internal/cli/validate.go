package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"phasewatch/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Validate a workflow definition",
	Long: `Validate a workflow definition.

Checks structure (start node, transition targets, implicit done node) and
every guardrail rule (known kind, positive thresholds, compiling regexes).
Problems are reported with the offending node and field; a workflow that
passes here cannot fail rule loading at run time.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	w, err := workflow.Load(args[0])
	if err != nil {
		return err
	}

	ruleCount := 0
	for _, node := range w.Nodes {
		ruleCount += len(node.Rules)
	}
	fmt.Printf("%s: valid (%d nodes, %d rules)\n", args[0], len(w.Nodes), ruleCount)
	return nil
}
