package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"phasewatch/internal/workflow"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Correlate the event log into per-phase metrics",
	Long: `Correlate the event log into per-phase metrics.

Re-derives phase windows from the transition log, attributes every event,
transcript token reading, and git commit to its phase, and prints the
aggregates. Read-only: repeated runs over the same log yield identical
output.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Emit metrics as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	run, _, err := workflow.BuildMetrics(store, time.Now())
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	for _, p := range run.Phases {
		fmt.Printf("== %s (%s)\n", p.Phase, p.Duration.Round(time.Second))
		fmt.Printf("   events: %d, tokens: %d in / %d out, turns: %d\n",
			p.EventCount, p.Tokens.Input, p.Tokens.Output, p.Tokens.AssistantTurns)
		for _, c := range p.Commands {
			fmt.Printf("   $ %-50s x%d\n", c.Command, c.Count)
		}
		for _, f := range p.FileEdits {
			fmt.Printf("   ~ %-50s x%d (%s)\n", f.FilePath, f.Count, f.Tool)
		}
		for _, c := range p.Commits {
			fmt.Printf("   * %.8s %s (+%d -%d)\n", c.Hash, c.Message, c.Insertions, c.Deletions)
		}
	}
	fmt.Printf("\nTotal tokens: %d in / %d out, %d turns\n",
		run.Total.Input, run.Total.Output, run.Total.AssistantTurns)
	if run.Unmatched > 0 {
		fmt.Printf("Events outside all phases: %d\n", run.Unmatched)
	}
	return nil
}
