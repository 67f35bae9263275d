package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"phasewatch/internal/logger"
	"phasewatch/internal/trace"
	"phasewatch/internal/workflow"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workflow run and recent sessions",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	state, err := store.Load()
	if err != nil {
		return err
	}

	if state.Workflow == nil {
		fmt.Println("No workflow run in progress.")
	} else {
		ws := state.Workflow
		fmt.Printf("Workflow:  %s\n", ws.Mode)
		fmt.Printf("Node:      %s\n", ws.CurrentNode)
		fmt.Printf("History:   %s\n", strings.Join(ws.History, " -> "))
		if ws.PhaseStartTime != "" {
			if ts, err := time.Parse(time.RFC3339, ws.PhaseStartTime); err == nil {
				fmt.Printf("In phase:  %s\n", humanize.Time(ts))
			}
		}
		if ws.BypassOnce {
			fmt.Println("Bypass:    armed for next prompt")
		}
	}

	if state.Session != nil {
		fmt.Printf("Session:   %s\n", state.Session.SessionID)
	}

	run, _, err := workflow.BuildMetrics(store, time.Now())
	if err != nil {
		return err
	}
	if len(run.Phases) > 0 {
		fmt.Println("\nPhases:")
		for _, p := range run.Phases {
			fmt.Printf("  %-14s %6s  %4d events  %8s tokens\n",
				p.Phase, p.Duration.Round(time.Second), p.EventCount,
				humanize.Comma(int64(p.Tokens.Combined())))
		}
		fmt.Printf("\nTotal tokens: %s (in %s / out %s, %d turns)\n",
			humanize.Comma(int64(run.Total.Combined())),
			humanize.Comma(int64(run.Total.Input)),
			humanize.Comma(int64(run.Total.Output)),
			run.Total.AssistantTurns)
		if run.Unmatched > 0 {
			fmt.Printf("Events outside all phases: %d\n", run.Unmatched)
		}
	}

	printSessions(store.Dir())
	return nil
}

func printSessions(stateDir string) {
	index, err := trace.Open(stateDir)
	if err != nil {
		logger.Debug().Err(err).Msg("Session index unavailable")
		return
	}
	defer func() { _ = index.Close() }()

	sessions, err := index.ListSessions()
	if err != nil || len(sessions) == 0 {
		return
	}
	fmt.Println("\nSessions:")
	for _, s := range sessions {
		fmt.Printf("  %-38s %-12s %5d events  last seen %s\n",
			s.SessionID, s.Adapter, s.EventCount, humanize.Time(s.LastSeen))
	}
}
