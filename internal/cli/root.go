// Package cli wires the phasewatch commands together.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"phasewatch/internal/config"
	"phasewatch/internal/logger"
	"phasewatch/internal/storage"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose  bool
	stateDir string
)

var rootCmd = &cobra.Command{
	Use:   "phasewatch",
	Short: "Workflow supervisor for AI coding agents",
	Long: `Phasewatch orchestrates YAML-defined phase workflows for AI coding agents
and supervises them without controlling the agent directly.

Agent tooling emits events (hooks, session logs) that phasewatch normalizes
into a canonical append-only log. On each workflow advancement it re-derives
per-phase metrics (tokens, commands, file edits, commits) and evaluates the
phase's declarative guardrail rules. A tripped rule replaces the next prompt
with a structured interrupt.

State lives in a .phasewatch directory discovered like .git.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("phasewatch %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Override state directory (default: walk up for .phasewatch)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// openStore resolves the state directory, loads its config, initializes
// logging from it, and opens the store. Shared setup for every command that
// operates on an existing project.
func openStore() (*storage.Store, *config.Config, error) {
	dir, err := storage.ResolveStateDir(stateDir)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	initLogging(cfg)

	store, err := storage.New(dir)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func initLogging(cfg *config.Config) {
	if verbose {
		_ = logger.Init("debug", cfg.Settings.LogFile)
		return
	}
	_ = logger.Init(cfg.Settings.LogLevel, cfg.Settings.LogFile)
}
