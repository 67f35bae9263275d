package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"phasewatch/internal/config"
	"phasewatch/internal/logger"
	"phasewatch/internal/storage"
	"phasewatch/internal/workflow"
)

var initWorkflow string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a phasewatch project in the current directory",
	Long: `Initialize a phasewatch project in the current directory.

Creates the .phasewatch state directory with a default config, and when
--workflow names a workflow definition, validates it and starts a run at its
start node.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initWorkflow, "workflow", "w", "", "Workflow definition to start a run from")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := stateDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		dir = filepath.Join(wd, storage.StateDirName)
	}

	store, err := storage.New(dir)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	initLogging(cfg)

	fmt.Printf("Initialized %s\n", dir)

	if path, err := scaffoldSampleWorkflow(dir, cfg); err != nil {
		logger.Warn().Err(err).Msg("Could not write sample workflow")
	} else if path != "" {
		fmt.Printf("Wrote sample workflow to %s\n", path)
	}

	if initWorkflow == "" {
		return nil
	}

	w, err := workflow.Load(initWorkflow)
	if err != nil {
		return err
	}

	now := time.Now()
	state := workflow.InitState(w, now)
	state.WorkflowID = uuid.NewString()

	if err := store.Save(&storage.State{Workflow: state}); err != nil {
		return err
	}
	if err := store.AppendTransition(&storage.Transition{
		Timestamp:  now.UTC().Format(time.RFC3339),
		WorkflowID: state.WorkflowID,
		FromNode:   "",
		ToNode:     state.CurrentNode,
		Phase:      state.CurrentNode,
		Mode:       state.Mode,
	}); err != nil {
		return err
	}

	logger.Info().
		Str("workflow_id", state.WorkflowID).
		Str("start_node", state.CurrentNode).
		Msg("Started workflow run")
	fmt.Printf("Started workflow %q at node %q\n", w.Mode, state.CurrentNode)
	return nil
}

const sampleWorkflowYAML = `mode: tdd
start_node: spec
nodes:
  spec:
    prompt: "Write a failing test that captures the requirement."
    transitions:
      - when: specced
        to: code
  code:
    prompt: "Implement the smallest change that makes the test pass."
    transitions:
      - when: implemented
        to: review
    rules:
      - type: repeated_command
        threshold: 5
        window: 120
      - type: phase_timeout
        max_duration: 1800
  review:
    prompt: "Review the diff, then approve or send it back."
    transitions:
      - when: approved
        to: done
      - when: rejected
        to: code
`

// scaffoldSampleWorkflow writes a starter definition into the configured
// workflow directory. Existing directories are left alone so re-running init
// never clobbers user workflows. Returns the written path, or "" when skipped.
func scaffoldSampleWorkflow(stateDir string, cfg *config.Config) (string, error) {
	wfDir := cfg.Settings.WorkflowDir
	if !filepath.IsAbs(wfDir) {
		wfDir = filepath.Join(filepath.Dir(stateDir), wfDir)
	}
	if _, err := os.Stat(wfDir); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(wfDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(wfDir, "tdd.yaml")
	if err := os.WriteFile(path, []byte(sampleWorkflowYAML), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
