package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"phasewatch/internal/adapter"
	"phasewatch/internal/event"
	"phasewatch/internal/logger"
	"phasewatch/internal/storage"
	"phasewatch/internal/trace"
)

var hookAdapter string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Ingest one agent event from stdin",
	Long: `Ingest one agent event from stdin.

Reads a single JSON object, normalizes it via the first adapter whose
environment markers match (or the adapter named with --adapter), and appends
the canonical event to the project's event log.

Telemetry is best-effort: malformed or skippable input exits 0 so the agent
is never blocked by supervision problems. Only an unrecoverable I/O error
(cannot open or lock the log) exits nonzero.`,
	RunE: runHook,
}

func init() {
	hookCmd.Flags().StringVarP(&hookAdapter, "adapter", "a", "", "Force a specific adapter (claude_code, codex, cursor)")
	rootCmd.AddCommand(hookCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	// Hook stderr can surface in the agent's session; stay silent unless the
	// operator asked for verbosity.
	if !verbose {
		logger.InitQuiet()
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil || len(raw) == 0 {
		logger.Warn().Err(err).Msg("No hook input on stdin, skipping")
		return nil
	}

	registry := adapter.NewRegistry()

	name := hookAdapter
	if name == "" {
		name = cfg.Settings.Adapter
	}
	var a adapter.Adapter
	if name != "" {
		if a = registry.Get(name); a == nil {
			return fmt.Errorf("unknown adapter %q (available: %v)", name, registry.Names())
		}
	} else if a = registry.Detect(); a == nil {
		logger.Warn().Msg("No adapter matched the environment, skipping event")
		return nil
	}

	ev, err := a.Normalize(raw)
	if err != nil {
		logger.Warn().Str("adapter", a.Name()).Err(err).Msg("Skipping event that failed to normalize")
		return nil
	}
	if ev == nil {
		logger.Debug().Str("adapter", a.Name()).Msg("Adapter filtered event")
		return nil
	}

	// Events without a source timestamp get the ingestion time.
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := store.AppendEvent(ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if index, err := trace.Open(store.Dir()); err == nil {
		index.RecordEventBestEffort(ev)
		_ = index.Close()
	} else {
		logger.Debug().Err(err).Msg("Session index unavailable")
	}

	if ev.Type == event.SessionStart {
		recordSessionStart(store, ev)
	}

	logger.Debug().
		Str("adapter", a.Name()).
		Str("type", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Msg("Ingested event")
	return nil
}

// recordSessionStart remembers which agent session is driving the workflow,
// including the transcript path later token aggregation mines.
func recordSessionStart(store *storage.Store, ev *event.CanonicalEvent) {
	state, err := store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Could not load state to record session start")
		return
	}
	state.Session = &storage.SessionMetadata{
		SessionID:      ev.SessionID,
		TranscriptPath: ev.TranscriptPath,
		StartedAt:      ev.Timestamp,
	}
	if err := store.Save(state); err != nil {
		logger.Warn().Err(err).Msg("Could not persist session metadata")
	}
}
