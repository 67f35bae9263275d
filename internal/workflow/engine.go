package workflow

import (
	"fmt"
	"path/filepath"
	"time"

	"phasewatch/internal/logger"
	"phasewatch/internal/metrics"
	"phasewatch/internal/rules"
	"phasewatch/internal/storage"
)

// RestartClaim resets the workflow to its start node regardless of the
// current node's declared transitions.
const RestartClaim = "restart_cycle"

// Force suppresses rule evaluation on the next prompt: all rules when
// RuleType is empty, otherwise only rules of that kind.
type Force struct {
	RuleType string
}

// Result is the outcome of one advancement request.
type Result struct {
	Prompt      string
	State       *storage.WorkflowState
	From        string
	To          string
	Interrupted bool
}

// Advance resolves claims against the current node's transitions, moves the
// state, and returns the prompt for the resulting node. When the entered
// node declares rules, the guardrail verdict is computed first and a
// violation's interrupt replaces the prompt entirely.
func Advance(w *Workflow, store *storage.Store, state *storage.WorkflowState, claims []string, force *Force, now time.Time) (*Result, error) {
	current := state.CurrentNode
	node, ok := w.Nodes[current]
	if !ok {
		return nil, fmt.Errorf("state references node %q not present in workflow", current)
	}

	claimSet := make(map[string]bool, len(claims))
	for _, c := range claims {
		claimSet[c] = true
	}

	next := current
	if claimSet[RestartClaim] {
		next = w.StartNode
	} else {
		for _, t := range node.Transitions {
			if claimSet[t.When] {
				next = t.To
				break
			}
		}
	}

	newState := *state
	if next != current {
		newState.CurrentNode = next
		newState.History = append(append([]string(nil), state.History...), next)
		newState.PhaseStartTime = now.UTC().Format(time.RFC3339)
		// Entering a fresh phase clears any pending one-shot bypass.
		newState.BypassOnce = false

		if err := store.AppendTransition(&storage.Transition{
			Timestamp:  now.UTC().Format(time.RFC3339),
			WorkflowID: newState.WorkflowID,
			FromNode:   current,
			ToNode:     next,
			Phase:      next,
			Mode:       newState.Mode,
		}); err != nil {
			return nil, fmt.Errorf("record transition: %w", err)
		}
	}

	entered, ok := w.Nodes[newState.CurrentNode]
	if !ok {
		return nil, fmt.Errorf("transition target %q not present in workflow", newState.CurrentNode)
	}

	result := &Result{State: &newState, From: current, To: newState.CurrentNode, Prompt: entered.Prompt}

	active := activeRules(entered.Rules, &newState, force)
	if len(active) == 0 {
		return result, nil
	}

	violation, err := Verdict(store, &newState, active, now)
	if err != nil {
		return nil, err
	}
	if violation != nil {
		result.Prompt = rules.FormatInterrupt(violation)
		result.Interrupted = true
	}
	return result, nil
}

// activeRules applies the two bypass mechanisms: the persisted one-shot
// bypass (consumed here) and the --force flag (all rules or one kind).
func activeRules(rs []rules.Rule, state *storage.WorkflowState, force *Force) []rules.Rule {
	if state.BypassOnce {
		state.BypassOnce = false
		logger.Debug().Str("node", state.CurrentNode).Msg("Consuming one-shot rule bypass")
		return nil
	}
	if force == nil {
		return rs
	}
	if force.RuleType == "" {
		return nil
	}
	var kept []rules.Rule
	for _, r := range rs {
		if r.Type != force.RuleType {
			kept = append(kept, r)
		}
	}
	return kept
}

// Verdict computes the guardrail verdict for the state's current phase: it
// re-derives metrics from the full event log and phase windows, then
// evaluates the given rules. Returns nil when no rule trips. Overlapping
// phase windows are a structural inconsistency and fail the call.
func Verdict(store *storage.Store, state *storage.WorkflowState, rs []rules.Rule, now time.Time) (*rules.Violation, error) {
	run, _, err := BuildMetrics(store, now)
	if err != nil {
		return nil, err
	}

	phaseStart := now
	if state.PhaseStartTime != "" {
		if ts, err := time.Parse(time.RFC3339, state.PhaseStartTime); err == nil {
			phaseStart = ts
		}
	}

	phase := run.PhaseByName(state.CurrentNode)
	if phase == nil {
		// No events attributed yet; evaluate against empty metrics so
		// duration-based rules still apply.
		phase = &metrics.PhaseMetrics{Phase: state.CurrentNode, Start: phaseStart}
	}

	ctx := &rules.Context{
		Phase:      state.CurrentNode,
		PhaseStart: phaseStart,
		Now:        now,
		Metrics:    phase,
	}
	return rules.Evaluate(rs, ctx), nil
}

// BuildMetrics is the read-only correlation query: derive phase windows from
// the transition log, validate them, and aggregate the event log plus the
// current session's transcript into per-phase metrics.
func BuildMetrics(store *storage.Store, now time.Time) (*metrics.RunMetrics, []metrics.PhaseWindow, error) {
	transitions, err := store.ReadTransitions()
	if err != nil {
		return nil, nil, err
	}
	windows := metrics.WindowsFromTransitions(transitions)
	if err := metrics.ValidateWindows(windows); err != nil {
		return nil, nil, fmt.Errorf("run is inconsistent: %w", err)
	}

	events, err := store.ReadEvents()
	if err != nil {
		return nil, nil, err
	}

	var transcripts []string
	if st, err := store.Load(); err == nil && st.Session != nil && st.Session.TranscriptPath != "" {
		transcripts = append(transcripts, st.Session.TranscriptPath)
	}

	run := metrics.Build(events, windows, transcripts, now)
	metrics.AttributeCommits(run, windows, gitCommitsForRun(store, windows))
	return run, windows, nil
}

// gitCommitsForRun harvests repository commits since the first phase opened.
// The state dir lives inside the project, so its parent is the repo root.
func gitCommitsForRun(store *storage.Store, windows []metrics.PhaseWindow) []metrics.GitCommit {
	if len(windows) == 0 {
		return nil
	}
	return metrics.ReadGitCommits(filepath.Dir(store.Dir()), windows[0].Start)
}
