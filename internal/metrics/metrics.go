// Package metrics correlates canonical events, agent transcripts, and git
// history into per-phase aggregates. Aggregation is order independent: inputs
// are sorted by timestamp before accumulation, so replaying the same events
// in any arrival order yields identical metrics.
package metrics

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"time"

	"phasewatch/internal/event"
	"phasewatch/internal/logger"
)

// CommandStat is the frequency record for one normalized command string
// within a phase. Timestamps are kept alongside the count so rule evaluation
// can apply its own trailing time window over the raw evidence.
type CommandStat struct {
	Command    string      `json:"command"`
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"timestamps"`
}

// FileStat is the frequency record for one (file path, tool) pair within a
// phase.
type FileStat struct {
	FilePath   string      `json:"file_path"`
	Tool       string      `json:"tool"`
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"timestamps"`
}

// PhaseMetrics are the aggregates for one phase window, recomputed from the
// event log on demand and never cached across invocations.
type PhaseMetrics struct {
	Phase     string        `json:"phase"`
	Start     time.Time     `json:"start"`
	End       *time.Time    `json:"end,omitempty"`
	Duration  time.Duration `json:"duration"`
	Commands  []CommandStat `json:"bash_commands,omitempty"`
	FileEdits []FileStat    `json:"file_modifications,omitempty"`
	Tokens    TokenTotals   `json:"tokens"`
	Commits   []GitCommit   `json:"git_commits,omitempty"`
	// EventCount is the number of canonical events attributed to the window,
	// including ones that produced no command or file evidence.
	EventCount int `json:"event_count"`
}

// CommandCount returns the total number of command executions in the phase.
func (m *PhaseMetrics) CommandCount() int {
	n := 0
	for _, c := range m.Commands {
		n += c.Count
	}
	return n
}

// FileEditCount returns the total number of file modifications in the phase.
func (m *PhaseMetrics) FileEditCount() int {
	n := 0
	for _, f := range m.FileEdits {
		n += f.Count
	}
	return n
}

// RunMetrics are the correlated aggregates for a whole run.
type RunMetrics struct {
	Phases    []PhaseMetrics `json:"phases"`
	Total     TokenTotals    `json:"total_tokens"`
	Unmatched int            `json:"unmatched_events"`
}

// PhaseByName returns the metrics for the most recent window of the named
// phase, which is the window rules evaluate against when a node is revisited.
func (r *RunMetrics) PhaseByName(name string) *PhaseMetrics {
	for i := len(r.Phases) - 1; i >= 0; i-- {
		if r.Phases[i].Phase == name {
			return &r.Phases[i]
		}
	}
	return nil
}

// Build correlates events against phase windows and produces per-phase
// aggregates. Windows must already pass ValidateWindows. Transcript paths
// that do not exist are skipped with a warning rather than failing the run.
func Build(events []event.CanonicalEvent, windows []PhaseWindow, transcripts []string, now time.Time) *RunMetrics {
	run := &RunMetrics{Phases: make([]PhaseMetrics, len(windows))}
	for i, w := range windows {
		run.Phases[i] = PhaseMetrics{
			Phase:    w.Phase,
			Start:    w.Start,
			End:      w.End,
			Duration: w.Duration(now),
		}
	}

	sorted := make([]event.CanonicalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return eventBefore(&sorted[i], &sorted[j])
	})

	for i := range sorted {
		ev := &sorted[i]
		ts, err := time.Parse(time.RFC3339, ev.Timestamp)
		if err != nil {
			logger.Warn().Str("timestamp", ev.Timestamp).Msg("Skipping event with unparseable timestamp")
			continue
		}
		idx := findWindow(windows, ts)
		if idx < 0 {
			run.Unmatched++
			continue
		}
		phase := &run.Phases[idx]
		phase.EventCount++

		if cmd := extractCommand(ev); cmd != "" {
			phase.Commands = recordCommand(phase.Commands, cmd, ts)
		}
		if file, tool := extractFileEdit(ev); file != "" {
			phase.FileEdits = recordFileEdit(phase.FileEdits, file, tool, ts)
		}
		if usage := extractEventUsage(ev); usage != nil {
			phase.Tokens.Add(*usage)
			run.Total.Add(*usage)
		}
	}

	for _, path := range transcripts {
		if path == "" {
			continue
		}
		records, err := readTranscriptUsage(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable transcript")
			}
			continue
		}
		for _, rec := range records {
			idx := findWindow(windows, rec.Timestamp)
			if idx < 0 {
				continue
			}
			run.Phases[idx].Tokens.Add(rec.Tokens)
			run.Total.Add(rec.Tokens)
		}
	}

	return run
}

// eventBefore is the total order events are accumulated in: timestamp first,
// then session, then event content. RFC3339 timestamps have one-second
// granularity, so same-second ties within a session are routine; breaking
// them on content keeps evidence ordering independent of arrival order.
func eventBefore(a, b *event.CanonicalEvent) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	if a.SessionID != b.SessionID {
		return a.SessionID < b.SessionID
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.ToolName != b.ToolName {
		return a.ToolName < b.ToolName
	}
	if c := string(a.ToolInput); c != string(b.ToolInput) {
		return c < string(b.ToolInput)
	}
	return string(a.ToolResponse) < string(b.ToolResponse)
}

// AttributeCommits assigns each commit to the window containing its
// timestamp. Commits outside every window are dropped.
func AttributeCommits(run *RunMetrics, windows []PhaseWindow, commits []GitCommit) {
	for _, c := range commits {
		idx := findWindow(windows, c.Timestamp)
		if idx < 0 {
			continue
		}
		run.Phases[idx].Commits = append(run.Phases[idx].Commits, c)
	}
}

// recordCommand folds one execution into the per-command frequency list,
// preserving first-seen order.
func recordCommand(stats []CommandStat, cmd string, ts time.Time) []CommandStat {
	for i := range stats {
		if stats[i].Command == cmd {
			stats[i].Count++
			stats[i].Timestamps = append(stats[i].Timestamps, ts)
			return stats
		}
	}
	return append(stats, CommandStat{Command: cmd, Count: 1, Timestamps: []time.Time{ts}})
}

func recordFileEdit(stats []FileStat, path, tool string, ts time.Time) []FileStat {
	for i := range stats {
		if stats[i].FilePath == path && stats[i].Tool == tool {
			stats[i].Count++
			stats[i].Timestamps = append(stats[i].Timestamps, ts)
			return stats
		}
	}
	return append(stats, FileStat{FilePath: path, Tool: tool, Count: 1, Timestamps: []time.Time{ts}})
}

// extractCommand pulls the shell command out of a Bash tool event. Only
// PostToolUse counts: the command has actually run at that point.
func extractCommand(ev *event.CanonicalEvent) string {
	if ev.Type != event.PostToolUse || ev.ToolName != "Bash" || len(ev.ToolInput) == 0 {
		return ""
	}
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(ev.ToolInput, &input); err != nil {
		return ""
	}
	return input.Command
}

// fileEditTools are the tool names whose PostToolUse events count as file
// modifications.
var fileEditTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

func extractFileEdit(ev *event.CanonicalEvent) (path, tool string) {
	if ev.Type != event.PostToolUse || !fileEditTools[ev.ToolName] || len(ev.ToolInput) == 0 {
		return "", ""
	}
	var input struct {
		FilePath     string `json:"file_path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(ev.ToolInput, &input); err != nil {
		return "", ""
	}
	if input.FilePath != "" {
		return input.FilePath, ev.ToolName
	}
	return input.NotebookPath, ev.ToolName
}

// extractEventUsage reads token deltas that adapters embed directly in the
// event's tool_response (Codex token_count events arrive this way; there is
// no separate transcript to mine).
func extractEventUsage(ev *event.CanonicalEvent) *TokenTotals {
	if ev.Type != event.PostToolUse || len(ev.ToolResponse) == 0 {
		return nil
	}
	var resp struct {
		InputTokens       *int64 `json:"input_tokens"`
		OutputTokens      *int64 `json:"output_tokens"`
		CachedInputTokens *int64 `json:"cached_input_tokens"`
	}
	if err := json.Unmarshal(ev.ToolResponse, &resp); err != nil {
		return nil
	}
	if resp.InputTokens == nil && resp.OutputTokens == nil {
		return nil
	}
	usage := &TokenTotals{}
	if resp.InputTokens != nil {
		usage.Input = clampTokens(*resp.InputTokens, "input_tokens")
	}
	if resp.OutputTokens != nil {
		usage.Output = clampTokens(*resp.OutputTokens, "output_tokens")
	}
	if resp.CachedInputTokens != nil {
		usage.CacheRead = clampTokens(*resp.CachedInputTokens, "cached_input_tokens")
	}
	return usage
}
