package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"phasewatch/internal/metrics"
)

// Violation is the result of a tripped rule: human-readable diagnosis plus
// the raw evidence the interrupt shows. Recomputed every evaluation, never
// persisted.
type Violation struct {
	RuleType     string
	Diagnostic   string
	Suggestion   string
	RecentEvents []string
}

// Context is everything one evaluation pass needs. The engine is stateless
// between calls: a violation clears the moment the underlying condition
// stops holding.
type Context struct {
	Phase      string
	PhaseStart time.Time
	Now        time.Time
	Metrics    *metrics.PhaseMetrics
}

// maxEvidence bounds the evidence lines shown in an interrupt.
const maxEvidence = 5

// Evaluate runs the rules in declaration order and returns the first
// violation, or nil when no rule trips. Rules must have been compiled.
func Evaluate(rs []Rule, ctx *Context) *Violation {
	for i := range rs {
		r := &rs[i]
		var v *Violation
		switch r.Type {
		case KindRepeatedCommand:
			v = evaluateRepeatedCommand(r, ctx)
		case KindRepeatedFileEdit:
			v = evaluateRepeatedFileEdit(r, ctx)
		case KindPhaseTimeout:
			v = evaluatePhaseTimeout(r, ctx)
		case KindTokenBudget:
			v = evaluateTokenBudget(r, ctx)
		}
		if v != nil {
			return v
		}
	}
	return nil
}

// evidenceItem is one timestamped piece of raw evidence.
type evidenceItem struct {
	ts    time.Time
	value string
}

// inTrailingWindow reports whether ts falls inside [now-window, now]. The
// boundary at the window's open edge is inclusive so evidence exactly
// window-seconds old still counts.
func inTrailingWindow(ts, now time.Time, window time.Duration) bool {
	return !ts.Before(now.Add(-window)) && !ts.After(now)
}

func evaluateRepeatedCommand(r *Rule, ctx *Context) *Violation {
	var items []evidenceItem
	for _, stat := range ctx.Metrics.Commands {
		if !r.matches(stat.Command) {
			continue
		}
		for _, ts := range stat.Timestamps {
			if inTrailingWindow(ts, ctx.Now, r.windowDuration()) {
				items = append(items, evidenceItem{ts: ts, value: stat.Command})
			}
		}
	}
	if len(items) < r.Threshold {
		return nil
	}
	return &Violation{
		RuleType:     "Repeated Command",
		Diagnostic:   fmt.Sprintf("Command executed %d times in last %ds", len(items), r.Window),
		Suggestion:   "You're stuck in a command loop. Review the error output carefully and fix the specific issue before rerunning.",
		RecentEvents: recentEvidence(items),
	}
}

func evaluateRepeatedFileEdit(r *Rule, ctx *Context) *Violation {
	var items []evidenceItem
	for _, stat := range ctx.Metrics.FileEdits {
		if !r.matches(stat.FilePath) {
			continue
		}
		for _, ts := range stat.Timestamps {
			if inTrailingWindow(ts, ctx.Now, r.windowDuration()) {
				items = append(items, evidenceItem{ts: ts, value: fmt.Sprintf("%s (%s)", stat.FilePath, stat.Tool)})
			}
		}
	}
	if len(items) < r.Threshold {
		return nil
	}
	return &Violation{
		RuleType:     "Repeated File Edit",
		Diagnostic:   fmt.Sprintf("Files edited %d times in last %ds", len(items), r.Window),
		Suggestion:   "You're thrashing on the same files. Step back, write a failing test that captures the intended behavior, then make one deliberate change.",
		RecentEvents: recentEvidence(items),
	}
}

func evaluatePhaseTimeout(r *Rule, ctx *Context) *Violation {
	elapsed := ctx.Now.Sub(ctx.PhaseStart)
	limit := time.Duration(r.MaxDuration) * time.Second
	if elapsed <= limit {
		return nil
	}
	return &Violation{
		RuleType:   "Phase Timeout",
		Diagnostic: fmt.Sprintf("%s phase running for %ds (limit: %ds)", ctx.Phase, int(elapsed.Seconds()), r.MaxDuration),
		Suggestion: "This phase has run longer than planned. Consider breaking the remaining work into smaller steps or handing part of it off.",
		RecentEvents: []string{
			fmt.Sprintf("Phase start: %s", ctx.PhaseStart.Format("15:04:05")),
			fmt.Sprintf("Duration: %s", formatSpan(elapsed, true)),
			fmt.Sprintf("Limit: %s", formatSpan(limit, false)),
		},
	}
}

// formatSpan renders a duration as space-separated minute and second
// components: measured durations keep the seconds ("12m 0s") while limits
// drop a zero remainder ("10m").
func formatSpan(d time.Duration, keepZeroSeconds bool) string {
	total := int(d.Round(time.Second).Seconds())
	m, s := total/60, total%60
	if m == 0 {
		return fmt.Sprintf("%ds", s)
	}
	if s == 0 && !keepZeroSeconds {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

func evaluateTokenBudget(r *Rule, ctx *Context) *Violation {
	tokens := ctx.Metrics.Tokens
	total := tokens.Combined()
	if total <= r.MaxTokens {
		return nil
	}
	return &Violation{
		RuleType: "Token Budget",
		Diagnostic: fmt.Sprintf("%s phase consumed %s / %s tokens",
			ctx.Phase, humanize.Comma(int64(total)), humanize.Comma(int64(r.MaxTokens))),
		Suggestion: "Token spend exceeded the budget for this phase. Consider simplifying scope or summarizing context before continuing.",
		RecentEvents: []string{
			fmt.Sprintf("Input tokens: %s", humanize.Comma(int64(tokens.Input))),
			fmt.Sprintf("Output tokens: %s", humanize.Comma(int64(tokens.Output))),
			fmt.Sprintf("Total: %s (limit: %s)", humanize.Comma(int64(total)), humanize.Comma(int64(r.MaxTokens))),
			fmt.Sprintf("Turns: %d", tokens.AssistantTurns),
		},
	}
}

// recentEvidence formats the newest maxEvidence items oldest-first, so the
// interrupt reads chronologically with the most recent line last.
func recentEvidence(items []evidenceItem) []string {
	sort.Slice(items, func(i, j int) bool { return items[i].ts.Before(items[j].ts) })
	if len(items) > maxEvidence {
		items = items[len(items)-maxEvidence:]
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s: %s", it.ts.Format("15:04:05"), it.value)
	}
	return lines
}
