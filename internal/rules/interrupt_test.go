package rules

import (
	"strings"
	"testing"
)

func TestFormatInterrupt(t *testing.T) {
	v := &Violation{
		RuleType:   "Repeated Command",
		Diagnostic: "Command executed 5 times in last 120s",
		Suggestion: "Review the error output carefully.",
		RecentEvents: []string{
			"10:00:00: go build",
			"10:00:30: go build",
			"10:01:00: go build",
		},
	}

	out := FormatInterrupt(v)

	for _, want := range []string{
		"⚠️  **Repeated Command**",
		"Command executed 5 times in last 120s",
		"**Recent Activity:**",
		"- 10:00:00: go build",
		"**Suggestion:** Review the error output carefully.",
		"**What next?**",
		"`phasewatch continue`",
		"Escalate to human",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("interrupt missing %q:\n%s", want, out)
		}
	}
}

func TestFormatInterrupt_NoEvidenceOmitsSection(t *testing.T) {
	v := &Violation{
		RuleType:   "Phase Timeout",
		Diagnostic: "code phase running for 720s (limit: 600s)",
		Suggestion: "Break the remaining work into smaller steps.",
	}

	out := FormatInterrupt(v)
	if strings.Contains(out, "**Recent Activity:**") {
		t.Error("empty evidence should omit the activity section")
	}
	if !strings.Contains(out, "**What next?**") {
		t.Error("decision checkpoint missing")
	}
}

func TestFormatInterrupt_PreservesDiagnosticNewlines(t *testing.T) {
	v := &Violation{
		RuleType:   "Test",
		Diagnostic: "Line 1\nLine 2",
		Suggestion: "Do this",
	}
	if !strings.Contains(FormatInterrupt(v), "Line 1\nLine 2") {
		t.Error("diagnostic newlines not preserved")
	}
}
