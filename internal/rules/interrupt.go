package rules

import (
	"fmt"
	"strings"
)

// FormatInterrupt renders a violation as the text that fully replaces the
// next workflow prompt. Pure: no state is touched, the caller decides what
// to do with the text.
func FormatInterrupt(v *Violation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "⚠️  **%s**\n\n", v.RuleType)
	fmt.Fprintf(&b, "%s\n\n", v.Diagnostic)

	if len(v.RecentEvents) > 0 {
		b.WriteString("**Recent Activity:**\n")
		for _, e := range v.RecentEvents {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Suggestion:** %s\n\n", v.Suggestion)

	b.WriteString("**What next?**\n")
	b.WriteString("- Fix the issue and continue: `phasewatch continue`\n")
	b.WriteString("- Escalate to human for review\n")

	return b.String()
}
