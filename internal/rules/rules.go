// Package rules implements declarative guardrails: per-phase rule lists
// parsed from YAML, validated when the workflow loads, and evaluated in
// declaration order against freshly derived phase metrics.
package rules

import (
	"fmt"
	"regexp"
	"time"
)

// Rule kinds. The YAML `type` field selects one; anything else is rejected
// at load time.
const (
	KindRepeatedCommand  = "repeated_command"
	KindRepeatedFileEdit = "repeated_file_edit"
	KindPhaseTimeout     = "phase_timeout"
	KindTokenBudget      = "token_budget"
)

// Rule is one guardrail definition. The field set is the union of all rule
// kinds; Compile enforces the per-kind requirements so an invalid rule never
// reaches evaluation.
type Rule struct {
	Type string `yaml:"type" json:"type"`

	// repeated_command / repeated_file_edit
	Pattern     string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	PathPattern string `yaml:"path_pattern,omitempty" json:"path_pattern,omitempty"`
	Threshold   int    `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// Window is the trailing evidence window in seconds.
	Window int `yaml:"window,omitempty" json:"window,omitempty"`

	// phase_timeout, seconds
	MaxDuration int `yaml:"max_duration,omitempty" json:"max_duration,omitempty"`

	// token_budget, combined input+output tokens
	MaxTokens uint64 `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	re *regexp.Regexp
}

// Compile validates the rule and compiles its regex. Errors name the
// offending field so a misconfigured workflow fails loudly before it starts.
func (r *Rule) Compile() error {
	switch r.Type {
	case KindRepeatedCommand:
		if r.PathPattern != "" {
			return fmt.Errorf("rule %s: path_pattern is not valid here, use pattern", r.Type)
		}
		if err := r.compileCounted(r.Pattern, "pattern"); err != nil {
			return err
		}
	case KindRepeatedFileEdit:
		if r.Pattern != "" {
			return fmt.Errorf("rule %s: pattern is not valid here, use path_pattern", r.Type)
		}
		if err := r.compileCounted(r.PathPattern, "path_pattern"); err != nil {
			return err
		}
	case KindPhaseTimeout:
		if r.MaxDuration <= 0 {
			return fmt.Errorf("rule %s: max_duration must be a positive number of seconds", r.Type)
		}
	case KindTokenBudget:
		if r.MaxTokens == 0 {
			return fmt.Errorf("rule %s: max_tokens must be a positive token count", r.Type)
		}
	case "":
		return fmt.Errorf("rule missing type field")
	default:
		return fmt.Errorf("unknown rule type %q (expected %s, %s, %s, or %s)",
			r.Type, KindRepeatedCommand, KindRepeatedFileEdit, KindPhaseTimeout, KindTokenBudget)
	}
	return nil
}

func (r *Rule) compileCounted(pattern, field string) error {
	if r.Threshold <= 0 {
		return fmt.Errorf("rule %s: threshold must be a positive count", r.Type)
	}
	if r.Window <= 0 {
		return fmt.Errorf("rule %s: window must be a positive number of seconds", r.Type)
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("rule %s: %s does not compile: %w", r.Type, field, err)
		}
		r.re = re
	}
	return nil
}

// CompileAll validates a rule list in place, reporting the index of the
// first invalid rule.
func CompileAll(rs []Rule) error {
	for i := range rs {
		if err := rs[i].Compile(); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return nil
}

// windowDuration returns the trailing evidence window.
func (r *Rule) windowDuration() time.Duration {
	return time.Duration(r.Window) * time.Second
}

// matches tests the compiled pattern against a value; a rule without a
// pattern matches everything.
func (r *Rule) matches(value string) bool {
	return r.re == nil || r.re.MatchString(value)
}
