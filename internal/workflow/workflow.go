// Package workflow implements the YAML-defined phase state machine: loading
// and validating workflow definitions, advancing state on claims, and asking
// the guardrail engine for a verdict whenever a node with rules is entered.
package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"phasewatch/internal/rules"
	"phasewatch/internal/storage"
)

// DoneNode is the implicit terminal node injected into every workflow.
const DoneNode = "done"

// Transition maps one claim to a destination node.
type Transition struct {
	When string `yaml:"when"`
	To   string `yaml:"to"`
}

// Node is one phase of a workflow.
type Node struct {
	Prompt      string       `yaml:"prompt"`
	Summary     string       `yaml:"summary"`
	Transitions []Transition `yaml:"transitions"`
	Rules       []rules.Rule `yaml:"rules"`
}

// Workflow is a complete parsed workflow definition.
type Workflow struct {
	Mode      string          `yaml:"mode"`
	StartNode string          `yaml:"start_node"`
	Nodes     map[string]Node `yaml:"nodes"`
}

// Parse decodes and validates a workflow definition. The done node is
// implicit: declaring it explicitly is rejected, and a terminal done node is
// injected after parsing.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow YAML: %w", err)
	}

	if _, ok := w.Nodes[DoneNode]; ok {
		return nil, fmt.Errorf("the %q node is implicit and must not be defined; remove it from the workflow", DoneNode)
	}
	if w.Nodes == nil {
		w.Nodes = make(map[string]Node)
	}
	w.Nodes[DoneNode] = Node{}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Load reads and parses a workflow definition file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	return w, nil
}

// Validate checks structural integrity and compiles every node's rules.
// Rule problems are fatal here: a silently dropped rule would be a silent
// loss of the guardrail guarantee.
func (w *Workflow) Validate() error {
	if w.Mode == "" {
		return fmt.Errorf("workflow missing mode field")
	}
	if w.StartNode == "" {
		return fmt.Errorf("workflow missing start_node field")
	}
	if _, ok := w.Nodes[w.StartNode]; !ok {
		return fmt.Errorf("start_node %q is not a defined node", w.StartNode)
	}

	for name, node := range w.Nodes {
		for _, t := range node.Transitions {
			if t.When == "" || t.To == "" {
				return fmt.Errorf("node %q: transition requires both when and to", name)
			}
			if _, ok := w.Nodes[t.To]; !ok {
				return fmt.Errorf("node %q: transition target %q is not a defined node", name, t.To)
			}
		}
		if err := rules.CompileAll(node.Rules); err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
	}
	return nil
}

// IsTerminal reports whether the node has no outgoing transitions.
func (w *Workflow) IsTerminal(name string) bool {
	node, ok := w.Nodes[name]
	return ok && len(node.Transitions) == 0
}

// InitState builds the initial persistent state for a fresh run of w.
func InitState(w *Workflow, now time.Time) *storage.WorkflowState {
	return &storage.WorkflowState{
		CurrentNode:    w.StartNode,
		Mode:           w.Mode,
		History:        []string{w.StartNode},
		PhaseStartTime: now.UTC().Format(time.RFC3339),
	}
}
