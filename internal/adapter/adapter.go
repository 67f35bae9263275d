// Package adapter normalizes agent-specific telemetry into canonical events.
//
// Each supported agent tool gets one Adapter. Detection is environment-based
// and ordered: the first adapter whose markers are present wins, with an
// explicit override path for when auto-detection is ambiguous or wrong.
package adapter

import (
	"encoding/json"

	"phasewatch/internal/event"
)

// Adapter translates one agent's native event representation into zero or one
// canonical event.
//
// Normalize returns (nil, nil) for events that should be silently skipped:
// malformed lines, no-op events, zero-valued token readings. It returns an
// error only for input it was expected to handle but could not parse; callers
// treat that as a skip with a warning, never as a hard failure.
type Adapter interface {
	Name() string
	Detect() bool
	Normalize(raw json.RawMessage) (*event.CanonicalEvent, error)
}

// Registry holds the built-in adapters in detection priority order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry returns a registry with all built-in adapters.
func NewRegistry() *Registry {
	return &Registry{
		adapters: []Adapter{
			NewClaudeCode(),
			NewCodex(),
			NewCursor(),
		},
	}
}

// Detect returns the first adapter whose environment markers are present, or
// nil when no agent environment is recognized.
func (r *Registry) Detect() Adapter {
	for _, a := range r.adapters {
		if a.Detect() {
			return a
		}
	}
	return nil
}

// Get returns the adapter with the given name, for explicit user selection.
func (r *Registry) Get(name string) Adapter {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// Names lists the registered adapter names in detection order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return names
}
