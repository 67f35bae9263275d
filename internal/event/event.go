// Package event defines the canonical event schema shared by every adapter
// and every downstream consumer (storage, metrics, rules, dashboard).
package event

import (
	"encoding/json"
	"fmt"
)

// Type is the normalized event type. Unknown types round-trip as their raw
// string value rather than failing to parse.
type Type string

// Normalized event types (snake_case on the wire).
const (
	SessionStart Type = "session_start"
	SessionEnd   Type = "session_end"
	PreToolUse   Type = "pre_tool_use"
	PostToolUse  Type = "post_tool_use"
	Stop         Type = "stop"
)

// TypeFromHookName maps an agent-facing hook event name (PascalCase, as
// Claude Code emits it) to the canonical type. Unrecognized names are
// preserved verbatim so no event type is ever lost.
func TypeFromHookName(name string) Type {
	switch name {
	case "SessionStart":
		return SessionStart
	case "SessionEnd":
		return SessionEnd
	case "PreToolUse":
		return PreToolUse
	case "PostToolUse":
		return PostToolUse
	case "Stop":
		return Stop
	default:
		return Type(name)
	}
}

// CanonicalEvent is the single normalized event shape all adapters produce.
//
// Extra carries adapter-specific fields that have no universal meaning; it is
// flattened into the top-level JSON object on the wire, with the fixed fields
// always taking precedence over colliding keys.
type CanonicalEvent struct {
	Timestamp      string          `json:"timestamp"`
	SessionID      string          `json:"session_id"`
	Type           Type            `json:"event_type"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse   json.RawMessage `json:"tool_response,omitempty"`
	Cwd            string          `json:"cwd,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	Adapter        string          `json:"adapter,omitempty"`
	FallbackUsed   bool            `json:"fallback_used,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// fixedKeys are the wire names owned by the fixed fields above. Extra keys
// colliding with these are dropped at marshal time, never the reverse.
var fixedKeys = map[string]bool{
	"timestamp":       true,
	"session_id":      true,
	"event_type":      true,
	"tool_name":       true,
	"tool_input":      true,
	"tool_response":   true,
	"cwd":             true,
	"transcript_path": true,
	"adapter":         true,
	"fallback_used":   true,
}

// Valid reports whether the event satisfies the persistence invariant:
// non-empty timestamp and session id. Events failing this are dropped before
// they ever reach the log.
func (e *CanonicalEvent) Valid() bool {
	return e.Timestamp != "" && e.SessionID != ""
}

// MarshalJSON flattens Extra into the top-level object.
func (e CanonicalEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+10)

	for k, v := range e.Extra {
		if !fixedKeys[k] {
			out[k] = v
		}
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}

	if err := put("timestamp", e.Timestamp); err != nil {
		return nil, err
	}
	if err := put("session_id", e.SessionID); err != nil {
		return nil, err
	}
	if err := put("event_type", string(e.Type)); err != nil {
		return nil, err
	}
	if e.ToolName != "" {
		if err := put("tool_name", e.ToolName); err != nil {
			return nil, err
		}
	}
	if len(e.ToolInput) > 0 {
		out["tool_input"] = e.ToolInput
	}
	if len(e.ToolResponse) > 0 {
		out["tool_response"] = e.ToolResponse
	}
	if e.Cwd != "" {
		if err := put("cwd", e.Cwd); err != nil {
			return nil, err
		}
	}
	if e.TranscriptPath != "" {
		if err := put("transcript_path", e.TranscriptPath); err != nil {
			return nil, err
		}
	}
	if e.Adapter != "" {
		if err := put("adapter", e.Adapter); err != nil {
			return nil, err
		}
	}
	if e.FallbackUsed {
		if err := put("fallback_used", true); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON splits the top-level object back into fixed fields and Extra.
func (e *CanonicalEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(key string) (string, error) {
		v, ok := raw[key]
		if !ok {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("field %s: %w", key, err)
		}
		return s, nil
	}

	var err error
	if e.Timestamp, err = str("timestamp"); err != nil {
		return err
	}
	if e.SessionID, err = str("session_id"); err != nil {
		return err
	}
	typ, err := str("event_type")
	if err != nil {
		return err
	}
	e.Type = Type(typ)
	if e.ToolName, err = str("tool_name"); err != nil {
		return err
	}
	if e.Cwd, err = str("cwd"); err != nil {
		return err
	}
	if e.TranscriptPath, err = str("transcript_path"); err != nil {
		return err
	}
	if e.Adapter, err = str("adapter"); err != nil {
		return err
	}
	if v, ok := raw["fallback_used"]; ok {
		if err := json.Unmarshal(v, &e.FallbackUsed); err != nil {
			return fmt.Errorf("field fallback_used: %w", err)
		}
	}
	if v, ok := raw["tool_input"]; ok {
		e.ToolInput = v
	}
	if v, ok := raw["tool_response"]; ok {
		e.ToolResponse = v
	}

	e.Extra = nil
	for k, v := range raw {
		if fixedKeys[k] {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]json.RawMessage)
		}
		e.Extra[k] = v
	}

	return nil
}
