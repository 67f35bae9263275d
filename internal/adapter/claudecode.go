package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"phasewatch/internal/event"
)

// ClaudeCode normalizes Claude Code hook events. These arrive on stdin as one
// JSON object per hook invocation and are already close to the canonical
// shape, so normalization is mostly field extraction plus preserving unknown
// fields in Extra.
type ClaudeCode struct{}

// NewClaudeCode returns the Claude Code adapter.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{}
}

func (a *ClaudeCode) Name() string {
	return "claude_code"
}

// Detect checks the environment variables Claude Code sets for hook
// subprocesses, falling back to the user-level config directories.
func (a *ClaudeCode) Detect() bool {
	if os.Getenv("CLAUDECODE") != "" ||
		os.Getenv("CLAUDE_CODE_SESSION_ID") != "" ||
		os.Getenv("CLAUDE_CODE_TRANSCRIPT_PATH") != "" {
		return true
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	for _, dir := range []string{
		filepath.Join(home, ".claude"),
		filepath.Join(home, ".config", "claude"),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func (a *ClaudeCode) Normalize(raw json.RawMessage) (*event.CanonicalEvent, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("expected JSON object: %w", err)
	}

	sessionID, err := stringField(obj, "session_id")
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("missing session_id field")
	}

	hookName, err := stringField(obj, "hook_event_name")
	if err != nil {
		return nil, err
	}
	if hookName == "" {
		return nil, fmt.Errorf("missing hook_event_name field")
	}

	ev := &event.CanonicalEvent{
		SessionID: sessionID,
		Type:      event.TypeFromHookName(hookName),
		Adapter:   a.Name(),
	}

	// Optional fields; a missing timestamp is injected at ingestion time.
	if ev.Timestamp, err = stringField(obj, "timestamp"); err != nil {
		return nil, err
	}
	if ev.ToolName, err = stringField(obj, "tool_name"); err != nil {
		return nil, err
	}
	if ev.Cwd, err = stringField(obj, "cwd"); err != nil {
		return nil, err
	}
	if ev.TranscriptPath, err = stringField(obj, "transcript_path"); err != nil {
		return nil, err
	}
	ev.ToolInput = obj["tool_input"]
	ev.ToolResponse = obj["tool_response"]

	known := map[string]bool{
		"session_id": true, "hook_event_name": true, "timestamp": true,
		"tool_name": true, "tool_input": true, "tool_response": true,
		"cwd": true, "transcript_path": true,
	}
	for k, v := range obj {
		if known[k] {
			continue
		}
		if ev.Extra == nil {
			ev.Extra = make(map[string]json.RawMessage)
		}
		ev.Extra[k] = v
	}

	return ev, nil
}

// stringField reads an optional string field, erroring only when the field is
// present with a non-string value.
func stringField(obj map[string]json.RawMessage, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return s, nil
}
