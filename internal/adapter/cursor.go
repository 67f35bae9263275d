package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"phasewatch/internal/event"
)

// Cursor normalizes Cursor hook events. Cursor hooks share a common envelope
// (conversation_id, generation_id, hook_event_name, workspace_roots) and use
// per-event payload shapes. Cursor provides no timestamps, so one is
// synthesized at normalization time.
type Cursor struct {
	// now is swappable in tests.
	now func() time.Time
}

// NewCursor returns the Cursor adapter.
func NewCursor() *Cursor {
	return &Cursor{now: time.Now}
}

func (a *Cursor) Name() string {
	return "cursor"
}

func (a *Cursor) Detect() bool {
	if os.Getenv("CURSOR_SESSION_ID") != "" {
		return true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(home, ".cursor", "hooks.json"))
	return err == nil
}

func (a *Cursor) Normalize(raw json.RawMessage) (*event.CanonicalEvent, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("expected JSON object: %w", err)
	}

	hookName, err := stringField(obj, "hook_event_name")
	if err != nil {
		return nil, err
	}
	if hookName == "" {
		return nil, fmt.Errorf("missing hook_event_name field")
	}

	// generation_id is more granular than conversation_id and serves as the
	// session key; degrade to conversation_id when absent.
	sessionID, err := stringField(obj, "generation_id")
	if err != nil {
		return nil, err
	}
	fallback := false
	if sessionID == "" {
		if sessionID, err = stringField(obj, "conversation_id"); err != nil {
			return nil, err
		}
		fallback = sessionID != ""
	}
	if sessionID == "" {
		return nil, fmt.Errorf("missing generation_id and conversation_id fields")
	}

	ev := &event.CanonicalEvent{
		Timestamp:    a.now().UTC().Format(time.RFC3339),
		SessionID:    sessionID,
		Type:         cursorEventType(hookName),
		ToolName:     cursorToolName(hookName, obj),
		Adapter:      a.Name(),
		FallbackUsed: fallback,
	}

	if ev.Cwd, err = stringField(obj, "cwd"); err != nil {
		return nil, err
	}

	ev.ToolInput, err = cursorToolInput(hookName, obj)
	if err != nil {
		return nil, err
	}

	if v, ok := obj["workspace_roots"]; ok {
		ev.Extra = map[string]json.RawMessage{"workspace_roots": v}
	}

	return ev, nil
}

func cursorEventType(hookName string) event.Type {
	switch hookName {
	case "beforeShellExecution", "beforeMCPExecution", "beforeReadFile", "beforeSubmitPrompt":
		return event.PreToolUse
	case "afterFileEdit":
		return event.PostToolUse
	case "stop":
		return event.Stop
	default:
		return event.Type(hookName)
	}
}

func cursorToolName(hookName string, obj map[string]json.RawMessage) string {
	switch hookName {
	case "beforeShellExecution":
		return "Bash"
	case "beforeMCPExecution":
		name, _ := stringField(obj, "tool_name")
		return name
	case "afterFileEdit":
		return "Edit"
	case "beforeReadFile":
		return "Read"
	case "beforeSubmitPrompt":
		return "SubmitPrompt"
	default:
		return ""
	}
}

func cursorToolInput(hookName string, obj map[string]json.RawMessage) (json.RawMessage, error) {
	var keys []string
	switch hookName {
	case "beforeShellExecution":
		keys = []string{"command", "cwd"}
	case "beforeMCPExecution":
		keys = []string{"tool_name", "tool_input", "url", "command"}
	case "afterFileEdit":
		keys = []string{"file_path", "edits"}
	case "beforeReadFile":
		keys = []string{"file_path", "attachments"}
	case "beforeSubmitPrompt":
		keys = []string{"prompt"}
	default:
		return nil, nil
	}

	input := make(map[string]json.RawMessage)
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			input[k] = v
		}
	}
	if len(input) == 0 {
		return nil, nil
	}
	return json.Marshal(input)
}
