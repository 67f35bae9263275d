package adapter

import (
	"encoding/json"
	"testing"
	"time"

	"phasewatch/internal/event"
)

func newTestCursor() *Cursor {
	a := NewCursor()
	a.now = func() time.Time {
		return time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	}
	return a
}

func TestCursor_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType event.Type
		wantTool string
	}{
		{
			name:     "shell execution",
			input:    `{"hook_event_name":"beforeShellExecution","generation_id":"g1","command":"make test"}`,
			wantType: event.PreToolUse,
			wantTool: "Bash",
		},
		{
			name:     "file edit",
			input:    `{"hook_event_name":"afterFileEdit","generation_id":"g1","file_path":"main.go"}`,
			wantType: event.PostToolUse,
			wantTool: "Edit",
		},
		{
			name:     "read file",
			input:    `{"hook_event_name":"beforeReadFile","generation_id":"g1","file_path":"main.go"}`,
			wantType: event.PreToolUse,
			wantTool: "Read",
		},
		{
			name:     "mcp execution takes tool name",
			input:    `{"hook_event_name":"beforeMCPExecution","generation_id":"g1","tool_name":"search_docs"}`,
			wantType: event.PreToolUse,
			wantTool: "search_docs",
		},
		{
			name:     "prompt submit",
			input:    `{"hook_event_name":"beforeSubmitPrompt","generation_id":"g1","prompt":"fix the bug"}`,
			wantType: event.PreToolUse,
			wantTool: "SubmitPrompt",
		},
		{
			name:     "stop",
			input:    `{"hook_event_name":"stop","generation_id":"g1"}`,
			wantType: event.Stop,
		},
		{
			name:     "unknown hook preserved",
			input:    `{"hook_event_name":"afterAgentEdit","generation_id":"g1"}`,
			wantType: event.Type("afterAgentEdit"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestCursor()
			ev, err := a.Normalize(json.RawMessage(tt.input))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}
			if ev.ToolName != tt.wantTool {
				t.Errorf("ToolName = %q, want %q", ev.ToolName, tt.wantTool)
			}
			if ev.SessionID != "g1" {
				t.Errorf("SessionID = %q, want g1", ev.SessionID)
			}
			if !ev.Valid() {
				t.Error("event fails persistence invariant")
			}
		})
	}
}

func TestCursor_SynthesizesTimestamp(t *testing.T) {
	a := newTestCursor()

	ev, err := a.Normalize(json.RawMessage(`{"hook_event_name":"stop","generation_id":"g1"}`))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.Timestamp != "2025-01-01T10:00:00Z" {
		t.Errorf("Timestamp = %q, want synthesized clock value", ev.Timestamp)
	}
}

func TestCursor_SessionFallback(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantSession  string
		wantFallback bool
		wantErr      bool
	}{
		{
			name:        "generation_id preferred",
			input:       `{"hook_event_name":"stop","generation_id":"g1","conversation_id":"c1"}`,
			wantSession: "g1",
		},
		{
			name:         "conversation_id fallback flagged",
			input:        `{"hook_event_name":"stop","conversation_id":"c1"}`,
			wantSession:  "c1",
			wantFallback: true,
		},
		{
			name:    "neither present",
			input:   `{"hook_event_name":"stop"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestCursor()
			ev, err := a.Normalize(json.RawMessage(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if ev.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", ev.SessionID, tt.wantSession)
			}
			if ev.FallbackUsed != tt.wantFallback {
				t.Errorf("FallbackUsed = %v, want %v", ev.FallbackUsed, tt.wantFallback)
			}
		})
	}
}

func TestCursor_ToolInputSelection(t *testing.T) {
	a := newTestCursor()

	ev, err := a.Normalize(json.RawMessage(`{"hook_event_name":"beforeShellExecution","generation_id":"g1","command":"ls","workspace_roots":["/w"],"irrelevant":true}`))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	var input map[string]json.RawMessage
	if err := json.Unmarshal(ev.ToolInput, &input); err != nil {
		t.Fatalf("parse tool_input: %v", err)
	}
	if string(input["command"]) != `"ls"` {
		t.Errorf("command = %s", input["command"])
	}
	if _, ok := input["irrelevant"]; ok {
		t.Error("unrelated key leaked into tool_input")
	}
	if string(ev.Extra["workspace_roots"]) != `["/w"]` {
		t.Errorf("workspace_roots not preserved: %v", ev.Extra)
	}
}
