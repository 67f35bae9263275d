// Package storage owns the .phasewatch state directory: the workflow state
// file, the append-only JSONL event and transition logs, and their locking
// discipline.
//
// Appends hold an exclusive file lock for the duration of one
// write-and-flush. Reads never lock; a well-formed log is always either
// complete or a clean prefix, and readers skip any line that fails to parse.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"phasewatch/internal/logger"
)

const (
	// StateDirName is the per-project state directory, discovered by upward
	// walk like .git.
	StateDirName = ".phasewatch"

	stateFileName       = "state.json"
	eventsFileName      = "events.jsonl"
	transitionsFileName = "states.jsonl"
)

// SessionMetadata records the agent session currently driving the workflow.
type SessionMetadata struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	StartedAt      string `json:"started_at"`
}

// WorkflowState is the persistent position inside a workflow definition.
type WorkflowState struct {
	CurrentNode    string   `json:"current_node"`
	Mode           string   `json:"mode"`
	History        []string `json:"history"`
	WorkflowID     string   `json:"workflow_id,omitempty"`
	PhaseStartTime string   `json:"phase_start_time,omitempty"`
	// BypassOnce suppresses rule evaluation for exactly the next prompt
	// request in the current phase, then resets.
	BypassOnce bool `json:"bypass_once,omitempty"`
}

// State is everything persisted in state.json.
type State struct {
	Workflow *WorkflowState   `json:"workflow,omitempty"`
	Session  *SessionMetadata `json:"session_metadata,omitempty"`
}

// Transition is one phase boundary record in states.jsonl.
type Transition struct {
	Timestamp  string `json:"timestamp"`
	WorkflowID string `json:"workflow_id,omitempty"`
	FromNode   string `json:"from_node"`
	ToNode     string `json:"to_node"`
	Phase      string `json:"phase"`
	Mode       string `json:"mode"`
}

// Store is file-based storage rooted at one state directory.
type Store struct {
	dir string
}

// New opens (creating if needed) a store at the given state directory.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

// EventLogPath returns the canonical event log path.
func (s *Store) EventLogPath() string {
	return filepath.Join(s.dir, eventsFileName)
}

// TransitionLogPath returns the phase transition log path.
func (s *Store) TransitionLogPath() string {
	return filepath.Join(s.dir, transitionsFileName)
}

// Load reads state.json, returning the zero state when the file does not
// exist yet.
func (s *Store) Load() (*State, error) {
	path := filepath.Join(s.dir, stateFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return &state, nil
}

// Save writes state.json atomically (temp file + rename).
func (s *Store) Save(state *State) error {
	path := filepath.Join(s.dir, stateFileName)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// FindStateDir walks up from start (or the working directory when empty)
// looking for a .phasewatch directory, like git does for .git.
func FindStateDir(start string) (string, error) {
	dir := start
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}

	for {
		candidate := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found in %s or any parent; run 'phasewatch init' first", StateDirName, start)
		}
		dir = parent
	}
}

// ResolveStateDir applies the precedence CLI flag > PHASEWATCH_STATE_DIR >
// upward walk from the working directory.
func ResolveStateDir(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("PHASEWATCH_STATE_DIR"); env != "" {
		return env, nil
	}
	return FindStateDir("")
}

func warnSkippedLine(path string, lineNum int, err error) {
	logger.Warn().
		Str("file", filepath.Base(path)).
		Int("line", lineNum).
		Err(err).
		Msg("Skipping unparseable log line")
}
