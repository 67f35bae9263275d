package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"phasewatch/internal/event"
)

// AppendEvent appends one canonical event to events.jsonl under an exclusive
// file lock. Events that fail the persistence invariant (empty timestamp or
// session id) are rejected here so a malformed event never reaches the log.
func (s *Store) AppendEvent(ev *event.CanonicalEvent) error {
	if !ev.Valid() {
		return fmt.Errorf("event missing timestamp or session_id, refusing to persist")
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	return s.appendLine(s.EventLogPath(), line)
}

// AppendTransition appends one phase transition record to states.jsonl.
func (s *Store) AppendTransition(t *Transition) error {
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("serialize transition: %w", err)
	}
	return s.appendLine(s.TransitionLogPath(), line)
}

// appendLine writes one line and flushes before releasing the lock, so a
// concurrent reader sees either the whole line or nothing.
func (s *Store) appendLine(path string, line []byte) error {
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// ReadEvents reads the full canonical event log in append order. Lines that
// fail to parse are skipped with a warning; a single corrupt line never
// aborts analysis of the rest of the log. A missing log is an empty log.
func (s *Store) ReadEvents() ([]event.CanonicalEvent, error) {
	path := s.EventLogPath()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []event.CanonicalEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.CanonicalEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			warnSkippedLine(path, lineNum, err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}

// ReadTransitions reads the phase transition log in append order, skipping
// unparseable lines the same way ReadEvents does.
func (s *Store) ReadTransitions() ([]Transition, error) {
	path := s.TransitionLogPath()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transition log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var transitions []Transition
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t Transition
		if err := json.Unmarshal(line, &t); err != nil {
			warnSkippedLine(path, lineNum, err)
			continue
		}
		if t.Timestamp == "" || t.Phase == "" {
			warnSkippedLine(path, lineNum, fmt.Errorf("missing timestamp or phase"))
			continue
		}
		transitions = append(transitions, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transition log: %w", err)
	}
	return transitions, nil
}
