package trace

import (
	"testing"
	"time"

	"phasewatch/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordEvent_Upsert(t *testing.T) {
	s := openTestStore(t)

	first := &event.CanonicalEvent{
		Timestamp: "2025-01-01T10:00:00Z",
		SessionID: "s1",
		Type:      event.SessionStart,
		Adapter:   "claude_code",
		Cwd:       "/work/project",
	}
	if err := s.RecordEvent(first); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	// Second event for the same session bumps the counter and fills in the
	// transcript path without clearing the cwd.
	second := &event.CanonicalEvent{
		Timestamp:      "2025-01-01T10:05:00Z",
		SessionID:      "s1",
		Type:           event.PostToolUse,
		Adapter:        "claude_code",
		TranscriptPath: "/work/project/transcript.jsonl",
	}
	if err := s.RecordEvent(second); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	sess := sessions[0]
	if sess.EventCount != 2 {
		t.Errorf("EventCount = %d, want 2", sess.EventCount)
	}
	if sess.Cwd != "/work/project" {
		t.Errorf("Cwd = %q, want preserved from first event", sess.Cwd)
	}
	if sess.TranscriptPath != "/work/project/transcript.jsonl" {
		t.Errorf("TranscriptPath = %q, want filled by second event", sess.TranscriptPath)
	}
	if !sess.FirstSeen.Equal(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("FirstSeen = %v", sess.FirstSeen)
	}
	if !sess.LastSeen.Equal(time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("LastSeen = %v", sess.LastSeen)
	}
}

func TestListSessions_MostRecentFirst(t *testing.T) {
	s := openTestStore(t)

	for _, ev := range []*event.CanonicalEvent{
		{Timestamp: "2025-01-01T10:00:00Z", SessionID: "old", Type: event.SessionStart, Adapter: "codex"},
		{Timestamp: "2025-01-01T12:00:00Z", SessionID: "new", Type: event.SessionStart, Adapter: "cursor"},
	} {
		if err := s.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "new" || sessions[1].SessionID != "old" {
		t.Errorf("order = %v, %v", sessions[0].SessionID, sessions[1].SessionID)
	}
}

func TestCleanupOldSessions(t *testing.T) {
	s := openTestStore(t)

	stale := &event.CanonicalEvent{
		Timestamp: time.Now().Add(-72 * time.Hour).UTC().Format(time.RFC3339),
		SessionID: "stale",
		Type:      event.SessionStart,
		Adapter:   "codex",
	}
	fresh := &event.CanonicalEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: "fresh",
		Type:      event.SessionStart,
		Adapter:   "codex",
	}
	for _, ev := range []*event.CanonicalEvent{stale, fresh} {
		if err := s.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	removed, err := s.CleanupOldSessions(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "fresh" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestRecordEvent_BadTimestampUsesNow(t *testing.T) {
	s := openTestStore(t)

	ev := &event.CanonicalEvent{
		Timestamp: "not-a-timestamp",
		SessionID: "s1",
		Type:      event.SessionStart,
		Adapter:   "codex",
	}
	before := time.Now().Add(-time.Minute)
	if err := s.RecordEvent(ev); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].LastSeen.Before(before) {
		t.Errorf("LastSeen = %v, want fallback to wall clock", sessions[0].LastSeen)
	}
}
