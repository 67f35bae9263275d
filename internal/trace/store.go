// Package trace maintains a SQLite index of agent sessions seen by the
// ingestion path. The index is a convenience for status and analysis
// queries; it is strictly best-effort and never blocks or fails ingestion.
package trace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"phasewatch/internal/event"
	"phasewatch/internal/logger"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Session is one indexed agent session.
type Session struct {
	SessionID      string
	Adapter        string
	Cwd            string
	TranscriptPath string
	FirstSeen      time.Time
	LastSeen       time.Time
	EventCount     int64
}

// Store is a SQLite-backed session index.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the session index under the given state
// directory.
func Open(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, "sessions.db")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize session index schema: %w", err)
	}

	logger.Debug().Str("path", dbPath).Msg("Opened session index")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		adapter TEXT NOT NULL,
		cwd TEXT,
		transcript_path TEXT,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent upserts the session row for one ingested event.
func (s *Store) RecordEvent(ev *event.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now().Unix()
	if parsed, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		ts = parsed.Unix()
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, adapter, cwd, transcript_path, first_seen, last_seen, event_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(session_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			event_count = event_count + 1,
			cwd = CASE WHEN excluded.cwd != '' THEN excluded.cwd ELSE cwd END,
			transcript_path = CASE WHEN excluded.transcript_path != '' THEN excluded.transcript_path ELSE transcript_path END`,
		ev.SessionID, ev.Adapter, ev.Cwd, ev.TranscriptPath, ts, ts)
	return err
}

// RecordEventBestEffort logs and swallows any indexing error, keeping the
// ingestion path unblockable by index trouble.
func (s *Store) RecordEventBestEffort(ev *event.CanonicalEvent) {
	if err := s.RecordEvent(ev); err != nil {
		logger.Debug().Err(err).Str("session_id", ev.SessionID).Msg("Session index update failed")
	}
}

// ListSessions returns all indexed sessions, most recently active first.
func (s *Store) ListSessions() ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT session_id, adapter, cwd, transcript_path, first_seen, last_seen, event_count
		FROM sessions ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var first, last int64
		if err := rows.Scan(&sess.SessionID, &sess.Adapter, &sess.Cwd, &sess.TranscriptPath, &first, &last, &sess.EventCount); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.FirstSeen = time.Unix(first, 0).UTC()
		sess.LastSeen = time.Unix(last, 0).UTC()
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// CleanupOldSessions deletes sessions idle for longer than ttl and returns
// the number removed.
func (s *Store) CleanupOldSessions(ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()
	res, err := s.db.Exec(`DELETE FROM sessions WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
