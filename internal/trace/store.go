package trace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Store persists the session index in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore opens (or creates) the session index at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	// WAL mode keeps concurrent readers cheap while a run is writing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open session index: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		model TEXT,
		created_at INTEGER NOT NULL,
		outcome TEXT,
		cwd TEXT,
		transcript_path TEXT
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		tool_name TEXT,
		detail TEXT,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordSession inserts a new session row.
func (s *Store) RecordSession(info *SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, agent_id, model, created_at, outcome, cwd, transcript_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.SessionID, info.AgentID, info.Model, info.CreatedAt.Unix(),
		info.Outcome, info.Cwd, info.TranscriptPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// SetOutcome updates a session's terminal outcome.
func (s *Store) SetOutcome(sessionID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE sessions SET outcome = ? WHERE session_id = ?",
		outcome, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session outcome: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// RecordEvent appends one tool event to the index.
func (s *Store) RecordEvent(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO events (session_id, event_type, tool_name, detail, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		event.SessionID, event.EventType, event.ToolName, event.Detail, event.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info SessionInfo
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT session_id, agent_id, model, created_at, outcome, cwd, transcript_path
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&info.SessionID, &info.AgentID, &info.Model, &createdAt,
		&info.Outcome, &info.Cwd, &info.TranscriptPath)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	info.CreatedAt = time.Unix(createdAt, 0)
	return &info, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT session_id, agent_id, model, created_at, outcome, cwd, transcript_path
		 FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt int64
		if err := rows.Scan(&info.SessionID, &info.AgentID, &info.Model, &createdAt,
			&info.Outcome, &info.Cwd, &info.TranscriptPath); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, &info)
	}
	return sessions, rows.Err()
}

// SessionEvents returns a session's tool events in append order.
func (s *Store) SessionEvents(sessionID string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, event_type, tool_name, detail, timestamp
		 FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var ts int64
		if err := rows.Scan(&event.ID, &event.SessionID, &event.EventType,
			&event.ToolName, &event.Detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Timestamp = time.Unix(ts, 0)
		events = append(events, &event)
	}
	return events, rows.Err()
}

// CleanupOldSessions removes sessions older than the TTL along with
// their events, returning the number of sessions removed.
func (s *Store) CleanupOldSessions(ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`DELETE FROM events WHERE session_id IN
		 (SELECT session_id FROM sessions WHERE created_at < ?)`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}

	result, err := tx.Exec("DELETE FROM sessions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	removed, _ := result.RowsAffected()
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
