// Package trace maintains the SQLite session index: a queryable record
// of past runs and their tool events, alongside the JSONL transcripts.
package trace

import "time"

// SessionInfo is one indexed agent run.
type SessionInfo struct {
	SessionID      string
	AgentID        string
	Model          string
	CreatedAt      time.Time
	Outcome        string
	Cwd            string
	TranscriptPath string
}

// Event is one indexed tool event within a session.
type Event struct {
	ID        int64
	SessionID string
	EventType string
	ToolName  string
	Detail    string
	Timestamp time.Time
}
