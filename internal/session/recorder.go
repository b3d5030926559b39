// Package session provides per-run session identity and the append-only
// JSONL transcript every lifecycle event and tool call is recorded to.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ihavespoons/agentrun/internal/logger"
)

// Record is one transcript line. Records are strictly ordered by append
// time and never removed.
type Record struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Recorder allocates sessions under a storage root.
type Recorder struct {
	root string
}

// NewRecorder creates a recorder rooted at the given directory.
func NewRecorder(root string) *Recorder {
	return &Recorder{root: root}
}

// Open allocates a fresh session: a random 128-bit id and a transcript
// file under <root>/sessions. The id is never reused; collisions are
// negligible at that width.
func (r *Recorder) Open() (*Session, error) {
	id := uuid.NewString()

	dir := filepath.Join(r.root, "sessions")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(dir, id+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}

	return &Session{
		ID:             id,
		TranscriptPath: path,
		file:           file,
	}, nil
}

// Session is one agent run's identity and transcript. A session is
// owned by a single run; Log calls are serialized by the mutex so the
// orchestrator and mediator cannot interleave partial lines.
type Session struct {
	ID             string
	TranscriptPath string

	mu   sync.Mutex
	file *os.File
}

// Log appends one record to the transcript and flushes it. Transcript
// failures never fail the run; they are logged and swallowed.
func (s *Session) Log(recordType string, data map[string]interface{}) {
	rec := Record{
		Type:      recordType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		logger.Error().Err(err).Str("session_id", s.ID).Str("record", recordType).
			Msg("Failed to serialize transcript record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		logger.Error().Err(err).Str("session_id", s.ID).Str("record", recordType).
			Msg("Failed to append transcript record")
		return
	}
	if err := s.file.Sync(); err != nil {
		logger.Error().Err(err).Str("session_id", s.ID).
			Msg("Failed to flush transcript")
	}
}

// Close closes the transcript file. Further Log calls become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	if err := s.file.Close(); err != nil {
		logger.Error().Err(err).Str("session_id", s.ID).Msg("Failed to close transcript")
	}
	s.file = nil
}

// ReadTranscript parses a transcript file back into its records, in
// append order. Unparseable lines are skipped with a warning rather
// than failing the whole read.
func ReadTranscript(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping malformed transcript line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to read transcript: %w", err)
	}
	return records, nil
}
