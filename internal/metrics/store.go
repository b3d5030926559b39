// Package metrics persists per-run usage records and provides the
// budget gate that consults them.
//
// Records append to one JSONL file per UTC day. Append-only writes
// (O_APPEND, one record per line) mean concurrent runs never rewrite
// each other's data; the in-process mutex keeps a single process's
// writers ordered.
package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ihavespoons/agentrun/internal/logger"
)

// Metric is one agent run's usage record. Exactly one is appended per
// run, including skipped and failed runs.
type Metric struct {
	AgentID    string    `json:"agent_id"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int64     `json:"tokens_used"`
	Cost       float64   `json:"cost"`
	Result     string    `json:"result"`
	DurationMS int64     `json:"duration_ms"`
}

// Store is the append-only metrics store under <root>/metrics.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "metrics")
}

func (s *Store) fileFor(day time.Time) string {
	return filepath.Join(s.dir(), "usage-"+day.UTC().Format("2006-01-02")+".jsonl")
}

// Append records one metric. The write is a single appended line; no
// existing content is ever rewritten.
func (s *Store) Append(m Metric) error {
	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize metric: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir(), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	file, err := os.OpenFile(s.fileFor(m.Timestamp), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open metrics file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append metric: %w", err)
	}
	return nil
}

// Since returns all metrics recorded at or after the cutoff, ordered by
// timestamp. Only day files that can overlap the window are read.
func (s *Store) Since(cutoff time.Time) ([]Metric, error) {
	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metrics directory: %w", err)
	}

	firstDay := cutoff.UTC().Format("2006-01-02")
	var records []Metric
	for _, entry := range entries {
		name := entry.Name()
		if len(name) != len("usage-2006-01-02.jsonl") || name[:6] != "usage-" {
			continue
		}
		if name[6:16] < firstDay {
			continue
		}
		fileRecords, err := s.readFile(filepath.Join(s.dir(), name))
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
	}

	filtered := records[:0]
	for _, m := range records {
		if !m.Timestamp.Before(cutoff) {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})
	return filtered, nil
}

// SumTokensSince sums tokens used across all metrics at or after the
// cutoff.
func (s *Store) SumTokensSince(cutoff time.Time) (int64, error) {
	records, err := s.Since(cutoff)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, m := range records {
		total += m.TokensUsed
	}
	return total, nil
}

func (s *Store) readFile(path string) ([]Metric, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	defer file.Close()

	var records []Metric
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Metric
		if err := json.Unmarshal(line, &m); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping malformed metric line")
			continue
		}
		records = append(records, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	return records, nil
}
