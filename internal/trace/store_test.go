package trace

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordAndGetSession(t *testing.T) {
	store := newTestStore(t)

	info := &SessionInfo{
		SessionID:      "s-1",
		AgentID:        "scan",
		Model:          "claude-sonnet-4",
		CreatedAt:      time.Now(),
		Outcome:        "running",
		Cwd:            "/srv/project",
		TranscriptPath: "/srv/state/sessions/s-1.jsonl",
	}
	if err := store.RecordSession(info); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	got, err := store.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.AgentID != "scan" || got.Model != "claude-sonnet-4" || got.Cwd != "/srv/project" {
		t.Errorf("session = %+v", got)
	}

	if _, err := store.GetSession("missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestStoreSetOutcome(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordSession(&SessionInfo{
		SessionID: "s-1", AgentID: "scan", CreatedAt: time.Now(), Outcome: "running",
	})
	if err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	if err := store.SetOutcome("s-1", "completed"); err != nil {
		t.Fatalf("SetOutcome failed: %v", err)
	}

	got, err := store.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Outcome != "completed" {
		t.Errorf("outcome = %q, want completed", got.Outcome)
	}

	if err := store.SetOutcome("missing", "completed"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestStoreSessionEvents_AppendOrder(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordSession(&SessionInfo{SessionID: "s-1", AgentID: "scan", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	for i, tool := range []string{"read_file", "grep", "list_dir"} {
		err := store.RecordEvent(&Event{
			SessionID: "s-1",
			EventType: "tool_start",
			ToolName:  tool,
			Detail:    "call " + string(rune('a'+i)),
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	events, err := store.SessionEvents("s-1")
	if err != nil {
		t.Fatalf("SessionEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	want := []string{"read_file", "grep", "list_dir"}
	for i, event := range events {
		if event.ToolName != want[i] {
			t.Errorf("event[%d].ToolName = %q, want %q", i, event.ToolName, want[i])
		}
	}
}

func TestStoreListSessions_NewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"s-old", "s-mid", "s-new"} {
		err := store.RecordSession(&SessionInfo{
			SessionID: id,
			AgentID:   "scan",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}

	sessions, err := store.ListSessions(2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].SessionID != "s-new" || sessions[1].SessionID != "s-mid" {
		t.Errorf("order = [%s %s], want [s-new s-mid]", sessions[0].SessionID, sessions[1].SessionID)
	}
}

func TestStoreCleanupOldSessions(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordSession(&SessionInfo{
		SessionID: "s-stale", AgentID: "scan", CreatedAt: time.Now().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	err = store.RecordEvent(&Event{
		SessionID: "s-stale", EventType: "tool_start", ToolName: "grep", Timestamp: time.Now().Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	err = store.RecordSession(&SessionInfo{
		SessionID: "s-fresh", AgentID: "scan", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	removed, err := store.CleanupOldSessions(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldSessions failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.GetSession("s-stale"); err == nil {
		t.Error("stale session survived cleanup")
	}
	if _, err := store.GetSession("s-fresh"); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}

	events, err := store.SessionEvents("s-stale")
	if err != nil {
		t.Fatalf("SessionEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("stale events survived cleanup: %d", len(events))
	}
}
