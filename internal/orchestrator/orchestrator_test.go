package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ihavespoons/agentrun/internal/agent"
	"github.com/ihavespoons/agentrun/internal/config"
	"github.com/ihavespoons/agentrun/internal/dispatch"
	"github.com/ihavespoons/agentrun/internal/hooks"
	"github.com/ihavespoons/agentrun/internal/logger"
	"github.com/ihavespoons/agentrun/internal/metrics"
	"github.com/ihavespoons/agentrun/internal/session"
	"github.com/ihavespoons/agentrun/internal/tool"
	"github.com/ihavespoons/agentrun/internal/trace"
)

func TestMain(m *testing.M) {
	logger.InitQuiet()
	os.Exit(m.Run())
}

// fakeAgent is a scripted agent for orchestrator tests.
type fakeAgent struct {
	id      string
	model   string
	tools   []tool.Tool
	execute func(ctx context.Context, rc *agent.Context) (*agent.Result, error)
}

func (a *fakeAgent) ID() string         { return a.id }
func (a *fakeAgent) Model() string      { return a.model }
func (a *fakeAgent) Tools() []tool.Tool { return a.tools }

func (a *fakeAgent) Execute(ctx context.Context, rc *agent.Context) (*agent.Result, error) {
	if a.execute != nil {
		return a.execute(ctx, rc)
	}
	return &agent.Result{
		AgentID:    a.id,
		Status:     agent.StatusSuccess,
		TokensUsed: 42,
		Cost:       0.01,
		Timestamp:  time.Now().UTC(),
	}, nil
}

type harness struct {
	orch  *Orchestrator
	store *metrics.Store
	index *trace.Store
	root  string
}

func newHarness(t *testing.T, rules map[hooks.Namespace]map[hooks.EventType][]config.HookRule, dailyLimit int64) *harness {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Hooks = rules

	store := metrics.NewStore(root)
	index, err := trace.NewStore(filepath.Join(root, "index.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })

	orch := New(
		session.NewRecorder(root),
		dispatch.New(cfg, root),
		store,
		metrics.NewGate(store, dailyLimit),
		index,
		root,
	)
	return &harness{orch: orch, store: store, index: index, root: root}
}

func (h *harness) metricsSince(t *testing.T) []metrics.Metric {
	t.Helper()
	records, err := h.store.Since(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	return records
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, nil, 0)

	result := h.orch.Run(context.Background(), &fakeAgent{id: "lint", model: "gpt-4o"})

	if result.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, error = %q", result.Status, result.Error)
	}

	recorded := h.metricsSince(t)
	if len(recorded) != 1 {
		t.Fatalf("got %d metrics, want exactly 1", len(recorded))
	}
	m := recorded[0]
	if m.AgentID != "lint" || m.TokensUsed != 42 || m.Result != "success" {
		t.Errorf("metric = %+v", m)
	}
	if m.Cost != 0.01 {
		t.Errorf("cost = %v", m.Cost)
	}

	sessions, err := h.index.ListSessions(10)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Outcome != "completed" {
		t.Errorf("indexed sessions = %+v", sessions)
	}
}

func TestRun_TranscriptLifecycle(t *testing.T) {
	h := newHarness(t, nil, 0)

	h.orch.Run(context.Background(), &fakeAgent{id: "lint", model: "gpt-4o"})

	sessions, err := h.index.ListSessions(1)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions = %v, %v", sessions, err)
	}

	records, err := session.ReadTranscript(sessions[0].TranscriptPath)
	if err != nil {
		t.Fatalf("ReadTranscript failed: %v", err)
	}
	if len(records) < 3 {
		t.Fatalf("transcript too short: %d records", len(records))
	}
	if records[0].Type != "session_start" {
		t.Errorf("first record = %q", records[0].Type)
	}
	if records[len(records)-1].Type != "session_stop" {
		t.Errorf("last record = %q", records[len(records)-1].Type)
	}
}

func TestRun_AgentErrorStillRecordsEverything(t *testing.T) {
	stopCount := filepath.Join(t.TempDir(), "stops")
	h := newHarness(t, map[hooks.Namespace]map[hooks.EventType][]config.HookRule{
		hooks.NamespaceGeneric: {
			hooks.Stop: {{Command: "echo x >> " + stopCount}},
		},
	}, 0)

	result := h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		execute: func(context.Context, *agent.Context) (*agent.Result, error) {
			return nil, errors.New("provider unreachable")
		},
	})

	if result.Status != agent.StatusFailure {
		t.Errorf("status = %q, want failure", result.Status)
	}
	if !strings.Contains(result.Error, "provider unreachable") {
		t.Errorf("error = %q", result.Error)
	}

	recorded := h.metricsSince(t)
	if len(recorded) != 1 || recorded[0].Result != "failure" {
		t.Errorf("metrics = %+v, want exactly one failure", recorded)
	}

	data, err := os.ReadFile(stopCount)
	if err != nil {
		t.Fatalf("stop hook never ran: %v", err)
	}
	if lines := strings.Fields(string(data)); len(lines) != 1 {
		t.Errorf("stop hook ran %d times, want exactly 1", len(lines))
	}
}

func TestRun_AgentPanicStillRecordsEverything(t *testing.T) {
	stopMarker := filepath.Join(t.TempDir(), "stop-ran")
	h := newHarness(t, map[hooks.Namespace]map[hooks.EventType][]config.HookRule{
		hooks.NamespaceGeneric: {
			hooks.Stop: {{Command: "touch " + stopMarker}},
		},
	}, 0)

	result := h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		execute: func(context.Context, *agent.Context) (*agent.Result, error) {
			panic("agent bug")
		},
	})

	if result.Status != agent.StatusFailure {
		t.Errorf("status = %q, want failure", result.Status)
	}
	if !strings.Contains(result.Error, "agent bug") {
		t.Errorf("error = %q", result.Error)
	}

	if len(h.metricsSince(t)) != 1 {
		t.Error("panicking run must still record exactly one metric")
	}
	if _, err := os.Stat(stopMarker); err != nil {
		t.Error("stop hook did not run after panic")
	}
}

func TestRun_FailureStatusResultIsNotReinterpreted(t *testing.T) {
	h := newHarness(t, nil, 0)

	want := &agent.Result{
		AgentID:   "lint",
		Status:    agent.StatusFailure,
		Error:     "lint found problems",
		Timestamp: time.Now().UTC(),
	}
	result := h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		execute: func(context.Context, *agent.Context) (*agent.Result, error) {
			return want, nil
		},
	})

	if result != want {
		t.Error("orchestrator must forward the agent's result unmutated")
	}

	sessions, _ := h.index.ListSessions(1)
	if sessions[0].Outcome != "completed" {
		t.Errorf("outcome = %q; an agent-reported failure still completes the run", sessions[0].Outcome)
	}
}

func TestRun_BudgetExhausted(t *testing.T) {
	stopMarker := filepath.Join(t.TempDir(), "stop-ran")
	h := newHarness(t, map[hooks.Namespace]map[hooks.EventType][]config.HookRule{
		hooks.NamespaceGeneric: {
			hooks.Stop: {{Command: "touch " + stopMarker}},
		},
	}, 100)

	// 150 tokens already burned inside the window.
	err := h.store.Append(metrics.Metric{
		AgentID: "lint", Timestamp: time.Now().UTC().Add(-time.Hour), TokensUsed: 150, Result: "success",
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	executed := false
	result := h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		execute: func(context.Context, *agent.Context) (*agent.Result, error) {
			executed = true
			return nil, nil
		},
	})

	if executed {
		t.Error("agent executed despite exhausted budget")
	}
	if result.Status != agent.StatusSkipped {
		t.Errorf("status = %q, want skipped", result.Status)
	}
	if result.Error != SkipReason {
		t.Errorf("reason = %q, want %q", result.Error, SkipReason)
	}

	recorded := h.metricsSince(t)
	// The pre-seeded metric plus exactly one zero-usage skip record.
	if len(recorded) != 2 {
		t.Fatalf("got %d metrics, want 2", len(recorded))
	}
	skip := recorded[1]
	if skip.Result != "skipped" || skip.TokensUsed != 0 {
		t.Errorf("skip metric = %+v", skip)
	}

	if _, err := os.Stat(stopMarker); err != nil {
		t.Error("stop hook did not run for skipped run")
	}
}

func TestRun_SessionStartContextMerged(t *testing.T) {
	h := newHarness(t, map[hooks.Namespace]map[hooks.EventType][]config.HookRule{
		hooks.NamespaceGeneric: {
			hooks.SessionStart: {
				{Command: `echo '{"hookSpecificOutput":{"additionalContext":"focus on internal/"}}'`},
			},
		},
	}, 0)

	var seen string
	h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		execute: func(_ context.Context, rc *agent.Context) (*agent.Result, error) {
			seen = rc.ExtraContext
			return &agent.Result{AgentID: "lint", Status: agent.StatusSuccess, Timestamp: time.Now().UTC()}, nil
		},
	})

	if !strings.Contains(seen, "focus on internal/") {
		t.Errorf("hook context not merged into run context: %q", seen)
	}
}

func TestRun_AnthropicNamespaceHooksApply(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "anthropic-ran")
	h := newHarness(t, map[hooks.Namespace]map[hooks.EventType][]config.HookRule{
		hooks.NamespaceAnthropic: {
			hooks.SessionStart: {{Command: "touch " + marker}},
		},
	}, 0)

	var seen string
	h.orch.Run(context.Background(), &fakeAgent{
		id:    "audit",
		model: "claude-opus-4",
		execute: func(_ context.Context, rc *agent.Context) (*agent.Result, error) {
			seen = rc.ExtraContext
			return &agent.Result{AgentID: "audit", Status: agent.StatusSuccess, Timestamp: time.Now().UTC()}, nil
		},
	})

	if _, err := os.Stat(marker); err != nil {
		t.Error("anthropic session-start hook did not run for claude model")
	}
	// The namespace's built-in reminder is injected even beyond
	// configured hooks.
	if seen == "" {
		t.Error("anthropic run received no default context")
	}

	// A gpt model must not trigger the anthropic hooks.
	_ = os.Remove(marker)
	h.orch.Run(context.Background(), &fakeAgent{id: "audit", model: "gpt-4o"})
	if _, err := os.Stat(marker); err == nil {
		t.Error("anthropic hook ran for an openai model")
	}
}

func TestRun_ToolCallsFlowThroughMediator(t *testing.T) {
	ft := &scriptedTool{name: "probe"}
	h := newHarness(t, nil, 0)

	result := h.orch.Run(context.Background(), &fakeAgent{
		id:    "lint",
		model: "gpt-4o",
		tools: []tool.Tool{ft},
		execute: func(ctx context.Context, rc *agent.Context) (*agent.Result, error) {
			res := rc.Tools.Invoke(ctx, "probe", map[string]interface{}{"q": 1})
			if !res.Success {
				return nil, errors.New(res.Error)
			}
			return &agent.Result{AgentID: "lint", Status: agent.StatusSuccess, Timestamp: time.Now().UTC()}, nil
		},
	})

	if result.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, error = %q", result.Status, result.Error)
	}
	if ft.runs != 1 {
		t.Errorf("tool ran %d times, want 1", ft.runs)
	}

	sessions, _ := h.index.ListSessions(1)
	events, err := h.index.SessionEvents(sessions[0].SessionID)
	if err != nil {
		t.Fatalf("SessionEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Error("tool events were not indexed")
	}
}

type scriptedTool struct {
	name string
	runs int
}

func (t *scriptedTool) Name() string { return t.name }

func (t *scriptedTool) Run(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	t.runs++
	return map[string]interface{}{"ok": true}, nil
}
