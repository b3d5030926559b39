// Package agent defines the pluggable analysis agent contract and the
// explicit registration table the orchestrator resolves agents from.
package agent

import (
	"context"
	"time"

	"github.com/ihavespoons/agentrun/internal/tool"
)

// Status is an agent run's terminal status.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Result is produced exactly once per agent run, by the agent itself
// (or synthesized by the orchestrator when the agent fails outright).
// The orchestrator forwards it without mutation.
type Result struct {
	AgentID    string                 `json:"agent_id"`
	Status     Status                 `json:"status"`
	Severity   string                 `json:"severity,omitempty"`
	Score      float64                `json:"score,omitempty"`
	TokensUsed int64                  `json:"tokens_used,omitempty"`
	Cost       float64                `json:"cost,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Context is the bundle handed to an agent's Execute. Tool access goes
// through the mediator; ExtraContext carries hook-injected text merged
// by the orchestrator.
type Context struct {
	SessionID      string
	TranscriptPath string
	ProjectDir     string
	ExtraContext   string
	Tools          *tool.Mediator
}

// Agent is a pluggable unit of analysis. Its prompt construction and
// any provider calls are opaque to the orchestrator; only the declared
// tools and the execute contract are visible.
type Agent interface {
	// ID returns the agent's stable identifier.
	ID() string

	// Model returns the declared model identifier, used to derive the
	// provider namespace.
	Model() string

	// Tools returns the capabilities this agent may invoke.
	Tools() []tool.Tool

	// Execute runs the analysis against the given context.
	Execute(ctx context.Context, rc *Context) (*Result, error)
}
