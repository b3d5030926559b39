// Package tool defines agent capabilities and the mediator that gates
// every capability call through the hook protocol.
package tool

import "context"

// Tool is one capability an agent may invoke during a run.
type Tool interface {
	// Name returns the capability's identifier, used for registry
	// lookup and hook matchers.
	Name() string

	// Run invokes the capability. Errors are reported to the agent as
	// failure results by the mediator, never propagated.
	Run(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Result is the outcome of one mediated tool invocation.
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func failure(msg string) Result {
	return Result{Error: msg}
}
