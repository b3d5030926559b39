// Package hooks defines the lifecycle events, wire payloads, and hook
// output contract shared by the dispatcher and the orchestrator.
package hooks

import "strings"

// EventType identifies a lifecycle event hooks can attach to.
type EventType string

// Lifecycle events. The string values are both the YAML config keys and
// the hook_event_name field sent to hook processes.
const (
	SessionStart     EventType = "session-start"
	PreToolUse       EventType = "pre-tool-use"
	PostToolUse      EventType = "post-tool-use"
	Stop             EventType = "stop"
	UserPromptSubmit EventType = "user-prompt-submit"
	Notification     EventType = "notification"
	PreCompact       EventType = "pre-compact"
	SubagentStop     EventType = "subagent-stop"
)

// PromptShaping reports whether plain-text hook output for this event is
// merged into the accumulated context. For all other events plain text
// is log-only.
func (e EventType) PromptShaping() bool {
	return e == SessionStart || e == UserPromptSubmit
}

// Namespace groups hook rules by provider family. Generic rules apply to
// every run; provider rules apply only when the active agent's model
// belongs to that family.
type Namespace string

const (
	NamespaceGeneric   Namespace = "generic"
	NamespaceOpenAI    Namespace = "openai"
	NamespaceAnthropic Namespace = "anthropic"
	NamespaceGemini    Namespace = "gemini"
)

// NamespaceForModel derives the provider namespace from a model
// identifier prefix.
func NamespaceForModel(model string) Namespace {
	switch {
	case strings.HasPrefix(model, "gpt-"):
		return NamespaceOpenAI
	case strings.HasPrefix(model, "claude-"):
		return NamespaceAnthropic
	case strings.HasPrefix(model, "gemini-"):
		return NamespaceGemini
	default:
		return NamespaceGeneric
	}
}

// CommonInput contains the fields sent to every hook process.
type CommonInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

// PreToolUseInput is the payload for pre-tool-use hooks.
type PreToolUseInput struct {
	CommonInput
	ToolName  string                 `json:"tool_name"`
	ToolInput map[string]interface{} `json:"tool_input"`
}

// PostToolUseInput is the payload for post-tool-use hooks.
type PostToolUseInput struct {
	CommonInput
	ToolName     string                 `json:"tool_name"`
	ToolInput    map[string]interface{} `json:"tool_input"`
	ToolResponse map[string]interface{} `json:"tool_response"`
}

// SessionStartInput is the payload for session-start hooks.
type SessionStartInput struct {
	CommonInput
	AgentID string `json:"agent_id"`
	Model   string `json:"model"`
}

// StopInput is the payload for stop hooks.
type StopInput struct {
	CommonInput
	AgentID string `json:"agent_id"`
	Outcome string `json:"outcome"`
}

// UserPromptSubmitInput is the payload for user-prompt-submit hooks.
type UserPromptSubmitInput struct {
	CommonInput
	Prompt string `json:"prompt"`
}

// Output is the structured document a hook may print on stdout. A hook
// that prints nothing, or plain text, is treated as non-blocking.
//
// Continue is a pointer so that an absent field is distinguishable from
// an explicit false; only an explicit false blocks.
type Output struct {
	Continue           *bool           `json:"continue,omitempty"`
	StopReason         string          `json:"stopReason,omitempty"`
	Decision           string          `json:"decision,omitempty"`
	Reason             string          `json:"reason,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries event-specific hook output fields.
type SpecificOutput struct {
	HookEventName     string `json:"hookEventName,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// DecisionBlock is the recognized value of Output.Decision that forces a
// block, independent of exit code.
const DecisionBlock = "block"

// Blocks reports whether this output carries an explicit block signal.
func (o *Output) Blocks() bool {
	if o == nil {
		return false
	}
	if o.Continue != nil && !*o.Continue {
		return true
	}
	return o.Decision == DecisionBlock
}

// AdditionalContext returns the injected context text, if any.
func (o *Output) AdditionalContext() string {
	if o == nil || o.HookSpecificOutput == nil {
		return ""
	}
	return o.HookSpecificOutput.AdditionalContext
}
