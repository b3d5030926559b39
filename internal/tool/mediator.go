package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ihavespoons/agentrun/internal/dispatch"
	"github.com/ihavespoons/agentrun/internal/hooks"
	"github.com/ihavespoons/agentrun/internal/logger"
	"github.com/ihavespoons/agentrun/internal/session"
	"github.com/ihavespoons/agentrun/internal/trace"
)

// Mediator wraps every capability call an agent makes with pre- and
// post-tool hook dispatches and session logging. The agent itself
// never sees the hook protocol.
type Mediator struct {
	dispatcher *dispatch.Dispatcher
	sess       *session.Session
	index      *trace.Store // optional
	ns         hooks.Namespace
	projectDir string
	tools      map[string]Tool

	contexts []string
}

// NewMediator binds a mediator to one run's session and namespace. The
// capability set is fixed for the run; index may be nil.
func NewMediator(dispatcher *dispatch.Dispatcher, sess *session.Session, index *trace.Store, ns hooks.Namespace, projectDir string, tools []Tool) *Mediator {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Mediator{
		dispatcher: dispatcher,
		sess:       sess,
		index:      index,
		ns:         ns,
		projectDir: projectDir,
		tools:      byName,
	}
}

// Invoke runs one capability through the hook protocol. It never
// panics and never returns an error: every failure shape is a Result.
func (m *Mediator) Invoke(ctx context.Context, toolName string, input map[string]interface{}) Result {
	t, ok := m.tools[toolName]
	if !ok {
		msg := fmt.Sprintf("unknown tool: %s", toolName)
		m.sess.Log("tool_error", map[string]interface{}{
			"tool_name": toolName,
			"error":     msg,
		})
		return failure(msg)
	}

	m.sess.Log("tool_start", map[string]interface{}{
		"tool_name": toolName,
		"input":     input,
	})
	m.recordEvent("tool_start", toolName, "")

	pre := m.dispatcher.Dispatch(ctx, hooks.PreToolUse, m.ns, hooks.PreToolUseInput{
		CommonInput: m.common(hooks.PreToolUse),
		ToolName:    toolName,
		ToolInput:   input,
	})
	m.appendContext(pre.AdditionalContext)
	if pre.Block {
		msg := fmt.Sprintf("tool %s blocked by hook", toolName)
		m.sess.Log("tool_blocked", map[string]interface{}{"tool_name": toolName})
		m.recordEvent("tool_blocked", toolName, "")
		return failure(msg)
	}

	result := m.runTool(ctx, t, input)

	if result.Success {
		m.sess.Log("tool_result", map[string]interface{}{
			"tool_name": toolName,
			"success":   true,
			"data":      result.Data,
		})
		m.recordEvent("tool_result", toolName, "success")
	} else {
		m.sess.Log("tool_result", map[string]interface{}{
			"tool_name": toolName,
			"success":   false,
			"error":     result.Error,
		})
		m.recordEvent("tool_result", toolName, result.Error)
	}

	// The post dispatch observes the already-returned result; its
	// verdict cannot undo it, but injected context still accumulates.
	post := m.dispatcher.Dispatch(ctx, hooks.PostToolUse, m.ns, hooks.PostToolUseInput{
		CommonInput:  m.common(hooks.PostToolUse),
		ToolName:     toolName,
		ToolInput:    input,
		ToolResponse: map[string]interface{}{"success": result.Success, "data": result.Data, "error": result.Error},
	})
	m.appendContext(post.AdditionalContext)
	if post.Block {
		logger.Info().Str("tool", toolName).Msg("Post-tool hook signaled block after completion")
	}

	return result
}

// runTool executes the capability, converting panics and errors into
// failure results.
func (m *Mediator) runTool(ctx context.Context, t Tool, input map[string]interface{}) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("tool", t.Name()).Interface("panic", r).Msg("Tool panicked")
			result = failure(fmt.Sprintf("tool %s panicked: %v", t.Name(), r))
		}
	}()

	data, err := t.Run(ctx, input)
	if err != nil {
		return failure(err.Error())
	}
	return Result{Success: true, Data: data}
}

// AdditionalContext returns all context injected by tool-level hooks so
// far, in dispatch order.
func (m *Mediator) AdditionalContext() string {
	return strings.Join(m.contexts, "\n")
}

func (m *Mediator) appendContext(text string) {
	if text != "" {
		m.contexts = append(m.contexts, text)
	}
}

func (m *Mediator) common(event hooks.EventType) hooks.CommonInput {
	return hooks.CommonInput{
		SessionID:      m.sess.ID,
		TranscriptPath: m.sess.TranscriptPath,
		Cwd:            m.projectDir,
		HookEventName:  string(event),
	}
}

func (m *Mediator) recordEvent(eventType, toolName, detail string) {
	if m.index == nil {
		return
	}
	err := m.index.RecordEvent(&trace.Event{
		SessionID: m.sess.ID,
		EventType: eventType,
		ToolName:  toolName,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Warn().Err(err).Str("tool", toolName).Msg("Failed to index tool event")
	}
}
