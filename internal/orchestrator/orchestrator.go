// Package orchestrator coordinates one agent run: session lifecycle,
// budget gating, mediated tool access, hook dispatch, and usage
// recording.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ihavespoons/agentrun/internal/agent"
	"github.com/ihavespoons/agentrun/internal/dispatch"
	"github.com/ihavespoons/agentrun/internal/hooks"
	"github.com/ihavespoons/agentrun/internal/logger"
	"github.com/ihavespoons/agentrun/internal/metrics"
	"github.com/ihavespoons/agentrun/internal/session"
	"github.com/ihavespoons/agentrun/internal/tool"
	"github.com/ihavespoons/agentrun/internal/trace"
)

// SkipReason is the fixed reason attached to runs refused by the
// budget gate.
const SkipReason = "daily token budget exhausted"

// Run outcomes reported to stop hooks and the session index.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

// Orchestrator runs agents. All collaborators are injected; the
// orchestrator holds no global state.
type Orchestrator struct {
	recorder   *session.Recorder
	dispatcher *dispatch.Dispatcher
	store      *metrics.Store
	gate       *metrics.Gate
	index      *trace.Store // optional
	projectDir string
}

// New creates an orchestrator. index may be nil to disable the session
// index.
func New(recorder *session.Recorder, dispatcher *dispatch.Dispatcher, store *metrics.Store, gate *metrics.Gate, index *trace.Store, projectDir string) *Orchestrator {
	return &Orchestrator{
		recorder:   recorder,
		dispatcher: dispatcher,
		store:      store,
		gate:       gate,
		index:      index,
		projectDir: projectDir,
	}
}

// Run executes one agent to completion. It never returns an error and
// never lets a failure escape: every run, however it terminates, yields
// exactly one result and one recorded metric, and a session's stop
// hooks run exactly once.
func (o *Orchestrator) Run(ctx context.Context, ag agent.Agent) (result *agent.Result) {
	start := time.Now()
	ns := hooks.NamespaceForModel(ag.Model())

	sess, err := o.recorder.Open()
	if err != nil {
		// No session means no hooks to run, but the metric invariant
		// still holds.
		logger.Error().Err(err).Str("agent", ag.ID()).Msg("Failed to open session")
		result = o.failResult(ag, "failed to open session: "+err.Error())
		o.recordMetric(ag, result, start)
		return result
	}

	o.indexSession(sess, ag)

	outcome := outcomeFailed
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("agent", ag.ID()).Interface("panic", r).Msg("Agent run panicked")
			result = o.failResult(ag, fmt.Sprintf("agent panicked: %v", r))
			outcome = outcomeFailed
		}
		if result == nil {
			result = o.failResult(ag, "run terminated without a result")
		}
		o.finish(ctx, sess, ag, ns, result, outcome, start)
	}()

	sess.Log("session_start", map[string]interface{}{
		"agent_id": ag.ID(),
		"model":    ag.Model(),
	})

	verdict := o.dispatcher.Dispatch(ctx, hooks.SessionStart, ns, hooks.SessionStartInput{
		CommonInput: o.common(sess, hooks.SessionStart),
		AgentID:     ag.ID(),
		Model:       ag.Model(),
	})
	extraContext := verdict.AdditionalContext

	if !o.gate.Check() {
		sess.Log("run_skipped", map[string]interface{}{"reason": SkipReason})
		outcome = outcomeSkipped
		result = &agent.Result{
			AgentID:   ag.ID(),
			Status:    agent.StatusSkipped,
			Error:     SkipReason,
			Timestamp: time.Now().UTC(),
		}
		return result
	}

	mediator := tool.NewMediator(o.dispatcher, sess, o.index, ns, o.projectDir, ag.Tools())
	rc := &agent.Context{
		SessionID:      sess.ID,
		TranscriptPath: sess.TranscriptPath,
		ProjectDir:     o.projectDir,
		ExtraContext:   extraContext,
		Tools:          mediator,
	}

	res, err := ag.Execute(ctx, rc)
	if err != nil {
		sess.Log("agent_error", map[string]interface{}{"error": err.Error()})
		result = o.failResult(ag, err.Error())
		return result
	}
	if res == nil {
		result = o.failResult(ag, "agent returned no result")
		return result
	}

	// The agent's own status stands, even when it reports failure; the
	// run itself completed.
	outcome = outcomeCompleted
	sess.Log("agent_result", map[string]interface{}{
		"status":      string(res.Status),
		"severity":    res.Severity,
		"score":       res.Score,
		"tokens_used": res.TokensUsed,
	})
	result = res
	return result
}

// finish runs the guaranteed cleanup path: stop hooks, final transcript
// entry, session close, index outcome, and the run's single metric.
func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, ag agent.Agent, ns hooks.Namespace, result *agent.Result, outcome string, start time.Time) {
	stop := o.dispatcher.Dispatch(ctx, hooks.Stop, ns, hooks.StopInput{
		CommonInput: o.common(sess, hooks.Stop),
		AgentID:     ag.ID(),
		Outcome:     outcome,
	})
	if stop.Block {
		logger.Info().Str("agent", ag.ID()).Msg("Stop hook signaled block at session end")
	}

	sess.Log("session_stop", map[string]interface{}{
		"outcome": outcome,
		"status":  string(result.Status),
	})
	sess.Close()

	if o.index != nil {
		if err := o.index.SetOutcome(sess.ID, outcome); err != nil {
			logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to index session outcome")
		}
	}

	o.recordMetric(ag, result, start)
}

func (o *Orchestrator) recordMetric(ag agent.Agent, result *agent.Result, start time.Time) {
	metric := metrics.Metric{
		AgentID:    ag.ID(),
		Timestamp:  time.Now().UTC(),
		TokensUsed: result.TokensUsed,
		Cost:       result.Cost,
		Result:     string(result.Status),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err := o.store.Append(metric); err != nil {
		logger.Error().Err(err).Str("agent", ag.ID()).Msg("Failed to record metric")
	}
}

func (o *Orchestrator) indexSession(sess *session.Session, ag agent.Agent) {
	if o.index == nil {
		return
	}
	err := o.index.RecordSession(&trace.SessionInfo{
		SessionID:      sess.ID,
		AgentID:        ag.ID(),
		Model:          ag.Model(),
		CreatedAt:      time.Now(),
		Outcome:        "running",
		Cwd:            o.projectDir,
		TranscriptPath: sess.TranscriptPath,
	})
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to index session")
	}
}

func (o *Orchestrator) failResult(ag agent.Agent, msg string) *agent.Result {
	return &agent.Result{
		AgentID:   ag.ID(),
		Status:    agent.StatusFailure,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

func (o *Orchestrator) common(sess *session.Session, event hooks.EventType) hooks.CommonInput {
	return hooks.CommonInput{
		SessionID:      sess.ID,
		TranscriptPath: sess.TranscriptPath,
		Cwd:            o.projectDir,
		HookEventName:  string(event),
	}
}
