// Package dispatch resolves, executes, and folds the externally
// configured hook commands for one lifecycle event into a single
// verdict.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ihavespoons/agentrun/internal/config"
	"github.com/ihavespoons/agentrun/internal/hooks"
	"github.com/ihavespoons/agentrun/internal/logger"
)

// anthropicReminder is the built-in context the anthropic namespace
// injects once per dispatch, even when no hooks are configured for it.
const anthropicReminder = "As you work, keep the session transcript accurate: " +
	"report tool failures instead of retrying silently."

// Verdict is the folded outcome of all matching hooks for one event.
// Block is monotonic across the dispatch; AdditionalContext is ordered
// by hook execution order.
type Verdict struct {
	Block             bool
	AdditionalContext string
}

func (v *Verdict) appendContext(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if v.AdditionalContext != "" {
		v.AdditionalContext += "\n"
	}
	v.AdditionalContext += text
}

// Dispatcher runs configured hook commands for lifecycle events. Rule
// sets are injected at construction; the dispatcher holds no global
// state.
type Dispatcher struct {
	cfg        *config.Config
	matcher    *Matcher
	projectDir string
}

// New creates a dispatcher over the given configuration. projectDir is
// exported to every hook process via AGENTRUN_PROJECT_DIR.
func New(cfg *config.Config, projectDir string) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		matcher:    NewMatcher(),
		projectDir: projectDir,
	}
}

// Dispatch runs every hook configured for (event, namespace) against
// the payload and returns the folded verdict. Generic rules run before
// namespace rules, each set in declared order; every matching rule runs
// even after a block. Hook failures never abort the loop.
func (d *Dispatcher) Dispatch(ctx context.Context, event hooks.EventType, ns hooks.Namespace, payload interface{}) Verdict {
	var verdict Verdict

	if ns == hooks.NamespaceAnthropic {
		verdict.appendContext(anthropicReminder)
	}

	rules := d.cfg.HookRules(hooks.NamespaceGeneric, event)
	if ns != hooks.NamespaceGeneric {
		rules = append(rules[:len(rules):len(rules)], d.cfg.HookRules(ns, event)...)
	}
	if len(rules) == 0 {
		return verdict
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event", string(event)).
			Msg("Failed to encode hook payload, skipping dispatch")
		return verdict
	}

	target, hasTarget := toolTarget(payload)

	for _, rule := range rules {
		matched, err := d.matcher.Match(rule.Matcher, target, hasTarget)
		if err != nil {
			logger.Error().Err(err).Str("command", rule.Command).Msg("Skipping rule with invalid matcher")
			continue
		}
		if !matched {
			continue
		}

		inv := runCommand(ctx, rule.Command, encoded, rule.Timeout(), d.projectDir)
		d.interpret(event, rule, inv, &verdict)
	}

	return verdict
}

// interpret folds one invocation's output and exit code into the
// verdict, per the hook process contract.
func (d *Dispatcher) interpret(event hooks.EventType, rule config.HookRule, inv *Invocation, verdict *Verdict) {
	log := logger.Debug().
		Str("event", string(event)).
		Str("command", rule.Command).
		Int("exit_code", inv.ExitCode)

	if inv.Stderr != "" {
		logger.Error().
			Str("event", string(event)).
			Str("command", rule.Command).
			Msg("Hook diagnostics: " + strings.TrimSpace(inv.Stderr))
	}

	stdout := strings.TrimSpace(inv.Stdout)
	if stdout != "" {
		var out hooks.Output
		if err := json.Unmarshal([]byte(stdout), &out); err == nil {
			if out.Blocks() {
				verdict.Block = true
				logger.Info().
					Str("event", string(event)).
					Str("command", rule.Command).
					Str("stop_reason", out.StopReason).
					Str("reason", out.Reason).
					Msg("Hook signaled block")
			}
			verdict.appendContext(out.AdditionalContext())
		} else {
			// Plain text feeds the context only on prompt-shaping
			// events; everywhere else it is log-only.
			logger.Info().
				Str("event", string(event)).
				Str("command", rule.Command).
				Msg("Hook output: " + stdout)
			if event.PromptShaping() {
				verdict.appendContext(stdout)
			}
		}
	}

	switch {
	case inv.ExitCode == ExitBlock:
		// Blocks independently of anything printed on stdout.
		verdict.Block = true
		logger.Info().
			Str("event", string(event)).
			Str("command", rule.Command).
			Msg("Hook blocked via exit code")
	case inv.TimedOut():
		logger.Warn().
			Str("event", string(event)).
			Str("command", rule.Command).
			Msg("Hook timed out")
	case inv.ExitCode == ExitStartFailure:
		logger.Warn().
			Str("event", string(event)).
			Str("command", rule.Command).
			Msg("Hook failed to start")
	case inv.ExitCode != 0:
		logger.Warn().
			Str("event", string(event)).
			Str("command", rule.Command).
			Int("exit_code", inv.ExitCode).
			Msg("Hook exited non-zero")
	}

	log.Msg("Hook finished")
}

// toolTarget extracts the matcher target from an event payload. Events
// without a tool field report hasTarget=false, which only wildcard and
// empty matchers can match.
func toolTarget(payload interface{}) (string, bool) {
	switch p := payload.(type) {
	case hooks.PreToolUseInput:
		return p.ToolName, true
	case *hooks.PreToolUseInput:
		return p.ToolName, true
	case hooks.PostToolUseInput:
		return p.ToolName, true
	case *hooks.PostToolUseInput:
		return p.ToolName, true
	default:
		return "", false
	}
}
