// Package config defines the agentrun configuration structure and the
// YAML loader that merges global and project-level files.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ihavespoons/agentrun/internal/hooks"
)

// DefaultHookTimeout bounds a hook process's lifetime when the rule does
// not specify its own timeout.
const DefaultHookTimeout = 10 * time.Second

// Config is the complete agentrun configuration.
type Config struct {
	Version  string   `yaml:"version"`
	Settings Settings `yaml:"settings"`
	Storage  Storage  `yaml:"storage"`
	Budget   Budget   `yaml:"budget"`

	// Hooks maps namespace -> event -> ordered rules. The generic
	// namespace applies to every run; provider namespaces apply only
	// when the agent's model belongs to that family.
	Hooks map[hooks.Namespace]map[hooks.EventType][]HookRule `yaml:"hooks,omitempty"`
}

// Settings contains global configuration settings.
type Settings struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
}

// Storage locates the on-disk state root. Session transcripts, the
// session index, and metrics all live under Root.
type Storage struct {
	Root string `yaml:"root,omitempty"`
}

// Budget configures the daily token ceiling. Zero means unbounded.
type Budget struct {
	DailyTokenLimit int64 `yaml:"daily_token_limit,omitempty"`
}

// HookRule is one externally configured hook command. Immutable once
// loaded; ordering within an event is the declared YAML order.
type HookRule struct {
	Matcher   string `yaml:"matcher,omitempty"`
	Command   string `yaml:"command"`
	TimeoutMS int64  `yaml:"timeout_ms,omitempty"`
}

// Timeout returns the rule's process lifetime bound.
func (r HookRule) Timeout() time.Duration {
	if r.TimeoutMS > 0 {
		return time.Duration(r.TimeoutMS) * time.Millisecond
	}
	return DefaultHookTimeout
}

// HookRules returns the configured rules for one (namespace, event)
// pair, in declared order. It does not include generic rules when a
// provider namespace is asked for; the dispatcher composes the two sets.
func (c *Config) HookRules(ns hooks.Namespace, event hooks.EventType) []HookRule {
	if c.Hooks == nil {
		return nil
	}
	byEvent, ok := c.Hooks[ns]
	if !ok {
		return nil
	}
	return byEvent[event]
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
		},
	}
}

var knownEvents = map[hooks.EventType]bool{
	hooks.SessionStart:     true,
	hooks.PreToolUse:       true,
	hooks.PostToolUse:      true,
	hooks.Stop:             true,
	hooks.UserPromptSubmit: true,
	hooks.Notification:     true,
	hooks.PreCompact:       true,
	hooks.SubagentStop:     true,
}

var knownNamespaces = map[hooks.Namespace]bool{
	hooks.NamespaceGeneric:   true,
	hooks.NamespaceOpenAI:    true,
	hooks.NamespaceAnthropic: true,
	hooks.NamespaceGemini:    true,
}

// Validate checks the configuration for unknown namespaces, unknown
// events, and rules without a command.
func (c *Config) Validate() error {
	var problems []string

	if c.Budget.DailyTokenLimit < 0 {
		problems = append(problems, "budget.daily_token_limit must not be negative")
	}

	for ns, byEvent := range c.Hooks {
		if !knownNamespaces[ns] {
			problems = append(problems, fmt.Sprintf("unknown hook namespace %q", ns))
		}
		for event, rules := range byEvent {
			if !knownEvents[event] {
				problems = append(problems, fmt.Sprintf("unknown hook event %q in namespace %q", event, ns))
			}
			for i, rule := range rules {
				if strings.TrimSpace(rule.Command) == "" {
					problems = append(problems, fmt.Sprintf("hooks.%s.%s[%d]: command is required", ns, event, i))
				}
				if rule.TimeoutMS < 0 {
					problems = append(problems, fmt.Sprintf("hooks.%s.%s[%d]: timeout_ms must not be negative", ns, event, i))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
