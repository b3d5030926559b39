package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ihavespoons/agentrun/internal/hooks"
)

const (
	globalConfigDir  = ".agentrun"
	projectConfigDir = ".agentrun"
	configFileName   = "config.yaml"
)

// Loader handles loading and merging configuration files.
type Loader struct {
	globalPath  string
	projectPath string
}

// NewLoader creates a loader for the given project directory. An empty
// projectDir means the current working directory.
func NewLoader(projectDir string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Loader{
		globalPath:  filepath.Join(homeDir, globalConfigDir, configFileName),
		projectPath: filepath.Join(projectDir, projectConfigDir, configFileName),
	}, nil
}

// GlobalConfigPath returns the global config file location.
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

// ProjectConfigPath returns the project config file location.
func (l *Loader) ProjectConfigPath() string {
	return l.projectPath
}

// Load loads and merges configuration from all sources. Missing files
// are not an error; the project file overrides the global file, which
// overrides the defaults. Hook rule lists concatenate (global rules
// before project rules) so that both levels contribute hooks.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	projectCfg, err := l.loadFile(l.projectPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if projectCfg != nil {
		cfg = mergeConfigs(cfg, projectCfg)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, merged over the
// defaults only.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	return mergeConfigs(DefaultConfig(), cfg), nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeConfigs merges two configurations, with override taking
// precedence for scalar settings and hook lists concatenating.
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel: coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:  coalesce(override.Settings.LogFile, base.Settings.LogFile),
		},
		Storage: Storage{
			Root: coalesce(override.Storage.Root, base.Storage.Root),
		},
		Budget: Budget{
			DailyTokenLimit: base.Budget.DailyTokenLimit,
		},
		Hooks: mergeHooks(base.Hooks, override.Hooks),
	}

	if override.Budget.DailyTokenLimit != 0 {
		result.Budget.DailyTokenLimit = override.Budget.DailyTokenLimit
	}

	return result
}

func mergeHooks(base, override map[hooks.Namespace]map[hooks.EventType][]HookRule) map[hooks.Namespace]map[hooks.EventType][]HookRule {
	if base == nil && override == nil {
		return nil
	}

	result := make(map[hooks.Namespace]map[hooks.EventType][]HookRule)
	for ns, byEvent := range base {
		for event, rules := range byEvent {
			appendRules(result, ns, event, rules)
		}
	}
	for ns, byEvent := range override {
		for event, rules := range byEvent {
			appendRules(result, ns, event, rules)
		}
	}
	return result
}

func appendRules(dst map[hooks.Namespace]map[hooks.EventType][]HookRule, ns hooks.Namespace, event hooks.EventType, rules []HookRule) {
	if len(rules) == 0 {
		return
	}
	if dst[ns] == nil {
		dst[ns] = make(map[hooks.EventType][]HookRule)
	}
	dst[ns][event] = append(dst[ns][event], rules...)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
