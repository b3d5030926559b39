// Package cli wires configuration, storage, and the orchestrator into
// the agentrun command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/agentrun/internal/config"
	"github.com/ihavespoons/agentrun/internal/logger"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "agentrun",
	Short: "Run analysis agents with lifecycle hooks",
	Long: `Agentrun executes pluggable analysis agents against a repository
snapshot. Externally configured hook commands observe, veto, or inject
context at lifecycle points (session-start, pre/post tool use, stop).

Configure hooks and budgets in:
  - ~/.agentrun/config.yaml (global)
  - .agentrun/config.yaml (project-specific)`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentrun %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Override project directory")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration and initializes the
// logger from it.
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if configFile != "" {
		cfg, err = loader.LoadFromFile(configFile)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.Settings.LogLevel
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Settings.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// resolveProjectDir returns the effective project directory.
func resolveProjectDir() (string, error) {
	if projectDir != "" {
		return filepath.Abs(projectDir)
	}
	return os.Getwd()
}

// storageRoot returns the state directory, defaulting to ~/.agentrun.
func storageRoot(cfg *config.Config) (string, error) {
	if cfg.Storage.Root != "" {
		return cfg.Storage.Root, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".agentrun"), nil
}
