package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/agentrun/internal/agent"
	"github.com/ihavespoons/agentrun/internal/dispatch"
	"github.com/ihavespoons/agentrun/internal/logger"
	"github.com/ihavespoons/agentrun/internal/metrics"
	"github.com/ihavespoons/agentrun/internal/orchestrator"
	"github.com/ihavespoons/agentrun/internal/session"
	"github.com/ihavespoons/agentrun/internal/trace"
)

var runModel string

var runCmd = &cobra.Command{
	Use:   "run <agent-id>",
	Short: "Run an agent against the project directory",
	Long: `Run one registered agent. The run opens a session, dispatches
session-start hooks, checks the daily token budget, executes the agent
with hook-mediated tool access, and always dispatches stop hooks and
records a usage metric on exit.

The result is printed to stdout as JSON. A failed run exits non-zero;
a budget-skipped run exits zero.

Example:
  agentrun run scan
  agentrun run scan --model gpt-4o`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the agent's model identifier")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	project, err := resolveProjectDir()
	if err != nil {
		return err
	}
	root, err := storageRoot(cfg)
	if err != nil {
		return err
	}

	registry := buildRegistry(project)
	ag, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	store := metrics.NewStore(root)

	// The session index is supporting state; a broken index must not
	// stop a run.
	index, err := trace.NewStore(filepath.Join(root, "index.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("Session index unavailable, continuing without it")
		index = nil
	} else {
		defer index.Close()
	}

	orch := orchestrator.New(
		session.NewRecorder(root),
		dispatch.New(cfg, project),
		store,
		metrics.NewGate(store, cfg.Budget.DailyTokenLimit),
		index,
		project,
	)

	result := orch.Run(cmd.Context(), ag)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(encoded))

	if result.Status == agent.StatusFailure {
		return fmt.Errorf("agent %s failed: %s", result.AgentID, result.Error)
	}
	if result.Status == agent.StatusSkipped {
		fmt.Fprintf(os.Stderr, "run skipped: %s\n", result.Error)
	}
	return nil
}

// buildRegistry is the fixed agent registration table. New agents are
// added here, not discovered.
func buildRegistry(project string) *agent.Registry {
	registry := agent.NewRegistry()
	if err := registry.Register(agent.NewScanAgent(project, runModel)); err != nil {
		logger.Error().Err(err).Msg("Failed to register agent")
	}
	return registry
}
