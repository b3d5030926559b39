package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ihavespoons/agentrun/internal/hooks"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Long: `Load and merge the configuration the same way "run" would, then
check it for unknown namespaces, unknown events, and malformed rules.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		total := 0
		for _, byEvent := range cfg.Hooks {
			for _, rules := range byEvent {
				total += len(rules)
			}
		}
		fmt.Printf("configuration OK: %d hook rule(s)\n", total)
		for _, ns := range []hooks.Namespace{hooks.NamespaceGeneric, hooks.NamespaceOpenAI, hooks.NamespaceAnthropic, hooks.NamespaceGemini} {
			byEvent := cfg.Hooks[ns]
			if len(byEvent) == 0 {
				continue
			}
			for event, rules := range byEvent {
				fmt.Printf("  %s/%s: %d rule(s)\n", ns, event, len(rules))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
