package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := resolveProjectDir()
		if err != nil {
			return err
		}

		for _, id := range buildRegistry(project).IDs() {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
