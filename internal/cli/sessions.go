package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ihavespoons/agentrun/internal/trace"
)

var (
	sessionsLimit   int
	sessionsCleanup string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded agent sessions",
	Long: `List recent sessions from the session index, newest first. Each
session's full transcript lives in the JSONL file shown in the output.

Example:
  agentrun sessions
  agentrun sessions --limit 5
  agentrun sessions --cleanup 168h`,
	SilenceUsage: true,
	RunE:         listSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum sessions to list")
	sessionsCmd.Flags().StringVar(&sessionsCleanup, "cleanup", "", "Remove sessions older than this duration (e.g. 168h) instead of listing")
	rootCmd.AddCommand(sessionsCmd)
}

func listSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := storageRoot(cfg)
	if err != nil {
		return err
	}

	index, err := trace.NewStore(filepath.Join(root, "index.db"))
	if err != nil {
		return fmt.Errorf("failed to open session index: %w", err)
	}
	defer index.Close()

	if sessionsCleanup != "" {
		ttl, err := time.ParseDuration(sessionsCleanup)
		if err != nil {
			return fmt.Errorf("invalid --cleanup duration: %w", err)
		}
		removed, err := index.CleanupOldSessions(ttl)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d session(s)\n", removed)
		return nil
	}

	sessions, err := index.ListSessions(sessionsLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tAGENT\tMODEL\tSTARTED\tOUTCOME")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.AgentID, s.Model, humanize.Time(s.CreatedAt), s.Outcome)
	}
	return w.Flush()
}
