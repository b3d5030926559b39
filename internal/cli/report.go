package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ihavespoons/agentrun/internal/metrics"
)

var reportDays int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize token usage and cost per agent",
	Long: `Aggregate the recorded usage metrics over a trailing window and
print per-agent totals: runs, tokens, cost, and average duration.

Example:
  agentrun report
  agentrun report --days 7`,
	SilenceUsage: true,
	RunE:         runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportDays, "days", 1, "Trailing window in days")
	rootCmd.AddCommand(reportCmd)
}

type agentUsage struct {
	runs       int
	tokens     int64
	cost       float64
	durationMS int64
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	root, err := storageRoot(cfg)
	if err != nil {
		return err
	}

	if reportDays <= 0 {
		reportDays = 1
	}
	cutoff := time.Now().UTC().Add(-time.Duration(reportDays) * 24 * time.Hour)

	records, err := metrics.NewStore(root).Since(cutoff)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no usage recorded in window")
		return nil
	}

	byAgent := make(map[string]*agentUsage)
	for _, m := range records {
		usage := byAgent[m.AgentID]
		if usage == nil {
			usage = &agentUsage{}
			byAgent[m.AgentID] = usage
		}
		usage.runs++
		usage.tokens += m.TokensUsed
		usage.cost += m.Cost
		usage.durationMS += m.DurationMS
	}

	ids := make([]string, 0, len(byAgent))
	for id := range byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tRUNS\tTOKENS\tCOST\tAVG DURATION")
	var totalTokens int64
	var totalCost float64
	for _, id := range ids {
		usage := byAgent[id]
		avg := time.Duration(usage.durationMS/int64(usage.runs)) * time.Millisecond
		fmt.Fprintf(w, "%s\t%d\t%s\t$%.4f\t%s\n",
			id, usage.runs, humanize.Comma(usage.tokens), usage.cost, avg)
		totalTokens += usage.tokens
		totalCost += usage.cost
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\ntotal: %s tokens, $%.4f", humanize.Comma(totalTokens), totalCost)
	if cfg.Budget.DailyTokenLimit > 0 {
		fmt.Printf(" (daily limit %s)", humanize.Comma(cfg.Budget.DailyTokenLimit))
	}
	fmt.Println()
	return nil
}
