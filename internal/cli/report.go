package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate usage and cost reports",
	Long:  `Generate aggregated usage reports by provider, model, owner, project and time period.`,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("period", "P", "daily", "Report period (daily, weekly, monthly)")
	reportCmd.Flags().StringP("provider", "p", "", "Filter by provider")
	reportCmd.Flags().StringP("model", "m", "", "Filter by model")
	reportCmd.Flags().String("project", "", "Filter by project")
	reportCmd.Flags().String("owner", "", "Filter by key owner (user, operator)")
	reportCmd.Flags().Bool("detailed", false, "Show individual records")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	period, _ := cmd.Flags().GetString("period")
	providerFilter, _ := cmd.Flags().GetString("provider")
	modelFilter, _ := cmd.Flags().GetString("model")
	projectFilter, _ := cmd.Flags().GetString("project")
	ownerFilter, _ := cmd.Flags().GetString("owner")
	detailed, _ := cmd.Flags().GetBool("detailed")

	c, err := initComponents(cfg, NewLogger(cfg))
	if err != nil {
		return err
	}
	defer c.store.Close()

	start, end := tracker.PeriodBounds(tracker.BudgetPeriod(period), time.Now())

	filter := tracker.ReportFilter{
		Provider:  providerFilter,
		Model:     modelFilter,
		Project:   projectFilter,
		Owner:     ownerFilter,
		StartTime: start,
		EndTime:   end,
	}

	summary, err := c.tracker.Report(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	fmt.Printf("=== LLM Routing Report (%s) ===\n", period)
	fmt.Printf("Period: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("Charged Cost:        $%.4f\n", summary.TotalCostUSD)
	fmt.Printf("List Price Cost:     $%.4f\n", summary.TotalBaseCostUSD)
	fmt.Printf("Total Input Tokens:  %d\n", summary.TotalInputTokens)
	fmt.Printf("Total Output Tokens: %d\n", summary.TotalOutputTokens)
	fmt.Printf("Total Requests:      %d\n", summary.RecordCount)

	printBreakdown("Provider", summary.ByProvider)
	printBreakdown("Model", summary.ByModel)
	printBreakdown("Owner", summary.ByOwner)

	if detailed {
		records, err := c.tracker.Query(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}

		if len(records) > 0 {
			fmt.Printf("\nDetailed Records:\n")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "  TIMESTAMP\tPROVIDER\tMODEL\tOWNER\tIN\tOUT\tCOST\tATTEMPTS\tPROJECT\n")
			for _, r := range records {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%d\t$%.6f\t%d\t%s\n",
					r.Timestamp.Format("2006-01-02 15:04"),
					r.Provider, r.Model, r.Owner,
					r.InputTokens, r.OutputTokens,
					r.CostUSD, r.Attempts, r.Project,
				)
			}
			w.Flush()
		}
	}

	return nil
}

func printBreakdown(label string, costs map[string]float64) {
	if len(costs) == 0 {
		return
	}
	fmt.Printf("\nBy %s:\n", label)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  %s\tCOST\n", label)
	for _, name := range slices.Sorted(maps.Keys(costs)) {
		fmt.Fprintf(w, "  %s\t$%.4f\n", name, costs[name])
	}
	w.Flush()
}
