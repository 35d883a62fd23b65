package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/spf13/cobra"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage operator-key spending budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a budget",
	RunE:  runBudgetSet,
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current budget status",
	RunE:  runBudgetStatus,
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset NAME",
	Short: "Reset a budget's spend to zero",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetReset,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetResetCmd)

	budgetSetCmd.Flags().StringP("name", "n", "default", "Budget name")
	budgetSetCmd.Flags().Float64P("limit", "l", 0, "Spending limit in USD")
	budgetSetCmd.Flags().StringP("period", "P", "monthly", "Budget period (daily, weekly, monthly)")
	budgetSetCmd.Flags().Float64("alert-at", 80, "Alert threshold percentage")
	_ = budgetSetCmd.MarkFlagRequired("limit")
}

func openStore() (storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func runBudgetSet(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	limit, _ := cmd.Flags().GetFloat64("limit")
	period, _ := cmd.Flags().GetString("period")
	alertAt, _ := cmd.Flags().GetFloat64("alert-at")

	switch tracker.BudgetPeriod(period) {
	case tracker.PeriodDaily, tracker.PeriodWeekly, tracker.PeriodMonthly:
	default:
		return fmt.Errorf("unknown period %q", period)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	budget := &tracker.Budget{
		Name:              name,
		LimitUSD:          limit,
		Period:            tracker.BudgetPeriod(period),
		AlertThresholdPct: alertAt,
	}

	if err := store.SetBudget(cmd.Context(), budget); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}

	fmt.Printf("Budget set:\n")
	fmt.Printf("  Name:      %s\n", name)
	fmt.Printf("  Limit:     $%.2f\n", limit)
	fmt.Printf("  Period:    %s\n", period)
	fmt.Printf("  Alert at:  %.0f%%\n", alertAt)

	return nil
}

func runBudgetStatus(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	budgets, err := store.ListBudgets(cmd.Context())
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	if len(budgets) == 0 {
		fmt.Println("No budgets configured. Use 'lrg budget set' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tPERIOD\tLIMIT\tSPENT\tREMAINING\tUSAGE\tALERT AT\n")
	for _, b := range budgets {
		remaining := max(b.LimitUSD-b.CurrentSpend, 0)
		pct := b.UsedPct()

		status := ""
		switch {
		case b.Exceeded():
			status = " [EXCEEDED]"
		case pct >= 95:
			status = " [CRITICAL]"
		case b.AlertThresholdPct > 0 && pct >= b.AlertThresholdPct:
			status = " [WARNING]"
		}

		fmt.Fprintf(w, "%s\t%s\t$%.2f\t$%.2f\t$%.2f\t%.1f%%%s\t%.0f%%\n",
			b.Name, b.Period, b.LimitUSD, b.CurrentSpend,
			remaining, pct, status, b.AlertThresholdPct,
		)
	}
	w.Flush()

	return nil
}

func runBudgetReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	mgr := tracker.NewBudgetManager(store, initNotifiers(cfg), NewLogger(cfg))
	if err := mgr.ResetBudgetSpend(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("reset budget: %w", err)
	}

	fmt.Printf("Budget %q reset.\n", args[0])
	return nil
}
