package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record operator-key usage manually",
	Long: `Record a single LLM call made outside the gateway with an operator key.
The cost is priced from the catalog including the operator surcharge and
counted against budgets.`,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.Flags().StringP("provider", "p", "", "LLM provider (e.g., openai, anthropic)")
	trackCmd.Flags().StringP("model", "m", "", "Model name (e.g., gpt-4o, claude-sonnet-4)")
	trackCmd.Flags().Int64("input-tokens", 0, "Number of input tokens")
	trackCmd.Flags().Int64("output-tokens", 0, "Number of output tokens")
	trackCmd.Flags().String("project", "", "Project name (default from config)")
	_ = trackCmd.MarkFlagRequired("provider")
	_ = trackCmd.MarkFlagRequired("model")
}

func runTrack(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	inputTokens, _ := cmd.Flags().GetInt64("input-tokens")
	outputTokens, _ := cmd.Flags().GetInt64("output-tokens")
	project, _ := cmd.Flags().GetString("project")

	if project == "" {
		project = cfg.Defaults.Project
	}

	c, err := initComponents(cfg, NewLogger(cfg))
	if err != nil {
		return err
	}
	defer c.store.Close()

	record, err := c.tracker.Track(cmd.Context(), provider, model, inputTokens, outputTokens, project)
	if err != nil {
		return fmt.Errorf("track usage: %w", err)
	}

	fmt.Printf("Recorded usage:\n")
	fmt.Printf("  ID:            %s\n", record.ID)
	fmt.Printf("  Provider:      %s\n", record.Provider)
	fmt.Printf("  Model:         %s\n", record.Model)
	fmt.Printf("  Input tokens:  %d\n", record.InputTokens)
	fmt.Printf("  Output tokens: %d\n", record.OutputTokens)
	fmt.Printf("  List price:    $%.6f\n", record.BaseCostUSD)
	fmt.Printf("  Charged:       $%.6f\n", record.CostUSD)
	fmt.Printf("  Project:       %s\n", record.Project)

	return nil
}
