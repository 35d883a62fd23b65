package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route [prompt]",
	Short: "Show how a request would be routed, without calling any provider",
	Long: `Rank the candidates for a request the way the gateway would and print
them in try order. Operator keys come from config; extra caller keys can be
passed with --key provider=apikey.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringP("strategy", "s", "", "Strategy (cheap, balanced, powerful, fastest)")
	routeCmd.Flags().StringP("model", "m", "", "Requested model")
	routeCmd.Flags().StringP("operation", "o", "chat", "Operation (chat, embedding, image)")
	routeCmd.Flags().String("category", "", "Model category (small, large, reasoning)")
	routeCmd.Flags().StringSlice("capability", nil, "Required capability (repeatable)")
	routeCmd.Flags().Int("min-context", 0, "Minimum context window")
	routeCmd.Flags().Float64("max-cost", -1, "Maximum charged cost in USD")
	routeCmd.Flags().Int("max-tokens", 0, "Expected output tokens")
	routeCmd.Flags().StringSlice("key", nil, "Caller key as provider=apikey (repeatable)")
	routeCmd.Flags().Bool("no-operator", false, "Leave operator keys out of the pool")
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := NewLogger(cfg)

	req, err := routeRequest(cmd, args)
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	strategy, err := selector.ParseStrategy(cfg.Routing.Strategy)
	if err != nil {
		return err
	}
	rt := router.New(c.catalog, credentials.FromEntries(cfg.Credentials), health.NewTracker(), nil, c.calculator, logger,
		router.WithTracker(c.tracker),
		router.WithDefaultStrategy(strategy),
		router.WithBudgetGate(cfg.Budget.DenyOperatorOnExceed),
	)

	candidates, err := rt.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No eligible candidate.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "#\tPROVIDER\tMODEL\tCREDENTIAL\tOWNER\tPRIORITY\tEST COST\tCHARGED\tQUALITY\tLATENCY\n")
	for i, cand := range candidates {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t$%.6f\t$%.6f\t%.0f\t%dms\n",
			i+1, cand.Model.Provider, cand.Model.ID,
			cand.Credential.ID, cand.Credential.Owner, cand.Credential.Priority,
			cand.Score.EstimatedCost, cand.Score.ChargedCost,
			cand.Score.Quality, cand.Score.LatencyMS,
		)
	}
	w.Flush()

	return nil
}

func routeRequest(cmd *cobra.Command, args []string) (*router.Request, error) {
	f := cmd.Flags()
	strategy, _ := f.GetString("strategy")
	model, _ := f.GetString("model")
	operation, _ := f.GetString("operation")
	category, _ := f.GetString("category")
	caps, _ := f.GetStringSlice("capability")
	minContext, _ := f.GetInt("min-context")
	maxCost, _ := f.GetFloat64("max-cost")
	maxTokens, _ := f.GetInt("max-tokens")
	keys, _ := f.GetStringSlice("key")
	noOperator, _ := f.GetBool("no-operator")

	prompt := "Hello"
	if len(args) > 0 {
		prompt = args[0]
	}

	req := &router.Request{
		MinContextWindow: minContext,
		RequestedModel:   model,
		AllowOperator:    !noOperator,
	}

	switch transport.Operation(operation) {
	case transport.OpChat:
		req.Payload = &transport.Request{
			Operation: transport.OpChat,
			Messages:  []transport.Message{{Role: "user", Content: prompt}},
			MaxTokens: maxTokens,
		}
	case transport.OpEmbedding:
		req.Payload = &transport.Request{Operation: transport.OpEmbedding, Input: []string{prompt}}
	case transport.OpImage:
		req.Payload = &transport.Request{Operation: transport.OpImage, Prompt: prompt, N: 1}
	default:
		return nil, fmt.Errorf("unknown operation %q", operation)
	}

	if strategy != "" {
		s, err := selector.ParseStrategy(strategy)
		if err != nil {
			return nil, err
		}
		req.Strategy = s
	}
	if category != "" {
		c, err := catalog.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		req.Category = c
	}
	for _, raw := range caps {
		c, err := catalog.ParseCapability(raw)
		if err != nil {
			return nil, err
		}
		req.RequiredCapabilities = append(req.RequiredCapabilities, c)
	}
	if maxCost >= 0 {
		req.MaxCost = &maxCost
	}

	entries := make([]credentials.Entry, 0, len(keys))
	for _, k := range keys {
		provider, key, ok := strings.Cut(k, "=")
		if !ok || provider == "" || key == "" {
			return nil, fmt.Errorf("invalid --key %q, want provider=apikey", k)
		}
		entries = append(entries, credentials.Entry{Provider: provider, APIKey: key})
	}
	req.Credentials = credentials.FromEntries(entries)

	return req, nil
}
