package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect the model catalog",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog models with pricing and capabilities",
	RunE:  runProvidersList,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd)

	providersListCmd.Flags().StringP("provider", "p", "", "Only list this provider")
}

func runProvidersList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cat, err := initCatalog(cfg, NewLogger(cfg))
	if err != nil {
		return err
	}

	provider, _ := cmd.Flags().GetString("provider")

	models := cat.Snapshot().Models()
	if len(models) == 0 {
		fmt.Println("No models loaded. Check catalog.dir in config.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tMODEL\tCATEGORY\tTIER\tCONTEXT\tINPUT ($/1M)\tOUTPUT ($/1M)\tCAPABILITIES\n")

	for _, m := range models {
		if provider != "" && !strings.EqualFold(m.Provider, provider) {
			continue
		}
		input := fmt.Sprintf("$%.2f", m.Pricing.InputPerMillion)
		output := fmt.Sprintf("$%.2f", m.Pricing.OutputPerMillion)
		switch {
		case m.Free:
			input, output = "free", "free"
		case m.Pricing.IsFixed():
			input, output = fmt.Sprintf("$%.4f/unit", m.Pricing.FixedCost), "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			m.Provider, m.ID, m.Category, m.QualityTier, m.ContextWindow,
			input, output, strings.Join(m.CapabilityList(), ","),
		)
	}
	w.Flush()

	return nil
}
