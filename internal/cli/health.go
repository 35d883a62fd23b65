package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show provider health from a running gateway",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().String("url", "", "Gateway base URL (default from server.listen)")
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		base = "http://" + cfg.Server.Listen
		if strings.HasPrefix(cfg.Server.Listen, ":") {
			base = "http://localhost" + cfg.Server.Listen
		}
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(base, "/")+"/api/v1/providers/health", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var states []health.State
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}

	if len(states) == 0 {
		fmt.Println("No failures recorded. All providers available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "KEY\tAVAILABLE\tFAILURES\tLAST OUTCOME\tCOOLDOWN UNTIL\tLAST ERROR\n")
	for _, s := range states {
		until := "-"
		if s.CooldownUntil != nil {
			until = s.CooldownUntil.Local().Format(time.TimeOnly)
		}
		fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\t%s\n",
			s.Key(), s.Available, s.ConsecutiveFailures, s.LastOutcome, until, s.LastError,
		)
	}
	w.Flush()

	return nil
}
