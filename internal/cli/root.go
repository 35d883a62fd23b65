// Package cli implements the lrg command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/config"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lrg",
	Short: "LLM Route Guardian - multi-provider routing gateway",
	Long: `LLM Route Guardian routes LLM requests across providers and keys.
It ranks candidates by strategy, falls back on failure, prices every call
and tracks spend against budgets.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.lrg/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// catalogDir resolves the catalog directory, falling back to one next to
// the executable.
func catalogDir(cfg *config.Config) string {
	dir := cfg.Catalog.Dir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		exePath, _ := os.Executable()
		if exePath != "" {
			altDir := filepath.Join(filepath.Dir(exePath), "catalog")
			if _, altErr := os.Stat(altDir); altErr == nil {
				dir = altDir
			}
		}
	}
	return dir
}

// initCatalog loads the model catalog.
func initCatalog(cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.Open(catalogDir(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// components is what most commands need: the catalog, a calculator over it,
// and a tracker over the store.
type components struct {
	catalog    *catalog.Catalog
	calculator *pricing.Calculator
	tracker    *tracker.UsageTracker
	store      storage.Storage
}

// initComponents wires the catalog, pricing and tracking layers.
func initComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	cat, err := initCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	calc := pricing.NewCalculator(cat, cfg.Routing.SurchargePct, cfg.Routing.CostFallbackUSD, logger)
	budgetMgr := tracker.NewBudgetManager(store, initNotifiers(cfg), logger)

	return &components{
		catalog:    cat,
		calculator: calc,
		tracker:    tracker.NewUsageTracker(store, calc, budgetMgr, logger),
		store:      store,
	}, nil
}
