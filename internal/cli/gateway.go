package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/config"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/gateway"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/server"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/auth"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/executor"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/metrics"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/ratelimit"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the routing gateway",
}

var gatewayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the OpenAI-compatible routing gateway",
	RunE:  runGatewayStart,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
	gatewayCmd.AddCommand(gatewayStartCmd)

	gatewayStartCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
}

func runGatewayStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ServeGateway(ctx, cfg, NewLogger(cfg))
}

// ServeGateway wires every component from cfg and serves until ctx is done.
func ServeGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	c, err := initComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	var m *metrics.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		gatherer = reg
	}

	c.catalog.OnReload(func(err error) { m.ObserveCatalogReload(err == nil) })
	if cfg.Catalog.Watch {
		go func() {
			if err := c.catalog.Watch(ctx); err != nil {
				logger.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	alerter := alerts.NewProviderAlerter(initNotifiers(cfg), cfg.Health.AlertThreshold, logger)
	defer alerter.Wait()

	healthTracker := health.NewTracker(
		health.WithBackoff(cfg.Health.BaseBackoff, cfg.Health.MaxBackoff),
		health.WithResetAfter(cfg.Health.ResetAfter),
		health.WithListener(func(s health.State) {
			m.ObserveCooldown(s.Provider, s.LastOutcome)
			alerter.Observe(s)
		}),
	)

	limiter, closeLimiter, err := initLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	exec := executor.New(transport.NewDefaultRegistry(), healthTracker, logger,
		executor.WithLimiter(limiter),
		executor.WithAttemptTimeout(cfg.Routing.AttemptTimeout),
		executor.WithObserver(func(a executor.Attempt) {
			m.ObserveAttempt(a.Provider, a.Model, string(a.Outcome), a.Latency.Seconds(), a.Skipped)
		}),
	)

	strategy, err := selector.ParseStrategy(cfg.Routing.Strategy)
	if err != nil {
		return err
	}
	operator := credentials.FromEntries(cfg.Credentials)
	rt := router.New(c.catalog, operator, healthTracker, exec, c.calculator, logger,
		router.WithTracker(c.tracker),
		router.WithMetrics(m),
		router.WithDefaultStrategy(strategy),
		router.WithBudgetGate(cfg.Budget.DenyOperatorOnExceed),
	)

	gwOpts := []gateway.Option{
		gateway.WithCostHeaders(cfg.Server.AddCostHeaders),
		gateway.WithAnonymousOperator(cfg.Routing.AnonymousOperator),
	}
	if cfg.Auth.Enabled {
		issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		gwOpts = append(gwOpts, gateway.WithAuth(issuer))
	}
	gw := gateway.NewHandler(rt, cfg.Defaults.Project, logger, gwOpts...)

	srvOpts := []server.Option{
		server.WithHealth(healthTracker),
		server.WithCatalog(c.catalog),
		server.WithGateway(gw),
	}
	if gatherer != nil {
		srvOpts = append(srvOpts, server.WithMetrics(gatherer))
	}
	api := server.NewServer(c.tracker, logger, srvOpts...)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway started",
			"listen", cfg.Server.Listen,
			"models", len(c.catalog.Snapshot().Models()),
			"operator_credentials", len(operator),
			"strategy", strategy,
		)
		fmt.Fprintf(os.Stderr, "LLM Route Guardian listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("gateway stopped")
	return nil
}

// initLimiter builds the per-credential rate limiter and its cleanup.
func initLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		r, err := ratelimit.Dial(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rate limit backend: %w", err)
		}
		return r, func() { _ = r.Close() }, nil
	case "none":
		return ratelimit.Unlimited{}, func() {}, nil
	default:
		return ratelimit.NewLocal(), func() {}, nil
	}
}
