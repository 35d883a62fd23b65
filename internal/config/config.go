// Package config loads gateway configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/spf13/viper"
)

// Config holds all LLM Route Guardian configuration.
type Config struct {
	Storage     StorageConfig       `mapstructure:"storage"`
	Server      ServerConfig        `mapstructure:"server"`
	Alerts      AlertsConfig        `mapstructure:"alerts"`
	Catalog     CatalogConfig       `mapstructure:"catalog"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	Defaults    DefaultsConfig      `mapstructure:"defaults"`
	Routing     RoutingConfig       `mapstructure:"routing"`
	Health      HealthConfig        `mapstructure:"health"`
	RateLimit   RateLimitConfig     `mapstructure:"ratelimit"`
	Auth        AuthConfig          `mapstructure:"auth"`
	Budget      BudgetConfig        `mapstructure:"budget"`
	Metrics     MetricsConfig       `mapstructure:"metrics"`
	Credentials []credentials.Entry `mapstructure:"credentials"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AddCostHeaders bool          `mapstructure:"add_cost_headers"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// CatalogConfig defines where model data is read from.
type CatalogConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultsConfig defines default values.
type DefaultsConfig struct {
	Project string `mapstructure:"project"`
}

// RoutingConfig defines selection and execution settings.
type RoutingConfig struct {
	Strategy          string        `mapstructure:"strategy"`
	SurchargePct      float64       `mapstructure:"surcharge_pct"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	CostFallbackUSD   float64       `mapstructure:"cost_fallback_usd"`
	AnonymousOperator bool          `mapstructure:"anonymous_operator"`
}

// HealthConfig defines cooldown backoff.
type HealthConfig struct {
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	ResetAfter     time.Duration `mapstructure:"reset_after"`
	AlertThreshold int           `mapstructure:"alert_threshold"`
}

// RateLimitConfig selects the per-credential limiter backend.
type RateLimitConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// AuthConfig defines inbound bearer token verification.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// BudgetConfig defines how budgets gate operator keys.
type BudgetConfig struct {
	DenyOperatorOnExceed bool `mapstructure:"deny_operator_on_exceed"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".lrg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".lrg", "gateway.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.add_cost_headers", true)
	v.SetDefault("catalog.dir", "catalog/")
	v.SetDefault("catalog.watch", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("defaults.project", "default")
	v.SetDefault("alerts.slack.channel", "#llm-routing")
	v.SetDefault("routing.strategy", string(selector.Balanced))
	v.SetDefault("routing.surcharge_pct", 25.0)
	v.SetDefault("routing.attempt_timeout", "60s")
	v.SetDefault("routing.cost_fallback_usd", 0.0)
	v.SetDefault("routing.anonymous_operator", false)
	v.SetDefault("health.base_backoff", "1s")
	v.SetDefault("health.max_backoff", "5m")
	v.SetDefault("health.reset_after", "10m")
	v.SetDefault("health.alert_threshold", 3)
	v.SetDefault("ratelimit.backend", "local")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "lrg")
	v.SetDefault("budget.deny_operator_on_exceed", false)
	v.SetDefault("metrics.enabled", true)

	// Environment variables
	v.SetEnvPrefix("LRG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Keys are usually kept out of the file as ${VAR} references.
	for i := range cfg.Credentials {
		cfg.Credentials[i].APIKey = os.ExpandEnv(cfg.Credentials[i].APIKey)
	}
	cfg.Auth.JWTSecret = os.ExpandEnv(cfg.Auth.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if _, err := selector.ParseStrategy(c.Routing.Strategy); err != nil {
		return fmt.Errorf("routing.strategy: %w", err)
	}
	switch c.RateLimit.Backend {
	case "local", "none":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("ratelimit.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("ratelimit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Health.BaseBackoff <= 0 || c.Health.MaxBackoff < c.Health.BaseBackoff {
		return fmt.Errorf("health: base_backoff must be positive and not exceed max_backoff")
	}
	return nil
}
