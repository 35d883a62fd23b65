package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Server.AddCostHeaders)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "default", cfg.Defaults.Project)
	assert.Equal(t, "catalog/", cfg.Catalog.Dir)
	assert.True(t, cfg.Catalog.Watch)

	assert.Equal(t, "balanced", cfg.Routing.Strategy)
	assert.Equal(t, 25.0, cfg.Routing.SurchargePct)
	assert.Equal(t, time.Minute, cfg.Routing.AttemptTimeout)
	assert.False(t, cfg.Routing.AnonymousOperator)
	assert.Equal(t, time.Second, cfg.Health.BaseBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Health.MaxBackoff)
	assert.Equal(t, 10*time.Minute, cfg.Health.ResetAfter)
	assert.Equal(t, 3, cfg.Health.AlertThreshold)
	assert.Equal(t, "local", cfg.RateLimit.Backend)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "lrg", cfg.Auth.Issuer)
	assert.False(t, cfg.Budget.DenyOperatorOnExceed)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Credentials)
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("TEST_GROQ_KEY", "gsk-from-env")
	path := writeConfig(t, `
storage:
  path: /tmp/test.db
server:
  listen: ":9090"
logging:
  level: debug
defaults:
  project: my-project
routing:
  strategy: cheap
  surcharge_pct: 10
  attempt_timeout: 15s
health:
  base_backoff: 2s
  max_backoff: 1m
budget:
  deny_operator_on_exceed: true
credentials:
  - provider: groq
    api_key: ${TEST_GROQ_KEY}
    priority: 10
  - provider: openai
    api_key: sk-literal
    endpoint: https://gateway.internal/v1
    allowed_models: [gpt-4o-mini]
    rate_limit: 60
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "my-project", cfg.Defaults.Project)
	assert.Equal(t, "cheap", cfg.Routing.Strategy)
	assert.Equal(t, 10.0, cfg.Routing.SurchargePct)
	assert.Equal(t, 15*time.Second, cfg.Routing.AttemptTimeout)
	assert.Equal(t, 2*time.Second, cfg.Health.BaseBackoff)
	assert.True(t, cfg.Budget.DenyOperatorOnExceed)

	require.Len(t, cfg.Credentials, 2)
	assert.Equal(t, "groq", cfg.Credentials[0].Provider)
	assert.Equal(t, "gsk-from-env", cfg.Credentials[0].APIKey)
	require.NotNil(t, cfg.Credentials[0].Priority)
	assert.Equal(t, 10, *cfg.Credentials[0].Priority)
	assert.Nil(t, cfg.Credentials[1].Priority)
	assert.Equal(t, "https://gateway.internal/v1", cfg.Credentials[1].Endpoint)
	assert.Equal(t, []string{"gpt-4o-mini"}, cfg.Credentials[1].AllowedModels)
	assert.Equal(t, 60, cfg.Credentials[1].RateLimitOverride)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LRG_LOGGING_LEVEL", "error")
	t.Setenv("LRG_SERVER_LISTEN", ":7070")
	t.Setenv("LRG_ROUTING_STRATEGY", "fastest")

	cfg, err := config.Load(writeConfig(t, "logging:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "fastest", cfg.Routing.Strategy)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown strategy", "routing:\n  strategy: random\n", "routing.strategy"},
		{"unknown limiter", "ratelimit:\n  backend: memcached\n", "ratelimit.backend"},
		{"redis without address", "ratelimit:\n  backend: redis\n", "redis_addr"},
		{"auth without secret", "auth:\n  enabled: true\n", "jwt_secret"},
		{"inverted backoff", "health:\n  base_backoff: 10m\n  max_backoff: 1m\n", "health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
