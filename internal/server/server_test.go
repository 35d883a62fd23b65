package server_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/server"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/metrics"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tracker *tracker.UsageTracker
	catalog *catalog.Catalog
	health  *health.Tracker
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	snap, err := catalog.NewSnapshot(
		&catalog.Model{
			Provider: "openai", ID: "gpt-4o", Category: catalog.CategoryLarge, QualityTier: 8,
			ContextWindow: 128000, Capabilities: map[catalog.Capability]bool{catalog.CapChat: true, catalog.CapVision: true},
			Pricing: catalog.Pricing{InputPerMillion: 2.50, OutputPerMillion: 10.00},
		},
		&catalog.Model{
			Provider: "groq", ID: "llama-3.1-8b-instant", Category: catalog.CategorySmall,
			ContextWindow: 131072, Capabilities: map[catalog.Capability]bool{catalog.CapChat: true}, Free: true,
		},
	)
	require.NoError(t, err)
	cat := catalog.New(snap, logger)

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	calc := pricing.NewCalculator(cat, pricing.DefaultSurchargePercent, 0, logger)
	ut := tracker.NewUsageTracker(store, calc, nil, logger)

	// Seed some data
	_, err = ut.Track(t.Context(), "openai", "gpt-4o", 1000, 500, "test")
	require.NoError(t, err)
	require.NoError(t, ut.RecordAttempts(t.Context(), []model.AttemptRecord{
		{RequestID: "req-1", Seq: 0, Provider: "groq", Model: "llama-3.1-8b-instant", Outcome: "rate_limited"},
		{RequestID: "req-1", Seq: 1, Provider: "openai", Model: "gpt-4o", Outcome: "success"},
	}))

	return &fixture{
		tracker: ut,
		catalog: cat,
		health:  health.NewTracker(),
		reg:     prometheus.NewRegistry(),
	}
}

func (f *fixture) server(opts ...server.Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return server.NewServer(f.tracker, logger, opts...).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	w := get(t, newFixture(t).server(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestServer_Usage(t *testing.T) {
	w := get(t, newFixture(t).server(), "/api/v1/usage")
	assert.Equal(t, http.StatusOK, w.Code)

	var records []model.UsageRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&records))
	assert.Len(t, records, 1)
	assert.Equal(t, "operator", records[0].Owner)
}

func TestServer_Usage_WithFilters(t *testing.T) {
	srv := newFixture(t).server()

	tests := []struct {
		query string
		want  int
	}{
		{"provider=openai&model=gpt-4o", 1},
		{"owner=operator", 1},
		{"owner=user", 0},
		{"project=other", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, srv, "/api/v1/usage?"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)
			var records []model.UsageRecord
			require.NoError(t, json.NewDecoder(w.Body).Decode(&records))
			assert.Len(t, records, tt.want)
		})
	}
}

func TestServer_Summary(t *testing.T) {
	w := get(t, newFixture(t).server(), "/api/v1/summary?period=daily")
	assert.Equal(t, http.StatusOK, w.Code)

	var summary model.UsageSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, int64(1), summary.RecordCount)
	assert.Greater(t, summary.ByOwner["operator"], 0.0)
}

func TestServer_Attempts(t *testing.T) {
	srv := newFixture(t).server()

	w := get(t, srv, "/api/v1/attempts/req-1")
	require.Equal(t, http.StatusOK, w.Code)
	var attempts []model.AttemptRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&attempts))
	require.Len(t, attempts, 2)
	assert.Equal(t, "groq", attempts[0].Provider)
	assert.Equal(t, "success", attempts[1].Outcome)

	w = get(t, srv, "/api/v1/attempts/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ProviderHealth(t *testing.T) {
	f := newFixture(t)
	srv := f.server(server.WithHealth(f.health))

	w := get(t, srv, "/api/v1/providers/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	f.health.RecordOutcome(health.ModelKey("groq", "llama-3.1-8b-instant"), health.RateLimited, errors.New("429"))
	w = get(t, srv, "/api/v1/providers/health")
	require.Equal(t, http.StatusOK, w.Code)

	var states []health.State
	require.NoError(t, json.NewDecoder(w.Body).Decode(&states))
	require.Len(t, states, 1)
	assert.Equal(t, "groq", states[0].Provider)
	assert.False(t, states[0].Available)
	assert.Equal(t, "429", states[0].LastError)
}

func TestServer_Models(t *testing.T) {
	f := newFixture(t)
	srv := f.server(server.WithCatalog(f.catalog))

	w := get(t, srv, "/api/v1/models")
	require.Equal(t, http.StatusOK, w.Code)
	var models []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&models))
	assert.Len(t, models, 2)

	w = get(t, srv, "/api/v1/models?provider=openai")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&models))
	require.Len(t, models, 1)
	assert.Equal(t, "gpt-4o", models[0]["model"])
	assert.Equal(t, []any{"chat", "vision"}, models[0]["capabilities"])
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	m := metrics.New(f.reg)
	m.ObserveRequest("cheap", "success", 2)

	w := get(t, f.server(server.WithMetrics(f.reg)), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lrg_requests_total{result="success",strategy="cheap"} 1`)
}

func TestServer_OptionalRoutesAbsent(t *testing.T) {
	srv := newFixture(t).server()

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/providers/health").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/v1/chat/completions").Code)
}

func TestServer_MountsGateway(t *testing.T) {
	gw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := newFixture(t).server(server.WithGateway(gw))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTeapot, w.Code)
}
