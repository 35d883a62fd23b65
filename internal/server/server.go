// Package server exposes the gateway's operational API: liveness, usage
// reports, routing audit, provider health and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthSource reports provider health.
type HealthSource interface {
	Snapshot() []health.State
}

// Server provides health check, reporting and metrics API endpoints.
type Server struct {
	tracker  *tracker.UsageTracker
	health   HealthSource
	catalog  *catalog.Catalog
	gatherer prometheus.Gatherer
	gateway  http.Handler
	mux      *http.ServeMux
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHealth serves /api/v1/providers/health.
func WithHealth(h HealthSource) Option {
	return func(s *Server) { s.health = h }
}

// WithCatalog serves /api/v1/models.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithMetrics serves /metrics from g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithGateway mounts the OpenAI-compatible gateway under /v1/.
func WithGateway(h http.Handler) Option {
	return func(s *Server) { s.gateway = h }
}

// NewServer creates an API server.
func NewServer(t *tracker.UsageTracker, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		tracker: t,
		mux:     http.NewServeMux(),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/usage", s.handleUsage)
	s.mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/v1/attempts/{requestID}", s.handleAttempts)
	if s.health != nil {
		s.mux.HandleFunc("GET /api/v1/providers/health", s.handleProviderHealth)
	}
	if s.catalog != nil {
		s.mux.HandleFunc("GET /api/v1/models", s.handleModels)
	}
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.gateway != nil {
		s.mux.Handle("/v1/", s.gateway)
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	filter := tracker.ReportFilter{
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
		Project:  q.Get("project"),
		Owner:    q.Get("owner"),
	}

	records, err := s.tracker.Query(ctx, filter)
	if err != nil {
		s.logger.Error("query usage", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	q := r.URL.Query()
	period := tracker.BudgetPeriod(q.Get("period"))
	if period == "" {
		period = tracker.PeriodDaily
	}

	start, end := tracker.PeriodBounds(period, s.now())
	filter := tracker.ReportFilter{
		Provider:  q.Get("provider"),
		Project:   q.Get("project"),
		Owner:     q.Get("owner"),
		StartTime: start,
		EndTime:   end,
	}

	summary, err := s.tracker.Report(ctx, filter)
	if err != nil {
		s.logger.Error("aggregate usage", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	requestID := r.PathValue("requestID")
	attempts, err := s.tracker.Attempts(ctx, requestID)
	if err != nil {
		s.logger.Error("query attempts", "request_id", requestID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(attempts) == 0 {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, attempts)
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, _ *http.Request) {
	states := s.health.Snapshot()
	if states == nil {
		states = []health.State{}
	}
	writeJSON(w, states)
}

type modelInfo struct {
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	Category         string   `json:"category"`
	QualityTier      int      `json:"quality_tier"`
	ContextWindow    int      `json:"context_window"`
	Capabilities     []string `json:"capabilities"`
	InputPerMillion  float64  `json:"input_per_million,omitempty"`
	OutputPerMillion float64  `json:"output_per_million,omitempty"`
	FixedCost        float64  `json:"fixed_cost,omitempty"`
	Free             bool     `json:"free,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	models := s.catalog.Snapshot().Models()

	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		if provider != "" && m.Provider != provider {
			continue
		}
		out = append(out, modelInfo{
			Provider:         m.Provider,
			Model:            m.ID,
			Category:         string(m.Category),
			QualityTier:      m.QualityTier,
			ContextWindow:    m.ContextWindow,
			Capabilities:     m.CapabilityList(),
			InputPerMillion:  m.Pricing.InputPerMillion,
			OutputPerMillion: m.Pricing.OutputPerMillion,
			FixedCost:        m.Pricing.FixedCost,
			Free:             m.Free,
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
