// Package metrics exposes routing counters and histograms to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lrg"

// Metrics groups the gateway's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Attempts       *prometheus.CounterVec
	AttemptLatency *prometheus.HistogramVec
	Candidates     prometheus.Histogram
	CostUSD        *prometheus.CounterVec
	Cooldowns      *prometheus.CounterVec
	CatalogReloads *prometheus.CounterVec
	CostFallbacks  prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Routed requests by strategy and result.",
		}, []string{"strategy", "result"}),

		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Provider attempts by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),

		AttemptLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),

		Candidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Number of ranked candidates per request.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),

		CostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Charged cost in USD by provider and owner.",
		}, []string{"provider", "owner"}),

		Cooldowns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Health cooldowns opened, by provider and outcome.",
		}, []string{"provider", "outcome"}),

		CatalogReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Catalog reloads by result.",
		}, []string{"result"}),

		CostFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_fallbacks_total",
			Help:      "Completed calls priced with the fallback cost.",
		}),
	}
}

// ObserveRequest counts a routed request.
func (m *Metrics) ObserveRequest(strategy, result string, candidates int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strategy, result).Inc()
	m.Candidates.Observe(float64(candidates))
}

// ObserveAttempt counts one provider attempt. Skipped attempts have no
// latency.
func (m *Metrics) ObserveAttempt(provider, model, outcome string, seconds float64, skipped bool) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(provider, model, outcome).Inc()
	if !skipped {
		m.AttemptLatency.WithLabelValues(provider).Observe(seconds)
	}
}

// ObserveCost adds a charged cost.
func (m *Metrics) ObserveCost(provider, owner string, usd float64, fallback bool) {
	if m == nil {
		return
	}
	m.CostUSD.WithLabelValues(provider, owner).Add(usd)
	if fallback {
		m.CostFallbacks.Inc()
	}
}

// ObserveCooldown counts a health failure that opened or extended a cooldown.
func (m *Metrics) ObserveCooldown(provider, outcome string) {
	if m == nil {
		return
	}
	m.Cooldowns.WithLabelValues(provider, outcome).Inc()
}

// ObserveCatalogReload counts a catalog reload attempt.
func (m *Metrics) ObserveCatalogReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.CatalogReloads.WithLabelValues(result).Inc()
}
