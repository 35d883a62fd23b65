// Package selector turns a credential pool and the model catalog into a
// ranked list of candidates for a request.
package selector

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
)

// Strategy is the caller's optimisation goal.
type Strategy string

const (
	Cheap    Strategy = "cheap"
	Balanced Strategy = "balanced"
	Powerful Strategy = "powerful"
	Fastest  Strategy = "fastest"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Cheap, Balanced, Powerful, Fastest:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Requirements are the constraints a candidate must satisfy.
type Requirements struct {
	Category              catalog.Category // empty matches any category
	MinContextWindow      int
	Capabilities          []catalog.Capability
	MaxCost               *float64 // compared against the charged cost
	RequestedModel        string
	EstimatedInputTokens  int64
	EstimatedOutputTokens int64
	Units                 int64
}

// Score holds the values a candidate was ranked on. Tier is compared
// lexicographically and bounds the priority pass; Key orders within a tier.
type Score struct {
	Tier          [2]float64 `json:"tier"`
	Key           float64    `json:"key"`
	EstimatedCost float64    `json:"estimated_cost_usd"`
	ChargedCost   float64    `json:"charged_cost_usd"`
	Quality       float64    `json:"quality"`
	LatencyMS     int        `json:"latency_ms"`
}

// Candidate pairs a credential with a model that satisfies a request.
type Candidate struct {
	Credential credentials.Credential
	Model      *catalog.Model
	Score      Score
}

// ModelKey returns the health key for the candidate's model.
func (c Candidate) ModelKey() health.Key {
	return health.ModelKey(c.Model.Provider, c.Model.ID)
}

// ProviderKey returns the provider-wide health key.
func (c Candidate) ProviderKey() health.Key {
	return health.ProviderKey(c.Model.Provider)
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s)", c.Model.Key(), c.Credential.ID)
}

// HealthChecker reports whether a health key is usable.
type HealthChecker interface {
	IsAvailable(key health.Key) bool
}

// Estimator prices a prospective call for a given owner.
type Estimator interface {
	Estimate(m *catalog.Model, usage pricing.Usage, owner credentials.Owner) float64
}
