// Package pricing computes the billable cost of provider calls.
package pricing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
)

// DefaultSurchargePercent is the markup on operator-owned key usage.
const DefaultSurchargePercent = 25.0

// Usage holds the figures a call is billed on. Units counts non-token items
// such as generated images.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Units        int64 `json:"units,omitempty"`
}

// CostResult is the billable cost of one completed call.
type CostResult struct {
	BaseCost         float64 `json:"base_cost_usd"`
	SurchargeApplied bool    `json:"surcharge_applied"`
	TotalCost        float64 `json:"total_cost_usd"`
	Fallback         bool    `json:"fallback,omitempty"`
}

// Resolver maps a possibly aliased model id to its catalog entry.
type Resolver interface {
	Resolve(provider, id string) (*catalog.Model, error)
}

// Calculator applies the two-tier pricing policy: caller-owned keys pass
// through at zero cost, operator-owned keys pay list price plus surcharge.
type Calculator struct {
	resolver     Resolver
	surchargePct float64
	fallbackCost float64
	logger       *slog.Logger
}

// NewCalculator creates a calculator. A negative surcharge is treated as zero.
// fallbackCost is charged when pricing a completed operator call fails.
func NewCalculator(resolver Resolver, surchargePct, fallbackCost float64, logger *slog.Logger) *Calculator {
	if surchargePct < 0 {
		surchargePct = 0
	}
	if fallbackCost < 0 {
		fallbackCost = 0
	}
	return &Calculator{
		resolver:     resolver,
		surchargePct: surchargePct,
		fallbackCost: fallbackCost,
		logger:       logger,
	}
}

// SurchargePercent returns the configured markup.
func (c *Calculator) SurchargePercent() float64 {
	return c.surchargePct
}

// Calculate computes the cost of a call served by model. It depends only on
// its arguments.
func (c *Calculator) Calculate(m *catalog.Model, usage Usage, owner credentials.Owner) (CostResult, error) {
	if owner == credentials.OwnerUser {
		return CostResult{}, nil
	}
	if m == nil {
		return CostResult{}, errors.New("cost calculation: nil model")
	}

	base, err := BaseCost(m.Pricing, usage)
	if err != nil {
		return CostResult{}, fmt.Errorf("cost calculation for %s: %w", m.Key(), err)
	}

	return CostResult{
		BaseCost:         base,
		SurchargeApplied: c.surchargePct > 0,
		TotalCost:        base * (1 + c.surchargePct/100),
	}, nil
}

// CalculateFor resolves provider/modelID through the catalog, normalising
// aliases and free-tier variant names, then calculates the cost.
func (c *Calculator) CalculateFor(provider, modelID string, usage Usage, owner credentials.Owner) (CostResult, error) {
	if owner == credentials.OwnerUser {
		return CostResult{}, nil
	}

	m, err := c.resolver.Resolve(provider, modelID)
	if err != nil {
		return CostResult{}, fmt.Errorf("cost calculation: %w", err)
	}
	return c.Calculate(m, usage, owner)
}

// CalculateSafe never fails: if pricing errors, it logs and returns the
// configured fallback cost marked as such.
func (c *Calculator) CalculateSafe(provider, modelID string, usage Usage, owner credentials.Owner) CostResult {
	result, err := c.CalculateFor(provider, modelID, usage, owner)
	if err == nil {
		return result
	}

	c.logger.Warn("cost calculation failed, using fallback",
		"provider", provider,
		"model", modelID,
		"fallback_usd", c.fallbackCost,
		"error", err,
	)
	return CostResult{
		BaseCost:  c.fallbackCost,
		TotalCost: c.fallbackCost,
		Fallback:  true,
	}
}

// Estimate returns the charged cost of a prospective call. Pricing errors
// yield zero.
func (c *Calculator) Estimate(m *catalog.Model, usage Usage, owner credentials.Owner) float64 {
	result, err := c.Calculate(m, usage, owner)
	if err != nil {
		return 0
	}
	return result.TotalCost
}

// BaseCost computes the list-price cost of usage under p.
func BaseCost(p catalog.Pricing, usage Usage) (float64, error) {
	if usage.InputTokens < 0 || usage.OutputTokens < 0 || usage.Units < 0 {
		return 0, errors.New("usage must not be negative")
	}

	if p.IsFixed() {
		units := usage.Units
		if units < 1 {
			units = 1
		}
		return p.FixedCost * float64(units), nil
	}

	return float64(usage.InputTokens)*p.InputPerMillion/1_000_000 +
		float64(usage.OutputTokens)*p.OutputPerMillion/1_000_000, nil
}
