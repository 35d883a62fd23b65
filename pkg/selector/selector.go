package selector

import (
	"sort"
	"strings"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
)

// defaultOutputTokens is assumed when a request gives no output estimate.
const defaultOutputTokens = 512

// defaultLatencyMS is the per-provider latency proxy used when a model has
// none of its own.
var defaultLatencyMS = map[string]int{
	"groq":       200,
	"cerebras":   250,
	"openai":     600,
	"google":     700,
	"mistral":    700,
	"anthropic":  800,
	"deepseek":   900,
	"openrouter": 900,
	"together":   900,
}

const fallbackLatencyMS = 1000

// Select filters the credential × catalog cross product by req and returns
// the survivors ordered by strategy, then by credential priority within each
// strategy tier. An empty result means no eligible candidate.
func Select(pool []credentials.Credential, models []*catalog.Model, h HealthChecker, req Requirements, strategy Strategy, est Estimator) []Candidate {
	eligible := eligibleModels(models, req)
	if len(eligible) == 0 || len(pool) == 0 {
		return nil
	}

	var candidates []Candidate
	for _, cred := range pool {
		for _, m := range eligible {
			if cred.Provider != m.Provider || !cred.Allows(m.ID) {
				continue
			}
			c := Candidate{Credential: cred, Model: m}
			if !h.IsAvailable(c.ModelKey()) || !h.IsAvailable(c.ProviderKey()) {
				continue
			}

			usage := usageFor(m, req)
			c.Score.ChargedCost = est.Estimate(m, usage, cred.Owner)
			if req.MaxCost != nil && c.Score.ChargedCost > *req.MaxCost {
				continue
			}

			c.Score.EstimatedCost, _ = pricing.BaseCost(m.Pricing, usage)
			c.Score.Quality = quality(m)
			c.Score.LatencyMS = latency(m)
			c.Score.Tier, c.Score.Key = rank(strategy, c.Score, m)
			candidates = append(candidates, c)
		}
	}

	Order(candidates)
	return candidates
}

// Order sorts candidates by (tier, key), then applies a stable priority pass
// that never moves a candidate across a tier boundary.
func Order(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Score, candidates[j].Score
		if a.Tier != b.Tier {
			return tierLess(a.Tier, b.Tier)
		}
		return a.Key < b.Key
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score.Tier != b.Score.Tier {
			return tierLess(a.Score.Tier, b.Score.Tier)
		}
		return a.Credential.Priority < b.Credential.Priority
	})
}

func tierLess(a, b [2]float64) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

// rank maps a candidate to its strategy tier and in-tier key.
func rank(strategy Strategy, s Score, m *catalog.Model) ([2]float64, float64) {
	switch strategy {
	case Cheap:
		tier := 1.0
		if m.Free {
			tier = 0
		}
		return [2]float64{tier, 0}, s.EstimatedCost
	case Powerful:
		return [2]float64{-float64(m.QualityTier), -m.Pricing.Blended()}, 0
	case Fastest:
		return [2]float64{float64(s.LatencyMS), 0}, 0
	default:
		return [2]float64{s.EstimatedCost / s.Quality, 0}, 0
	}
}

// quality is the capability signal used by the balanced ratio.
func quality(m *catalog.Model) float64 {
	if m.QualityTier > 0 {
		return float64(m.QualityTier)
	}
	return 1
}

func latency(m *catalog.Model) int {
	if m.LatencyMS > 0 {
		return m.LatencyMS
	}
	if ms, ok := defaultLatencyMS[m.Provider]; ok {
		return ms
	}
	return fallbackLatencyMS
}

func usageFor(m *catalog.Model, req Requirements) pricing.Usage {
	out := req.EstimatedOutputTokens
	if out <= 0 {
		out = defaultOutputTokens
		if m.MaxOutputTokens > 0 && int64(m.MaxOutputTokens) < out {
			out = int64(m.MaxOutputTokens)
		}
	}
	return pricing.Usage{
		InputTokens:  req.EstimatedInputTokens,
		OutputTokens: out,
		Units:        req.Units,
	}
}

// eligibleModels applies the credential-independent filters.
func eligibleModels(models []*catalog.Model, req Requirements) []*catalog.Model {
	var out []*catalog.Model
	for _, m := range models {
		if req.Category != "" && m.Category != req.Category {
			continue
		}
		if m.ContextWindow < req.MinContextWindow {
			continue
		}
		if !m.Has(req.Capabilities...) {
			continue
		}
		if req.RequestedModel != "" && !MatchesModel(m, req.RequestedModel) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MatchesModel reports whether id names m, directly, through an alias, with a
// provider prefix, or as a free-tier variant.
func MatchesModel(m *catalog.Model, id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.TrimPrefix(id, m.Provider+"/")
	if matchesName(m, id) {
		return true
	}
	for _, suffix := range []string{":free", "-free"} {
		if trimmed, ok := strings.CutSuffix(id, suffix); ok && matchesName(m, trimmed) {
			return true
		}
	}
	return false
}

func matchesName(m *catalog.Model, id string) bool {
	if strings.EqualFold(m.ID, id) {
		return true
	}
	for _, alias := range m.Aliases {
		if strings.EqualFold(alias, id) {
			return true
		}
	}
	return false
}
