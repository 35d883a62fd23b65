package catalog

import (
	"fmt"
	"strings"
)

// Category is the coarse grouping used for first-pass filtering.
type Category string

const (
	CategorySmall     Category = "small"
	CategoryLarge     Category = "large"
	CategoryReasoning Category = "reasoning"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategorySmall, CategoryLarge, CategoryReasoning:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// Capability is a feature a model supports.
type Capability string

const (
	CapChat            Capability = "chat"
	CapVision          Capability = "vision"
	CapTools           Capability = "tools"
	CapJSONMode        Capability = "json_mode"
	CapStreaming       Capability = "streaming"
	CapReasoning       Capability = "reasoning"
	CapEmbedding       Capability = "embedding"
	CapImageGeneration Capability = "image_generation"
	CapTranscription   Capability = "transcription"
)

var knownCapabilities = map[Capability]bool{
	CapChat:            true,
	CapVision:          true,
	CapTools:           true,
	CapJSONMode:        true,
	CapStreaming:       true,
	CapReasoning:       true,
	CapEmbedding:       true,
	CapImageGeneration: true,
	CapTranscription:   true,
}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !knownCapabilities[c] {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// Pricing is either token based (per million tokens) or a fixed cost per unit.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	FixedCost        float64
}

// IsFixed reports whether the model is billed per unit rather than per token.
func (p Pricing) IsFixed() bool {
	return p.FixedCost > 0 && p.InputPerMillion == 0 && p.OutputPerMillion == 0
}

// Blended returns a single list-price figure used as a quality signal.
func (p Pricing) Blended() float64 {
	if p.IsFixed() {
		return p.FixedCost
	}
	return p.InputPerMillion + p.OutputPerMillion
}

// Model is a validated catalog entry. Models are read-only once loaded.
type Model struct {
	Provider        string
	ID              string
	Category        Category
	QualityTier     int
	ContextWindow   int
	MaxOutputTokens int
	Capabilities    map[Capability]bool
	LatencyMS       int
	Pricing         Pricing
	Free            bool
	Aliases         []string
}

// Key returns the provider-qualified model identifier.
func (m *Model) Key() string {
	return m.Provider + "/" + m.ID
}

// Has reports whether the model supports every given capability.
func (m *Model) Has(caps ...Capability) bool {
	for _, c := range caps {
		if !m.Capabilities[c] {
			return false
		}
	}
	return true
}

// CapabilityList returns the capabilities in a stable order.
func (m *Model) CapabilityList() []string {
	out := make([]string, 0, len(m.Capabilities))
	for _, c := range []Capability{
		CapChat, CapVision, CapTools, CapJSONMode, CapStreaming,
		CapReasoning, CapEmbedding, CapImageGeneration, CapTranscription,
	} {
		if m.Capabilities[c] {
			out = append(out, string(c))
		}
	}
	return out
}

// ModelEntry is the YAML shape of a single model.
type ModelEntry struct {
	Model            string   `yaml:"model"`
	Category         string   `yaml:"category"`
	QualityTier      int      `yaml:"quality_tier,omitempty"`
	ContextWindow    int      `yaml:"context_window"`
	MaxOutputTokens  int      `yaml:"max_output_tokens,omitempty"`
	Capabilities     []string `yaml:"capabilities"`
	LatencyMS        int      `yaml:"latency_ms,omitempty"`
	InputPerMillion  float64  `yaml:"input_per_million,omitempty"`
	OutputPerMillion float64  `yaml:"output_per_million,omitempty"`
	FixedCost        float64  `yaml:"fixed_cost,omitempty"`
	Free             bool     `yaml:"free,omitempty"`
	Aliases          []string `yaml:"aliases,omitempty"`
}

// ProviderFile holds YAML-loaded catalog data for a provider.
type ProviderFile struct {
	Provider  string       `yaml:"provider"`
	Updated   string       `yaml:"updated"`
	LatencyMS int          `yaml:"latency_ms,omitempty"`
	Models    []ModelEntry `yaml:"models"`
}
