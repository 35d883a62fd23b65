package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
)

// autoModel lets the router pick any model.
const autoModel = "auto"

// routingOptions is the "routing" extension object accepted on every
// OpenAI-compatible endpoint.
type routingOptions struct {
	Strategy         string              `json:"strategy,omitempty"`
	Category         string              `json:"category,omitempty"`
	Capabilities     []string            `json:"capabilities,omitempty"`
	MinContextWindow int                 `json:"min_context_window,omitempty"`
	MaxCost          *float64            `json:"max_cost,omitempty"`
	Credentials      []credentials.Entry `json:"credentials,omitempty"`
	Project          string              `json:"project,omitempty"`
}

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []transport.Message `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float32            `json:"temperature,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	Routing     *routingOptions     `json:"routing,omitempty"`
}

type embeddingRequest struct {
	Model   string          `json:"model"`
	Input   json.RawMessage `json:"input"`
	Routing *routingOptions `json:"routing,omitempty"`
}

type imageRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	N       int             `json:"n,omitempty"`
	Size    string          `json:"size,omitempty"`
	Routing *routingOptions `json:"routing,omitempty"`
}

// ExtractChat parses a /v1/chat/completions body.
func ExtractChat(body []byte) (*router.Request, error) {
	var in chatRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("decode chat request: %w", err)
	}
	if in.Stream {
		return nil, fmt.Errorf("streaming is not supported")
	}
	return build(in.Model, in.Routing, &transport.Request{
		Operation:   transport.OpChat,
		Messages:    in.Messages,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
}

// ExtractEmbedding parses a /v1/embeddings body. Input may be a string or an
// array of strings.
func ExtractEmbedding(body []byte) (*router.Request, error) {
	var in embeddingRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("decode embedding request: %w", err)
	}

	var inputs []string
	if len(in.Input) > 0 {
		var single string
		if err := json.Unmarshal(in.Input, &single); err == nil {
			inputs = []string{single}
		} else if err := json.Unmarshal(in.Input, &inputs); err != nil {
			return nil, fmt.Errorf("input must be a string or an array of strings")
		}
	}

	return build(in.Model, in.Routing, &transport.Request{
		Operation: transport.OpEmbedding,
		Input:     inputs,
	})
}

// ExtractImage parses a /v1/images/generations body.
func ExtractImage(body []byte) (*router.Request, error) {
	var in imageRequest
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("decode image request: %w", err)
	}
	return build(in.Model, in.Routing, &transport.Request{
		Operation: transport.OpImage,
		Prompt:    in.Prompt,
		N:         in.N,
		Size:      in.Size,
	})
}

func build(modelID string, opts *routingOptions, payload *transport.Request) (*router.Request, error) {
	req := &router.Request{Payload: payload}
	if m := strings.TrimSpace(modelID); m != "" && !strings.EqualFold(m, autoModel) {
		req.RequestedModel = m
	}
	if opts == nil {
		return req, nil
	}

	if opts.Strategy != "" {
		s, err := selector.ParseStrategy(opts.Strategy)
		if err != nil {
			return nil, err
		}
		req.Strategy = s
	}
	if opts.Category != "" {
		c, err := catalog.ParseCategory(opts.Category)
		if err != nil {
			return nil, err
		}
		req.Category = c
	}
	for _, name := range opts.Capabilities {
		c, err := catalog.ParseCapability(name)
		if err != nil {
			return nil, err
		}
		req.RequiredCapabilities = append(req.RequiredCapabilities, c)
	}
	if opts.MinContextWindow < 0 {
		return nil, fmt.Errorf("min_context_window must not be negative")
	}
	req.MinContextWindow = opts.MinContextWindow
	req.MaxCost = opts.MaxCost
	req.Credentials = credentials.FromEntries(opts.Credentials)
	req.Project = opts.Project
	return req, nil
}
