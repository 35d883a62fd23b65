// Package transport sends routed requests to upstream LLM providers.
package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
)

// Operation is the kind of work a request asks for.
type Operation string

const (
	OpChat      Operation = "chat"
	OpEmbedding Operation = "embedding"
	OpImage     Operation = "image"
)

// Capability returns the catalog capability an operation requires.
func (o Operation) Capability() catalog.Capability {
	switch o {
	case OpEmbedding:
		return catalog.CapEmbedding
	case OpImage:
		return catalog.CapImageGeneration
	default:
		return catalog.CapChat
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider-neutral payload the executor hands to a client.
type Request struct {
	Operation   Operation `json:"operation"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	Input       []string  `json:"input,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	N           int       `json:"n,omitempty"`
	Size        string    `json:"size,omitempty"`
}

// Text concatenates every piece of input text, for token estimation.
func (r *Request) Text() string {
	var b strings.Builder
	for _, m := range r.Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	for _, in := range r.Input {
		b.WriteString(in)
		b.WriteString("\n")
	}
	b.WriteString(r.Prompt)
	return b.String()
}

// Image is one generated image.
type Image struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// Response is the provider-neutral result of a successful call.
type Response struct {
	ID           string        `json:"id"`
	Model        string        `json:"model"`
	Content      string        `json:"content,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Embeddings   [][]float32   `json:"embeddings,omitempty"`
	Images       []Image       `json:"images,omitempty"`
	Usage        pricing.Usage `json:"usage"`
}

// Client performs one upstream call with one credential.
type Client interface {
	Call(ctx context.Context, cred credentials.Credential, model string, req *Request) (*Response, error)
}

// Registry dispatches calls to the client registered for the credential's
// provider.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client for provider.
func (r *Registry) Register(provider string, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[provider]; exists {
		return fmt.Errorf("provider %q already registered", provider)
	}
	r.clients[provider] = c
	return nil
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call dispatches to the client for cred.Provider.
func (r *Registry) Call(ctx context.Context, cred credentials.Credential, model string, req *Request) (*Response, error) {
	r.mu.RLock()
	c, ok := r.clients[cred.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, &ProviderError{
			Provider: cred.Provider,
			Model:    model,
			Kind:     KindUnsupported,
			Message:  "no client registered for provider",
		}
	}
	return c.Call(ctx, cred, model, req)
}

// NewDefaultRegistry registers the OpenAI-compatible client for every known
// compatible provider, plus the Anthropic client.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry()
	for provider, baseURL := range DefaultBaseURLs {
		_ = r.Register(provider, NewOpenAI(provider, baseURL, opts...))
	}
	_ = r.Register("anthropic", NewAnthropic(DefaultAnthropicURL, opts...))
	return r
}
