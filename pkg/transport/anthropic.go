package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
)

const (
	// DefaultAnthropicURL is the Anthropic API base URL.
	DefaultAnthropicURL = "https://api.anthropic.com"

	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1024
)

// Anthropic calls the Messages API. Only chat is supported.
type Anthropic struct {
	baseURL    string
	httpClient *http.Client
}

// NewAnthropic creates a client for baseURL.
func NewAnthropic(baseURL string, opts ...Option) *Anthropic {
	o := buildOptions(opts)
	return &Anthropic{baseURL: strings.TrimRight(baseURL, "/"), httpClient: o.httpClient}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call performs a chat request.
func (c *Anthropic) Call(ctx context.Context, cred credentials.Credential, model string, req *Request) (*Response, error) {
	if req.Operation != "" && req.Operation != OpChat {
		return nil, &ProviderError{
			Provider: "anthropic",
			Model:    model,
			Kind:     KindUnsupported,
			Message:  fmt.Sprintf("operation %q is not supported", req.Operation),
		}
	}

	areq := anthropicRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if areq.MaxTokens <= 0 {
		areq.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		areq.Messages = append(areq.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	areq.System = strings.Join(system, "\n")

	body, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	baseURL := c.baseURL
	if cred.Endpoint != "" {
		baseURL = strings.TrimRight(cred.Endpoint, "/")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cred.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError("anthropic", model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError("anthropic", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, FromStatus("anthropic", model, resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}

	var aresp anthropicResponse
	if err := json.Unmarshal(respBody, &aresp); err != nil {
		return nil, &ProviderError{Provider: "anthropic", Model: model, Kind: KindServer, Message: "malformed response", Err: err}
	}

	var text strings.Builder
	for _, block := range aresp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		ID:           aresp.ID,
		Model:        aresp.Model,
		Content:      text.String(),
		FinishReason: aresp.StopReason,
		Usage: pricing.Usage{
			InputTokens:  aresp.Usage.InputTokens,
			OutputTokens: aresp.Usage.OutputTokens,
		},
	}, nil
}
