package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURLs lists providers that speak the OpenAI wire format.
var DefaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"together":   "https://api.together.xyz/v1",
	"cerebras":   "https://api.cerebras.ai/v1",
}

// OpenAI calls any OpenAI-compatible endpoint. A credential endpoint
// overrides the provider's base URL.
type OpenAI struct {
	provider   string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates a client for provider at baseURL.
func NewOpenAI(provider, baseURL string, opts ...Option) *OpenAI {
	o := buildOptions(opts)
	return &OpenAI{provider: provider, baseURL: baseURL, httpClient: o.httpClient}
}

func (c *OpenAI) client(cred credentials.Credential) *openai.Client {
	cfg := openai.DefaultConfig(cred.APIKey)
	cfg.BaseURL = c.baseURL
	if cred.Endpoint != "" {
		cfg.BaseURL = cred.Endpoint
	}
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

// Call performs a chat, embedding or image request.
func (c *OpenAI) Call(ctx context.Context, cred credentials.Credential, model string, req *Request) (*Response, error) {
	cl := c.client(cred)
	switch req.Operation {
	case OpEmbedding:
		return c.embed(ctx, cl, model, req)
	case OpImage:
		return c.image(ctx, cl, model, req)
	default:
		return c.chat(ctx, cl, model, req)
	}
}

func (c *OpenAI) chat(ctx context.Context, cl *openai.Client, model string, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	creq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = *req.Temperature
	}

	resp, err := cl.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, c.wrapError(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.provider, Model: model, Kind: KindServer, Message: "empty choices in response"}
	}

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: pricing.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (c *OpenAI) embed(ctx context.Context, cl *openai.Client, model string, req *Request) (*Response, error) {
	resp, err := cl.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: req.Input,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, c.wrapError(model, err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	return &Response{
		Model:      string(resp.Model),
		Embeddings: embeddings,
		Usage:      pricing.Usage{InputTokens: int64(resp.Usage.PromptTokens)},
	}, nil
}

func (c *OpenAI) image(ctx context.Context, cl *openai.Client, model string, req *Request) (*Response, error) {
	n := req.N
	if n < 1 {
		n = 1
	}
	resp, err := cl.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          model,
		N:              n,
		Size:           req.Size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, c.wrapError(model, err)
	}

	images := make([]Image, len(resp.Data))
	for i, d := range resp.Data {
		images[i] = Image{URL: d.URL, B64JSON: d.B64JSON}
	}

	return &Response{
		Model:  model,
		Images: images,
		Usage:  pricing.Usage{Units: int64(len(images))},
	}, nil
}

func (c *OpenAI) wrapError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if s, ok := apiErr.Code.(string); ok && s != "" {
			code = s
		}
		return FromStatus(c.provider, model, apiErr.HTTPStatusCode, code, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := FromStatus(c.provider, model, reqErr.HTTPStatusCode, "", "")
		pe.Err = reqErr.Err
		return pe
	}

	return wrapTransportError(c.provider, model, err)
}
