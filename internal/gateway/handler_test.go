package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/internal/gateway"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/auth"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/executor"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubRouter records the request it was given and replays a fixed outcome.
type stubRouter struct {
	got *router.Request
	res *router.Result
	err error
}

func (s *stubRouter) Route(_ context.Context, req *router.Request) (*router.Result, error) {
	s.got = req
	return s.res, s.err
}

func okResult() *router.Result {
	return &router.Result{
		RequestID: "01HZX5V2K9Q0N8J4T6W3Y7B1CD",
		Response:  &transport.Response{ID: "chatcmpl-1", Content: "Hello!"},
		Provider:  "openai",
		Model:     "gpt-4o",
		Owner:     credentials.OwnerOperator,
		Usage:     pricing.Usage{InputTokens: 24, OutputTokens: 8},
		Cost:      pricing.CostResult{BaseCost: 0.00014, TotalCost: 0.000175, SurchargeApplied: true},
		Attempts:  []executor.Attempt{{Provider: "openai", Model: "gpt-4o", Outcome: executor.AttemptSuccess}},
	}
}

func post(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_ChatRoundTrip(t *testing.T) {
	stub := &stubRouter{res: okResult()}
	h := gateway.NewHandler(stub, "default", testLogger(), gateway.WithAnonymousOperator(true))

	w := post(t, h, "/v1/chat/completions", map[string]any{
		"model":    "auto",
		"messages": []map[string]string{{"role": "user", "content": "Hello"}},
		"routing": map[string]any{
			"strategy":     "cheap",
			"category":     "large",
			"capabilities": []string{"vision"},
			"max_cost":     0.01,
			"credentials":  []map[string]any{{"provider": "groq", "api_key": "gsk-user", "priority": 5}},
		},
	}, map[string]string{"X-LRG-Project": "docs"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.000175", w.Header().Get("X-LLM-Cost"))
	assert.Equal(t, "openai", w.Header().Get("X-LLM-Provider"))
	assert.Equal(t, "gpt-4o", w.Header().Get("X-LLM-Model"))
	assert.Equal(t, "operator", w.Header().Get("X-LLM-Owner"))
	assert.Equal(t, "01HZX5V2K9Q0N8J4T6W3Y7B1CD", w.Header().Get("X-LRG-Request-ID"))
	assert.Equal(t, "24", w.Header().Get("X-LLM-Input-Tokens"))
	assert.Equal(t, "1", w.Header().Get("X-LRG-Attempts"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "chat.completion", resp["object"])
	choice := resp["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "Hello!", choice["message"].(map[string]any)["content"])
	assert.Equal(t, "stop", choice["finish_reason"])
	assert.Equal(t, float64(32), resp["usage"].(map[string]any)["total_tokens"])

	got := stub.got
	require.NotNil(t, got)
	assert.Empty(t, got.RequestedModel)
	assert.Equal(t, selector.Cheap, got.Strategy)
	assert.Equal(t, catalog.CategoryLarge, got.Category)
	assert.Equal(t, []catalog.Capability{catalog.CapVision}, got.RequiredCapabilities)
	require.NotNil(t, got.MaxCost)
	assert.Equal(t, 0.01, *got.MaxCost)
	require.Len(t, got.Credentials, 1)
	assert.Equal(t, "groq", got.Credentials[0].Provider)
	assert.Equal(t, 5, got.Credentials[0].Priority)
	assert.True(t, got.AllowOperator)
	assert.Equal(t, "docs", got.Project)
	assert.Equal(t, transport.OpChat, got.Payload.Operation)
}

func TestHandler_Embeddings(t *testing.T) {
	res := okResult()
	res.Model = "text-embedding-3-small"
	res.Response = &transport.Response{Embeddings: [][]float32{{0.5, 0.25}, {1}}}
	stub := &stubRouter{res: res}
	h := gateway.NewHandler(stub, "default", testLogger())

	for _, input := range []any{"one string", []string{"a", "b"}} {
		w := post(t, h, "/v1/embeddings", map[string]any{"model": "text-embedding-3-small", "input": input}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text-embedding-3-small", stub.got.RequestedModel)
		assert.NotEmpty(t, stub.got.Payload.Input)

		var resp map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "list", resp["object"])
		assert.Len(t, resp["data"], 2)
	}

	w := post(t, h, "/v1/embeddings", map[string]any{"input": 42}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Images(t *testing.T) {
	res := okResult()
	res.Response = &transport.Response{Images: []transport.Image{{URL: "https://img/1"}}}
	stub := &stubRouter{res: res}
	h := gateway.NewHandler(stub, "default", testLogger())

	w := post(t, h, "/v1/images/generations", map[string]any{"prompt": "a gopher", "n": 1, "size": "1024x1024"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a gopher", stub.got.Payload.Prompt)
	assert.Equal(t, "1024x1024", stub.got.Payload.Size)
	assert.False(t, stub.got.AllowOperator)
	assert.Equal(t, "default", stub.got.Project)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "https://img/1", resp["data"].([]any)[0].(map[string]any)["url"])
}

func TestHandler_BadRequests(t *testing.T) {
	h := gateway.NewHandler(&stubRouter{res: okResult()}, "default", testLogger())

	tests := []struct {
		name string
		body any
	}{
		{"unknown strategy", map[string]any{"messages": []any{}, "routing": map[string]any{"strategy": "random"}}},
		{"unknown category", map[string]any{"routing": map[string]any{"category": "huge"}}},
		{"unknown capability", map[string]any{"routing": map[string]any{"capabilities": []string{"telepathy"}}}},
		{"negative context", map[string]any{"routing": map[string]any{"min_context_window": -1}}},
		{"streaming", map[string]any{"stream": true}},
		{"not an object", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, "/v1/chat/completions", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	authErr := transport.FromStatus("openai", "gpt-4o", 401, "invalid_api_key", "bad key")
	badReq := transport.FromStatus("openai", "gpt-4o", 400, "", "bad input")

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid", router.ErrInvalidRequest, http.StatusBadRequest, "invalid_request_error"},
		{"no candidate", executor.ErrNoEligibleCandidate, http.StatusUnprocessableEntity, "no_eligible_candidate"},
		{"exhausted", &executor.ExhaustedError{Last: errors.New("503")}, http.StatusBadGateway, "upstream_exhausted"},
		{"non-retryable auth", &executor.NonRetryableError{Err: authErr}, http.StatusUnauthorized, "upstream_authentication_error"},
		{"non-retryable", &executor.NonRetryableError{Err: badReq}, http.StatusBadRequest, "upstream_invalid_request"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"canceled", context.Canceled, http.StatusRequestTimeout, "canceled"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &router.Result{
				RequestID: "req-1",
				Attempts:  []executor.Attempt{{Provider: "openai", Outcome: executor.AttemptError}},
			}
			h := gateway.NewHandler(&stubRouter{res: res, err: tt.err}, "default", testLogger())
			w := post(t, h, "/v1/chat/completions", map[string]any{
				"messages": []map[string]string{{"role": "user", "content": "hi"}},
			}, nil)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "req-1", w.Header().Get("X-LRG-Request-ID"))
			assert.Empty(t, w.Header().Get("X-LLM-Cost"))

			var body struct {
				Error struct {
					Type     string             `json:"type"`
					Attempts []executor.Attempt `json:"attempts"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Error.Type)
			assert.Len(t, body.Error.Attempts, 1)
		})
	}
}

func TestHandler_Auth(t *testing.T) {
	issuer, err := auth.NewIssuer("test-secret", "lrg")
	require.NoError(t, err)

	stub := &stubRouter{res: okResult()}
	h := gateway.NewHandler(stub, "default", testLogger(),
		gateway.WithAuth(issuer),
		gateway.WithAnonymousOperator(true),
	)
	body := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}

	w := post(t, h, "/v1/chat/completions", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, stub.got)

	w = post(t, h, "/v1/chat/completions", body, map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userToken, err := issuer.Issue("alice", "search", false, time.Hour)
	require.NoError(t, err)
	w = post(t, h, "/v1/chat/completions", body, map[string]string{"Authorization": "Bearer " + userToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, stub.got.AllowOperator)
	assert.Equal(t, "search", stub.got.Project)

	opToken, err := issuer.Issue("svc", "", true, time.Hour)
	require.NoError(t, err)
	w = post(t, h, "/v1/chat/completions", body, map[string]string{"Authorization": "Bearer " + opToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.got.AllowOperator)
	assert.Equal(t, "default", stub.got.Project)
}

func TestHandler_CostHeadersDisabled(t *testing.T) {
	h := gateway.NewHandler(&stubRouter{res: okResult()}, "default", testLogger(), gateway.WithCostHeaders(false))
	w := post(t, h, "/v1/chat/completions", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-LLM-Cost"))
	assert.NotEmpty(t, w.Header().Get("X-LRG-Request-ID"))
}

// TestHandler_EndToEnd drives the real router and transport against a fake
// OpenAI-compatible upstream.
func TestHandler_EndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-user", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-test",
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 24, "completion_tokens": 8, "total_tokens": 32},
		})
	}))
	defer upstream.Close()

	logger := testLogger()
	snap, err := catalog.NewSnapshot(&catalog.Model{
		Provider: "openai", ID: "gpt-4o", Category: catalog.CategoryLarge, QualityTier: 8,
		ContextWindow: 128000, Capabilities: map[catalog.Capability]bool{catalog.CapChat: true},
		Pricing: catalog.Pricing{InputPerMillion: 2.50, OutputPerMillion: 10.00},
	})
	require.NoError(t, err)
	cat := catalog.New(snap, logger)

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	calc := pricing.NewCalculator(cat, pricing.DefaultSurchargePercent, 0, logger)
	ut := tracker.NewUsageTracker(store, calc, nil, logger)

	registry := transport.NewRegistry()
	require.NoError(t, registry.Register("openai", transport.NewOpenAI("openai", upstream.URL+"/v1")))

	h := health.NewTracker()
	rt := router.New(cat, nil, h, executor.New(registry, h, logger), calc, logger, router.WithTracker(ut))
	handler := gateway.NewHandler(rt, "default", logger)

	w := post(t, handler, "/v1/chat/completions", map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]string{{"role": "user", "content": "Hello"}},
		"routing": map[string]any{
			"credentials": []map[string]any{{"provider": "openai", "api_key": "sk-user"}},
		},
	}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "0.000000", w.Header().Get("X-LLM-Cost"))
	assert.Equal(t, "user", w.Header().Get("X-LLM-Owner"))

	records, err := ut.Query(context.Background(), model.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(24), records[0].InputTokens)
	assert.Equal(t, "user", records[0].Owner)
	assert.Equal(t, w.Header().Get("X-LRG-Request-ID"), records[0].RequestID)
}
