// Package gateway serves the OpenAI-compatible HTTP surface and hands each
// request to the router.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/auth"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/executor"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/router"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
)

const maxBodyBytes = 10 << 20

// Router is the routing engine behind the gateway.
type Router interface {
	Route(ctx context.Context, req *router.Request) (*router.Result, error)
}

// Handler serves /v1/chat/completions, /v1/embeddings and
// /v1/images/generations.
type Handler struct {
	router         Router
	issuer         *auth.Issuer
	anonOperator   bool
	defaultProject string
	addHeaders     bool
	logger         *slog.Logger
	mux            *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuth requires a bearer token issued by issuer. The token's claims
// decide whether operator keys may be used.
func WithAuth(issuer *auth.Issuer) Option {
	return func(h *Handler) { h.issuer = issuer }
}

// WithAnonymousOperator lets unauthenticated callers use operator keys. It
// only applies when auth is disabled.
func WithAnonymousOperator(allow bool) Option {
	return func(h *Handler) { h.anonOperator = allow }
}

// WithCostHeaders toggles the X-LLM-* response headers.
func WithCostHeaders(enabled bool) Option {
	return func(h *Handler) { h.addHeaders = enabled }
}

// NewHandler creates a gateway handler.
func NewHandler(r Router, defaultProject string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		router:         r,
		defaultProject: defaultProject,
		addHeaders:     true,
		logger:         logger,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.mux.HandleFunc("POST /v1/chat/completions", h.serve(ExtractChat, writeChat))
	h.mux.HandleFunc("POST /v1/embeddings", h.serve(ExtractEmbedding, writeEmbedding))
	h.mux.HandleFunc("POST /v1/images/generations", h.serve(ExtractImage, writeImage))
	return h
}

// ServeHTTP handles gateway requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type extractFunc func([]byte) (*router.Request, error)

type writeFunc func(http.ResponseWriter, *router.Result)

func (h *Handler) serve(extract extractFunc, write writeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		claims, err := h.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication_error", err.Error(), nil)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body", nil)
			return
		}

		req, err := extract(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), nil)
			return
		}

		req.AllowOperator = h.anonOperator
		if claims != nil {
			req.AllowOperator = claims.OperatorKeys
			if req.Project == "" {
				req.Project = claims.Project
			}
		}
		if p := r.Header.Get("X-LRG-Project"); p != "" {
			req.Project = p
		}
		if req.Project == "" {
			req.Project = h.defaultProject
		}

		res, err := h.router.Route(r.Context(), req)
		if res != nil && res.RequestID != "" {
			w.Header().Set("X-LRG-Request-ID", res.RequestID)
		}
		if err != nil {
			h.writeRouteError(w, res, err)
			return
		}

		if h.addHeaders {
			w.Header().Set("X-LLM-Cost", fmt.Sprintf("%.6f", res.Cost.TotalCost))
			w.Header().Set("X-LLM-Provider", res.Provider)
			w.Header().Set("X-LLM-Model", res.Model)
			w.Header().Set("X-LLM-Owner", string(res.Owner))
			w.Header().Set("X-LLM-Input-Tokens", strconv.FormatInt(res.Usage.InputTokens, 10))
			w.Header().Set("X-LLM-Output-Tokens", strconv.FormatInt(res.Usage.OutputTokens, 10))
			w.Header().Set("X-LRG-Attempts", strconv.Itoa(len(res.Attempts)))
			w.Header().Set("X-LRG-Latency", time.Since(start).String())
		}
		write(w, res)
	}
}

func (h *Handler) authenticate(r *http.Request) (*auth.Claims, error) {
	if h.issuer == nil {
		return nil, nil
	}
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return h.issuer.Parse(strings.TrimSpace(token))
}

func (h *Handler) writeRouteError(w http.ResponseWriter, res *router.Result, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("route failed", "status", status, "error", err)
	}
	var attempts []executor.Attempt
	if res != nil {
		attempts = res.Attempts
	}
	writeError(w, status, kind, err.Error(), attempts)
}

// statusFor maps routing failures onto HTTP statuses.
func statusFor(err error) (int, string) {
	var nonRetryable *executor.NonRetryableError
	var exhausted *executor.ExhaustedError
	var pe *transport.ProviderError

	switch {
	case errors.Is(err, router.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, executor.ErrNoEligibleCandidate):
		return http.StatusUnprocessableEntity, "no_eligible_candidate"
	case errors.As(err, &nonRetryable):
		if errors.As(err, &pe) && pe.Kind == transport.KindAuth {
			return http.StatusUnauthorized, "upstream_authentication_error"
		}
		return http.StatusBadRequest, "upstream_invalid_request"
	case errors.As(err, &exhausted):
		return http.StatusBadGateway, "upstream_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type errorBody struct {
	Error struct {
		Message  string             `json:"message"`
		Type     string             `json:"type"`
		Attempts []executor.Attempt `json:"attempts,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, message string, attempts []executor.Attempt) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = kind
	body.Error.Attempts = attempts
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
