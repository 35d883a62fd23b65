package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies upstream failures.
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindRateLimit      ErrorKind = "rate_limit"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindUnsupported    ErrorKind = "unsupported"
	KindModelNotFound  ErrorKind = "model_not_found"
	KindServer         ErrorKind = "server_error"
	KindNetwork        ErrorKind = "network"
	KindUnknown        ErrorKind = "unknown"
)

// Scope is the breadth of a rate limit: one model or the whole provider.
type Scope int

const (
	ScopeModel Scope = iota
	ScopeProvider
)

// ProviderError is a classified upstream failure.
type ProviderError struct {
	Provider string
	Model    string
	Kind     ErrorKind
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another candidate might succeed where this one
// failed. Malformed requests, rejected credentials and unsupported
// operations fail the same way everywhere.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindAuth, KindInvalidRequest, KindUnsupported:
		return false
	default:
		return true
	}
}

// IsRateLimit reports whether the error should open a rate-limit cooldown.
func (e *ProviderError) IsRateLimit() bool {
	return e.Kind == KindRateLimit || e.Kind == KindQuotaExceeded
}

// Scope returns how widely a rate limit applies. Quota exhaustion covers the
// whole provider account.
func (e *ProviderError) Scope() Scope {
	if e.Kind == KindQuotaExceeded {
		return ScopeProvider
	}
	return ScopeModel
}

// FromStatus classifies an HTTP error status. code is the provider's
// machine-readable error type, when it sent one.
func FromStatus(provider, model string, status int, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Model:    model,
		Kind:     classifyStatus(status, code, message),
		Status:   status,
		Message:  message,
	}
}

func classifyStatus(status int, code, message string) ErrorKind {
	hint := strings.ToLower(code + " " + message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case status == http.StatusTooManyRequests:
		if strings.Contains(hint, "quota") || strings.Contains(hint, "billing") || strings.Contains(hint, "credit") {
			return KindQuotaExceeded
		}
		return KindRateLimit
	case status == http.StatusNotFound:
		return KindModelNotFound
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		if strings.Contains(hint, "model") && (strings.Contains(hint, "not found") || strings.Contains(hint, "does not exist") || strings.Contains(hint, "decommissioned")) {
			return KindModelNotFound
		}
		return KindInvalidRequest
	case status == 529: // Anthropic "overloaded"
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// wrapTransportError classifies an error that carried no HTTP status.
// Context errors are returned unchanged so callers can tell a deadline from
// a provider failure.
func wrapTransportError(provider, model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := KindUnknown
	var netErr net.Error
	if errors.As(err, &netErr) {
		kind = KindNetwork
	}
	return &ProviderError{Provider: provider, Model: model, Kind: kind, Err: err}
}
