// Package router runs one gateway request end to end: it builds the
// credential pool, ranks candidates, executes the fallback chain, prices the
// winning call and records usage.
package router

import (
	"errors"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/executor"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
)

// ErrInvalidRequest is returned for requests that cannot be routed at all.
var ErrInvalidRequest = errors.New("invalid routing request")

// Request is one inbound routing request.
type Request struct {
	RequiredCapabilities []catalog.Capability
	MinContextWindow     int
	Category             catalog.Category
	Strategy             selector.Strategy // empty uses the router default
	MaxCost              *float64
	RequestedModel       string

	// Credentials are caller-supplied keys. They are always owned by the
	// caller and never charged.
	Credentials []credentials.Credential

	// AllowOperator admits the operator's configured keys into the pool.
	AllowOperator bool

	Project string
	Payload *transport.Request
}

// Result describes a routed request. It is returned on failure too, carrying
// the request ID and whatever attempts were made.
type Result struct {
	RequestID    string              `json:"request_id"`
	Response     *transport.Response `json:"response,omitempty"`
	Provider     string              `json:"provider,omitempty"`
	Model        string              `json:"model,omitempty"`
	Owner        credentials.Owner   `json:"owner,omitempty"`
	CredentialID string              `json:"credential_id,omitempty"`
	Usage        pricing.Usage       `json:"usage"`
	Cost         pricing.CostResult  `json:"cost"`
	Strategy     selector.Strategy   `json:"strategy"`
	Candidates   int                 `json:"candidates"`
	Attempts     []executor.Attempt  `json:"attempts"`
}
