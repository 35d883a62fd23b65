package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
)

// ErrNoEligibleCandidate means selection produced nothing to try.
var ErrNoEligibleCandidate = errors.New("no eligible candidate")

var errCandidateRateLimited = errors.New("credential request rate limit reached")

// AttemptOutcome is how one attempt ended.
type AttemptOutcome string

const (
	AttemptSuccess      AttemptOutcome = "success"
	AttemptRateLimited  AttemptOutcome = "rate_limited"
	AttemptError        AttemptOutcome = "error"
	AttemptNonRetryable AttemptOutcome = "non_retryable"
	AttemptCanceled     AttemptOutcome = "canceled"
)

// Attempt records one step of the fallback chain. Skipped attempts never
// reached the provider.
type Attempt struct {
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	CredentialID string            `json:"credential_id"`
	Owner        credentials.Owner `json:"owner"`
	Outcome      AttemptOutcome    `json:"outcome"`
	Skipped      bool              `json:"skipped,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Latency      time.Duration     `json:"latency"`
}

// NonRetryableError stops the chain: the request would fail the same way on
// every candidate.
type NonRetryableError struct {
	Attempts []Attempt
	Err      error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable failure: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// ExhaustedError means every candidate was tried or skipped without success.
// Last is the final provider error, or the skip reason when no candidate
// reached a provider.
type ExhaustedError struct {
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d candidates failed, last error: %v", len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
