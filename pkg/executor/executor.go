// Package executor walks a ranked candidate list until one provider call
// succeeds, feeding every outcome back into provider health.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/health"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/ratelimit"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
)

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 60 * time.Second

// Caller performs one upstream call.
type Caller interface {
	Call(ctx context.Context, cred credentials.Credential, model string, req *transport.Request) (*transport.Response, error)
}

// HealthRecorder is the subset of the health tracker the executor uses.
// Availability is checked at selection time only; cooldowns opened during a
// chain do not remove later candidates from it.
type HealthRecorder interface {
	RecordOutcome(key health.Key, outcome health.Outcome, cause error)
}

// Result is the outcome of Execute. Attempts is populated on success and on
// failure.
type Result struct {
	Candidate selector.Candidate
	Response  *transport.Response
	Attempts  []Attempt
}

// Executor runs fallback chains.
type Executor struct {
	caller         Caller
	health         HealthRecorder
	limiter        ratelimit.Limiter
	attemptTimeout time.Duration
	observer       func(Attempt)
	logger         *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLimiter enforces credential rate-limit overrides.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithAttemptTimeout bounds each provider call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithObserver registers a callback invoked for every attempt.
func WithObserver(fn func(Attempt)) Option {
	return func(e *Executor) { e.observer = fn }
}

// New creates an executor.
func New(caller Caller, h HealthRecorder, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		caller:         caller,
		health:         h,
		limiter:        ratelimit.Unlimited{},
		attemptTimeout: DefaultAttemptTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute tries candidates in order and returns the first success.
//
// Rate limits and transient errors move on to the next candidate without
// delay. Non-retryable errors and cancellation of ctx stop the chain.
func (e *Executor) Execute(ctx context.Context, candidates []selector.Candidate, req *transport.Request) (*Result, error) {
	res := &Result{}
	if len(candidates) == 0 {
		return res, ErrNoEligibleCandidate
	}

	// last is the most recent provider failure; skipped is reported only
	// when no candidate reached a provider.
	var last, skipped error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("routing canceled after %d attempts: %w", len(res.Attempts), err)
		}

		if !e.admit(ctx, c) {
			skipped = fmt.Errorf("%s: %w", c, errCandidateRateLimited)
			e.skip(res, c, skipped)
			continue
		}

		attempt := newAttempt(c)
		resp, err := e.call(ctx, c, req)
		attempt.Latency = time.Since(attempt.StartedAt)

		if err == nil {
			e.health.RecordOutcome(c.ModelKey(), health.Success, nil)
			attempt.Outcome = AttemptSuccess
			e.record(res, attempt)
			res.Candidate = c
			res.Response = resp
			return res, nil
		}

		attempt.Error = err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			attempt.Outcome = AttemptCanceled
			e.record(res, attempt)
			return res, fmt.Errorf("routing canceled after %d attempts: %w", len(res.Attempts), ctxErr)
		}

		var pe *transport.ProviderError
		isProviderErr := errors.As(err, &pe)
		switch {
		case isProviderErr && !pe.Retryable():
			attempt.Outcome = AttemptNonRetryable
			e.record(res, attempt)
			e.logger.Warn("non-retryable provider error",
				"provider", c.Model.Provider,
				"model", c.Model.ID,
				"kind", pe.Kind,
				"error", err,
			)
			return res, &NonRetryableError{Attempts: res.Attempts, Err: err}

		case isProviderErr && pe.IsRateLimit():
			key := c.ModelKey()
			if pe.Scope() == transport.ScopeProvider {
				key = c.ProviderKey()
			}
			e.health.RecordOutcome(key, health.RateLimited, err)
			attempt.Outcome = AttemptRateLimited

		default:
			e.health.RecordOutcome(c.ModelKey(), health.Error, err)
			attempt.Outcome = AttemptError
		}

		e.record(res, attempt)
		e.logger.Warn("candidate failed, falling back",
			"provider", c.Model.Provider,
			"model", c.Model.ID,
			"credential", c.Credential.ID,
			"outcome", attempt.Outcome,
			"error", err,
		)
		last = err
	}

	if last == nil {
		last = skipped
	}
	return res, &ExhaustedError{Attempts: res.Attempts, Last: last}
}

func (e *Executor) call(ctx context.Context, c selector.Candidate, req *transport.Request) (*transport.Response, error) {
	actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	e.logger.Debug("calling provider",
		"provider", c.Model.Provider,
		"model", c.Model.ID,
		"credential", c.Credential.ID,
	)
	return e.caller.Call(actx, c.Credential, c.Model.ID, req)
}

// admit consults the limiter for credentials with a rate-limit override.
// A limiter backend failure admits the request.
func (e *Executor) admit(ctx context.Context, c selector.Candidate) bool {
	if c.Credential.RateLimitOverride <= 0 {
		return true
	}
	key := c.Credential.Provider + ":" + c.Credential.Fingerprint()
	ok, err := e.limiter.Allow(ctx, key, c.Credential.RateLimitOverride)
	if err != nil {
		e.logger.Warn("rate limiter unavailable, admitting request", "credential", c.Credential.ID, "error", err)
		return true
	}
	return ok
}

func (e *Executor) skip(res *Result, c selector.Candidate, reason error) {
	a := newAttempt(c)
	a.Outcome = AttemptRateLimited
	a.Skipped = true
	a.Error = reason.Error()
	e.record(res, a)
	e.logger.Debug("skipping candidate", "candidate", c.String(), "reason", reason)
}

func (e *Executor) record(res *Result, a Attempt) {
	res.Attempts = append(res.Attempts, a)
	if e.observer != nil {
		e.observer(a)
	}
}

func newAttempt(c selector.Candidate) Attempt {
	return Attempt{
		Provider:     c.Model.Provider,
		Model:        c.Model.ID,
		CredentialID: c.Credential.ID,
		Owner:        c.Credential.Owner,
		StartedAt:    time.Now().UTC(),
	}
}
