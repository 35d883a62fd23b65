package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/catalog"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/executor"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/metrics"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/selector"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tokenizer"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/tracker"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/transport"
	"github.com/oklog/ulid/v2"
)

// Router orchestrates routing. It is safe for concurrent use; all per-request
// state lives on the stack.
type Router struct {
	catalog        *catalog.Catalog
	operator       []credentials.Credential
	health         selector.HealthChecker
	executor       *executor.Executor
	calculator     *pricing.Calculator
	tracker        *tracker.UsageTracker
	metrics        *metrics.Metrics
	strategy       selector.Strategy
	denyOnExceeded bool
	logger         *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTracker persists usage records and attempt trails.
func WithTracker(t *tracker.UsageTracker) Option {
	return func(r *Router) { r.tracker = t }
}

// WithMetrics records request and cost metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithDefaultStrategy sets the strategy used when a request names none.
func WithDefaultStrategy(s selector.Strategy) Option {
	return func(r *Router) {
		if s != "" {
			r.strategy = s
		}
	}
}

// WithBudgetGate withholds operator credentials while any budget is
// exceeded. It needs a tracker.
func WithBudgetGate(enabled bool) Option {
	return func(r *Router) { r.denyOnExceeded = enabled }
}

// New creates a router. operator holds the configured operator credentials
// in their untagged form; the pool builder tags them per request.
func New(cat *catalog.Catalog, operator []credentials.Credential, h selector.HealthChecker, exec *executor.Executor, calc *pricing.Calculator, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		catalog:    cat,
		operator:   operator,
		health:     h,
		executor:   exec,
		calculator: calc,
		strategy:   selector.Balanced,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan returns the ranked candidates for req without calling any provider.
func (r *Router) Plan(ctx context.Context, req *Request) ([]selector.Candidate, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	pool := r.pool(ctx, req)
	return selector.Select(pool, r.catalog.Snapshot().Models(), r.health, requirements(req), r.strategyFor(req), r.calculator), nil
}

// Route serves req. The returned Result is non-nil whenever req is valid.
// Failures are the executor's typed errors, ErrInvalidRequest, or a
// cancellation error.
func (r *Router) Route(ctx context.Context, req *Request) (*Result, error) {
	if err := validate(req); err != nil {
		r.metrics.ObserveRequest(string(r.strategy), "invalid", 0)
		return nil, err
	}

	strategy := r.strategyFor(req)
	res := &Result{
		RequestID: ulid.Make().String(),
		Strategy:  strategy,
	}
	log := r.logger.With("request_id", res.RequestID)

	pool := r.pool(ctx, req)
	candidates := selector.Select(pool, r.catalog.Snapshot().Models(), r.health, requirements(req), strategy, r.calculator)
	res.Candidates = len(candidates)

	log.Debug("candidates selected",
		"strategy", strategy,
		"pool", len(pool),
		"candidates", len(candidates),
	)

	out, err := r.executor.Execute(ctx, candidates, req.Payload)
	res.Attempts = out.Attempts
	r.persistAttempts(ctx, res)

	if err != nil {
		r.metrics.ObserveRequest(string(strategy), resultLabel(err), len(candidates))
		log.Warn("routing failed",
			"strategy", strategy,
			"candidates", len(candidates),
			"attempts", len(res.Attempts),
			"error", err,
		)
		return res, err
	}

	c := out.Candidate
	res.Response = out.Response
	res.Provider = c.Model.Provider
	res.Model = c.Model.ID
	res.Owner = c.Credential.Owner
	res.CredentialID = c.Credential.ID
	res.Usage = billableUsage(req.Payload, out.Response)
	res.Cost = r.calculator.CalculateSafe(c.Model.Provider, c.Model.ID, res.Usage, c.Credential.Owner)

	r.metrics.ObserveRequest(string(strategy), "success", len(candidates))
	r.metrics.ObserveCost(res.Provider, string(res.Owner), res.Cost.TotalCost, res.Cost.Fallback)
	r.recordUsage(ctx, req, res)

	log.Info("request routed",
		"provider", res.Provider,
		"model", res.Model,
		"owner", res.Owner,
		"attempts", len(res.Attempts),
		"cost_usd", res.Cost.TotalCost,
	)
	return res, nil
}

func (r *Router) strategyFor(req *Request) selector.Strategy {
	if req.Strategy != "" {
		return req.Strategy
	}
	return r.strategy
}

// pool assembles the request's credential pool. Operator keys join only when
// the caller is entitled to them and no budget gate is closed.
func (r *Router) pool(ctx context.Context, req *Request) []credentials.Credential {
	var operator []credentials.Credential
	if req.AllowOperator && len(r.operator) > 0 {
		operator = r.operator
		if r.denyOnExceeded && r.tracker != nil {
			err := r.tracker.CheckBudget(ctx)
			switch {
			case errors.Is(err, tracker.ErrBudgetExceeded):
				r.logger.Warn("operator credentials withheld", "error", err)
				operator = nil
			case err != nil:
				r.logger.Error("budget check failed", "error", err)
			}
		}
	}
	return credentials.BuildPool(operator, req.Credentials, r.logger)
}

func validate(req *Request) error {
	if req == nil || req.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrInvalidRequest)
	}
	switch req.Payload.Operation {
	case transport.OpChat:
		if len(req.Payload.Messages) == 0 {
			return fmt.Errorf("%w: chat request has no messages", ErrInvalidRequest)
		}
	case transport.OpEmbedding:
		if len(req.Payload.Input) == 0 {
			return fmt.Errorf("%w: embedding request has no input", ErrInvalidRequest)
		}
	case transport.OpImage:
		if req.Payload.Prompt == "" {
			return fmt.Errorf("%w: image request has no prompt", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Payload.Operation)
	}
	if req.MaxCost != nil && *req.MaxCost < 0 {
		return fmt.Errorf("%w: negative max cost", ErrInvalidRequest)
	}
	return nil
}

// requirements derives selector constraints from the request. Chat prompts
// must fit the context window together with the requested output.
func requirements(req *Request) selector.Requirements {
	p := req.Payload
	caps := append([]catalog.Capability(nil), req.RequiredCapabilities...)
	if opCap := p.Operation.Capability(); !containsCap(caps, opCap) {
		caps = append(caps, opCap)
	}

	reqs := selector.Requirements{
		Category:              req.Category,
		MinContextWindow:      req.MinContextWindow,
		Capabilities:          caps,
		MaxCost:               req.MaxCost,
		RequestedModel:        req.RequestedModel,
		EstimatedOutputTokens: int64(p.MaxTokens),
	}

	switch p.Operation {
	case transport.OpChat:
		contents := make([]string, len(p.Messages))
		for i, m := range p.Messages {
			contents[i] = m.Content
		}
		reqs.EstimatedInputTokens = tokenizer.EstimateChat(contents)
		if need := int(reqs.EstimatedInputTokens) + p.MaxTokens; need > reqs.MinContextWindow {
			reqs.MinContextWindow = need
		}
	case transport.OpEmbedding:
		for _, in := range p.Input {
			reqs.EstimatedInputTokens += tokenizer.Estimate(in)
		}
	case transport.OpImage:
		reqs.Units = int64(max(p.N, 1))
	}
	return reqs
}

func containsCap(caps []catalog.Capability, c catalog.Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

// billableUsage returns the usage reported by the provider. Image calls are
// billed per generated image.
func billableUsage(req *transport.Request, resp *transport.Response) pricing.Usage {
	usage := resp.Usage
	if req.Operation == transport.OpImage && usage.Units == 0 {
		usage.Units = int64(len(resp.Images))
		if usage.Units == 0 {
			usage.Units = int64(max(req.N, 1))
		}
	}
	return usage
}

func (r *Router) persistAttempts(ctx context.Context, res *Result) {
	if r.tracker == nil || len(res.Attempts) == 0 {
		return
	}
	records := make([]model.AttemptRecord, len(res.Attempts))
	for i, a := range res.Attempts {
		records[i] = model.AttemptRecord{
			RequestID:    res.RequestID,
			Seq:          i,
			Provider:     a.Provider,
			Model:        a.Model,
			CredentialID: a.CredentialID,
			Owner:        string(a.Owner),
			Outcome:      string(a.Outcome),
			Skipped:      a.Skipped,
			Error:        a.Error,
			LatencyMS:    a.Latency.Milliseconds(),
			Timestamp:    a.StartedAt,
		}
	}
	// The request context may already be canceled; the audit trail is still
	// written.
	if err := r.tracker.RecordAttempts(context.WithoutCancel(ctx), records); err != nil {
		r.logger.Error("persist attempts failed", "request_id", res.RequestID, "error", err)
	}
}

func (r *Router) recordUsage(ctx context.Context, req *Request, res *Result) {
	if r.tracker == nil {
		return
	}
	var latency time.Duration
	if n := len(res.Attempts); n > 0 {
		latency = res.Attempts[n-1].Latency
	}
	record := &model.UsageRecord{
		RequestID:        res.RequestID,
		Provider:         res.Provider,
		Model:            res.Model,
		Owner:            string(res.Owner),
		CredentialID:     res.CredentialID,
		Strategy:         string(res.Strategy),
		InputTokens:      res.Usage.InputTokens,
		OutputTokens:     res.Usage.OutputTokens,
		Units:            res.Usage.Units,
		BaseCostUSD:      res.Cost.BaseCost,
		CostUSD:          res.Cost.TotalCost,
		SurchargeApplied: res.Cost.SurchargeApplied,
		CostFallback:     res.Cost.Fallback,
		Attempts:         len(res.Attempts),
		LatencyMS:        latency.Milliseconds(),
		Project:          req.Project,
	}
	if err := r.tracker.Record(context.WithoutCancel(ctx), record); err != nil {
		r.logger.Error("record usage failed", "request_id", res.RequestID, "error", err)
	}
}

func resultLabel(err error) string {
	var nonRetryable *executor.NonRetryableError
	var exhausted *executor.ExhaustedError
	switch {
	case errors.Is(err, executor.ErrNoEligibleCandidate):
		return "no_candidate"
	case errors.As(err, &nonRetryable):
		return "non_retryable"
	case errors.As(err, &exhausted):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
