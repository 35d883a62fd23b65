// Package tracker records routed usage and routing attempts and keeps
// operator budgets current.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/credentials"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/pricing"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
)

// UsageTracker is the main entry point for recording and querying usage.
type UsageTracker struct {
	storage    storage.Storage
	calculator *pricing.Calculator
	budget     *BudgetManager
	logger     *slog.Logger
}

// NewUsageTracker creates a usage tracker with the given dependencies.
func NewUsageTracker(store storage.Storage, calculator *pricing.Calculator, budget *BudgetManager, logger *slog.Logger) *UsageTracker {
	return &UsageTracker{
		storage:    store,
		calculator: calculator,
		budget:     budget,
		logger:     logger,
	}
}

// Record persists a priced usage record from a routed call. Operator spend is
// charged against budgets; caller-owned usage never is.
func (t *UsageTracker) Record(ctx context.Context, record *UsageRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	if err := t.storage.RecordUsage(ctx, record); err != nil {
		return fmt.Errorf("store usage: %w", err)
	}

	t.logger.Info("usage recorded",
		"request_id", record.RequestID,
		"provider", record.Provider,
		"model", record.Model,
		"owner", record.Owner,
		"input_tokens", record.InputTokens,
		"output_tokens", record.OutputTokens,
		"cost_usd", record.CostUSD,
		"project", record.Project,
	)

	if t.budget != nil && record.Owner == string(credentials.OwnerOperator) && record.CostUSD > 0 {
		if err := t.budget.RecordSpend(ctx, record.CostUSD); err != nil {
			t.logger.Error("budget check failed", "error", err)
		}
	}
	return nil
}

// Track records a usage event reported outside the gateway. It is priced as
// operator spend through the catalog.
func (t *UsageTracker) Track(ctx context.Context, provider, model string, inputTokens, outputTokens int64, project string) (*UsageRecord, error) {
	usage := pricing.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}
	cost, err := t.calculator.CalculateFor(provider, model, usage, credentials.OwnerOperator)
	if err != nil {
		return nil, fmt.Errorf("calculate cost: %w", err)
	}

	record := &UsageRecord{
		Provider:         provider,
		Model:            model,
		Owner:            string(credentials.OwnerOperator),
		InputTokens:      inputTokens,
		OutputTokens:     outputTokens,
		BaseCostUSD:      cost.BaseCost,
		CostUSD:          cost.TotalCost,
		SurchargeApplied: cost.SurchargeApplied,
		Project:          project,
	}
	if err := t.Record(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordAttempts persists the attempt trail of one routed request.
func (t *UsageTracker) RecordAttempts(ctx context.Context, attempts []AttemptRecord) error {
	for i := range attempts {
		if attempts[i].ID == "" {
			attempts[i].ID = uuid.New().String()
		}
	}
	if err := t.storage.RecordAttempts(ctx, attempts); err != nil {
		return fmt.Errorf("store attempts: %w", err)
	}
	return nil
}

// Attempts returns the stored attempt trail for a request, in order.
func (t *UsageTracker) Attempts(ctx context.Context, requestID string) ([]AttemptRecord, error) {
	return t.storage.QueryAttempts(ctx, requestID)
}

// Report generates a usage summary for the given filter.
func (t *UsageTracker) Report(ctx context.Context, filter ReportFilter) (*UsageSummary, error) {
	return t.storage.AggregateUsage(ctx, filter)
}

// Query returns individual usage records for the given filter.
func (t *UsageTracker) Query(ctx context.Context, filter ReportFilter) ([]UsageRecord, error) {
	return t.storage.QueryUsage(ctx, filter)
}

// CheckBudget returns an error wrapping ErrBudgetExceeded if any budget is
// exhausted.
func (t *UsageTracker) CheckBudget(ctx context.Context) error {
	if t.budget == nil {
		return nil
	}
	return t.budget.CheckAll(ctx)
}
