// Package storage persists usage, routing attempts and budgets.
package storage

import (
	"context"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"
)

// Storage defines the persistence layer.
type Storage interface {
	// RecordUsage persists a single usage record.
	RecordUsage(ctx context.Context, record *model.UsageRecord) error

	// QueryUsage retrieves usage records matching the given filter.
	QueryUsage(ctx context.Context, filter model.ReportFilter) ([]model.UsageRecord, error)

	// AggregateUsage returns totals for the given filter.
	AggregateUsage(ctx context.Context, filter model.ReportFilter) (*model.UsageSummary, error)

	// RecordAttempts persists the fallback chain of one request.
	RecordAttempts(ctx context.Context, attempts []model.AttemptRecord) error

	// QueryAttempts returns the attempts of a request in order.
	QueryAttempts(ctx context.Context, requestID string) ([]model.AttemptRecord, error)

	// SetBudget creates or updates a budget.
	SetBudget(ctx context.Context, budget *model.Budget) error

	// GetBudget retrieves a budget by name.
	GetBudget(ctx context.Context, name string) (*model.Budget, error)

	// ListBudgets returns all configured budgets.
	ListBudgets(ctx context.Context) ([]model.Budget, error)

	// UpdateBudgetSpend atomically adds amount to a budget's spend.
	UpdateBudgetSpend(ctx context.Context, name string, amount float64) error

	// Close releases resources.
	Close() error
}
