package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/storage"
)

// ErrBudgetExceeded is returned when a budget's spend has reached its limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetManager records operator spend against budgets, rolls budgets over
// at period boundaries and dispatches threshold alerts.
type BudgetManager struct {
	storage   storage.Storage
	notifiers []alerts.Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// NewBudgetManager creates a budget manager.
func NewBudgetManager(store storage.Storage, notifiers []alerts.Notifier, logger *slog.Logger) *BudgetManager {
	return &BudgetManager{
		storage:   store,
		notifiers: notifiers,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the time source used for period rollover.
func (m *BudgetManager) WithClock(now func() time.Time) *BudgetManager {
	m.now = now
	return m
}

// RecordSpend adds amount to every budget and alerts on any threshold the
// spend crossed. Budgets whose period has ended are reset first.
func (m *BudgetManager) RecordSpend(ctx context.Context, amount float64) error {
	budgets, err := m.current(ctx)
	if err != nil {
		return err
	}

	for _, budget := range budgets {
		if err := m.storage.UpdateBudgetSpend(ctx, budget.Name, amount); err != nil {
			m.logger.Error("update budget spend", "budget", budget.Name, "error", err)
			continue
		}

		updated, err := m.storage.GetBudget(ctx, budget.Name)
		if err != nil {
			m.logger.Error("get updated budget", "budget", budget.Name, "error", err)
			continue
		}

		m.checkThresholds(ctx, budget.CurrentSpend, updated)
	}

	return nil
}

// CheckAll returns ErrBudgetExceeded, wrapped with the budget's figures, if
// any budget has reached its limit in its current period.
func (m *BudgetManager) CheckAll(ctx context.Context) error {
	budgets, err := m.current(ctx)
	if err != nil {
		return err
	}

	for _, budget := range budgets {
		if budget.Exceeded() {
			return fmt.Errorf("%w: %q at $%.2f / $%.2f", ErrBudgetExceeded, budget.Name, budget.CurrentSpend, budget.LimitUSD)
		}
	}

	return nil
}

// RollOver resets the spend of every budget whose last update falls before
// the start of its current period. It returns the names it reset.
func (m *BudgetManager) RollOver(ctx context.Context) ([]string, error) {
	budgets, err := m.storage.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	return m.expire(ctx, budgets), nil
}

// current lists budgets with expired periods already reset.
func (m *BudgetManager) current(ctx context.Context) ([]Budget, error) {
	budgets, err := m.storage.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	m.expire(ctx, budgets)
	return budgets, nil
}

// expire zeroes expired budgets in storage and in budgets, returning their
// names. Failures are logged and leave the budget as it was.
func (m *BudgetManager) expire(ctx context.Context, budgets []Budget) []string {
	now := m.now()
	var names []string
	for i := range budgets {
		b := &budgets[i]
		start, _ := PeriodBounds(b.Period, now)
		if b.CurrentSpend == 0 || !b.UpdatedAt.Before(start) {
			continue
		}
		if err := m.storage.UpdateBudgetSpend(ctx, b.Name, -b.CurrentSpend); err != nil {
			m.logger.Error("roll over budget", "budget", b.Name, "error", err)
			continue
		}
		m.logger.Info("budget period rolled over",
			"budget", b.Name,
			"period", b.Period,
			"previous_spend", b.CurrentSpend,
		)
		b.CurrentSpend = 0
		names = append(names, b.Name)
	}
	return names
}

// checkThresholds dispatches an alert when this spend moved the budget into
// a higher alert level than it was in before.
func (m *BudgetManager) checkThresholds(ctx context.Context, before float64, budget *Budget) {
	if budget.LimitUSD <= 0 {
		return
	}

	level, ok := alertLevel(budget.UsedPct(), budget.AlertThresholdPct)
	if !ok {
		return
	}
	prev, hadPrev := alertLevel(before/budget.LimitUSD*100, budget.AlertThresholdPct)
	if hadPrev && prev == level {
		return
	}

	pct := budget.UsedPct()
	alert := alerts.Alert{
		Kind:         alerts.KindBudget,
		Level:        level,
		BudgetName:   budget.Name,
		LimitUSD:     budget.LimitUSD,
		CurrentSpend: budget.CurrentSpend,
		ThresholdPct: budget.AlertThresholdPct,
		Period:       string(budget.Period),
		Message: fmt.Sprintf("Budget %q at %.1f%% ($%.2f / $%.2f)",
			budget.Name, pct, budget.CurrentSpend, budget.LimitUSD),
	}

	m.logger.Warn("budget threshold crossed",
		"budget", budget.Name,
		"level", level,
		"pct", pct,
		"spend", budget.CurrentSpend,
		"limit", budget.LimitUSD,
	)

	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, alert); err != nil {
			m.logger.Error("send alert failed",
				"notifier", notifier.Name(),
				"budget", budget.Name,
				"error", err,
			)
		}
	}
}

func alertLevel(pct, thresholdPct float64) (alerts.AlertLevel, bool) {
	switch {
	case pct >= 100:
		return alerts.AlertExceeded, true
	case pct >= 95:
		return alerts.AlertCritical, true
	case thresholdPct > 0 && pct >= thresholdPct:
		return alerts.AlertWarning, true
	default:
		return "", false
	}
}

// ResetBudgetSpend zeroes a budget's spend immediately.
func (m *BudgetManager) ResetBudgetSpend(ctx context.Context, name string) error {
	budget, err := m.storage.GetBudget(ctx, name)
	if err != nil {
		return err
	}

	return m.storage.UpdateBudgetSpend(ctx, name, -budget.CurrentSpend)
}
