// Package alerts delivers budget and provider health notifications.
package alerts

import (
	"context"
	"time"
)

// AlertLevel indicates the severity of an alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"  // Approaching budget threshold
	AlertCritical AlertLevel = "critical" // At or near budget limit
	AlertExceeded AlertLevel = "exceeded" // Budget limit exceeded
	AlertDegraded AlertLevel = "degraded" // Provider or model cooling down
)

// Kind names what an alert is about.
type Kind string

const (
	KindBudget           Kind = "budget"
	KindProviderDegraded Kind = "provider_degraded"
)

// Alert is a budget threshold or provider health notification. Budget fields
// are empty on provider alerts and vice versa.
type Alert struct {
	Kind         Kind       `json:"kind"`
	Level        AlertLevel `json:"level"`
	BudgetName   string     `json:"budget_name,omitempty"`
	LimitUSD     float64    `json:"limit_usd,omitempty"`
	CurrentSpend float64    `json:"current_spend,omitempty"`
	ThresholdPct float64    `json:"threshold_pct,omitempty"`
	Period       string     `json:"period,omitempty"`

	Provider            string     `json:"provider,omitempty"`
	Model               string     `json:"model,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	LastError           string     `json:"last_error,omitempty"`

	Message string `json:"message"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
