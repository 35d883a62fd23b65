// Package model holds the records the gateway persists.
package model

import "time"

// UsageRecord is one completed, routed call and what it was charged.
type UsageRecord struct {
	ID               string    `json:"id" db:"id"`
	RequestID        string    `json:"request_id,omitempty" db:"request_id"`
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	Owner            string    `json:"owner" db:"owner"`
	CredentialID     string    `json:"credential_id,omitempty" db:"credential_id"`
	Strategy         string    `json:"strategy,omitempty" db:"strategy"`
	InputTokens      int64     `json:"input_tokens" db:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens" db:"output_tokens"`
	Units            int64     `json:"units,omitempty" db:"units"`
	BaseCostUSD      float64   `json:"base_cost_usd" db:"base_cost_usd"`
	CostUSD          float64   `json:"cost_usd" db:"cost_usd"`
	SurchargeApplied bool      `json:"surcharge_applied" db:"surcharge_applied"`
	CostFallback     bool      `json:"cost_fallback,omitempty" db:"cost_fallback"`
	Attempts         int       `json:"attempts" db:"attempts"`
	LatencyMS        int64     `json:"latency_ms" db:"latency_ms"`
	Project          string    `json:"project" db:"project"`
	Metadata         string    `json:"metadata,omitempty" db:"metadata"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
}

// AttemptRecord is one step of a request's fallback chain.
type AttemptRecord struct {
	ID           string    `json:"id" db:"id"`
	RequestID    string    `json:"request_id" db:"request_id"`
	Seq          int       `json:"seq" db:"seq"`
	Provider     string    `json:"provider" db:"provider"`
	Model        string    `json:"model" db:"model"`
	CredentialID string    `json:"credential_id" db:"credential_id"`
	Owner        string    `json:"owner" db:"owner"`
	Outcome      string    `json:"outcome" db:"outcome"`
	Skipped      bool      `json:"skipped,omitempty" db:"skipped"`
	Error        string    `json:"error,omitempty" db:"error"`
	LatencyMS    int64     `json:"latency_ms" db:"latency_ms"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// BudgetPeriod defines the time window for a budget.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
)

// Budget caps operator-key spend over a period.
type Budget struct {
	ID                string       `json:"id" db:"id"`
	Name              string       `json:"name" db:"name"`
	LimitUSD          float64      `json:"limit_usd" db:"limit_usd"`
	Period            BudgetPeriod `json:"period" db:"period"`
	CurrentSpend      float64      `json:"current_spend" db:"current_spend"`
	AlertThresholdPct float64      `json:"alert_threshold_pct" db:"alert_threshold_pct"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// UsedPct returns spend as a percentage of the limit.
func (b Budget) UsedPct() float64 {
	if b.LimitUSD <= 0 {
		return 0
	}
	return b.CurrentSpend / b.LimitUSD * 100
}

// Exceeded reports whether spend has reached the limit.
func (b Budget) Exceeded() bool {
	return b.LimitUSD > 0 && b.CurrentSpend >= b.LimitUSD
}

// ReportFilter controls which usage records are included in reports.
type ReportFilter struct {
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Project   string    `json:"project,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// UsageSummary holds aggregated usage statistics.
type UsageSummary struct {
	TotalCostUSD      float64            `json:"total_cost_usd"`
	TotalBaseCostUSD  float64            `json:"total_base_cost_usd"`
	TotalInputTokens  int64              `json:"total_input_tokens"`
	TotalOutputTokens int64              `json:"total_output_tokens"`
	RecordCount       int64              `json:"record_count"`
	ByProvider        map[string]float64 `json:"by_provider,omitempty"`
	ByModel           map[string]float64 `json:"by_model,omitempty"`
	ByOwner           map[string]float64 `json:"by_owner,omitempty"`
}

// PeriodBounds returns the start and end of the period containing now.
// Weeks start on Monday.
func PeriodBounds(period BudgetPeriod, now time.Time) (start, end time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = day.AddDate(0, 0, 1-weekday)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}
