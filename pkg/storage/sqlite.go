package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements Storage on an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

const usageColumns = `id, request_id, provider, model, owner, credential_id, strategy,
	input_tokens, output_tokens, units, base_cost_usd, cost_usd, surcharge_applied,
	cost_fallback, attempts, latency_ms, project, metadata, timestamp`

func (s *SQLite) RecordUsage(ctx context.Context, r *model.UsageRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if r.Metadata == "" {
		r.Metadata = "{}"
	}
	if r.Project == "" {
		r.Project = "default"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (`+usageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Provider, r.Model, r.Owner, r.CredentialID, r.Strategy,
		r.InputTokens, r.OutputTokens, r.Units, r.BaseCostUSD, r.CostUSD, r.SurchargeApplied,
		r.CostFallback, r.Attempts, r.LatencyMS, r.Project, r.Metadata, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

func (s *SQLite) QueryUsage(ctx context.Context, filter model.ReportFilter) ([]model.UsageRecord, error) {
	query := "SELECT " + usageColumns + " FROM usage_records"
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []model.UsageRecord
	for rows.Next() {
		var r model.UsageRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Model, &r.Owner, &r.CredentialID, &r.Strategy,
			&r.InputTokens, &r.OutputTokens, &r.Units, &r.BaseCostUSD, &r.CostUSD, &r.SurchargeApplied,
			&r.CostFallback, &r.Attempts, &r.LatencyMS, &r.Project, &r.Metadata, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) AggregateUsage(ctx context.Context, filter model.ReportFilter) (*model.UsageSummary, error) {
	query := `SELECT
		COALESCE(SUM(cost_usd), 0),
		COALESCE(SUM(base_cost_usd), 0),
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COUNT(*)
	FROM usage_records`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	summary := &model.UsageSummary{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalCostUSD,
		&summary.TotalBaseCostUSD,
		&summary.TotalInputTokens,
		&summary.TotalOutputTokens,
		&summary.RecordCount,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}

	if summary.ByProvider, err = s.aggregateByField(ctx, "provider", where, args); err != nil {
		return nil, err
	}
	if summary.ByModel, err = s.aggregateByField(ctx, "model", where, args); err != nil {
		return nil, err
	}
	if summary.ByOwner, err = s.aggregateByField(ctx, "owner", where, args); err != nil {
		return nil, err
	}
	return summary, nil
}

// aggregateByField sums cost grouped by field. field is always a constant
// column name, never caller input.
func (s *SQLite) aggregateByField(ctx context.Context, field, where string, args []any) (map[string]float64, error) {
	query := fmt.Sprintf("SELECT %s, COALESCE(SUM(cost_usd), 0) FROM usage_records", field)
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" GROUP BY %s", field)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by %s: %w", field, err)
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var name string
		var total float64
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("scan %s aggregate: %w", field, err)
		}
		result[name] = total
	}
	return result, rows.Err()
}

func (s *SQLite) RecordAttempts(ctx context.Context, attempts []model.AttemptRecord) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attempts tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO routing_attempts (id, request_id, seq, provider, model, credential_id, owner, outcome, skipped, error, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for i := range attempts {
		a := &attempts[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.Timestamp.IsZero() {
			a.Timestamp = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.RequestID, a.Seq, a.Provider, a.Model, a.CredentialID,
			a.Owner, a.Outcome, a.Skipped, a.Error, a.LatencyMS, a.Timestamp); err != nil {
			return fmt.Errorf("insert attempt %d: %w", a.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attempts: %w", err)
	}
	return nil
}

func (s *SQLite) QueryAttempts(ctx context.Context, requestID string) ([]model.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, seq, provider, model, credential_id, owner, outcome, skipped, error, latency_ms, timestamp
		 FROM routing_attempts WHERE request_id = ? ORDER BY seq`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Seq, &a.Provider, &a.Model, &a.CredentialID,
			&a.Owner, &a.Outcome, &a.Skipped, &a.Error, &a.LatencyMS, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *SQLite) SetBudget(ctx context.Context, budget *model.Budget) error {
	if budget.ID == "" {
		budget.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	budget.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (id, name, limit_usd, period, current_spend, alert_threshold_pct, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   limit_usd = excluded.limit_usd,
		   period = excluded.period,
		   alert_threshold_pct = excluded.alert_threshold_pct,
		   updated_at = excluded.updated_at`,
		budget.ID, budget.Name, budget.LimitUSD, budget.Period,
		budget.CurrentSpend, budget.AlertThresholdPct, budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	return nil
}

func (s *SQLite) GetBudget(ctx context.Context, name string) (*model.Budget, error) {
	var b model.Budget
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, limit_usd, period, current_spend, alert_threshold_pct, created_at, updated_at
		 FROM budgets WHERE name = ?`, name,
	).Scan(&b.ID, &b.Name, &b.LimitUSD, &b.Period, &b.CurrentSpend,
		&b.AlertThresholdPct, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return &b, nil
}

func (s *SQLite) ListBudgets(ctx context.Context) ([]model.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, limit_usd, period, current_spend, alert_threshold_pct, created_at, updated_at
		 FROM budgets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.Budget
	for rows.Next() {
		var b model.Budget
		if err := rows.Scan(&b.ID, &b.Name, &b.LimitUSD, &b.Period, &b.CurrentSpend,
			&b.AlertThresholdPct, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget row: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (s *SQLite) UpdateBudgetSpend(ctx context.Context, name string, amount float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET current_spend = current_spend + ?, updated_at = ? WHERE name = ?`,
		amount, time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("update budget spend: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("budget %q not found", name)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// buildWhereClause constructs a SQL WHERE clause from a ReportFilter.
func buildWhereClause(filter model.ReportFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Project != "" {
		add("project = ?", filter.Project)
	}
	if filter.Owner != "" {
		add("owner = ?", filter.Owner)
	}
	if !filter.StartTime.IsZero() {
		add("timestamp >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("timestamp < ?", filter.EndTime)
	}

	return strings.Join(conditions, " AND "), args
}
