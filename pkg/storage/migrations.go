package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// 1: usage and budgets
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                TEXT PRIMARY KEY,
		request_id        TEXT NOT NULL DEFAULT '',
		provider          TEXT NOT NULL,
		model             TEXT NOT NULL,
		owner             TEXT NOT NULL DEFAULT 'operator',
		credential_id     TEXT NOT NULL DEFAULT '',
		strategy          TEXT NOT NULL DEFAULT '',
		input_tokens      INTEGER NOT NULL DEFAULT 0,
		output_tokens     INTEGER NOT NULL DEFAULT 0,
		units             INTEGER NOT NULL DEFAULT 0,
		base_cost_usd     REAL NOT NULL DEFAULT 0.0,
		cost_usd          REAL NOT NULL DEFAULT 0.0,
		surcharge_applied INTEGER NOT NULL DEFAULT 0,
		cost_fallback     INTEGER NOT NULL DEFAULT 0,
		attempts          INTEGER NOT NULL DEFAULT 1,
		latency_ms        INTEGER NOT NULL DEFAULT 0,
		project           TEXT NOT NULL DEFAULT 'default',
		metadata          TEXT DEFAULT '{}',
		timestamp         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
	CREATE INDEX IF NOT EXISTS idx_usage_project ON usage_records(project);
	CREATE INDEX IF NOT EXISTS idx_usage_owner ON usage_records(owner);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_request ON usage_records(request_id);

	CREATE TABLE IF NOT EXISTS budgets (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL UNIQUE,
		limit_usd           REAL NOT NULL,
		period              TEXT NOT NULL CHECK(period IN ('daily', 'weekly', 'monthly')),
		current_spend       REAL NOT NULL DEFAULT 0.0,
		alert_threshold_pct REAL NOT NULL DEFAULT 80.0,
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,

	// 2: routing audit
	`CREATE TABLE IF NOT EXISTS routing_attempts (
		id            TEXT PRIMARY KEY,
		request_id    TEXT NOT NULL,
		seq           INTEGER NOT NULL,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		credential_id TEXT NOT NULL DEFAULT '',
		owner         TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		skipped       INTEGER NOT NULL DEFAULT 0,
		error         TEXT NOT NULL DEFAULT '',
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		timestamp     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(request_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_request ON routing_attempts(request_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_provider ON routing_attempts(provider, outcome);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		if err := applyMigration(db, i+1, migrations[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("run migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	return nil
}
