package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Use a single pooled connection: SQLite serialises writes anyway,
	// and per-connection PRAGMAs below only apply to the connection
	// that executes them.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contracts (
			id TEXT PRIMARY KEY,
			center_id TEXT NOT NULL,
			tabsera_share_pct INTEGER NOT NULL,
			center_share_pct INTEGER NOT NULL,
			frequency TEXT NOT NULL,
			due_day INTEGER NOT NULL,
			settlement_currency TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			auto_renew INTEGER NOT NULL DEFAULT 0,
			suspend_after_overdue INTEGER NOT NULL DEFAULT 3,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_center ON contracts(center_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			center_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			amount_minor INTEGER NOT NULL,
			currency TEXT NOT NULL,
			paid_at DATETIME NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_center ON payments(center_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_paid_at ON payments(paid_at)`,

		`CREATE TABLE IF NOT EXISTS exchange_rates (
			currency TEXT NOT NULL,
			rate_per_usd TEXT NOT NULL,
			effective_date DATETIME NOT NULL,
			PRIMARY KEY (currency, effective_date)
		)`,

		`CREATE TABLE IF NOT EXISTS rate_imports (
			file_hash TEXT PRIMARY KEY,
			record_count INTEGER NOT NULL,
			imported_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settlements (
			id TEXT PRIMARY KEY,
			center_id TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			currency TEXT NOT NULL,
			gross_revenue INTEGER NOT NULL,
			tabsera_amount INTEGER NOT NULL,
			center_amount INTEGER NOT NULL,
			collected_amount INTEGER NOT NULL,
			pending_amount INTEGER NOT NULL,
			collection_rate_pct INTEGER NOT NULL,
			status TEXT NOT NULL,
			due_date DATETIME NOT NULL,
			generated_at DATETIME NOT NULL,
			paid_at DATETIME,
			payment_ref TEXT,
			rate_snapshot TEXT,
			UNIQUE (center_id, period_start, period_end)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_center ON settlements(center_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_status ON settlements(status)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_due_date ON settlements(due_date)`,

		`CREATE TABLE IF NOT EXISTS audit_entries (
			settlement_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			note TEXT,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (settlement_id, seq),
			FOREIGN KEY (settlement_id) REFERENCES settlements(id)
		)`,

		`CREATE TABLE IF NOT EXISTS review_queue (
			id TEXT PRIMARY KEY,
			center_id TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			reason TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_queue_center ON review_queue(center_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
