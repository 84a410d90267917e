package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_connections_table",
		Up:      migration002AddConnectionsTable,
	},
	{
		Version: 3,
		Name:    "add_counterpart_tables",
		Up:      migration003AddCounterpartTables,
	},
	{
		Version: 4,
		Name:    "add_import_batches_table",
		Up:      migration004AddImportBatchesTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, m := range allMigrations {
		if applied[m.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Storage) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			account_number TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX idx_accounts_org ON accounts(org_id);

		CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			date DATETIME NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			counterparty TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL,
			running_balance TEXT,
			is_reconciled INTEGER NOT NULL DEFAULT 0,
			is_checked INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE UNIQUE INDEX idx_transactions_fingerprint ON transactions(account_id, fingerprint);
		CREATE INDEX idx_transactions_account_date ON transactions(account_id, date);

		CREATE TABLE reconciliations (
			transaction_id TEXT PRIMARY KEY REFERENCES transactions(id),
			residual TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE reconciliation_entries (
			transaction_id TEXT NOT NULL REFERENCES reconciliations(transaction_id),
			counterpart_type TEXT NOT NULL,
			counterpart_id TEXT NOT NULL,
			allocated TEXT NOT NULL
		);

		CREATE INDEX idx_recon_entries_txn ON reconciliation_entries(transaction_id);
	`)
	return err
}

func migration002AddConnectionsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE connections (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			institution_id TEXT NOT NULL,
			institution_name TEXT NOT NULL DEFAULT '',
			institution_logo TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL REFERENCES accounts(id),
			requisition_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			sync_enabled INTEGER NOT NULL DEFAULT 1,
			last_sync_at DATETIME,
			next_sync_at DATETIME,
			expires_at DATETIME,
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX idx_connections_account ON connections(account_id);
		CREATE INDEX idx_connections_org ON connections(org_id);
	`)
	return err
}

func migration003AddCounterpartTables(tx *sql.Tx) error {
	// One table per counterpart kind; identical shape, separate open
	// pools. version supports optimistic claims.
	for _, table := range []string{"invoices", "payments", "recurring_models"} {
		if _, err := tx.Exec(fmt.Sprintf(`
			CREATE TABLE %s (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				reference TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				amount TEXT NOT NULL,
				open_balance TEXT NOT NULL,
				date DATETIME NOT NULL,
				version INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX idx_%s_org ON %s(org_id);
		`, table, table, table)); err != nil {
			return err
		}
	}
	return nil
}

func migration004AddImportBatchesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE import_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			file_name TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL DEFAULT '',
			imported INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			total_amount TEXT NOT NULL DEFAULT '0',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX idx_import_batches_account ON import_batches(account_id);
	`)
	return err
}
