package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// counterpartTables maps counterpart type to its table.
var counterpartTables = map[string]string{
	CounterpartInvoice:   "invoices",
	CounterpartPayment:   "payments",
	CounterpartRecurring: "recurring_models",
}

// CommitReconciliation atomically marks the transaction reconciled,
// decrements each counterpart's open balance with an optimistic version
// check, and records the reconciliation with its residual.
//
// The transaction flip uses a guarded UPDATE so that two racing commits
// for the same transaction cannot both succeed; the counterpart claims use
// a version predicate so that two racing commits cannot both take the same
// counterpart.
func (s *Storage) CommitReconciliation(ctx context.Context, rec *Reconciliation, claims []CounterpartClaim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reconciliation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Claim the transaction. Zero rows means it was already reconciled
	// (or does not exist; the coordinator checks existence first).
	res, err := tx.ExecContext(ctx,
		"UPDATE transactions SET is_reconciled = 1 WHERE id = ? AND is_reconciled = 0",
		rec.TransactionID)
	if err != nil {
		return fmt.Errorf("marking transaction reconciled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReconciled
	}

	for _, claim := range claims {
		if err := applyClaim(ctx, tx, claim); err != nil {
			return err
		}
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO reconciliations (transaction_id, residual, created_at) VALUES (?, ?, ?)",
		rec.TransactionID, rec.Residual.String(), rec.CreatedAt); err != nil {
		return fmt.Errorf("recording reconciliation: %w", err)
	}

	for _, entry := range rec.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_entries (transaction_id, counterpart_type, counterpart_id, allocated)
			VALUES (?, ?, ?, ?)`,
			rec.TransactionID, entry.CounterpartType, entry.CounterpartID, entry.Allocated.String()); err != nil {
			return fmt.Errorf("recording reconciliation entry: %w", err)
		}
	}

	return tx.Commit()
}

// applyClaim decrements one counterpart's open balance inside the commit
// transaction. The version predicate on the UPDATE is what serializes
// concurrent claims: the racing loser updates zero rows.
func applyClaim(ctx context.Context, tx *sql.Tx, claim CounterpartClaim) error {
	table, ok := counterpartTables[claim.Type]
	if !ok {
		return fmt.Errorf("unknown counterpart type %q", claim.Type)
	}

	var raw string
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT open_balance FROM %s WHERE id = ? AND version = ?", table),
		claim.ID, claim.Version).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrVersionConflict, claim.Type, claim.ID)
	}
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", claim.Type, claim.ID, err)
	}

	current, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance on %s %s: %w", claim.Type, claim.ID, err)
	}
	next := current.Sub(claim.Allocated)
	if next.IsNegative() {
		next = decimal.Zero
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET open_balance = ?, version = version + 1
		WHERE id = ? AND version = ?`, table),
		next.String(), claim.ID, claim.Version)
	if err != nil {
		return fmt.Errorf("claiming %s %s: %w", claim.Type, claim.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s %s", ErrVersionConflict, claim.Type, claim.ID)
	}
	return nil
}

// GetReconciliation retrieves the reconciliation for a transaction
func (s *Storage) GetReconciliation(ctx context.Context, transactionID string) (*Reconciliation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT transaction_id, residual, created_at FROM reconciliations WHERE transaction_id = ?",
		transactionID)

	var (
		rec Reconciliation
		raw string
	)
	err := row.Scan(&rec.TransactionID, &raw, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reconciliation: %w", err)
	}
	rec.Residual, err = decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt residual: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT counterpart_type, counterpart_id, allocated
		FROM reconciliation_entries WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry ReconciliationEntry
			raw   string
		)
		if err := rows.Scan(&entry.CounterpartType, &entry.CounterpartID, &raw); err != nil {
			return nil, err
		}
		entry.Allocated, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt allocation: %w", err)
		}
		rec.Entries = append(rec.Entries, entry)
	}
	return &rec, rows.Err()
}
