package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InsertTransactions persists a batch atomically. If any insert fails the
// whole batch is rolled back. A unique-index violation on
// (account_id, fingerprint) surfaces as ErrDuplicateFingerprint.
func (s *Storage) InsertTransactions(ctx context.Context, txns []*Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions
			(id, account_id, date, amount, currency, reference, counterparty,
			 fingerprint, running_balance, is_reconciled, is_checked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range txns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		var balance any
		if t.RunningBalance != nil {
			balance = t.RunningBalance.String()
		}
		_, err := stmt.ExecContext(ctx,
			t.ID, t.AccountID, t.Date.UTC(), t.Amount.String(), t.Currency,
			t.Reference, t.Counterparty, t.Fingerprint, balance, t.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrDuplicateFingerprint, t.Fingerprint)
			}
			return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// GetTransaction retrieves a transaction by ID
func (s *Storage) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectTransaction+" WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

const selectTransaction = `
	SELECT id, account_id, date, amount, currency, reference, counterparty,
	       fingerprint, running_balance, is_reconciled, is_checked, created_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t       Transaction
		amount  string
		balance sql.NullString
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Date, &amount, &t.Currency,
		&t.Reference, &t.Counterparty, &t.Fingerprint, &balance,
		&t.IsReconciled, &t.IsChecked, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", t.ID, err)
	}
	if balance.Valid {
		b, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for transaction %s: %w", t.ID, err)
		}
		t.RunningBalance = &b
	}
	return &t, nil
}

// ListTransactions returns transactions matching the filters, scoped to
// the organization, newest first.
func (s *Storage) ListTransactions(ctx context.Context, orgID string, filters TransactionFilters) (*TransactionListResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{"a.org_id = ?"}
	args := []any{orgID}

	if filters.AccountID != "" {
		where = append(where, "t.account_id = ?")
		args = append(args, filters.AccountID)
	}
	if filters.Reconciled != nil {
		where = append(where, "t.is_reconciled = ?")
		args = append(args, *filters.Reconciled)
	}
	if filters.Search != "" {
		where = append(where, "(t.reference LIKE ? OR t.counterparty LIKE ?)")
		pattern := "%" + filters.Search + "%"
		args = append(args, pattern, pattern)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions t JOIN accounts a ON a.id = t.account_id WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting transactions: %w", err)
	}

	query := `
		SELECT t.id, t.account_id, t.date, t.amount, t.currency, t.reference,
		       t.counterparty, t.fingerprint, t.running_balance,
		       t.is_reconciled, t.is_checked, t.created_at
		FROM transactions t JOIN accounts a ON a.id = t.account_id
		WHERE ` + whereClause + `
		ORDER BY t.date DESC, t.id
		LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	result := &TransactionListResult{
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, t)
	}
	return result, rows.Err()
}

// ListFingerprints returns the set of fingerprints already persisted for
// an account.
func (s *Storage) ListFingerprints(ctx context.Context, accountID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT fingerprint FROM transactions WHERE account_id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("listing fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		fingerprints[fp] = true
	}
	return fingerprints, rows.Err()
}

// LastRunningBalance returns the running balance of the latest transaction
// for an account, or nil when the account is empty.
func (s *Storage) LastRunningBalance(ctx context.Context, accountID string) (*decimal.Decimal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT running_balance FROM transactions
		WHERE account_id = ? AND running_balance IS NOT NULL
		ORDER BY date DESC, created_at DESC LIMIT 1`, accountID)

	var raw sql.NullString
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last balance: %w", err)
	}

	b, err := decimal.NewFromString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance: %w", err)
	}
	return &b, nil
}

// SetRunningBalances updates running balances in one statement batch.
func (s *Storage) SetRunningBalances(ctx context.Context, balances map[string]decimal.Decimal) error {
	if len(balances) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning balance update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "UPDATE transactions SET running_balance = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing balance update: %w", err)
	}
	defer stmt.Close()

	for id, balance := range balances {
		if _, err := stmt.ExecContext(ctx, balance.String(), id); err != nil {
			return fmt.Errorf("updating balance for %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SetChecked toggles the human-review flag
func (s *Storage) SetChecked(ctx context.Context, id string, checked bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET is_checked = ? WHERE id = ?", checked, id)
	if err != nil {
		return fmt.Errorf("setting checked flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes an unreconciled transaction.
func (s *Storage) DeleteTransaction(ctx context.Context, id string) error {
	txn, err := s.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if txn.IsReconciled {
		return ErrReconciled
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ? AND is_reconciled = 0", id)
	if err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	return nil
}

// GetStats returns aggregate statistics for an organization
func (s *Storage) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	stats := &Stats{UnreconciledAmount: decimal.Zero}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(t.is_reconciled), 0)
		FROM transactions t JOIN accounts a ON a.id = t.account_id
		WHERE a.org_id = ?`, orgID)
	if err := row.Scan(&stats.TotalTransactions, &stats.ReconciledCount); err != nil {
		return nil, fmt.Errorf("counting transactions: %w", err)
	}
	stats.UnreconciledCount = stats.TotalTransactions - stats.ReconciledCount

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.amount
		FROM transactions t JOIN accounts a ON a.id = t.account_id
		WHERE a.org_id = ? AND t.is_reconciled = 0`, orgID)
	if err != nil {
		return nil, fmt.Errorf("summing unreconciled: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount: %w", err)
		}
		stats.UnreconciledAmount = stats.UnreconciledAmount.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM connections WHERE org_id = ? AND status = ?`,
		orgID, ConnectionActive)
	if err := row.Scan(&stats.ActiveConnections); err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM import_batches b JOIN accounts a ON a.id = b.account_id
		WHERE a.org_id = ?`, orgID)
	if err := row.Scan(&stats.TotalImportBatches); err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}

	return stats, nil
}
