package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateAccount persists a new bank account
func (s *Storage) CreateAccount(ctx context.Context, account *BankAccount) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, org_id, name, account_number, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.OrgID, account.Name, account.AccountNumber, account.Currency, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *Storage) GetAccount(ctx context.Context, id string) (*BankAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, account_number, currency, created_at
		FROM accounts WHERE id = ?`, id)

	var a BankAccount
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.AccountNumber, &a.Currency, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return &a, nil
}

// ListAccounts returns all accounts for an organization
func (s *Storage) ListAccounts(ctx context.Context, orgID string) ([]*BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, name, account_number, currency, created_at
		FROM accounts WHERE org_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*BankAccount
	for rows.Next() {
		var a BankAccount
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.AccountNumber, &a.Currency, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}
