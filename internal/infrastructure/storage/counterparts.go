package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ListOpenCounterparts returns open invoices, unapplied payments, and
// active recurring models for an organization. "Open" means a positive
// open balance.
func (s *Storage) ListOpenCounterparts(ctx context.Context, orgID string) ([]*Counterpart, error) {
	var all []*Counterpart
	for _, kind := range []string{CounterpartInvoice, CounterpartPayment, CounterpartRecurring} {
		table := counterpartTables[kind]
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, org_id, reference, name, amount, open_balance, date, version
			FROM %s WHERE org_id = ? AND CAST(open_balance AS REAL) > 0
			ORDER BY date DESC`, table), orgID)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", table, err)
		}

		for rows.Next() {
			c, err := scanCounterpart(rows, kind)
			if err != nil {
				rows.Close()
				return nil, err
			}
			all = append(all, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return all, nil
}

func scanCounterpart(row rowScanner, kind string) (*Counterpart, error) {
	var (
		c              Counterpart
		amount, openBal string
	)
	err := row.Scan(&c.ID, &c.OrgID, &c.Reference, &c.Name, &amount, &openBal, &c.Date, &c.Version)
	if err != nil {
		return nil, err
	}
	c.Type = kind
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount on %s %s: %w", kind, c.ID, err)
	}
	if c.OpenBalance, err = decimal.NewFromString(openBal); err != nil {
		return nil, fmt.Errorf("corrupt open balance on %s %s: %w", kind, c.ID, err)
	}
	return &c, nil
}

// GetCounterpart retrieves one counterpart by type and ID
func (s *Storage) GetCounterpart(ctx context.Context, counterpartType, id string) (*Counterpart, error) {
	table, ok := counterpartTables[counterpartType]
	if !ok {
		return nil, fmt.Errorf("unknown counterpart type %q", counterpartType)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, org_id, reference, name, amount, open_balance, date, version
		FROM %s WHERE id = ?`, table), id)

	c, err := scanCounterpart(row, counterpartType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCounterpart persists a counterpart (seeding and tests)
func (s *Storage) CreateCounterpart(ctx context.Context, c *Counterpart) error {
	table, ok := counterpartTables[c.Type]
	if !ok {
		return fmt.Errorf("unknown counterpart type %q", c.Type)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, org_id, reference, name, amount, open_balance, date, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table),
		c.ID, c.OrgID, c.Reference, c.Name, c.Amount.String(), c.OpenBalance.String(),
		c.Date.UTC(), c.Version)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", c.Type, err)
	}
	return nil
}
