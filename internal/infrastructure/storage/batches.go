package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateImportBatch records a committed import and returns its ID
func (s *Storage) CreateImportBatch(ctx context.Context, batch *ImportBatch) (int64, error) {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (account_id, file_name, format, imported, skipped, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.AccountID, batch.FileName, batch.Format, batch.Imported, batch.Skipped,
		batch.TotalAmount.String(), batch.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting import batch: %w", err)
	}
	return res.LastInsertId()
}

// ListImportBatches returns recent batches for an account
func (s *Storage) ListImportBatches(ctx context.Context, accountID string, limit int) ([]*ImportBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, file_name, format, imported, skipped, total_amount, created_at
		FROM import_batches WHERE account_id = ?
		ORDER BY created_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing import batches: %w", err)
	}
	defer rows.Close()

	var batches []*ImportBatch
	for rows.Next() {
		var (
			b   ImportBatch
			raw string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &b.FileName, &b.Format,
			&b.Imported, &b.Skipped, &raw, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.TotalAmount, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt total on batch %d: %w", b.ID, err)
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}
