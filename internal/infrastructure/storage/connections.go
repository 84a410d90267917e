package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const selectConnection = `
	SELECT id, org_id, provider, institution_id, institution_name, institution_logo,
	       account_id, requisition_id, status, sync_enabled,
	       last_sync_at, next_sync_at, expires_at, error_message, created_at
	FROM connections`

// CreateConnection persists a new connection
func (s *Storage) CreateConnection(ctx context.Context, conn *Connection) error {
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}
	if conn.Status == "" {
		conn.Status = ConnectionPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections
			(id, org_id, provider, institution_id, institution_name, institution_logo,
			 account_id, requisition_id, status, sync_enabled,
			 last_sync_at, next_sync_at, expires_at, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.OrgID, conn.Provider, conn.InstitutionID, conn.InstitutionName,
		conn.InstitutionLogo, conn.AccountID, conn.RequisitionID, conn.Status,
		conn.SyncEnabled, conn.LastSyncAt, conn.NextSyncAt, conn.ExpiresAt,
		conn.ErrorMessage, conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

func scanConnection(row rowScanner) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.OrgID, &c.Provider, &c.InstitutionID, &c.InstitutionName,
		&c.InstitutionLogo, &c.AccountID, &c.RequisitionID, &c.Status, &c.SyncEnabled,
		&c.LastSyncAt, &c.NextSyncAt, &c.ExpiresAt, &c.ErrorMessage, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConnection retrieves a connection by ID
func (s *Storage) GetConnection(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, selectConnection+" WHERE id = ?", id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning connection: %w", err)
	}
	return c, nil
}

// ListConnections returns all connections for an organization
func (s *Storage) ListConnections(ctx context.Context, orgID string) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, selectConnection+" WHERE org_id = ? ORDER BY created_at DESC", orgID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

// ListDueConnections returns active, sync-enabled connections whose
// next_sync_at is at or before now.
func (s *Storage) ListDueConnections(ctx context.Context, now time.Time) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, selectConnection+`
		WHERE status = ? AND sync_enabled = 1
		  AND (next_sync_at IS NULL OR next_sync_at <= ?)`,
		ConnectionActive, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing due connections: %w", err)
	}
	defer rows.Close()
	return collectConnections(rows)
}

func collectConnections(rows *sql.Rows) ([]*Connection, error) {
	var conns []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// UpdateConnectionStatus sets status and error message
func (s *Storage) UpdateConnectionStatus(ctx context.Context, id, status, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE connections SET status = ?, error_message = ? WHERE id = ?",
		status, errorMessage, id)
	if err != nil {
		return fmt.Errorf("updating connection status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateConnection transitions pending → active and records expiry
func (s *Storage) ActivateConnection(ctx context.Context, id string, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE connections SET status = ?, expires_at = ?, error_message = ''
		WHERE id = ? AND status = ?`,
		ConnectionActive, expiresAt, id, ConnectionPending)
	if err != nil {
		return fmt.Errorf("activating connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSyncTimes advances last_sync_at and next_sync_at
func (s *Storage) UpdateSyncTimes(ctx context.Context, id string, lastSyncAt, nextSyncAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE connections SET last_sync_at = ?, next_sync_at = ?, error_message = '' WHERE id = ?",
		lastSyncAt.UTC(), nextSyncAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating sync times: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSyncEnabled toggles scheduled syncing
func (s *Storage) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE connections SET sync_enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("toggling sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConnection removes a connection
func (s *Storage) DeleteConnection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
