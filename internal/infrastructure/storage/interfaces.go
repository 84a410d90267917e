package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	AccountRepository
	TransactionRepository
	ReconciliationRepository
	ConnectionRepository
	CounterpartRepository
	ImportBatchRepository
	Close() error
}

// AccountRepository handles bank account operations
type AccountRepository interface {
	// CreateAccount persists a new bank account
	CreateAccount(ctx context.Context, account *BankAccount) error

	// GetAccount retrieves an account by ID
	GetAccount(ctx context.Context, id string) (*BankAccount, error)

	// ListAccounts returns all accounts for an organization
	ListAccounts(ctx context.Context, orgID string) ([]*BankAccount, error)
}

// TransactionRepository handles bank transaction operations
type TransactionRepository interface {
	// InsertTransactions persists a batch atomically. If any insert fails
	// the whole batch is rolled back.
	InsertTransactions(ctx context.Context, txns []*Transaction) error

	// GetTransaction retrieves a transaction by ID
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// ListTransactions returns transactions matching the filters
	ListTransactions(ctx context.Context, orgID string, filters TransactionFilters) (*TransactionListResult, error)

	// ListFingerprints returns the set of fingerprints already persisted
	// for an account.
	ListFingerprints(ctx context.Context, accountID string) (map[string]bool, error)

	// LastRunningBalance returns the running balance of the latest
	// transaction for an account, or nil when the account is empty.
	LastRunningBalance(ctx context.Context, accountID string) (*decimal.Decimal, error)

	// SetRunningBalances updates running balances for the given
	// transaction IDs in one statement batch.
	SetRunningBalances(ctx context.Context, balances map[string]decimal.Decimal) error

	// SetChecked toggles the human-review flag
	SetChecked(ctx context.Context, id string, checked bool) error

	// DeleteTransaction removes an unreconciled transaction.
	// Returns ErrReconciled when the transaction is already reconciled.
	DeleteTransaction(ctx context.Context, id string) error

	// GetStats returns aggregate statistics for an organization
	GetStats(ctx context.Context, orgID string) (*Stats, error)
}

// ReconciliationRepository handles reconciliation commits
type ReconciliationRepository interface {
	// CommitReconciliation atomically marks the transaction reconciled,
	// decrements each counterpart's open balance with an optimistic
	// version check, and records the reconciliation with its residual.
	// Returns ErrReconciled if the transaction was already reconciled and
	// ErrVersionConflict if a counterpart was claimed concurrently.
	CommitReconciliation(ctx context.Context, rec *Reconciliation, claims []CounterpartClaim) error

	// GetReconciliation retrieves the reconciliation for a transaction
	GetReconciliation(ctx context.Context, transactionID string) (*Reconciliation, error)
}

// CounterpartClaim decrements one counterpart's open balance.
type CounterpartClaim struct {
	Type      string
	ID        string
	Allocated decimal.Decimal
	Version   int64 // version observed at suggestion time
}

// ConnectionRepository handles bank connection operations
type ConnectionRepository interface {
	// CreateConnection persists a new connection
	CreateConnection(ctx context.Context, conn *Connection) error

	// GetConnection retrieves a connection by ID
	GetConnection(ctx context.Context, id string) (*Connection, error)

	// ListConnections returns all connections for an organization
	ListConnections(ctx context.Context, orgID string) ([]*Connection, error)

	// ListDueConnections returns active, sync-enabled connections whose
	// next_sync_at is at or before now.
	ListDueConnections(ctx context.Context, now time.Time) ([]*Connection, error)

	// UpdateConnectionStatus sets status and error message
	UpdateConnectionStatus(ctx context.Context, id, status, errorMessage string) error

	// ActivateConnection transitions pending → active and records expiry
	ActivateConnection(ctx context.Context, id string, expiresAt *time.Time) error

	// UpdateSyncTimes advances last_sync_at and next_sync_at
	UpdateSyncTimes(ctx context.Context, id string, lastSyncAt, nextSyncAt time.Time) error

	// SetSyncEnabled toggles scheduled syncing
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error

	// DeleteConnection removes a connection
	DeleteConnection(ctx context.Context, id string) error
}

// CounterpartRepository exposes the matching candidate pools.
type CounterpartRepository interface {
	// ListOpenCounterparts returns open invoices, unapplied payments, and
	// active recurring models for an organization.
	ListOpenCounterparts(ctx context.Context, orgID string) ([]*Counterpart, error)

	// GetCounterpart retrieves one counterpart by type and ID
	GetCounterpart(ctx context.Context, counterpartType, id string) (*Counterpart, error)

	// CreateCounterpart persists a counterpart (seeding and tests)
	CreateCounterpart(ctx context.Context, c *Counterpart) error
}

// ImportBatchRepository tracks committed imports
type ImportBatchRepository interface {
	// CreateImportBatch records a committed import and returns its ID
	CreateImportBatch(ctx context.Context, batch *ImportBatch) (int64, error)

	// ListImportBatches returns recent batches for an account
	ListImportBatches(ctx context.Context, accountID string, limit int) ([]*ImportBatch, error)
}
