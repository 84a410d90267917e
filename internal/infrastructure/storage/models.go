package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is an account transactions are imported into.
type BankAccount struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Name          string    `json:"name"`
	AccountNumber string    `json:"account_number,omitempty"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// Transaction is a persisted bank transaction.
//
// Amount and Date never change after import. IsReconciled is set only by a
// committed reconciliation; IsChecked marks human review without one.
type Transaction struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"account_id"`
	Date           time.Time        `json:"date"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	Reference      string           `json:"reference"`
	Counterparty   string           `json:"counterparty,omitempty"`
	Fingerprint    string           `json:"-"`
	RunningBalance *decimal.Decimal `json:"running_balance,omitempty"`
	IsReconciled   bool             `json:"is_reconciled"`
	IsChecked      bool             `json:"is_checked"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Connection statuses.
const (
	ConnectionPending = "pending"
	ConnectionActive  = "active"
	ConnectionExpired = "expired"
	ConnectionError   = "error"
)

// Connection is a live link to a bank through an aggregator.
type Connection struct {
	ID              string     `json:"id"`
	OrgID           string     `json:"org_id"`
	Provider        string     `json:"provider"`
	InstitutionID   string     `json:"institution_id"`
	InstitutionName string     `json:"institution_name"`
	InstitutionLogo string     `json:"institution_logo,omitempty"`
	AccountID       string     `json:"account_id"`
	RequisitionID   string     `json:"requisition_id,omitempty"`
	Status          string     `json:"status"`
	SyncEnabled     bool       `json:"sync_enabled"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt      *time.Time `json:"next_sync_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Counterpart types a reconciliation entry may reference.
const (
	CounterpartInvoice   = "invoice"
	CounterpartPayment   = "payment"
	CounterpartRecurring = "recurring"
)

// Counterpart is an open invoice, unapplied payment, or active recurring
// model eligible for matching.
type Counterpart struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	Reference   string          `json:"reference"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	OpenBalance decimal.Decimal `json:"open_balance"`
	Date        time.Time       `json:"date"`
	Version     int64           `json:"-"`
}

// ReconciliationEntry allocates part of a transaction to one counterpart.
type ReconciliationEntry struct {
	CounterpartType string          `json:"counterpart_type"`
	CounterpartID   string          `json:"counterpart_id"`
	Allocated       decimal.Decimal `json:"allocated"`
}

// Reconciliation is the committed match set for one transaction.
type Reconciliation struct {
	TransactionID string                `json:"transaction_id"`
	Residual      decimal.Decimal       `json:"residual"`
	Entries       []ReconciliationEntry `json:"entries"`
	CreatedAt     time.Time             `json:"created_at"`
}

// ImportBatch records one committed statement import.
type ImportBatch struct {
	ID          int64           `json:"id"`
	AccountID   string          `json:"account_id"`
	FileName    string          `json:"file_name"`
	Format      string          `json:"format"`
	Imported    int             `json:"imported"`
	Skipped     int             `json:"skipped"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Stats holds aggregate counts for an organization.
type Stats struct {
	TotalTransactions   int             `json:"total_transactions"`
	ReconciledCount     int             `json:"reconciled_count"`
	UnreconciledCount   int             `json:"unreconciled_count"`
	ActiveConnections   int             `json:"active_connections"`
	TotalImportBatches  int             `json:"total_import_batches"`
	UnreconciledAmount  decimal.Decimal `json:"unreconciled_amount"`
}

// TransactionFilters defines filters for listing transactions
type TransactionFilters struct {
	AccountID      string // Filter by account (empty = all in org)
	Reconciled     *bool  // Filter by reconciliation state (nil = all)
	Search         string // Substring match on reference/counterparty
	Limit          int    // Max results (0 = default 50)
	Offset         int    // Pagination offset
}

// TransactionListResult contains paginated transaction results
type TransactionListResult struct {
	Transactions []*Transaction `json:"transactions"`
	TotalCount   int            `json:"total_count"`
	Limit        int            `json:"limit"`
	Offset       int            `json:"offset"`
}
