package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated. All methods
// are safe for concurrent use so scheduler and reconciliation tests can
// exercise it from multiple goroutines.
type MockRepository struct {
	mu sync.Mutex

	accounts        map[string]*BankAccount
	transactions    map[string]*Transaction
	connections     map[string]*Connection
	counterparts    map[string]*Counterpart // keyed by type+"/"+id
	reconciliations map[string]*Reconciliation
	batches         []*ImportBatch
	nextBatchID     int64

	// Hooks for test assertions
	InsertTransactionsCalled bool
	LastInsertedBatch        []*Transaction
	CommitCalled             bool
	LastCommit               *Reconciliation

	// Error injection for testing error paths
	InsertTransactionsErr error
	GetTransactionErr     error
	CommitErr             error
	CreateBatchErr        error
	ListDueErr            error
	ActivateConnectionErr error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		accounts:        make(map[string]*BankAccount),
		transactions:    make(map[string]*Transaction),
		connections:     make(map[string]*Connection),
		counterparts:    make(map[string]*Counterpart),
		reconciliations: make(map[string]*Reconciliation),
		nextBatchID:     1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// CreateAccount stores an account in the in-memory map
func (m *MockRepository) CreateAccount(ctx context.Context, account *BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *account
	m.accounts[account.ID] = &copied
	return nil
}

// GetAccount retrieves an account by ID
func (m *MockRepository) GetAccount(ctx context.Context, id string) (*BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *account
	return &copied, nil
}

// ListAccounts returns all accounts for an organization
func (m *MockRepository) ListAccounts(ctx context.Context, orgID string) ([]*BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*BankAccount
	for _, a := range m.accounts {
		if a.OrgID != orgID {
			continue
		}
		copied := *a
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// InsertTransactions persists a batch atomically. Any fingerprint collision
// fails the whole batch, matching the SQLite implementation.
func (m *MockRepository) InsertTransactions(ctx context.Context, txns []*Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertTransactionsCalled = true
	m.LastInsertedBatch = txns
	if m.InsertTransactionsErr != nil {
		return m.InsertTransactionsErr
	}

	seen := make(map[string]bool)
	for _, t := range m.transactions {
		seen[t.AccountID+"\x00"+t.Fingerprint] = true
	}
	for _, t := range txns {
		key := t.AccountID + "\x00" + t.Fingerprint
		if seen[key] {
			return ErrDuplicateFingerprint
		}
		seen[key] = true
	}
	for _, t := range txns {
		copied := *t
		m.transactions[t.ID] = &copied
	}
	return nil
}

// GetTransaction retrieves a transaction by ID
func (m *MockRepository) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetTransactionErr != nil {
		return nil, m.GetTransactionErr
	}
	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// ListTransactions returns transactions matching the filters
func (m *MockRepository) ListTransactions(ctx context.Context, orgID string, filters TransactionFilters) (*TransactionListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matching []*Transaction
	for _, t := range m.transactions {
		account, ok := m.accounts[t.AccountID]
		if !ok || account.OrgID != orgID {
			continue
		}
		if filters.AccountID != "" && t.AccountID != filters.AccountID {
			continue
		}
		if filters.Reconciled != nil && t.IsReconciled != *filters.Reconciled {
			continue
		}
		if filters.Search != "" {
			q := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(t.Reference), q) &&
				!strings.Contains(strings.ToLower(t.Counterparty), q) {
				continue
			}
		}
		copied := *t
		matching = append(matching, &copied)
	}

	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].Date.Equal(matching[j].Date) {
			return matching[i].Date.After(matching[j].Date)
		}
		return matching[i].ID < matching[j].ID
	})

	limit := filters.Limit
	if limit == 0 {
		limit = 50
	}
	total := len(matching)
	start := filters.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &TransactionListResult{
		Transactions: matching[start:end],
		TotalCount:   total,
		Limit:        limit,
		Offset:       filters.Offset,
	}, nil
}

// ListFingerprints returns the fingerprints persisted for an account
func (m *MockRepository) ListFingerprints(ctx context.Context, accountID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]bool)
	for _, t := range m.transactions {
		if t.AccountID == accountID {
			result[t.Fingerprint] = true
		}
	}
	return result, nil
}

// LastRunningBalance returns the running balance of the latest transaction
func (m *MockRepository) LastRunningBalance(ctx context.Context, accountID string) (*decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Transaction
	for _, t := range m.transactions {
		if t.AccountID != accountID || t.RunningBalance == nil {
			continue
		}
		if latest == nil || t.Date.After(latest.Date) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	balance := *latest.RunningBalance
	return &balance, nil
}

// SetRunningBalances updates running balances for the given transactions
func (m *MockRepository) SetRunningBalances(ctx context.Context, balances map[string]decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, balance := range balances {
		t, ok := m.transactions[id]
		if !ok {
			return ErrNotFound
		}
		b := balance
		t.RunningBalance = &b
	}
	return nil
}

// SetChecked toggles the human-review flag
func (m *MockRepository) SetChecked(ctx context.Context, id string, checked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return ErrNotFound
	}
	t.IsChecked = checked
	return nil
}

// DeleteTransaction removes an unreconciled transaction
func (m *MockRepository) DeleteTransaction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return ErrNotFound
	}
	if t.IsReconciled {
		return ErrReconciled
	}
	delete(m.transactions, id)
	return nil
}

// GetStats returns aggregate statistics for an organization
func (m *MockRepository) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{}
	for _, t := range m.transactions {
		account, ok := m.accounts[t.AccountID]
		if !ok || account.OrgID != orgID {
			continue
		}
		stats.TotalTransactions++
		if t.IsReconciled {
			stats.ReconciledCount++
		} else {
			stats.UnreconciledCount++
			stats.UnreconciledAmount = stats.UnreconciledAmount.Add(t.Amount)
		}
	}
	for _, c := range m.connections {
		if c.OrgID == orgID && c.Status == ConnectionActive {
			stats.ActiveConnections++
		}
	}
	stats.TotalImportBatches = len(m.batches)
	return stats, nil
}

// CommitReconciliation mirrors the SQLite implementation's semantics:
// the transaction flip, every counterpart claim, and the reconciliation
// record either all apply or none do.
func (m *MockRepository) CommitReconciliation(ctx context.Context, rec *Reconciliation, claims []CounterpartClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalled = true
	m.LastCommit = rec
	if m.CommitErr != nil {
		return m.CommitErr
	}

	txn, ok := m.transactions[rec.TransactionID]
	if !ok {
		return ErrNotFound
	}
	if txn.IsReconciled {
		return ErrReconciled
	}

	// Validate every claim before mutating anything
	for _, claim := range claims {
		c, ok := m.counterparts[claim.Type+"/"+claim.ID]
		if !ok || c.Version != claim.Version {
			return ErrVersionConflict
		}
	}

	for _, claim := range claims {
		c := m.counterparts[claim.Type+"/"+claim.ID]
		c.OpenBalance = c.OpenBalance.Sub(claim.Allocated)
		if c.OpenBalance.IsNegative() {
			c.OpenBalance = decimal.Zero
		}
		c.Version++
	}

	txn.IsReconciled = true
	copied := *rec
	copied.Entries = append([]ReconciliationEntry(nil), rec.Entries...)
	m.reconciliations[rec.TransactionID] = &copied
	return nil
}

// GetReconciliation retrieves the reconciliation for a transaction
func (m *MockRepository) GetReconciliation(ctx context.Context, transactionID string) (*Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reconciliations[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// CreateConnection stores a connection
func (m *MockRepository) CreateConnection(ctx context.Context, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *conn
	m.connections[conn.ID] = &copied
	return nil
}

// GetConnection retrieves a connection by ID
func (m *MockRepository) GetConnection(ctx context.Context, id string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// ListConnections returns all connections for an organization
func (m *MockRepository) ListConnections(ctx context.Context, orgID string) ([]*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Connection
	for _, c := range m.connections {
		if c.OrgID != orgID {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListDueConnections returns active, sync-enabled connections due for sync
func (m *MockRepository) ListDueConnections(ctx context.Context, now time.Time) ([]*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListDueErr != nil {
		return nil, m.ListDueErr
	}
	var result []*Connection
	for _, c := range m.connections {
		if c.Status != ConnectionActive || !c.SyncEnabled {
			continue
		}
		if c.NextSyncAt != nil && c.NextSyncAt.After(now) {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateConnectionStatus sets status and error message
func (m *MockRepository) UpdateConnectionStatus(ctx context.Context, id, status, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.ErrorMessage = errorMessage
	return nil
}

// ActivateConnection transitions pending to active and records expiry
func (m *MockRepository) ActivateConnection(ctx context.Context, id string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ActivateConnectionErr != nil {
		return m.ActivateConnectionErr
	}
	c, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = ConnectionActive
	c.ErrorMessage = ""
	c.ExpiresAt = expiresAt
	return nil
}

// UpdateSyncTimes advances last_sync_at and next_sync_at
func (m *MockRepository) UpdateSyncTimes(ctx context.Context, id string, lastSyncAt, nextSyncAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	last := lastSyncAt
	next := nextSyncAt
	c.LastSyncAt = &last
	c.NextSyncAt = &next
	return nil
}

// SetSyncEnabled toggles scheduled syncing
func (m *MockRepository) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	c.SyncEnabled = enabled
	return nil
}

// DeleteConnection removes a connection
func (m *MockRepository) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return ErrNotFound
	}
	delete(m.connections, id)
	return nil
}

// ListOpenCounterparts returns counterparts with a positive open balance
func (m *MockRepository) ListOpenCounterparts(ctx context.Context, orgID string) ([]*Counterpart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Counterpart
	for _, c := range m.counterparts {
		if c.OrgID != orgID || !c.OpenBalance.IsPositive() {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetCounterpart retrieves one counterpart by type and ID
func (m *MockRepository) GetCounterpart(ctx context.Context, counterpartType, id string) (*Counterpart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counterparts[counterpartType+"/"+id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

// CreateCounterpart stores a counterpart
func (m *MockRepository) CreateCounterpart(ctx context.Context, c *Counterpart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *c
	m.counterparts[c.Type+"/"+c.ID] = &copied
	return nil
}

// CreateImportBatch records a committed import and returns its ID
func (m *MockRepository) CreateImportBatch(ctx context.Context, batch *ImportBatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateBatchErr != nil {
		return 0, m.CreateBatchErr
	}
	copied := *batch
	copied.ID = m.nextBatchID
	m.nextBatchID++
	m.batches = append(m.batches, &copied)
	return copied.ID, nil
}

// ListImportBatches returns recent batches for an account, newest first
func (m *MockRepository) ListImportBatches(ctx context.Context, accountID string, limit int) ([]*ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit == 0 {
		limit = 20
	}
	var result []*ImportBatch
	for i := len(m.batches) - 1; i >= 0; i-- {
		b := m.batches[i]
		if b.AccountID != accountID {
			continue
		}
		copied := *b
		result = append(result, &copied)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Helper methods for test setup

// AddTransaction adds a transaction directly (for test setup)
func (m *MockRepository) AddTransaction(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.transactions[t.ID] = &copied
}

// AllTransactions returns all stored transactions (for assertions)
func (m *MockRepository) AllTransactions() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		copied := *t
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
