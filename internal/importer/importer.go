// Package importer orchestrates statement imports: preview (parse only)
// and commit (parse, deduplicate, persist, recompute balances).
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/statement"
)

// Result summarizes a committed import.
type Result struct {
	Imported    int             `json:"imported"`
	Skipped     int             `json:"skipped"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Store is the storage surface the pipeline needs.
type Store interface {
	storage.AccountRepository
	storage.TransactionRepository
	storage.ImportBatchRepository
}

// Pipeline imports statement files into accounts.
type Pipeline struct {
	parsers *statement.Registry
	store   Store
	logger  *slog.Logger

	// Per-account commit serialization keeps running-balance computation
	// correct under concurrent imports of overlapping date ranges.
	accountLocks map[string]*sync.Mutex
	locksMutex   sync.Mutex
}

// New creates an import pipeline.
func New(parsers *statement.Registry, store Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		parsers:      parsers,
		store:        store,
		logger:       logger,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// Preview parses a statement file without touching storage. It is pure
// and may be repeated any number of times.
func (p *Pipeline) Preview(_ context.Context, data []byte, formatHint string) (*statement.Preview, error) {
	return p.parsers.Parse(data, formatHint)
}

// Commit parses a statement file, discards transactions whose fingerprint
// already exists for the account, persists the remainder in one atomic
// batch, and recomputes running balances chronologically from the last
// known balance. Re-committing the same file skips everything.
func (p *Pipeline) Commit(ctx context.Context, accountID, fileName string, data []byte, formatHint string) (*Result, error) {
	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolving account %s: %w", accountID, err)
	}

	preview, err := p.parsers.Parse(data, formatHint)
	if err != nil {
		return nil, err
	}

	return p.CommitDecoded(ctx, account, fileName, preview)
}

// CommitDecoded persists already-decoded transactions. Provider syncs use
// this entry point so file imports and live feeds share one dedup path.
func (p *Pipeline) CommitDecoded(ctx context.Context, account *storage.BankAccount, source string, preview *statement.Preview) (*Result, error) {
	unlock := p.lockAccount(account.ID)
	defer unlock()

	existing, err := p.store.ListFingerprints(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("loading fingerprints: %w", err)
	}

	result := &Result{TotalAmount: decimal.Zero}
	var fresh []*storage.Transaction
	seen := make(map[string]bool, len(preview.Transactions))

	for _, decoded := range preview.Transactions {
		fp := Fingerprint(account.ID, decoded.Date, decoded.Amount, decoded.Reference)
		if existing[fp] || seen[fp] {
			result.Skipped++
			continue
		}
		seen[fp] = true

		currency := decoded.Currency
		if currency == "" {
			currency = account.Currency
		}
		fresh = append(fresh, &storage.Transaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Date:         decoded.Date,
			Amount:       decoded.Amount,
			Currency:     currency,
			Reference:    decoded.Reference,
			Counterparty: decoded.Counterparty,
			Fingerprint:  fp,
		})
	}

	backfill, err := p.detectBackfill(ctx, account, fresh)
	if err != nil {
		return nil, err
	}
	if !backfill {
		if err := p.applyRunningBalances(ctx, account.ID, preview, fresh); err != nil {
			return nil, err
		}
	}

	// All-or-nothing: a failure here leaves nothing from this batch behind.
	if err := p.store.InsertTransactions(ctx, fresh); err != nil {
		return nil, fmt.Errorf("persisting batch: %w", err)
	}

	if backfill {
		if err := p.recomputeBalances(ctx, account, preview.OpeningBalance); err != nil {
			return nil, fmt.Errorf("recomputing balances: %w", err)
		}
	}

	for _, t := range fresh {
		result.TotalAmount = result.TotalAmount.Add(t.Amount)
	}
	result.Imported = len(fresh)

	if _, err := p.store.CreateImportBatch(ctx, &storage.ImportBatch{
		AccountID:   account.ID,
		FileName:    source,
		Format:      preview.Format,
		Imported:    result.Imported,
		Skipped:     result.Skipped,
		TotalAmount: result.TotalAmount,
	}); err != nil {
		// The transactions are committed; a lost history row is not
		// worth failing the import over.
		p.logger.Warn("recording import batch failed",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()))
	}

	p.logger.Info("statement committed",
		slog.String("account_id", account.ID),
		slog.String("format", preview.Format),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))

	return result, nil
}

// applyRunningBalances orders the fresh batch chronologically and assigns
// each transaction a running balance continuing from the last known one.
func (p *Pipeline) applyRunningBalances(ctx context.Context, accountID string, preview *statement.Preview, fresh []*storage.Transaction) error {
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Date.Before(fresh[j].Date)
	})

	base, err := p.store.LastRunningBalance(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading last balance: %w", err)
	}

	balance := decimal.Zero
	switch {
	case base != nil:
		balance = *base
	case preview.OpeningBalance != nil:
		balance = *preview.OpeningBalance
	}

	for _, t := range fresh {
		balance = balance.Add(t.Amount)
		b := balance
		t.RunningBalance = &b
	}
	return nil
}

// detectBackfill reports whether the fresh batch contains transactions
// dated before the account's latest persisted one. Appending from the
// last known balance is wrong in that case: every balance after the
// insertion point is invalidated.
func (p *Pipeline) detectBackfill(ctx context.Context, account *storage.BankAccount, fresh []*storage.Transaction) (bool, error) {
	if len(fresh) == 0 {
		return false, nil
	}

	head, err := p.store.ListTransactions(ctx, account.OrgID, storage.TransactionFilters{
		AccountID: account.ID,
		Limit:     1,
	})
	if err != nil {
		return false, fmt.Errorf("checking balance chain: %w", err)
	}
	if len(head.Transactions) == 0 {
		return false, nil
	}

	earliest := fresh[0].Date
	for _, t := range fresh[1:] {
		if t.Date.Before(earliest) {
			earliest = t.Date
		}
	}
	return earliest.Before(head.Transactions[0].Date), nil
}

// recomputeBalances rebuilds the account's running balances in date order
// after a backfill, starting from the statement's opening balance when it
// carries one and from zero otherwise.
func (p *Pipeline) recomputeBalances(ctx context.Context, account *storage.BankAccount, opening *decimal.Decimal) error {
	head, err := p.store.ListTransactions(ctx, account.OrgID, storage.TransactionFilters{
		AccountID: account.ID,
		Limit:     1,
	})
	if err != nil {
		return fmt.Errorf("counting transactions: %w", err)
	}

	all, err := p.store.ListTransactions(ctx, account.OrgID, storage.TransactionFilters{
		AccountID: account.ID,
		Limit:     head.TotalCount,
	})
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}

	balance := decimal.Zero
	if opening != nil {
		balance = *opening
	}

	// The listing is newest first; walk it backwards for the chain.
	txns := all.Transactions
	balances := make(map[string]decimal.Decimal, len(txns))
	for i := len(txns) - 1; i >= 0; i-- {
		balance = balance.Add(txns[i].Amount)
		balances[txns[i].ID] = balance
	}
	return p.store.SetRunningBalances(ctx, balances)
}

// lockAccount serializes commits per account. Commits for different
// accounts proceed independently.
func (p *Pipeline) lockAccount(accountID string) func() {
	p.locksMutex.Lock()
	mu, ok := p.accountLocks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		p.accountLocks[accountID] = mu
	}
	p.locksMutex.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Since resolves the fetch-window start for a provider sync: the last
// successful sync time, or 90 days back for a connection that has never
// synced.
func Since(lastSyncAt *time.Time, now time.Time) time.Time {
	if lastSyncAt != nil {
		return *lastSyncAt
	}
	return now.AddDate(0, 0, -90)
}
