// Package reconcile commits chosen candidate matches against a bank
// transaction.
//
// A reconciliation never demands exact coverage: the residual between the
// transaction amount and the sum of allocations is recorded, not rejected.
// What a nonzero residual means downstream is the caller's policy.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// Typed errors for the reconciliation contract.
var (
	// ErrAlreadyReconciled is returned when the transaction has a
	// committed reconciliation.
	ErrAlreadyReconciled = errors.New("transaction already reconciled")

	// ErrMatchNotFound is returned when a chosen match does not resolve
	// to a real, still-open counterpart.
	ErrMatchNotFound = errors.New("match not found")

	// ErrMatchClaimed is returned when a concurrent reconciliation
	// claimed a counterpart first. The caller should re-run suggestion.
	ErrMatchClaimed = errors.New("match claimed concurrently")

	// ErrNoMatches is returned when zero matches are supplied.
	ErrNoMatches = errors.New("no matches provided")
)

// Match is one chosen counterpart with its allocated amount.
type Match struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Allocated decimal.Decimal `json:"allocated"`
}

// Store is the storage surface the coordinator needs.
type Store interface {
	storage.AccountRepository
	storage.TransactionRepository
	storage.ReconciliationRepository
	storage.CounterpartRepository
}

// Coordinator validates and commits reconciliations.
type Coordinator struct {
	store  Store
	logger *slog.Logger
}

// New creates a coordinator.
func New(store Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, logger: logger}
}

// Reconcile validates the chosen matches and commits them atomically.
// On success the transaction is reconciled, each counterpart's open
// balance is decremented by its allocation, and the residual is recorded.
func (c *Coordinator) Reconcile(ctx context.Context, transactionID string, matches []Match) (*storage.Reconciliation, error) {
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	txn, err := c.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, err)
	}
	if err != nil {
		return nil, err
	}
	if txn.IsReconciled {
		return nil, ErrAlreadyReconciled
	}

	account, err := c.store.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolving account %s: %w", txn.AccountID, err)
	}

	claims := make([]storage.CounterpartClaim, 0, len(matches))
	entries := make([]storage.ReconciliationEntry, 0, len(matches))
	allocated := decimal.Zero

	for _, m := range matches {
		counterpart, err := c.store.GetCounterpart(ctx, m.Type, m.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrMatchNotFound, m.Type, m.ID)
		}
		if err != nil {
			return nil, err
		}
		// A counterpart from another organization or with nothing left
		// open is not a valid target.
		if counterpart.OrgID != account.OrgID || !counterpart.OpenBalance.IsPositive() {
			return nil, fmt.Errorf("%w: %s %s", ErrMatchNotFound, m.Type, m.ID)
		}

		claims = append(claims, storage.CounterpartClaim{
			Type:      m.Type,
			ID:        m.ID,
			Allocated: m.Allocated,
			Version:   counterpart.Version,
		})
		entries = append(entries, storage.ReconciliationEntry{
			CounterpartType: m.Type,
			CounterpartID:   m.ID,
			Allocated:       m.Allocated,
		})
		allocated = allocated.Add(m.Allocated)
	}

	rec := &storage.Reconciliation{
		TransactionID: transactionID,
		Residual:      txn.Amount.Abs().Sub(allocated),
		Entries:       entries,
	}

	err = c.store.CommitReconciliation(ctx, rec, claims)
	switch {
	case errors.Is(err, storage.ErrReconciled):
		return nil, ErrAlreadyReconciled
	case errors.Is(err, storage.ErrVersionConflict):
		return nil, fmt.Errorf("%w: %v", ErrMatchClaimed, err)
	case err != nil:
		return nil, err
	}

	c.logger.Info("transaction reconciled",
		slog.String("transaction_id", transactionID),
		slog.Int("matches", len(matches)),
		slog.String("residual", rec.Residual.String()))

	return rec, nil
}
