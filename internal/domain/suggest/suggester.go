// Package suggest proposes candidate matches for unreconciled bank
// transactions.
//
// Scoring combines amount proximity, date proximity, and counterparty
// name similarity into a weighted sum; amount dominates. Suggestion is a
// read-only, repeatable query: it never mutates state.
//
// Example usage:
//
//	s := suggest.New(store, suggest.DefaultConfig(), logger)
//	candidates, err := s.Suggest(ctx, transactionID)
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// Store is the storage surface the suggester needs.
type Store interface {
	storage.AccountRepository
	storage.TransactionRepository
	storage.CounterpartRepository
}

// Suggester scores counterpart candidates for transactions.
type Suggester struct {
	store  Store
	config Config
	logger *slog.Logger
}

// New creates a suggester with the given config.
func New(store Store, config Config, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{store: store, config: config, logger: logger}
}

// Suggest returns candidate matches for a transaction, ordered by
// descending score. The pool is scoped to the transaction's organization
// and to open counterparts only.
func (s *Suggester) Suggest(ctx context.Context, transactionID string) ([]Candidate, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("resolving transaction %s: %w", transactionID, err)
	}

	account, err := s.store.GetAccount(ctx, txn.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolving account %s: %w", txn.AccountID, err)
	}

	pool, err := s.store.ListOpenCounterparts(ctx, account.OrgID)
	if err != nil {
		return nil, fmt.Errorf("loading candidate pool: %w", err)
	}

	var candidates []Candidate
	for _, c := range pool {
		score, ok := s.score(txn, c)
		if !ok || score < s.config.MinScore {
			continue
		}
		candidates = append(candidates, Candidate{
			Type:        c.Type,
			ID:          c.ID,
			Reference:   c.Reference,
			Name:        c.Name,
			Amount:      c.Amount,
			OpenBalance: c.OpenBalance,
			Date:        c.Date,
			Score:       score,
			Tier:        TierForScore(score),
			Version:     c.Version,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

// score computes the combined score for one candidate. The second return
// is false when the candidate falls outside the amount tolerance band and
// must be excluded entirely.
//
// The name component only participates when both sides carry a name;
// otherwise its weight is dropped and the remaining weights renormalized,
// so a nameless transaction with an exact amount and same-day date still
// reaches the top tier.
func (s *Suggester) score(txn *storage.Transaction, c *storage.Counterpart) (float64, bool) {
	amountScore, ok := s.amountScore(txn, c)
	if !ok {
		return 0, false
	}
	dateScore := s.dateScore(txn, c)

	sum := amountWeight*amountScore + dateWeight*dateScore
	used := amountWeight + dateWeight

	if normalizeName(txn.Counterparty) != "" && normalizeName(c.Name) != "" {
		sum += nameWeight * nameSimilarity(txn.Counterparty, c.Name)
		used += nameWeight
	}

	return sum / used, true
}

// amountScore compares the transaction's absolute amount against the
// candidate's open balance. Exact equality scores 1.0; the score decays
// linearly across the tolerance band; outside the band the candidate is
// excluded.
func (s *Suggester) amountScore(txn *storage.Transaction, c *storage.Counterpart) (float64, bool) {
	target := txn.Amount.Abs()
	if target.IsZero() {
		return 0, false
	}

	diff := target.Sub(c.OpenBalance.Abs()).Abs()
	if diff.IsZero() {
		return 1.0, true
	}

	ratio, _ := diff.Div(target).Float64()
	if ratio > s.config.AmountTolerance {
		return 0, false
	}
	return 1.0 - ratio/s.config.AmountTolerance, true
}

// dateScore decays from 1.0 at same-day to a floor over the configured
// window. Past the window the component is zero, but the candidate stays
// in the pool: a strong amount or name can still carry it.
func (s *Suggester) dateScore(txn *storage.Transaction, c *storage.Counterpart) float64 {
	days := math.Abs(txn.Date.Sub(c.Date).Hours() / 24)
	window := float64(s.config.DateWindowDays)
	if days >= window {
		return 0
	}
	return 1.0 - (1.0-dateFloor)*(days/window)
}

// nameSimilarity scores counterparty names: normalized exact match is
// 1.0, a token-subset match is 0.6, otherwise a Levenshtein ratio with
// weak matches cut to zero.
func nameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if tokenSubset(na, nb) || tokenSubset(nb, na) {
		return 0.6
	}

	ratio := levenshtein.RatioForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
	if ratio < 0.5 {
		return 0
	}
	return ratio * 0.6
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenSubset reports whether every token of sub occurs in full.
func tokenSubset(sub, full string) bool {
	fullTokens := make(map[string]bool)
	for _, t := range strings.Fields(full) {
		fullTokens[t] = true
	}
	for _, t := range strings.Fields(sub) {
		if !fullTokens[t] {
			return false
		}
	}
	return true
}
