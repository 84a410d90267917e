package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/api/handlers"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

func newTransactionsRepo(t *testing.T) *storage.MockRepository {
	t.Helper()
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.BankAccount{
		ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
	}))
	return repo
}

func addTxn(repo *storage.MockRepository, id, amount string, reconciled bool) {
	repo.AddTransaction(&storage.Transaction{
		ID:           id,
		AccountID:    "acct-1",
		Date:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString(amount),
		Currency:     "EUR",
		Reference:    "REF " + id,
		Fingerprint:  "fp-" + id,
		IsReconciled: reconciled,
	})
}

func TestTransactionsHandler_List(t *testing.T) {
	t.Run("empty result uses default pagination", func(t *testing.T) {
		handler := handlers.NewTransactionsHandler(newTransactionsRepo(t))

		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var result storage.TransactionListResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.Equal(t, 0, result.TotalCount)
		assert.Equal(t, 50, result.Limit)
	})

	t.Run("reconciled filter", func(t *testing.T) {
		repo := newTransactionsRepo(t)
		addTxn(repo, "txn-open", "-10.00", false)
		addTxn(repo, "txn-done", "-20.00", true)
		handler := handlers.NewTransactionsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/transactions?reconciled=false", nil)
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var result storage.TransactionListResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		require.Len(t, result.Transactions, 1)
		assert.Equal(t, "txn-open", result.Transactions[0].ID)
	})
}

func TestTransactionsHandler_Get(t *testing.T) {
	repo := newTransactionsRepo(t)
	addTxn(repo, "txn-1", "-42.50", false)
	handler := handlers.NewTransactionsHandler(repo)

	t.Run("returns transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions/txn-1", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var txn storage.Transaction
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&txn))
		assert.Equal(t, "-42.5", txn.Amount.String())
	})

	t.Run("404 for unknown transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions/nope", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTransactionsHandler_Delete(t *testing.T) {
	repo := newTransactionsRepo(t)
	addTxn(repo, "txn-open", "-10.00", false)
	addTxn(repo, "txn-done", "-20.00", true)
	handler := handlers.NewTransactionsHandler(repo)

	t.Run("deletes unreconciled transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/transactions/txn-open", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-open"))
		rec := httptest.NewRecorder()

		handler.Delete(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("409 for reconciled transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/transactions/txn-done", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-done"))
		rec := httptest.NewRecorder()

		handler.Delete(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeConflict, apiErr.Code)
	})

	t.Run("404 for unknown transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/transactions/nope", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTransactionsHandler_SetChecked(t *testing.T) {
	repo := newTransactionsRepo(t)
	addTxn(repo, "txn-1", "-10.00", false)
	handler := handlers.NewTransactionsHandler(repo)

	t.Run("sets the flag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/transactions/txn-1/checked",
			strings.NewReader(`{"checked":true}`))
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.SetChecked(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		txn, err := repo.GetTransaction(context.Background(), "txn-1")
		require.NoError(t, err)
		assert.True(t, txn.IsChecked)
	})

	t.Run("404 for unknown transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/transactions/nope/checked",
			strings.NewReader(`{"checked":true}`))
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.SetChecked(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/transactions/txn-1/checked",
			strings.NewReader("{oops"))
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.SetChecked(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransactionsHandler_CrossOrgHidden(t *testing.T) {
	repo := newTransactionsRepo(t)
	addTxn(repo, "txn-1", "-42.50", false)
	handler := handlers.NewTransactionsHandler(repo)

	t.Run("get is 404 for another organization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions/txn-1", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete is 404 and leaves the transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/transactions/txn-1", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		_, err := repo.GetTransaction(context.Background(), "txn-1")
		require.NoError(t, err)
	})

	t.Run("checked toggle is 404 and leaves the flag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/transactions/txn-1/checked",
			strings.NewReader(`{"checked":true}`))
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "txn-1"))
		rec := httptest.NewRecorder()

		handler.SetChecked(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		txn, err := repo.GetTransaction(context.Background(), "txn-1")
		require.NoError(t, err)
		assert.False(t, txn.IsChecked)
	})
}
