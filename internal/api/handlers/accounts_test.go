package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/api/handlers"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

func TestAccountsHandler_List(t *testing.T) {
	t.Run("returns empty list when no accounts", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewAccountsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("scopes to the acting organization", func(t *testing.T) {
		repo := storage.NewMockRepository()
		ctx := context.Background()
		require.NoError(t, repo.CreateAccount(ctx, &storage.BankAccount{
			ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
		}))
		require.NoError(t, repo.CreateAccount(ctx, &storage.BankAccount{
			ID: "acct-2", OrgID: "org-2", Name: "Foreign", Currency: "EUR",
		}))
		handler := handlers.NewAccountsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var accounts []*storage.BankAccount
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&accounts))
		require.Len(t, accounts, 1)
		assert.Equal(t, "acct-1", accounts[0].ID)
	})
}

func TestAccountsHandler_Get(t *testing.T) {
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.BankAccount{
		ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
	}))
	handler := handlers.NewAccountsHandler(repo)

	t.Run("returns account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "accountID", "acct-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var account storage.BankAccount
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
		assert.Equal(t, "Current", account.Name)
	})

	t.Run("404 for another organization's account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "accountID", "acct-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("404 for unknown account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/nope", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "accountID", "nope"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeNotFound, apiErr.Code)
	})
}

func TestAccountsHandler_Create(t *testing.T) {
	t.Run("creates account", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewAccountsHandler(repo)

		body := `{"name":"Business Current","account_number":"12345678","currency":"GBP"}`
		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var account storage.BankAccount
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
		assert.NotEmpty(t, account.ID)
		assert.Equal(t, "org-1", account.OrgID)
		assert.Equal(t, "Business Current", account.Name)
		assert.Equal(t, "GBP", account.Currency)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		handler := handlers.NewAccountsHandler(storage.NewMockRepository())

		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"currency":"EUR"}`))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		handler := handlers.NewAccountsHandler(storage.NewMockRepository())

		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAccountsHandler_Stats(t *testing.T) {
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.BankAccount{
		ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
	}))
	repo.AddTransaction(&storage.Transaction{ID: "txn-1", AccountID: "acct-1"})
	handler := handlers.NewAccountsHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Org-ID", "org-1")
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats storage.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Equal(t, 1, stats.UnreconciledCount)
}

// Helper to set chi URL param in context
func setChiURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}
