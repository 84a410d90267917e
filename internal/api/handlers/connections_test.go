package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/api/handlers"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/config"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/scheduler"
	"github.com/finledger/bankfeed/internal/statement"
)

func newConnectionsHandler(t *testing.T) (*handlers.ConnectionsHandler, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.BankAccount{
		ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
	}))

	registry := providers.NewRegistry(nil)
	orchestrator := connect.New(registry, repo, nil)
	pipeline := importer.New(statement.DefaultRegistry(), repo, nil)
	sched := scheduler.New(config.SchedulerConfig{
		SyncEvery:       6 * time.Hour,
		Workers:         1,
		ProviderTimeout: time.Second,
	}, registry, pipeline, repo, nil)

	return handlers.NewConnectionsHandler(orchestrator, sched, repo), repo
}

func seedConnection(t *testing.T, repo *storage.MockRepository, id, status string) {
	t.Helper()
	require.NoError(t, repo.CreateConnection(context.Background(), &storage.Connection{
		ID:              id,
		OrgID:           "org-1",
		Provider:        "bankdata",
		InstitutionID:   "inst-1",
		InstitutionName: "Test Bank",
		AccountID:       "acct-1",
		Status:          status,
		SyncEnabled:     true,
	}))
}

func TestConnectionsHandler_ListProviders(t *testing.T) {
	handler, _ := newConnectionsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	rec := httptest.NewRecorder()

	handler.ListProviders(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestConnectionsHandler_Start(t *testing.T) {
	t.Run("404 for unknown provider", func(t *testing.T) {
		handler, _ := newConnectionsHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/connections/requests",
			strings.NewReader(`{"provider":"nope"}`))
		rec := httptest.NewRecorder()

		handler.Start(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("400 without provider", func(t *testing.T) {
		handler, _ := newConnectionsHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/connections/requests",
			strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.Start(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConnectionsHandler_GetRequest(t *testing.T) {
	handler, _ := newConnectionsHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/connections/requests/ghost-token", nil)
	req = req.WithContext(setChiURLParam(req.Context(), "token", "ghost-token"))
	rec := httptest.NewRecorder()

	handler.GetRequest(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectionsHandler_List(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		handler, _ := newConnectionsHandler(t)

		req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("scoped to organization", func(t *testing.T) {
		handler, repo := newConnectionsHandler(t)
		seedConnection(t, repo, "conn-1", storage.ConnectionActive)

		req := httptest.NewRequest(http.MethodGet, "/api/connections", nil)
		req.Header.Set("X-Org-ID", "org-2")
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

func TestConnectionsHandler_Get(t *testing.T) {
	handler, repo := newConnectionsHandler(t)
	seedConnection(t, repo, "conn-1", storage.ConnectionActive)

	t.Run("returns connection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/connections/conn-1", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var conn storage.Connection
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&conn))
		assert.Equal(t, "Test Bank", conn.InstitutionName)
	})

	t.Run("404 for unknown connection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/connections/nope", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestConnectionsHandler_Sync(t *testing.T) {
	t.Run("404 for unknown connection", func(t *testing.T) {
		handler, _ := newConnectionsHandler(t)

		req := httptest.NewRequest(http.MethodPost, "/api/connections/nope/sync", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "nope"))
		rec := httptest.NewRecorder()

		handler.Sync(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("409 for pending connection", func(t *testing.T) {
		handler, repo := newConnectionsHandler(t)
		seedConnection(t, repo, "conn-pending", storage.ConnectionPending)

		req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-pending/sync", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-pending"))
		rec := httptest.NewRecorder()

		handler.Sync(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		var apiErr dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Equal(t, dto.ErrCodeConflict, apiErr.Code)
	})

	t.Run("502 when the provider is missing", func(t *testing.T) {
		handler, repo := newConnectionsHandler(t)
		seedConnection(t, repo, "conn-1", storage.ConnectionActive)

		req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/sync", nil)
		req.Header.Set("X-Org-ID", "org-1")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.Sync(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestConnectionsHandler_SetSyncEnabled(t *testing.T) {
	handler, repo := newConnectionsHandler(t)
	seedConnection(t, repo, "conn-1", storage.ConnectionActive)

	req := httptest.NewRequest(http.MethodPut, "/api/connections/conn-1/sync-enabled",
		strings.NewReader(`{"enabled":false}`))
	req.Header.Set("X-Org-ID", "org-1")
	req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
	rec := httptest.NewRecorder()

	handler.SetSyncEnabled(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	conn, err := repo.GetConnection(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.False(t, conn.SyncEnabled)
}

func TestConnectionsHandler_Delete(t *testing.T) {
	handler, repo := newConnectionsHandler(t)
	seedConnection(t, repo, "conn-1", storage.ConnectionActive)

	req := httptest.NewRequest(http.MethodDelete, "/api/connections/conn-1", nil)
	req.Header.Set("X-Org-ID", "org-1")
	req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := repo.GetConnection(context.Background(), "conn-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConnectionsHandler_CrossOrgHidden(t *testing.T) {
	handler, repo := newConnectionsHandler(t)
	seedConnection(t, repo, "conn-1", storage.ConnectionActive)

	t.Run("get is 404 for another organization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/connections/conn-1", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sync is 404 for another organization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/connections/conn-1/sync", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.Sync(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sync toggle is 404 and leaves the flag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/connections/conn-1/sync-enabled",
			strings.NewReader(`{"enabled":false}`))
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.SetSyncEnabled(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		conn, err := repo.GetConnection(context.Background(), "conn-1")
		require.NoError(t, err)
		assert.True(t, conn.SyncEnabled)
	})

	t.Run("delete is 404 and leaves the connection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/connections/conn-1", nil)
		req.Header.Set("X-Org-ID", "org-2")
		req = req.WithContext(setChiURLParam(req.Context(), "id", "conn-1"))
		rec := httptest.NewRecorder()

		handler.Delete(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		_, err := repo.GetConnection(context.Background(), "conn-1")
		require.NoError(t, err)
	})
}
