package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/domain/reconcile"
	"github.com/finledger/bankfeed/internal/domain/suggest"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/config"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/scheduler"
	"github.com/finledger/bankfeed/internal/statement"
)

func newTestServer(t *testing.T) (*Server, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	registry := providers.NewRegistry(nil)
	pipeline := importer.New(statement.DefaultRegistry(), repo, nil)

	server := NewServer(DefaultConfig(), Deps{
		Repo:         repo,
		Pipeline:     pipeline,
		Suggester:    suggest.New(repo, suggest.DefaultConfig(), nil),
		Coordinator:  reconcile.New(repo, nil),
		Orchestrator: connect.New(registry, repo, nil),
		Scheduler: scheduler.New(config.SchedulerConfig{
			SyncEvery:       6 * time.Hour,
			Workers:         1,
			ProviderTimeout: time.Second,
		}, registry, pipeline, repo, nil),
	}, nil)
	return server, repo
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health dto.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Timestamp)
}

func TestServer_RoutesWired(t *testing.T) {
	server, repo := newTestServer(t)
	require.NoError(t, repo.CreateAccount(context.Background(), &storage.BankAccount{
		ID: "acct-1", OrgID: "org-1", Name: "Current", Currency: "EUR",
	}))

	t.Run("url params reach handlers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1", nil)
		req.Header.Set("X-Org-ID", "org-1")
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var account storage.BankAccount
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
		assert.Equal(t, "acct-1", account.ID)
	})

	t.Run("unknown route is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cors headers on allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_Shutdown_WithoutStart(t *testing.T) {
	server, _ := newTestServer(t)
	assert.NoError(t, server.Shutdown(context.Background()))
}
