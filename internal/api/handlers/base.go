package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct{}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// OrgID returns the acting organization supplied by the session layer.
// The auth middleware in front of this API sets the header; a bare
// deployment falls back to a single default organization.
func OrgID(r *http.Request) string {
	if org := r.Header.Get("X-Org-ID"); org != "" {
		return org
	}
	return "default"
}

// RequireAccount loads an account and verifies it belongs to the acting
// organization, writing the error response itself. Foreign resources are
// reported as missing so IDs cannot be probed across organizations.
func (b *Base) RequireAccount(w http.ResponseWriter, r *http.Request, repo storage.AccountRepository, id string) (*storage.BankAccount, bool) {
	account, err := repo.GetAccount(r.Context(), id)
	if err == nil && account.OrgID != OrgID(r) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("account"))
		return nil, false
	}
	if err != nil {
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil, false
	}
	return account, true
}

// RequireTransaction loads a transaction and verifies its account belongs
// to the acting organization.
func (b *Base) RequireTransaction(w http.ResponseWriter, r *http.Request, repo storage.Repository, id string) (*storage.Transaction, bool) {
	txn, err := repo.GetTransaction(r.Context(), id)
	if err == nil {
		var owner *storage.BankAccount
		owner, err = repo.GetAccount(r.Context(), txn.AccountID)
		if err == nil && owner.OrgID != OrgID(r) {
			err = storage.ErrNotFound
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return nil, false
	}
	if err != nil {
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil, false
	}
	return txn, true
}

// RequireConnection loads a connection and verifies it belongs to the
// acting organization.
func (b *Base) RequireConnection(w http.ResponseWriter, r *http.Request, repo storage.ConnectionRepository, id string) (*storage.Connection, bool) {
	conn, err := repo.GetConnection(r.Context(), id)
	if err == nil && conn.OrgID != OrgID(r) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection"))
		return nil, false
	}
	if err != nil {
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil, false
	}
	return conn, true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
