package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// AccountsHandler handles bank account requests.
type AccountsHandler struct {
	*Base
	repo storage.Repository
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(repo storage.Repository) *AccountsHandler {
	return &AccountsHandler{Base: &Base{}, repo: repo}
}

// List handles GET /api/accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.ListAccounts(r.Context(), OrgID(r))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if accounts == nil {
		accounts = []*storage.BankAccount{}
	}
	h.WriteJSON(w, http.StatusOK, accounts)
}

// Get handles GET /api/accounts/{accountID}.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, ok := h.RequireAccount(w, r, h.repo, chi.URLParam(r, "accountID"))
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, account)
}

// Create handles POST /api/accounts.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.Name == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("name is required"))
		return
	}

	account := &storage.BankAccount{
		ID:            uuid.NewString(),
		OrgID:         OrgID(r),
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
		Currency:      req.Currency,
	}
	if err := h.repo.CreateAccount(r.Context(), account); err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusCreated, account)
}

// Stats handles GET /api/stats.
func (h *AccountsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats(r.Context(), OrgID(r))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}
