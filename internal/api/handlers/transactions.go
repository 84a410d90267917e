package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// TransactionsHandler handles transaction-related HTTP requests.
type TransactionsHandler struct {
	*Base
	repo storage.Repository
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo storage.Repository) *TransactionsHandler {
	return &TransactionsHandler{Base: &Base{}, repo: repo}
}

// List handles GET /api/transactions - returns paginated transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.TransactionFilters{
		AccountID: r.URL.Query().Get("account_id"),
		Search:    r.URL.Query().Get("search"),
		Limit:     ParseIntParam(r, "limit", 50),
		Offset:    ParseIntParam(r, "offset", 0),
	}
	if v := r.URL.Query().Get("reconciled"); v != "" {
		reconciled := v == "true" || v == "1"
		filters.Reconciled = &reconciled
	}

	result, err := h.repo.ListTransactions(r.Context(), OrgID(r), filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.RequireTransaction(w, r, h.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, txn)
}

// Delete handles DELETE /api/transactions/{id}. Only unreconciled
// transactions may be deleted.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.RequireTransaction(w, r, h.repo, id); !ok {
		return
	}

	err := h.repo.DeleteTransaction(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
	case errors.Is(err, storage.ErrReconciled):
		h.WriteError(w, http.StatusConflict, dto.ConflictError("reconciled transactions cannot be deleted"))
	case err != nil:
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetChecked handles PUT /api/transactions/{id}/checked.
func (h *TransactionsHandler) SetChecked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.SetCheckedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if _, ok := h.RequireTransaction(w, r, h.repo, id); !ok {
		return
	}

	err := h.repo.SetChecked(r.Context(), id, req.Checked)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
