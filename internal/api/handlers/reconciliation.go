package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/domain/reconcile"
	"github.com/finledger/bankfeed/internal/domain/suggest"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// ReconciliationHandler handles suggestion and reconciliation requests.
type ReconciliationHandler struct {
	*Base
	suggester   *suggest.Suggester
	coordinator *reconcile.Coordinator
	repo        storage.Repository
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(suggester *suggest.Suggester, coordinator *reconcile.Coordinator, repo storage.Repository) *ReconciliationHandler {
	return &ReconciliationHandler{
		Base:        &Base{},
		suggester:   suggester,
		coordinator: coordinator,
		repo:        repo,
	}
}

// Suggest handles GET /api/transactions/{id}/suggestions - returns
// ranked candidate matches.
func (h *ReconciliationHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.RequireTransaction(w, r, h.repo, id); !ok {
		return
	}

	candidates, err := h.suggester.Suggest(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if candidates == nil {
		candidates = []suggest.Candidate{}
	}
	h.WriteJSON(w, http.StatusOK, candidates)
}

// Reconcile handles POST /api/transactions/{id}/reconcile.
func (h *ReconciliationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if _, ok := h.RequireTransaction(w, r, h.repo, id); !ok {
		return
	}

	matches := make([]reconcile.Match, 0, len(req.Matches))
	for _, m := range req.Matches {
		matches = append(matches, reconcile.Match{
			Type:      m.Type,
			ID:        m.ID,
			Allocated: m.Allocated,
		})
	}

	rec, err := h.coordinator.Reconcile(r.Context(), id, matches)
	switch {
	case errors.Is(err, reconcile.ErrNoMatches):
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("at least one match is required"))
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
	case errors.Is(err, reconcile.ErrMatchNotFound):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, reconcile.ErrAlreadyReconciled):
		h.WriteError(w, http.StatusConflict, dto.ConflictError("transaction is already reconciled"))
	case errors.Is(err, reconcile.ErrMatchClaimed):
		h.WriteError(w, http.StatusConflict, dto.ConflictError("a match was claimed concurrently; refresh suggestions"))
	case err != nil:
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	default:
		h.WriteJSON(w, http.StatusCreated, dto.ReconcileResponse{
			TransactionID: id,
			Residual:      rec.Residual,
			Matches:       len(rec.Entries),
		})
	}
}

// GetReconciliation handles GET /api/transactions/{id}/reconciliation.
func (h *ReconciliationHandler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.RequireTransaction(w, r, h.repo, id); !ok {
		return
	}

	rec, err := h.repo.GetReconciliation(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("reconciliation"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, rec)
}
