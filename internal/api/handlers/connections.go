package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/scheduler"
)

// ConnectionsHandler handles the connection lifecycle endpoints.
type ConnectionsHandler struct {
	*Base
	orchestrator *connect.Orchestrator
	scheduler    *scheduler.Scheduler
	repo         storage.Repository
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(orchestrator *connect.Orchestrator, sched *scheduler.Scheduler, repo storage.Repository) *ConnectionsHandler {
	return &ConnectionsHandler{
		Base:         &Base{},
		orchestrator: orchestrator,
		scheduler:    sched,
		repo:         repo,
	}
}

// ListProviders handles GET /api/providers - configured aggregators only.
func (h *ConnectionsHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.orchestrator.ListProviders())
}

// Start handles POST /api/connections/requests - begins a handshake.
func (h *ConnectionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.Provider == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("provider is required"))
		return
	}

	pending, err := h.orchestrator.Start(r.Context(), OrgID(r), req.Provider)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("provider"))
		return
	}
	h.WriteJSON(w, http.StatusCreated, toConnectionRequestResponse(pending))
}

// GetRequest handles GET /api/connections/requests/{token}.
func (h *ConnectionsHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	pending, err := h.orchestrator.GetRequest(chi.URLParam(r, "token"))
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection request"))
		return
	}
	h.WriteJSON(w, http.StatusOK, toConnectionRequestResponse(pending))
}

// SelectCountry handles POST /api/connections/requests/{token}/country.
// Responds with the institutions available in that country.
func (h *ConnectionsHandler) SelectCountry(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req dto.SelectCountryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Country == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("country is required"))
		return
	}

	institutions, err := h.orchestrator.SelectCountry(r.Context(), token, req.Country)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, institutions)
}

// SelectInstitution handles POST /api/connections/requests/{token}/institution.
func (h *ConnectionsHandler) SelectInstitution(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req dto.SelectInstitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstitutionID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("institution_id is required"))
		return
	}

	err := h.orchestrator.SelectInstitution(token, req.InstitutionID, req.InstitutionName, req.InstitutionLogo)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SelectAccount handles POST /api/connections/requests/{token}/account.
func (h *ConnectionsHandler) SelectAccount(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req dto.SelectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("account_id is required"))
		return
	}

	if err := h.orchestrator.SelectAccount(r.Context(), token, req.AccountID); err != nil {
		h.writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Initiate handles POST /api/connections/requests/{token}/initiate.
func (h *ConnectionsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req dto.InitiateConnectionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
			return
		}
	}

	outcome, err := h.orchestrator.Initiate(r.Context(), token, req.RedirectTarget)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, outcome)
}

// Confirm handles POST /api/connections/requests/{token}/confirm - the
// external confirmation step (redirect callback or webhook).
func (h *ConnectionsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	conn, err := h.orchestrator.Confirm(r.Context(), token)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, conn)
}

// List handles GET /api/connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.repo.ListConnections(r.Context(), OrgID(r))
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if conns == nil {
		conns = []*storage.Connection{}
	}
	h.WriteJSON(w, http.StatusOK, conns)
}

// Get handles GET /api/connections/{id}.
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.RequireConnection(w, r, h.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, conn)
}

// Sync handles POST /api/connections/{id}/sync - manual sync trigger.
func (h *ConnectionsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.RequireConnection(w, r, h.repo, id); !ok {
		return
	}

	result, err := h.scheduler.SyncConnection(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection"))
	case errors.Is(err, scheduler.ErrConnectionNotSyncable):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	case err != nil:
		h.WriteError(w, http.StatusBadGateway, dto.NewAPIError("provider_error", err.Error()))
	default:
		h.WriteJSON(w, http.StatusOK, dto.SyncResponse{
			ConnectionID: id,
			Imported:     result.Imported,
			Skipped:      result.Skipped,
			TotalAmount:  result.TotalAmount,
		})
	}
}

// SetSyncEnabled handles PUT /api/connections/{id}/sync-enabled.
func (h *ConnectionsHandler) SetSyncEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.SetSyncEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if _, ok := h.RequireConnection(w, r, h.repo, id); !ok {
		return
	}

	err := h.repo.SetSyncEnabled(r.Context(), id, req.Enabled)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/connections/{id} - disconnect.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.RequireConnection(w, r, h.repo, id); !ok {
		return
	}

	err := h.repo.DeleteConnection(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFlowError maps orchestrator errors to API errors.
func (h *ConnectionsHandler) writeFlowError(w http.ResponseWriter, err error) {
	var illegal *connect.IllegalTransitionError
	switch {
	case errors.Is(err, connect.ErrRequestNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("connection request"))
	case errors.As(err, &illegal), errors.Is(err, connect.ErrWrongState):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	case errors.Is(err, storage.ErrNotFound):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	default:
		h.WriteError(w, http.StatusBadGateway, dto.NewAPIError("provider_error", err.Error()))
	}
}
