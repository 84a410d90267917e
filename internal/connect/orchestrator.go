// Package connect drives the multi-step bank-authorization flow and owns
// the Connection lifecycle.
//
// The handshake is an explicit state machine: provider, country,
// institution, and account are selected in order, the provider adapter is
// asked to initiate authorization, and the flow branches on the provider's
// authorization model (redirect URL vs. link token). The Connection record
// itself stays pending until external confirmation.
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
)

// Errors returned by the orchestrator.
var (
	// ErrRequestNotFound is returned for an unknown or expired request
	// token.
	ErrRequestNotFound = errors.New("pending connection request not found")

	// ErrWrongState is returned when an operation is attempted out of
	// order.
	ErrWrongState = errors.New("operation not valid in current flow state")
)

// Store is the storage surface the orchestrator needs.
type Store interface {
	storage.AccountRepository
	storage.ConnectionRepository
}

// ProviderInfo describes a configured aggregator to callers.
type ProviderInfo struct {
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
	AuthMode    providers.AuthMode `json:"auth_mode"`
}

// InitiateOutcome is the result of the Initiate step. Exactly one of
// AuthorizationURL and LinkToken is set.
type InitiateOutcome struct {
	State            FlowState `json:"state"`
	RequisitionID    string    `json:"requisition_id"`
	AuthorizationURL string    `json:"authorization_url,omitempty"`
	LinkToken        string    `json:"link_token,omitempty"`
}

// Orchestrator owns pending handshakes and connection transitions.
type Orchestrator struct {
	registry *providers.Registry
	store    Store
	pending  *PendingStore
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(registry *providers.Registry, store Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		pending:  NewPendingStore(),
		logger:   logger,
	}
}

// ListProviders returns the configured aggregators. Only providers with
// stored credentials are registered, so only those are eligible.
func (o *Orchestrator) ListProviders() []ProviderInfo {
	adapters := o.registry.List()
	infos := make([]ProviderInfo, 0, len(adapters))
	for _, a := range adapters {
		infos = append(infos, ProviderInfo{
			Name:        a.Name(),
			DisplayName: a.DisplayName(),
			AuthMode:    a.AuthMode(),
		})
	}
	return infos
}

// Start begins a handshake with the chosen provider.
func (o *Orchestrator) Start(_ context.Context, orgID, provider string) (*PendingRequest, error) {
	if _, err := o.registry.Get(provider); err != nil {
		return nil, err
	}
	req := o.pending.Create(orgID, provider)
	return req, nil
}

// SelectCountry narrows the handshake to one country and returns the
// institutions available there.
func (o *Orchestrator) SelectCountry(ctx context.Context, token, country string) ([]providers.Institution, error) {
	var provider string
	err := o.pending.Update(token, func(req *PendingRequest) error {
		next, err := Transition(req.State, StateCountrySelected)
		if err != nil {
			return err
		}
		req.State = next
		req.Country = country
		provider = req.Provider
		return nil
	})
	if err != nil {
		return nil, err
	}

	adapter, err := o.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	institutions, err := adapter.ListInstitutions(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("listing institutions for %s/%s: %w", provider, country, err)
	}
	return institutions, nil
}

// SelectInstitution binds the handshake to one institution.
func (o *Orchestrator) SelectInstitution(token, institutionID, name, logo string) error {
	return o.pending.Update(token, func(req *PendingRequest) error {
		next, err := Transition(req.State, StateInstitutionSelected)
		if err != nil {
			return err
		}
		req.State = next
		req.InstitutionID = institutionID
		req.InstitutionName = name
		req.InstitutionLogo = logo
		return nil
	})
}

// SelectAccount binds the target bank account to the handshake.
func (o *Orchestrator) SelectAccount(ctx context.Context, token, accountID string) error {
	return o.pending.Update(token, func(req *PendingRequest) error {
		account, err := o.store.GetAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("resolving account %s: %w", accountID, err)
		}
		if account.OrgID != req.OrgID {
			return fmt.Errorf("resolving account %s: %w", accountID, storage.ErrNotFound)
		}

		next, err := Transition(req.State, StateAccountSelected)
		if err != nil {
			return err
		}
		req.State = next
		req.AccountID = accountID
		return nil
	})
}

// Initiate asks the provider adapter to start authorization. The branch
// taken depends on the provider's authorization model. An adapter failure
// returns the flow to AccountSelected so the caller may retry.
func (o *Orchestrator) Initiate(ctx context.Context, token, redirectTarget string) (*InitiateOutcome, error) {
	req, ok := o.pending.Get(token)
	if !ok {
		return nil, ErrRequestNotFound
	}

	if err := o.pending.Update(token, func(r *PendingRequest) error {
		next, err := Transition(r.State, StateInitiating)
		if err != nil {
			return err
		}
		r.State = next
		return nil
	}); err != nil {
		return nil, err
	}

	adapter, err := o.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := adapter.InitiateConnection(ctx, providers.InitiateRequest{
		InstitutionID:  req.InstitutionID,
		Reference:      token,
		RedirectTarget: redirectTarget,
	})
	if err != nil {
		// Back to AccountSelected so the caller can correct and retry.
		_ = o.pending.Update(token, func(r *PendingRequest) error {
			r.State, _ = Transition(r.State, StateAccountSelected)
			r.LastError = err.Error()
			return nil
		})
		return nil, fmt.Errorf("initiating connection with %s: %w", req.Provider, err)
	}

	target := StateAwaitingRedirect
	if adapter.AuthMode() == providers.AuthLink {
		target = StateLinkPending
	}

	outcome := &InitiateOutcome{RequisitionID: result.RequisitionID}
	if err := o.pending.Update(token, func(r *PendingRequest) error {
		next, err := Transition(r.State, target)
		if err != nil {
			return err
		}
		r.State = next
		r.RequisitionID = result.RequisitionID
		r.LinkToken = result.LinkToken
		r.LastError = ""
		outcome.State = next
		outcome.AuthorizationURL = result.AuthorizationURL
		outcome.LinkToken = result.LinkToken
		return nil
	}); err != nil {
		return nil, err
	}

	o.logger.Info("connection authorization initiated",
		slog.String("provider", req.Provider),
		slog.String("institution", req.InstitutionID),
		slog.String("state", string(outcome.State)))

	return outcome, nil
}

// Confirm consumes the external confirmation (redirect callback or
// webhook) for a handshake: it creates the Connection, activates it, and
// records the grant expiry when the provider reports one.
func (o *Orchestrator) Confirm(ctx context.Context, token string) (*storage.Connection, error) {
	req, ok := o.pending.Get(token)
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.State != StateAwaitingRedirect && req.State != StateLinkPending {
		return nil, fmt.Errorf("%w: %s", ErrWrongState, req.State)
	}

	adapter, err := o.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if lifetime := adapter.GrantLifetime(); lifetime > 0 {
		e := now.Add(lifetime)
		expiresAt = &e
	}

	conn := &storage.Connection{
		ID:              uuid.NewString(),
		OrgID:           req.OrgID,
		Provider:        req.Provider,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
		InstitutionLogo: req.InstitutionLogo,
		AccountID:       req.AccountID,
		RequisitionID:   req.RequisitionID,
		Status:          storage.ConnectionPending,
		SyncEnabled:     true,
	}
	if err := o.store.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	if err := o.store.ActivateConnection(ctx, conn.ID, expiresAt); err != nil {
		// Remove the half-created row so a retried confirm starts clean
		// instead of stacking pending connections.
		_ = o.store.DeleteConnection(ctx, conn.ID)
		return nil, fmt.Errorf("activating connection: %w", err)
	}
	conn.Status = storage.ConnectionActive
	conn.ExpiresAt = expiresAt

	o.pending.Delete(token)

	o.logger.Info("connection activated",
		slog.String("connection_id", conn.ID),
		slog.String("provider", conn.Provider),
		slog.String("institution", conn.InstitutionName))

	return conn, nil
}

// GetRequest exposes a pending handshake for status polling.
func (o *Orchestrator) GetRequest(token string) (*PendingRequest, error) {
	req, ok := o.pending.Get(token)
	if !ok {
		return nil, ErrRequestNotFound
	}
	return req, nil
}
