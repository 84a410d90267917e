package connect

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingRequest is the short-lived server-side record of one
// authorization handshake, keyed by a request token so the confirmation
// step can resolve it across retries or closed tabs.
type PendingRequest struct {
	Token           string    `json:"token"`
	OrgID           string    `json:"org_id"`
	State           FlowState `json:"state"`
	Provider        string    `json:"provider"`
	Country         string    `json:"country"`
	InstitutionID   string    `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	InstitutionLogo string    `json:"institution_logo"`
	AccountID       string    `json:"account_id"`
	RequisitionID   string    `json:"requisition_id,omitempty"`
	LinkToken       string    `json:"link_token,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// pendingTTL is how long a handshake may sit idle before it expires.
const pendingTTL = 15 * time.Minute

// PendingStore holds in-flight handshakes, expiring them after the TTL.
type PendingStore struct {
	mu       sync.Mutex
	requests map[string]*PendingRequest
	now      func() time.Time
}

// NewPendingStore creates an empty pending-request store.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		requests: make(map[string]*PendingRequest),
		now:      time.Now,
	}
}

// Create starts a new handshake for a provider and returns its record.
func (s *PendingStore) Create(orgID, provider string) *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	now := s.now().UTC()
	req := &PendingRequest{
		Token:     uuid.NewString(),
		OrgID:     orgID,
		State:     StateProviderSelected,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(pendingTTL),
	}
	s.requests[req.Token] = req
	return req
}

// Get returns the handshake for a token, or false when it is unknown or
// expired.
func (s *PendingStore) Get(token string) (*PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	req, ok := s.requests[token]
	return req, ok
}

// Update applies fn to the handshake under the store lock and refreshes
// its expiry.
func (s *PendingStore) Update(token string, fn func(*PendingRequest) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	req, ok := s.requests[token]
	if !ok {
		return ErrRequestNotFound
	}
	if err := fn(req); err != nil {
		return err
	}
	req.ExpiresAt = s.now().UTC().Add(pendingTTL)
	return nil
}

// Delete removes a completed or abandoned handshake.
func (s *PendingStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, token)
}

// sweep drops expired handshakes. Caller holds the lock.
func (s *PendingStore) sweep() {
	now := s.now().UTC()
	for token, req := range s.requests {
		if now.After(req.ExpiresAt) {
			delete(s.requests, token)
		}
	}
}
