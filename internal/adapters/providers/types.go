package providers

import (
	"context"
	"time"

	"github.com/finledger/bankfeed/internal/statement"
)

// AuthMode is a provider's authorization model.
type AuthMode string

const (
	// AuthRedirect providers return an authorization URL the user must
	// visit; the connection stays pending until the redirect callback.
	AuthRedirect AuthMode = "redirect"

	// AuthLink providers return an opaque link token consumed by an
	// embedded authorization widget out-of-band.
	AuthLink AuthMode = "link"
)

// Institution is a bank reachable through a provider.
type Institution struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	LogoURL   string   `json:"logo_url,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// InitiateRequest starts an authorization handshake.
type InitiateRequest struct {
	InstitutionID string
	// Reference ties the provider-side requisition back to our pending
	// connection request.
	Reference string
	// RedirectTarget is where redirect-based providers send the user
	// after authorization.
	RedirectTarget string
}

// InitiateResult is the provider's answer to InitiateConnection.
// Exactly one of AuthorizationURL and LinkToken is set, matching the
// provider's AuthMode.
type InitiateResult struct {
	RequisitionID    string
	AuthorizationURL string
	LinkToken        string
}

// Adapter is the uniform contract every aggregator implements.
type Adapter interface {
	// Provider identification
	Name() string        // "bankdata", "linknode"
	DisplayName() string // "Bankdata", "Linknode"

	// AuthMode reports the authorization model
	AuthMode() AuthMode

	// ListInstitutions returns institutions available in a country
	ListInstitutions(ctx context.Context, country string) ([]Institution, error)

	// InitiateConnection starts the authorization handshake
	InitiateConnection(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// FetchTransactions pulls transactions granted by a requisition
	// since the given time.
	FetchTransactions(ctx context.Context, requisitionID string, since time.Time) (*statement.Preview, error)

	// GrantLifetime is how long an authorization grant lasts, or zero
	// when the provider does not report one.
	GrantLifetime() time.Duration
}
