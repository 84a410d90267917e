package dto

import "github.com/shopspring/decimal"

// ReconcileRequest commits chosen matches against a transaction.
type ReconcileRequest struct {
	Matches []ReconcileMatch `json:"matches"`
}

// ReconcileMatch is one chosen counterpart with its allocation.
type ReconcileMatch struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Allocated decimal.Decimal `json:"allocated"`
}

// SetCheckedRequest toggles the human-review flag on a transaction.
type SetCheckedRequest struct {
	Checked bool `json:"checked"`
}

// SetSyncEnabledRequest toggles scheduled syncing on a connection.
type SetSyncEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// CreateAccountRequest creates a bank account.
type CreateAccountRequest struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	Currency      string `json:"currency"`
}

// StartConnectionRequest begins an authorization handshake.
type StartConnectionRequest struct {
	Provider string `json:"provider"`
}

// SelectCountryRequest narrows the handshake to a country.
type SelectCountryRequest struct {
	Country string `json:"country"`
}

// SelectInstitutionRequest binds the handshake to an institution.
type SelectInstitutionRequest struct {
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
	InstitutionLogo string `json:"institution_logo"`
}

// SelectAccountRequest binds the target bank account.
type SelectAccountRequest struct {
	AccountID string `json:"account_id"`
}

// InitiateConnectionRequest asks the provider to start authorization.
type InitiateConnectionRequest struct {
	RedirectTarget string `json:"redirect_target,omitempty"`
}
