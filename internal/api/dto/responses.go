package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// PreviewResponse summarizes a parsed statement without persisting it.
type PreviewResponse struct {
	Format         string               `json:"format"`
	Count          int                  `json:"count"`
	Currency       string               `json:"currency,omitempty"`
	AccountNumber  string               `json:"account_number,omitempty"`
	OpeningBalance *decimal.Decimal     `json:"opening_balance,omitempty"`
	ClosingBalance *decimal.Decimal     `json:"closing_balance,omitempty"`
	Transactions   []PreviewTransaction `json:"transactions"`
}

// PreviewTransaction is one decoded statement line.
type PreviewTransaction struct {
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	Reference    string          `json:"reference"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// ImportResponse summarizes a committed import.
type ImportResponse struct {
	Imported    int             `json:"imported"`
	Skipped     int             `json:"skipped"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ReconcileResponse reports a committed reconciliation.
type ReconcileResponse struct {
	TransactionID string          `json:"transaction_id"`
	Residual      decimal.Decimal `json:"residual"`
	Matches       int             `json:"matches"`
}

// SyncResponse reports a manual sync run.
type SyncResponse struct {
	ConnectionID string          `json:"connection_id"`
	Imported     int             `json:"imported"`
	Skipped      int             `json:"skipped"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// ConnectionRequestResponse reports the state of a pending handshake.
type ConnectionRequestResponse struct {
	Token     string    `json:"token"`
	State     string    `json:"state"`
	Provider  string    `json:"provider"`
	LastError string    `json:"last_error,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
