// Package bankdata implements the redirect-based aggregator adapter.
//
// The provider follows the requisition model: creating a requisition
// returns an authorization URL the user must visit at their bank; once
// the grant is confirmed, transactions are fetched per requisition.
package bankdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/infrastructure/config"
	"github.com/finledger/bankfeed/internal/statement"
)

const defaultBaseURL = "https://api.bankdata.example.com/v2"

// grantLifetime is the provider's standard 90-day access grant.
const grantLifetime = 90 * 24 * time.Hour

// Adapter talks to the bankdata API.
type Adapter struct {
	cfg    config.BankdataConfig
	client *http.Client
	base   string
}

// New creates a bankdata adapter.
func New(cfg config.BankdataConfig) *Adapter {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		cfg:    cfg,
		client: rc.StandardClient(),
		base:   base,
	}
}

// Name returns the provider key.
func (a *Adapter) Name() string { return "bankdata" }

// DisplayName returns the provider display name.
func (a *Adapter) DisplayName() string { return "Bankdata" }

// AuthMode reports the redirect authorization model.
func (a *Adapter) AuthMode() providers.AuthMode { return providers.AuthRedirect }

// GrantLifetime reports the provider's grant duration.
func (a *Adapter) GrantLifetime() time.Duration { return grantLifetime }

type institutionResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Logo      string   `json:"logo"`
	Countries []string `json:"countries"`
}

// ListInstitutions returns institutions available in a country.
func (a *Adapter) ListInstitutions(ctx context.Context, country string) ([]providers.Institution, error) {
	endpoint := fmt.Sprintf("%s/institutions/?country=%s", a.base, url.QueryEscape(country))

	var resp []institutionResponse
	if err := a.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("listing institutions: %w", err)
	}

	institutions := make([]providers.Institution, 0, len(resp))
	for _, inst := range resp {
		institutions = append(institutions, providers.Institution{
			ID:        inst.ID,
			Name:      inst.Name,
			LogoURL:   inst.Logo,
			Countries: inst.Countries,
		})
	}
	return institutions, nil
}

type requisitionRequest struct {
	InstitutionID string `json:"institution_id"`
	Redirect      string `json:"redirect"`
	Reference     string `json:"reference"`
}

type requisitionResponse struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// InitiateConnection creates a requisition and returns its authorization
// URL. The connection stays pending until the user completes the redirect.
func (a *Adapter) InitiateConnection(ctx context.Context, req providers.InitiateRequest) (*providers.InitiateResult, error) {
	redirect := req.RedirectTarget
	if redirect == "" {
		redirect = a.cfg.RedirectURL
	}

	var resp requisitionResponse
	err := a.post(ctx, a.base+"/requisitions/", requisitionRequest{
		InstitutionID: req.InstitutionID,
		Redirect:      redirect,
		Reference:     req.Reference,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("creating requisition: %w", err)
	}

	return &providers.InitiateResult{
		RequisitionID:    resp.ID,
		AuthorizationURL: resp.Link,
	}, nil
}

type transactionsResponse struct {
	Transactions struct {
		Booked []bookedTransaction `json:"booked"`
	} `json:"transactions"`
}

type bookedTransaction struct {
	BookingDate       string `json:"bookingDate"`
	TransactionAmount struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"transactionAmount"`
	RemittanceInfo string `json:"remittanceInformationUnstructured"`
	CreditorName   string `json:"creditorName"`
	DebtorName     string `json:"debtorName"`
}

// FetchTransactions pulls booked transactions for a requisition since the
// given date.
func (a *Adapter) FetchTransactions(ctx context.Context, requisitionID string, since time.Time) (*statement.Preview, error) {
	endpoint := fmt.Sprintf("%s/requisitions/%s/transactions/?date_from=%s",
		a.base, url.PathEscape(requisitionID), since.Format("2006-01-02"))

	var resp transactionsResponse
	if err := a.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetching transactions: %w", err)
	}

	preview := &statement.Preview{Format: a.Name()}
	for _, b := range resp.Transactions.Booked {
		txn, err := decodeBooked(b)
		if err != nil {
			return nil, fmt.Errorf("decoding transaction: %w", err)
		}
		if preview.Currency == "" {
			preview.Currency = txn.Currency
		}
		preview.Transactions = append(preview.Transactions, txn)
	}
	preview.Count = len(preview.Transactions)
	return preview, nil
}

func decodeBooked(b bookedTransaction) (statement.Transaction, error) {
	date, err := time.Parse("2006-01-02", b.BookingDate)
	if err != nil {
		return statement.Transaction{}, err
	}
	amount, err := decimal.NewFromString(b.TransactionAmount.Amount)
	if err != nil {
		return statement.Transaction{}, err
	}

	counterparty := b.CreditorName
	if amount.Sign() > 0 {
		counterparty = b.DebtorName
	}
	return statement.Transaction{
		Date:         date,
		Amount:       amount,
		Currency:     b.TransactionAmount.Currency,
		Reference:    b.RemittanceInfo,
		Counterparty: counterparty,
	}, nil
}

func (a *Adapter) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *Adapter) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *Adapter) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bankdata API returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
