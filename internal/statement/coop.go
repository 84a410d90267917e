package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoopParser parses Co-op-style quoted CSV exports.
//
// Layout: Date, Description, Reference, Money In, Money Out, Balance.
// Rows are oldest-first; the last row's balance is the closing balance.
type CoopParser struct{}

const (
	coopDateFormat = "02/01/2006"
	coopNumFields  = 6
	coopColDate    = 0
	coopColDesc    = 1
	coopColRef     = 2
	coopColIn      = 3
	coopColOut     = 4
	coopColBalance = 5
)

// Format returns the parser name.
func (p *CoopParser) Format() string { return "coop" }

// Parse reads a Co-op CSV and returns a Preview.
func (p *CoopParser) Parse(data []byte) (*Preview, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = coopNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
	}
	if len(records) < 2 {
		return nil, &ParseError{Format: p.Format(), Cause: "no transaction rows"}
	}

	preview := &Preview{Format: p.Format(), Currency: "GBP"}
	rows := records[1:]
	for i, rec := range rows {
		txn, balance, err := parseCoopRow(rec)
		if err != nil {
			return nil, &ParseError{Format: p.Format(), Cause: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		if i == 0 {
			b := balance.Sub(txn.Amount)
			preview.OpeningBalance = &b
		}
		if i == len(rows)-1 {
			b := balance
			preview.ClosingBalance = &b
		}
		preview.Transactions = append(preview.Transactions, txn)
	}
	preview.Count = len(preview.Transactions)
	return preview, nil
}

func parseCoopRow(rec []string) (Transaction, decimal.Decimal, error) {
	date, err := time.Parse(coopDateFormat, strings.TrimSpace(rec[coopColDate]))
	if err != nil {
		return Transaction{}, decimal.Zero, fmt.Errorf("parsing date %q: %w", rec[coopColDate], err)
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(rec[coopColIn]); raw != "" {
		in, err := parseAmount(raw)
		if err != nil {
			return Transaction{}, decimal.Zero, err
		}
		amount = in
	}
	if raw := strings.TrimSpace(rec[coopColOut]); raw != "" {
		out, err := parseAmount(raw)
		if err != nil {
			return Transaction{}, decimal.Zero, err
		}
		amount = amount.Sub(out.Abs())
	}

	balance, err := parseAmount(rec[coopColBalance])
	if err != nil {
		return Transaction{}, decimal.Zero, err
	}

	return Transaction{
		Date:         date,
		Amount:       amount,
		Currency:     "GBP",
		Reference:    strings.TrimSpace(rec[coopColRef]),
		Counterparty: strings.TrimSpace(rec[coopColDesc]),
	}, balance, nil
}
