package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LloydsParser parses Lloyds-style quoted CSV exports.
//
// Layout: Transaction Date, Transaction Type, Sort Code, Account Number,
// Transaction Description, Debit Amount, Credit Amount, Balance.
// Rows are newest-first; the first row's balance is the closing balance.
type LloydsParser struct{}

const (
	lloydsDateFormat = "02/01/2006"
	lloydsNumFields  = 8
	lloydsColDate    = 0
	lloydsColType    = 1
	lloydsColAccount = 3
	lloydsColDesc    = 4
	lloydsColDebit   = 5
	lloydsColCredit  = 6
	lloydsColBalance = 7
)

// Format returns the parser name.
func (p *LloydsParser) Format() string { return "lloyds" }

// Parse reads a Lloyds CSV and returns a Preview.
func (p *LloydsParser) Parse(data []byte) (*Preview, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = lloydsNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
	}
	if len(records) < 2 {
		return nil, &ParseError{Format: p.Format(), Cause: "no transaction rows"}
	}

	preview := &Preview{Format: p.Format(), Currency: "GBP"}
	for i, rec := range records[1:] {
		txn, balance, err := parseLloydsRow(rec)
		if err != nil {
			return nil, &ParseError{Format: p.Format(), Cause: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		if preview.AccountNumber == "" {
			preview.AccountNumber = strings.TrimSpace(rec[lloydsColAccount])
		}
		if i == 0 {
			b := balance
			preview.ClosingBalance = &b
		}
		// Last row's balance, less its own movement, is the opening balance.
		if i == len(records[1:])-1 {
			b := balance.Sub(txn.Amount)
			preview.OpeningBalance = &b
		}
		preview.Transactions = append(preview.Transactions, txn)
	}
	preview.Count = len(preview.Transactions)
	return preview, nil
}

func parseLloydsRow(rec []string) (Transaction, decimal.Decimal, error) {
	date, err := time.Parse(lloydsDateFormat, strings.TrimSpace(rec[lloydsColDate]))
	if err != nil {
		return Transaction{}, decimal.Zero, fmt.Errorf("parsing date %q: %w", rec[lloydsColDate], err)
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(rec[lloydsColDebit]); raw != "" {
		d, err := parseAmount(raw)
		if err != nil {
			return Transaction{}, decimal.Zero, err
		}
		amount = d.Neg()
	}
	if raw := strings.TrimSpace(rec[lloydsColCredit]); raw != "" {
		c, err := parseAmount(raw)
		if err != nil {
			return Transaction{}, decimal.Zero, err
		}
		amount = amount.Add(c)
	}

	balance, err := parseAmount(rec[lloydsColBalance])
	if err != nil {
		return Transaction{}, decimal.Zero, err
	}

	desc := strings.TrimSpace(rec[lloydsColDesc])
	return Transaction{
		Date:         date,
		Amount:       amount,
		Currency:     "GBP",
		Reference:    desc,
		Counterparty: lloydsCounterparty(desc, rec[lloydsColType]),
	}, balance, nil
}

// lloydsCounterparty strips the trailing transaction-type token the bank
// appends to some descriptions.
func lloydsCounterparty(desc, txType string) string {
	t := strings.TrimSpace(txType)
	if t != "" && strings.HasSuffix(desc, " "+t) {
		return strings.TrimSpace(strings.TrimSuffix(desc, " "+t))
	}
	return desc
}
