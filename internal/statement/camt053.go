package statement

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Camt053Parser parses ISO 20022 CAMT.053 bank-to-customer statements.
type Camt053Parser struct{}

// Format returns the parser name.
func (p *Camt053Parser) Format() string { return "camt053" }

type camtDocument struct {
	XMLName    xml.Name   `xml:"Document"`
	Statements []camtStmt `xml:"BkToCstmrStmt>Stmt"`
}

type camtStmt struct {
	Account  camtAccount   `xml:"Acct"`
	Balances []camtBalance `xml:"Bal"`
	Entries  []camtEntry   `xml:"Ntry"`
}

type camtAccount struct {
	IBAN     string `xml:"Id>IBAN"`
	Other    string `xml:"Id>Othr>Id"`
	Currency string `xml:"Ccy"`
}

type camtBalance struct {
	Code      string     `xml:"Tp>CdOrPrtry>Cd"`
	Amount    camtAmount `xml:"Amt"`
	Indicator string     `xml:"CdtDbtInd"`
}

type camtAmount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type camtEntry struct {
	Amount      camtAmount  `xml:"Amt"`
	Indicator   string      `xml:"CdtDbtInd"`
	BookingDate string      `xml:"BookgDt>Dt"`
	ValueDate   string      `xml:"ValDt>Dt"`
	Details     camtDetails `xml:"NtryDtls>TxDtls"`
	Info        string      `xml:"AddtlNtryInf"`
}

type camtDetails struct {
	Unstructured []string `xml:"RmtInf>Ustrd"`
	Creditor     string   `xml:"RltdPties>Cdtr>Nm"`
	Debtor       string   `xml:"RltdPties>Dbtr>Nm"`
}

const (
	camtOpeningBalance = "OPBD"
	camtClosingBalance = "CLBD"
	camtDebit          = "DBIT"
)

// Parse decodes a CAMT.053 document and returns a Preview.
func (p *Camt053Parser) Parse(data []byte) (*Preview, error) {
	var doc camtDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
	}
	if len(doc.Statements) == 0 {
		return nil, &ParseError{Format: p.Format(), Cause: "no statement element"}
	}

	stmt := doc.Statements[0]
	preview := &Preview{
		Format:        p.Format(),
		Currency:      stmt.Account.Currency,
		AccountNumber: accountNumber(stmt.Account),
	}

	for _, bal := range stmt.Balances {
		amount, err := balanceAmount(bal)
		if err != nil {
			return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
		}
		switch bal.Code {
		case camtOpeningBalance:
			preview.OpeningBalance = &amount
		case camtClosingBalance:
			preview.ClosingBalance = &amount
		}
		if preview.Currency == "" {
			preview.Currency = bal.Amount.Currency
		}
	}

	for _, entry := range stmt.Entries {
		txn, err := parseCamtEntry(entry)
		if err != nil {
			return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
		}
		preview.Transactions = append(preview.Transactions, txn)
	}
	preview.Count = len(preview.Transactions)
	return preview, nil
}

func accountNumber(acct camtAccount) string {
	if acct.IBAN != "" {
		return acct.IBAN
	}
	return acct.Other
}

func balanceAmount(bal camtBalance) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(bal.Amount.Value))
	if err != nil {
		return decimal.Zero, err
	}
	if bal.Indicator == camtDebit {
		amount = amount.Neg()
	}
	return amount, nil
}

func parseCamtEntry(entry camtEntry) (Transaction, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amount.Value))
	if err != nil {
		return Transaction{}, err
	}
	if entry.Indicator == camtDebit {
		amount = amount.Neg()
	}

	rawDate := entry.BookingDate
	if rawDate == "" {
		rawDate = entry.ValueDate
	}
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return Transaction{}, err
	}

	reference := strings.Join(entry.Details.Unstructured, " ")
	if reference == "" {
		reference = entry.Info
	}

	// Money out names the creditor; money in names the debtor.
	counterparty := entry.Details.Creditor
	if amount.Sign() > 0 {
		counterparty = entry.Details.Debtor
	}

	return Transaction{
		Date:         date,
		Amount:       amount,
		Currency:     entry.Amount.Currency,
		Reference:    strings.TrimSpace(reference),
		Counterparty: strings.TrimSpace(counterparty),
	}, nil
}
