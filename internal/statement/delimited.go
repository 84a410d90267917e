package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DelimitedParser parses generic delimited exports with a header row.
// Columns are located by common header aliases; the delimiter is sniffed
// from the header line (comma, semicolon, or tab).
type DelimitedParser struct{}

// Format returns the parser name.
func (p *DelimitedParser) Format() string { return "csv" }

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
	"02-01-2006",
}

var (
	dateAliases         = []string{"date", "transaction date", "booking date", "value date"}
	amountAliases       = []string{"amount", "transaction amount", "value"}
	debitAliases        = []string{"debit", "debit amount", "money out", "withdrawal"}
	creditAliases       = []string{"credit", "credit amount", "money in", "deposit"}
	referenceAliases    = []string{"reference", "description", "narrative", "details", "memo"}
	counterpartyAliases = []string{"counterparty", "payee", "name", "merchant"}
	currencyAliases     = []string{"currency", "ccy"}
)

type columnMap struct {
	date         int
	amount       int
	debit        int
	credit       int
	reference    int
	counterparty int
	currency     int
}

// Parse reads a delimited file and returns a Preview.
func (p *DelimitedParser) Parse(data []byte) (*Preview, error) {
	delim := sniffDelimiter(firstLine(data))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
	}
	if len(records) < 2 {
		return nil, &ParseError{Format: p.Format(), Cause: "no transaction rows"}
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, &ParseError{Format: p.Format(), Cause: err.Error()}
	}

	preview := &Preview{Format: p.Format()}
	for i, rec := range records[1:] {
		txn, err := parseDelimitedRow(rec, cols)
		if err != nil {
			return nil, &ParseError{Format: p.Format(), Cause: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		if preview.Currency == "" && txn.Currency != "" {
			preview.Currency = txn.Currency
		}
		preview.Transactions = append(preview.Transactions, txn)
	}
	preview.Count = len(preview.Transactions)
	return preview, nil
}

func sniffDelimiter(header string) rune {
	switch {
	case strings.Count(header, ";") > strings.Count(header, ","):
		return ';'
	case strings.Count(header, "\t") > strings.Count(header, ","):
		return '\t'
	default:
		return ','
	}
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{date: -1, amount: -1, debit: -1, credit: -1, reference: -1, counterparty: -1, currency: -1}

	find := func(aliases []string) int {
		for i, h := range header {
			name := strings.ToLower(strings.TrimSpace(h))
			for _, a := range aliases {
				if name == a {
					return i
				}
			}
		}
		return -1
	}

	cols.date = find(dateAliases)
	cols.amount = find(amountAliases)
	cols.debit = find(debitAliases)
	cols.credit = find(creditAliases)
	cols.reference = find(referenceAliases)
	cols.counterparty = find(counterpartyAliases)
	cols.currency = find(currencyAliases)

	if cols.date == -1 {
		return cols, fmt.Errorf("no date column in header")
	}
	if cols.amount == -1 && cols.debit == -1 && cols.credit == -1 {
		return cols, fmt.Errorf("no amount column in header")
	}
	return cols, nil
}

func parseDelimitedRow(rec []string, cols columnMap) (Transaction, error) {
	get := func(i int) string {
		if i >= 0 && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	date, err := parseDate(get(cols.date))
	if err != nil {
		return Transaction{}, err
	}

	var amount decimal.Decimal
	if raw := get(cols.amount); raw != "" {
		amount, err = parseAmount(raw)
		if err != nil {
			return Transaction{}, err
		}
	} else {
		// Separate debit/credit columns: debit is money out.
		if raw := get(cols.debit); raw != "" {
			d, err := parseAmount(raw)
			if err != nil {
				return Transaction{}, err
			}
			amount = d.Neg()
		}
		if raw := get(cols.credit); raw != "" {
			c, err := parseAmount(raw)
			if err != nil {
				return Transaction{}, err
			}
			amount = amount.Add(c)
		}
	}

	return Transaction{
		Date:         date,
		Amount:       amount,
		Currency:     strings.ToUpper(get(cols.currency)),
		Reference:    get(cols.reference),
		Counterparty: get(cols.counterparty),
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// parseAmount handles thousands separators and accounting-style negatives.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
