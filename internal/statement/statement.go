// Package statement decodes bank statement files into a normalized
// transaction list plus statement metadata.
//
// Four formats are supported: generic delimited text, two quoted bank CSV
// export layouts, and CAMT.053 XML. Parsing is pure: it never touches
// storage, so a preview can be repeated any number of times.
package statement

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one decoded statement line.
type Transaction struct {
	Date         time.Time
	Amount       decimal.Decimal // negative = money out
	Currency     string
	Reference    string
	Counterparty string
}

// Preview is the result of parsing a statement file.
type Preview struct {
	Format         string
	Count          int
	Currency       string
	AccountNumber  string
	OpeningBalance *decimal.Decimal
	ClosingBalance *decimal.Decimal
	Transactions   []Transaction
}

// Parser converts a statement file into a Preview.
type Parser interface {
	Parse(data []byte) (*Preview, error)
	Format() string
}

// ParseError reports an unreadable or corrupt statement file.
type ParseError struct {
	Format string
	Cause  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s statement: %s", e.Format, e.Cause)
}

// FormatDetectionError reports a file whose format could not be determined
// and no explicit format hint was supplied.
type FormatDetectionError struct {
	Reason string
}

func (e *FormatDetectionError) Error() string {
	return "cannot detect statement format: " + e.Reason
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// Formats returns the registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	return out
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&DelimitedParser{})
	r.Register(&LloydsParser{})
	r.Register(&CoopParser{})
	r.Register(&Camt053Parser{})
	return r
}

// Parse decodes data using the hinted format, or auto-detection when the
// hint is empty.
func (r *Registry) Parse(data []byte, formatHint string) (*Preview, error) {
	format := formatHint
	if format == "" {
		detected, err := r.Detect(data)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	p := r.Get(format)
	if p == nil {
		return nil, &FormatDetectionError{Reason: fmt.Sprintf("unknown format %q", format)}
	}
	return p.Parse(data)
}

// Detect inspects the file structure and returns the format name.
// Signature checks run before any extension-based guessing by callers.
func (r *Registry) Detect(data []byte) (string, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) == 0 {
		return "", &FormatDetectionError{Reason: "empty file"}
	}

	if trimmed[0] == '<' {
		if bytes.Contains(trimmed, []byte("BkToCstmrStmt")) {
			return "camt053", nil
		}
		return "", &FormatDetectionError{Reason: "XML file is not a CAMT.053 statement"}
	}

	header := firstLine(trimmed)
	lower := strings.ToLower(header)

	switch {
	case strings.Contains(lower, "transaction type") && strings.Contains(lower, "sort code"):
		return "lloyds", nil
	case strings.Contains(lower, "money in") && strings.Contains(lower, "money out"):
		return "coop", nil
	case strings.Contains(lower, "date") && (strings.Contains(lower, "amount") ||
		strings.Contains(lower, "debit") || strings.Contains(lower, "credit") ||
		strings.Contains(lower, "money in")):
		return "csv", nil
	}

	return "", &FormatDetectionError{Reason: "unrecognized file structure"}
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return strings.TrimRight(string(data[:i]), "\r")
	}
	return string(data)
}
