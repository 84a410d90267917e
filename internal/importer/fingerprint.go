package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint derives the dedup key for a transaction: account, date,
// amount, and normalized payment reference. Two rows with the same
// fingerprint in one account are the same transaction, whether they came
// from a re-imported file or an overlapping provider sync window.
func Fingerprint(accountID string, date time.Time, amount decimal.Decimal, reference string) string {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0})
	h.Write([]byte(date.Format("2006-01-02")))
	h.Write([]byte{0})
	h.Write([]byte(amount.String()))
	h.Write([]byte{0})
	h.Write([]byte(normalizeReference(reference)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeReference lowercases and collapses runs of whitespace so that
// cosmetic differences between exports do not defeat deduplication.
func normalizeReference(ref string) string {
	return strings.Join(strings.Fields(strings.ToLower(ref)), " ")
}
