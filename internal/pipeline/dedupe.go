package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// dedupeHashLen is the number of hex characters kept from the digest.
const dedupeHashLen = 16

// DedupeKey returns the fingerprint used to detect re-ingestion.
//
// With a provider id the key is "source:accountID:externalID". Otherwise
// it is "source:accountID:" followed by a truncated SHA-256 of the account,
// amount, date, lower-cased description and source. Distinct transactions
// sharing all of those collide and the later one is treated as a duplicate.
func DedupeKey(accountID, externalID string, amount decimal.Decimal, date, description, source string) string {
	prefix := source + ":" + accountID + ":"
	if externalID != "" {
		return prefix + externalID
	}

	material := strings.Join([]string{
		accountID,
		amount.String(),
		date,
		strings.ToLower(strings.TrimSpace(description)),
		source,
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return prefix + hex.EncodeToString(sum[:])[:dedupeHashLen]
}
