package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint derives the content-based dedupe key for a transaction. Two
// rows describing the same real-world transaction must hash identically, so
// every input is canonicalized first: dates to ISO, amounts to fixed 2dp,
// text lowercased with collapsed whitespace.
func Fingerprint(userID string, txnDate time.Time, amount decimal.Decimal, direction Direction, description, merchantNorm, accountRef string) string {
	parts := []string{
		userID,
		txnDate.Format("2006-01-02"),
		amount.StringFixed(2),
		string(direction),
		canonText(description),
		canonText(merchantNorm),
		canonText(accountRef),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func canonText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
