package etl

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Patterns for cleaning merchant names out of bank narrations.
var (
	merchantPrefix = regexp.MustCompile(`(?i)^(pos |upi[-/ ]|neft[-/ ]|imps[-/ ]|rtgs[-/ ]|ach[-/ ]|atm wdl |visa |mastercard |paytm[-/ ]|gpay[-/ ])`)
	merchantSuffix = regexp.MustCompile(`(?i)\s+(pvt|ltd|private|limited|llp|inc|corp|india|in)\.?$`)
	longNumbers    = regexp.MustCompile(`\d{6,}`)
	specialChars   = regexp.MustCompile(`[*#@]+`)

	titleCaser = cases.Title(language.English)
)

const maxMerchantLen = 50

// NormalizeMerchant cleans a raw merchant or narration string into the
// display-ready merchant_name_norm stored on facts: transfer-rail prefixes,
// entity suffixes, reference digits, and symbol noise stripped, then
// title-cased.
func NormalizeMerchant(raw string) string {
	cleaned := merchantPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = merchantSuffix.ReplaceAllString(cleaned, "")
	cleaned = longNumbers.ReplaceAllString(cleaned, "")
	cleaned = specialChars.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	words := strings.Fields(cleaned)
	for i, word := range words {
		if len(word) > 2 {
			words[i] = titleCaser.String(strings.ToLower(word))
		} else {
			words[i] = strings.ToUpper(word)
		}
	}

	result := strings.Join(words, " ")
	if len(result) > maxMerchantLen {
		result = result[:maxMerchantLen]
	}
	return result
}
