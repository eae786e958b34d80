package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spendsense/backend/internal/model"
)

// EmailInput is the subject, body, and sender of one transaction-alert email.
type EmailInput struct {
	Subject string
	Body    string
	Sender  string
}

// Amount patterns in priority order: a currency-prefixed amount is the most
// trustworthy; a bare two-decimal number is the last resort.
var emailAmountRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:INR|Rs\.?|₹)\s*([0-9,]+(?:\.\d{1,2})?)`),
	regexp.MustCompile(`(?i)(?:amount|paid|debited|credited)(?:\s+(?:of|by|with|for))?\s*:?\s*(?:INR|Rs\.?|₹)?\s*([0-9,]+(?:\.\d{1,2})?)`),
	regexp.MustCompile(`(?i)(?:total|bill)(?:\s+\w+)?\s*:?\s*(?:INR|Rs\.?|₹)?\s*([0-9,]+(?:\.\d{1,2})?)`),
	regexp.MustCompile(`\b([0-9,]+\.\d{2})\b`),
}

var (
	emailDateRe    = regexp.MustCompile(`\b(\d{1,2}[-/ ](?:\d{1,2}|[A-Za-z]{3})[-/ ]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)
	emailRefRe     = regexp.MustCompile(`(?i)Ref(?:erence)?(?: No\.?)?:?\s*([A-Za-z0-9\-]+)`)
	emailDueRe     = regexp.MustCompile(`(?i)due(?:\s+(?:date|on|by))?\s*:?\s*(\d{1,2}[-/ ](?:\d{1,2}|[A-Za-z]{3})[-/ ]\d{2,4}|\d{4}-\d{2}-\d{2})`)
	emailRenewRe   = regexp.MustCompile(`(?i)renew(?:s|al)?(?:\s+(?:date|on))?\s*:?\s*(\d{1,2}[-/ ](?:\d{1,2}|[A-Za-z]{3})[-/ ]\d{2,4}|\d{4}-\d{2}-\d{2})`)
	// Only the at/to alternation is case-insensitive; the capture anchors on
	// capitalized words so lowercase prose after "at" is never a merchant.
	emailToMerchRe = regexp.MustCompile(`\b(?:[aA]t|[tT]o)\s+([A-Z][A-Za-z0-9&@.\-]*(?:\s+[A-Z][A-Za-z0-9&@.\-]*){0,3})`)
)

// Sub-classification keyword sets, checked in order. The first matching set
// decides the channel; it never changes amount or direction extraction.
var (
	loanKeywords = []string{"emi", "loan", "installment", "instalment"}
	cardKeywords = []string{"credit card", "card statement", "card ending", "card xx"}
	ottKeywords  = []string{"netflix", "hotstar", "prime video", "spotify", "subscription", "renewal"}
)

// ParseEmail extracts a canonical row from one alert email. A false return
// means the email is not transactional (no amount found) and should be
// dropped from the batch, not treated as an error.
func ParseEmail(in EmailInput, now time.Time) (model.TxnRow, bool) {
	text := in.Subject + "\n" + in.Body

	amount, ok := extractEmailAmount(text)
	if !ok {
		return model.TxnRow{}, false
	}

	row := model.TxnRow{
		Amount:    amount,
		Direction: inferEmailDirection(text),
		BankCode:  detectEmailBank(in),
		Channel:   classifyEmailChannel(text),
		RawMeta:   map[string]string{},
	}

	// Alert emails are near-real-time: a missing date defaults to now
	// instead of dropping the row.
	row.TxnDate = now
	if m := emailDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := parseEmailDate(m[1]); ok {
			row.TxnDate = d
		}
	}

	row.Description = strings.TrimSpace(in.Subject)
	if row.Description == "" {
		row.Description = firstLine(in.Body)
	}
	if m := emailToMerchRe.FindStringSubmatch(text); m != nil {
		row.MerchantRaw = strings.TrimSpace(m[1])
	}
	if m := emailRefRe.FindStringSubmatch(text); m != nil {
		row.ReferenceID = m[1]
	}
	if m := emailDueRe.FindStringSubmatch(text); m != nil {
		row.RawMeta["due_date"] = m[1]
	}
	if m := emailRenewRe.FindStringSubmatch(text); m != nil {
		row.RawMeta["renewal_date"] = m[1]
	}
	row.RawMeta["sender"] = in.Sender

	return row, row.Complete()
}

func extractEmailAmount(text string) (decimal.Decimal, bool) {
	for _, re := range emailAmountRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if a, parsed := parseAmount(m[1]); parsed && a.IsPositive() {
				return a, true
			}
		}
	}
	return decimal.Zero, false
}

// inferEmailDirection defaults to debit: the vast majority of alerts are
// spend notifications. Only an unambiguous "credited" flips it.
func inferEmailDirection(text string) model.Direction {
	lc := strings.ToLower(text)
	if strings.Contains(lc, "credited") && !strings.Contains(lc, "debited") {
		return model.DirectionCredit
	}
	return model.DirectionDebit
}

func classifyEmailChannel(text string) model.Channel {
	lc := strings.ToLower(text)
	for _, kw := range loanKeywords {
		if strings.Contains(lc, kw) {
			return model.ChannelLoanEMI
		}
	}
	for _, kw := range cardKeywords {
		if strings.Contains(lc, kw) {
			return model.ChannelCreditCard
		}
	}
	for _, kw := range ottKeywords {
		if strings.Contains(lc, kw) {
			return model.ChannelOTT
		}
	}
	return model.ChannelEmail
}

func detectEmailBank(in EmailInput) model.BankCode {
	if code, ok := matchBankMarker(strings.ToLower(in.Sender)); ok {
		return code
	}
	if code, ok := matchBankMarker(strings.ToLower(in.Subject + " " + in.Body)); ok {
		return code
	}
	return model.BankUnknown
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
