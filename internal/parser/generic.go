package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spendsense/backend/internal/model"
)

// Stats reports per-source parse outcomes. Row-level failures are counted
// here instead of surfacing as errors.
type Stats struct {
	Parsed  int
	Skipped int
}

// transactionLineRe matches one statement line: date, narration, amount, and
// a trailing debit/credit marker. Lines without the marker are dropped;
// direction is never invented.
var transactionLineRe = regexp.MustCompile(
	`(?i)(?P<date>\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\s+(?P<desc>.+?)\s+(?P<amount>[0-9,]+\.?\d{0,2})\s+(?P<dc>DR|CR|DEBIT|CREDIT)\b`,
)

var amountCleanRe = regexp.MustCompile(`[₹,\s]|rs\.?|inr`)

// parseAmount converts a statement amount cell to a decimal, stripping
// thousands separators and currency markers. Returns false for cells that
// are empty or not numeric.
func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := amountCleanRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseGenericLine extracts a canonical row from one free-form statement
// line. Used for PDF text and for grid rows that defeated column mapping.
// Returns false for lines that do not look like transactions (headers,
// footers, balance summaries).
func ParseGenericLine(line string, bank model.BankCode, channel model.Channel) (model.TxnRow, bool) {
	m := transactionLineRe.FindStringSubmatch(line)
	if m == nil {
		return model.TxnRow{}, false
	}

	date, ok := parseStatementDate(m[1])
	if !ok {
		return model.TxnRow{}, false
	}
	amount, ok := parseAmount(m[3])
	if !ok || !amount.IsPositive() {
		return model.TxnRow{}, false
	}

	direction := model.DirectionCredit
	switch strings.ToUpper(m[4]) {
	case "DR", "DEBIT":
		direction = model.DirectionDebit
	}

	row := model.TxnRow{
		TxnDate:     date,
		Amount:      amount,
		Direction:   direction,
		Description: strings.TrimSpace(m[2]),
		BankCode:    bank,
		Channel:     channel,
	}
	if !row.Complete() {
		return model.TxnRow{}, false
	}
	return row, true
}

// parseGenericGrid runs the line parser over joined grid rows. Fallback path
// for sheets whose columns could not be mapped.
func parseGenericGrid(grid [][]string, bank model.BankCode, channel model.Channel) ([]model.TxnRow, Stats) {
	var rows []model.TxnRow
	var stats Stats
	for _, cells := range grid {
		if rowEmpty(cells) {
			continue
		}
		line := strings.Join(cells, " ")
		if row, ok := ParseGenericLine(line, bank, channel); ok {
			rows = append(rows, row)
			stats.Parsed++
		} else {
			stats.Skipped++
		}
	}
	return rows, stats
}
