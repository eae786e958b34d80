package parser

import (
	"strings"

	"github.com/spendsense/backend/internal/model"
)

// GridResult is the outcome of parsing one tabular source (CSV or Excel).
type GridResult struct {
	Rows  []model.TxnRow
	Stats Stats
	Bank  model.BankCode

	// MappingFellBack records that structured column mapping failed and the
	// generic line parser produced the rows instead.
	MappingFellBack bool
}

// ParseGrid turns a raw cell grid into canonical rows: locate the header,
// identify the bank, map columns, derive rows. Column-mapping failure is not
// fatal; the generic line parser runs over the same grid instead.
func ParseGrid(grid [][]string, hint model.BankCode, channel model.Channel) (GridResult, error) {
	res := GridResult{Bank: hint}

	headerIdx := detectHeaderRow(grid)
	if headerIdx < 0 {
		return res, newParseError(ErrEmptyFile, "no data rows found", nil)
	}

	firstCell := ""
	for _, c := range grid[0] {
		if s := strings.TrimSpace(c); s != "" {
			firstCell = s
			break
		}
	}

	headers := grid[headerIdx]
	detected := DetectBankFromHeaders(headers, firstCell, hint)
	res.Bank = detected

	// An unrecognized CSV is tagged UNKNOWN rather than GENERIC; only the
	// Excel path keeps GENERIC as its no-override default. Column mapping
	// still runs with the generic map either way.
	if detected == model.BankGeneric && channel == model.ChannelCSV &&
		(hint == model.BankGeneric || hint == "") {
		res.Bank = model.BankUnknown
	}

	mapping, mapErr := mapColumns(detected, headers)
	if mapErr != nil {
		res.Rows, res.Stats = parseGenericGrid(grid[headerIdx+1:], res.Bank, channel)
		res.MappingFellBack = true
		return res, nil
	}

	res.Rows, res.Stats = deriveMappedRows(grid[headerIdx+1:], mapping, res.Bank, channel)
	return res, nil
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// deriveMappedRows converts data rows under a mapped header into canonical
// rows. Rows that cannot resolve date, amount, and direction are skipped
// silently: repeated headers and subtotal rows are expected noise.
func deriveMappedRows(data [][]string, m columnMapping, bank model.BankCode, channel model.Channel) ([]model.TxnRow, Stats) {
	var rows []model.TxnRow
	var stats Stats

	for _, cells := range data {
		if rowEmpty(cells) {
			continue
		}

		row := model.TxnRow{BankCode: bank, Channel: channel}

		if date, ok := parseCellDate(cellAt(cells, m.date)); ok {
			row.TxnDate = date
		}
		row.Description = cellAt(cells, m.description)
		row.ReferenceID = cellAt(cells, m.refNo)

		// Debit and credit columns take precedence over a single
		// amount column. A zero or blank cell skips that side only.
		if amt, ok := parseAmount(cellAt(cells, m.debit)); ok && !amt.IsZero() {
			row.Amount = amt.Abs()
			row.Direction = model.DirectionDebit
		} else if amt, ok := parseAmount(cellAt(cells, m.credit)); ok && !amt.IsZero() {
			row.Amount = amt.Abs()
			row.Direction = model.DirectionCredit
		} else if amt, ok := parseAmount(cellAt(cells, m.amount)); ok && !amt.IsZero() {
			row.Amount = amt.Abs()
			row.Direction = inferDirection(cellAt(cells, m.txnType), amt.IsNegative())
		}

		if row.Complete() {
			rows = append(rows, row)
			stats.Parsed++
		} else {
			stats.Skipped++
		}
	}
	return rows, stats
}

// inferDirection resolves direction for single-amount-column layouts: a
// type token starting with d or c wins; otherwise the raw amount's sign.
// No token and no sign leaves the direction unset and the row is dropped.
func inferDirection(typeCell string, negative bool) model.Direction {
	t := strings.ToLower(strings.TrimSpace(typeCell))
	switch {
	case strings.HasPrefix(t, "d"):
		return model.DirectionDebit
	case strings.HasPrefix(t, "c"):
		return model.DirectionCredit
	case negative:
		return model.DirectionDebit
	}
	return ""
}
