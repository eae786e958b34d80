package parser

import (
	"strings"

	"github.com/spendsense/backend/internal/model"
)

// canonical field names used by the column maps.
const (
	fieldDate        = "txn_date"
	fieldDebit       = "debit"
	fieldCredit      = "credit"
	fieldDescription = "description"
	fieldRefNo       = "ref_no"
	fieldAmount      = "amount"
	fieldType        = "type"
)

// bankColumnMaps holds the exact lowercase header → canonical field table
// per bank. Exact matches are tried before the fuzzy substring rules.
var bankColumnMaps = map[model.BankCode]map[string]string{
	model.BankHDFC: {
		"date":            fieldDate,
		"value date":      fieldDate,
		"withdrawal amt.": fieldDebit,
		"deposit amt.":    fieldCredit,
		"narration":       fieldDescription,
		"chq/ref number":  fieldRefNo,
	},
	model.BankICICI: {
		"transaction date":    fieldDate,
		"value date":          fieldDate,
		"withdrawal amount":   fieldDebit,
		"deposit amount":      fieldCredit,
		"transaction remarks": fieldDescription,
		"cheque number":       fieldRefNo,
	},
	model.BankSBI: {
		"txn date":           fieldDate,
		"value date":         fieldDate,
		"withdrawal":         fieldDebit,
		"deposit":            fieldCredit,
		"description":        fieldDescription,
		"ref no./cheque no.": fieldRefNo,
	},
	model.BankAxis: {
		"tran date":   fieldDate,
		"value date":  fieldDate,
		"debit":       fieldDebit,
		"credit":      fieldCredit,
		"particulars": fieldDescription,
		"chq no":      fieldRefNo,
	},
	model.BankGeneric: {
		"date":             fieldDate,
		"transaction date": fieldDate,
		"debit":            fieldDebit,
		"credit":           fieldCredit,
		"amount":           fieldAmount,
		"type":             fieldType,
		"description":      fieldDescription,
		"narration":        fieldDescription,
		"reference":        fieldRefNo,
	},
}

// fuzzyColumnRules map a header substring to a canonical field. Applied in
// order to headers the exact table left unmapped, so the more specific
// withdrawal/deposit rules come before the bare amount rule.
var fuzzyColumnRules = []struct {
	substr string
	field  string
}{
	{"date", fieldDate},
	{"withdrawal", fieldDebit},
	{"deposit", fieldCredit},
	{"narration", fieldDescription},
	{"particulars", fieldDescription},
	{"description", fieldDescription},
	{"remarks", fieldDescription},
	{"details", fieldDescription},
	{"debit", fieldDebit},
	{"credit", fieldCredit},
	{"cheque", fieldRefNo},
	{"chq", fieldRefNo},
	{"ref", fieldRefNo},
	{"amount", fieldAmount},
	{"type", fieldType},
	{"dr/cr", fieldType},
}

// columnMapping holds resolved column indexes; -1 means absent.
type columnMapping struct {
	date        int
	debit       int
	credit      int
	description int
	refNo       int
	amount      int
	txnType     int
}

// mapColumns resolves a header row to canonical column indexes for the given
// bank. Both date and description must resolve; otherwise a MappingError is
// returned and the caller falls back to the generic line parser.
func mapColumns(bank model.BankCode, headers []string) (columnMapping, *MappingError) {
	m := columnMapping{date: -1, debit: -1, credit: -1, description: -1, refNo: -1, amount: -1, txnType: -1}

	exact := bankColumnMaps[bank]
	if exact == nil {
		exact = bankColumnMaps[model.BankGeneric]
	}

	assign := func(field string, idx int) {
		switch field {
		case fieldDate:
			if m.date < 0 {
				m.date = idx
			}
		case fieldDebit:
			if m.debit < 0 {
				m.debit = idx
			}
		case fieldCredit:
			if m.credit < 0 {
				m.credit = idx
			}
		case fieldDescription:
			if m.description < 0 {
				m.description = idx
			}
		case fieldRefNo:
			if m.refNo < 0 {
				m.refNo = idx
			}
		case fieldAmount:
			if m.amount < 0 {
				m.amount = idx
			}
		case fieldType:
			if m.txnType < 0 {
				m.txnType = idx
			}
		}
	}

	mapped := make([]bool, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := exact[key]; ok {
			assign(field, i)
			mapped[i] = true
		}
	}
	for i, h := range headers {
		if mapped[i] {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		for _, rule := range fuzzyColumnRules {
			if strings.Contains(key, rule.substr) {
				assign(rule.field, i)
				break
			}
		}
	}

	if m.date < 0 || m.description < 0 {
		cols := make([]string, 0, len(headers))
		for _, h := range headers {
			if s := strings.TrimSpace(h); s != "" {
				cols = append(cols, s)
			}
		}
		return m, &MappingError{Bank: string(bank), Columns: cols}
	}
	return m, nil
}

// Header auto-detection tokens. A header row must look like one, not be
// assumed at row 0: bank exports prepend letterhead and metadata rows.
var (
	descTokens  = []string{"narration", "description", "particulars", "remarks", "details"}
	moneyTokens = []string{"withdrawal", "deposit", "debit", "credit", "amount", "balance"}
)

func hasToken(cells []string, tokens []string) bool {
	for _, c := range cells {
		lc := strings.ToLower(strings.TrimSpace(c))
		for _, tok := range tokens {
			if strings.Contains(lc, tok) {
				return true
			}
		}
	}
	return false
}

func hasDateToken(cells []string) bool {
	return hasToken(cells, []string{"date"})
}

// hasMoneyToken also accepts a bare dr/cr cell, matched exactly so that
// ordinary words containing those letter pairs do not trip it.
func hasMoneyToken(cells []string) bool {
	if hasToken(cells, moneyTokens) {
		return true
	}
	for _, c := range cells {
		lc := strings.ToLower(strings.TrimSpace(c))
		if lc == "dr" || lc == "cr" || lc == "dr/cr" {
			return true
		}
	}
	return false
}

func rowEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

const headerScanWindow = 100

// detectHeaderRow locates the true header row in a grid that may carry
// leading title rows. Returns -1 when nothing in the scan window qualifies.
//
// Pass order: accept row 0 when it already looks like a header (date +
// description token); then a strict scan (date + description-or-money);
// then a loose scan (date + description); finally the first non-empty row.
func detectHeaderRow(grid [][]string) int {
	if len(grid) == 0 {
		return -1
	}
	if hasDateToken(grid[0]) && hasToken(grid[0], descTokens) {
		return 0
	}

	limit := len(grid)
	if limit > headerScanWindow {
		limit = headerScanWindow
	}
	for i := 0; i < limit; i++ {
		if hasDateToken(grid[i]) && (hasToken(grid[i], descTokens) || hasMoneyToken(grid[i])) {
			return i
		}
	}
	for i := 0; i < limit; i++ {
		if hasDateToken(grid[i]) && hasToken(grid[i], descTokens) {
			return i
		}
	}
	for i := 0; i < limit; i++ {
		if !rowEmpty(grid[i]) {
			return i
		}
	}
	return -1
}
