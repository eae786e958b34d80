package parser

import (
	"strings"

	"github.com/spendsense/backend/internal/model"
)

// bankMarkers maps lowercase substrings to bank codes. Order matters only for
// "state bank", which aliases SBI.
var bankMarkers = []struct {
	marker string
	code   model.BankCode
}{
	{"hdfc", model.BankHDFC},
	{"icici", model.BankICICI},
	{"state bank", model.BankSBI},
	{"sbi", model.BankSBI},
	{"axis", model.BankAxis},
}

// DetectBankFromHeaders classifies a sheet by its column headers. When the
// headers carry no bank name and the caller's hint is GENERIC, the first data
// cell is also sniffed: bank exports often lead with a letterhead title row.
// Detection never fails; an unmatched sheet keeps the hint (or GENERIC).
func DetectBankFromHeaders(headers []string, firstCell string, hint model.BankCode) model.BankCode {
	joined := strings.ToLower(strings.Join(headers, " "))
	if code, ok := matchBankMarker(joined); ok {
		return code
	}
	if hint == model.BankGeneric || hint == "" {
		if code, ok := matchBankMarker(strings.ToLower(firstCell)); ok {
			return code
		}
	}
	if hint == "" {
		return model.BankGeneric
	}
	return hint
}

// DetectBankFromText classifies a PDF by its full extracted text.
// Unmatched text yields UNKNOWN; the generic line parser still runs.
func DetectBankFromText(text string) model.BankCode {
	if code, ok := matchBankMarker(strings.ToLower(text)); ok {
		return code
	}
	return model.BankUnknown
}

func matchBankMarker(haystack string) (model.BankCode, bool) {
	for _, m := range bankMarkers {
		if strings.Contains(haystack, m.marker) {
			return m.code, true
		}
	}
	return model.BankUnknown, false
}
