// Package parser converts raw statement bytes (CSV, Excel, PDF) and alert
// emails into canonical transaction rows. Whole-file failures surface as
// *ParseError; row-level noise is counted, never raised.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spendsense/backend/internal/model"
)

// ParseFile dispatches on the file extension. Unknown extensions are a
// client error, not a fallback case.
func ParseFile(filename string, data []byte, hint model.BankCode, pdfPassword string) (GridResult, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(bytes.NewReader(data), hint)
	case ".xlsx", ".xlsm", ".xls":
		return ParseExcel(bytes.NewReader(data), hint)
	case ".pdf":
		return ParsePDF(data, pdfPassword, hint)
	default:
		return GridResult{}, newParseError(ErrUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q; expected .csv, .xls, .xlsx or .pdf", filepath.Ext(filename)), nil)
	}
}
