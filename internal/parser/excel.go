package parser

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spendsense/backend/internal/model"
)

// ParseExcel reads the first sheet of an xlsx workbook into canonical rows.
// Header auto-detection handles the 0..n letterhead rows banks prepend.
func ParseExcel(r io.Reader, hint model.BankCode) (GridResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return GridResult{}, newParseError(ErrUnreadableFile, "opening Excel workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return GridResult{}, newParseError(ErrEmptyFile, "workbook has no sheets", nil)
	}

	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return GridResult{}, newParseError(ErrUnreadableFile, "reading Excel sheet", err)
	}
	if len(grid) == 0 {
		return GridResult{}, newParseError(ErrEmptyFile, "sheet contains no rows", nil)
	}

	return ParseGrid(grid, hint, model.ChannelExcel)
}
