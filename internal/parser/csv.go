package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/spendsense/backend/internal/model"
)

// ParseCSV reads a CSV statement into canonical rows. Ragged rows are
// tolerated; real exports pad or truncate trailing cells freely.
func ParseCSV(r io.Reader, hint model.BankCode) (GridResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var grid [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return GridResult{}, newParseError(ErrUnreadableFile,
				fmt.Sprintf("reading CSV at row %d", len(grid)+1), err)
		}
		grid = append(grid, record)
	}
	if len(grid) == 0 {
		return GridResult{}, newParseError(ErrEmptyFile, "CSV file contains no rows", nil)
	}

	return ParseGrid(grid, hint, model.ChannelCSV)
}
