package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/spendsense/backend/internal/model"
)

// Password error messages are client-visible; the caller prompts the user
// differently for each.
const (
	msgPDFPasswordRequired  = "PDF is password protected. Please provide the password."
	msgPDFPasswordIncorrect = "PDF password is incorrect."
)

// ParsePDF extracts statement text page by page and runs the generic line
// parser over it. Transactions split across a page boundary are lost, never
// merged into corrupt rows.
func ParsePDF(data []byte, password string, hint model.BankCode) (GridResult, error) {
	reader, err := openPDF(data, password)
	if err != nil {
		return GridResult{}, err
	}

	pages, err := extractPages(reader)
	if err != nil {
		return GridResult{}, err
	}

	res := GridResult{Bank: DetectBankFromText(strings.Join(pages, "\n")), MappingFellBack: true}
	if res.Bank == model.BankUnknown && hint != "" && hint != model.BankGeneric {
		res.Bank = hint
	}

	for _, pageText := range pages {
		for _, line := range strings.Split(pageText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if row, ok := ParseGenericLine(line, res.Bank, model.ChannelPDF); ok {
				res.Rows = append(res.Rows, row)
				res.Stats.Parsed++
			} else {
				res.Stats.Skipped++
			}
		}
	}
	return res, nil
}

// openPDF distinguishes the missing-password and wrong-password cases. The
// reader library retries the password callback until it returns ""; one real
// attempt is enough to classify the failure.
func openPDF(data []byte, password string) (*pdf.Reader, error) {
	attempted := false
	pw := func() string {
		if attempted {
			return ""
		}
		attempted = true
		return password
	}

	reader, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), pw)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			if password == "" {
				return nil, newParseError(ErrPDFPasswordRequired, msgPDFPasswordRequired, err)
			}
			return nil, newParseError(ErrPDFPasswordIncorrect, msgPDFPasswordIncorrect, err)
		}
		return nil, newParseError(ErrUnreadableFile, "opening PDF", err)
	}
	return reader, nil
}

// extractPages pulls plain text per page. The pdf library panics on some
// malformed files, so extraction runs under recover.
func extractPages(reader *pdf.Reader) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = newParseError(ErrUnreadableFile, "extracting PDF text", fmt.Errorf("panic: %v", r))
		}
	}()

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return nil, newParseError(ErrEmptyFile, "no extractable text in PDF", nil)
	}
	return pages, nil
}
