package parser

import "fmt"

// ErrorCode classifies parse failures so the HTTP layer can map them to
// client-visible messages without string matching.
type ErrorCode string

const (
	ErrUnsupportedFormat    ErrorCode = "UNSUPPORTED_FORMAT"
	ErrPDFPasswordRequired  ErrorCode = "PDF_PASSWORD_REQUIRED"
	ErrPDFPasswordIncorrect ErrorCode = "PDF_PASSWORD_INCORRECT"
	ErrNoColumnMapping      ErrorCode = "NO_COLUMN_MAPPING"
	ErrUnreadableFile       ErrorCode = "UNREADABLE_FILE"
	ErrEmptyFile            ErrorCode = "EMPTY_FILE"
)

// ParseError is a structured error for whole-file parse failures. Row-level
// problems never produce a ParseError; they are counted in Stats.Skipped.
type ParseError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func newParseError(code ErrorCode, msg string, cause error) *ParseError {
	return &ParseError{Code: code, Message: msg, Cause: cause}
}

// MappingError reports that a sheet's columns could not be mapped to the
// canonical fields. It names the columns that were available so the failure
// is diagnosable, and it signals the caller to fall back to the generic
// line parser rather than abort.
type MappingError struct {
	Bank    string
	Columns []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("no usable column mapping for bank %s; columns available: %v", e.Bank, e.Columns)
}
