package parser

import (
	"strings"
	"time"
)

// statementDateFormats is the trial order for statement dates. Day-first
// formats come before anything ambiguous: Indian bank exports are DD/MM.
var statementDateFormats = []string{
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	"02-01-06",
}

// parseStatementDate tries each statement format in order. The zero time and
// false mean no format matched; callers skip the row or line.
func parseStatementDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range statementDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// emailDateFormats covers the date shapes seen in Indian bank alert emails.
var emailDateFormats = []string{
	"02-Jan-2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2 Jan 2006",
	"02 Jan 2006",
}

// parseEmailDate is more permissive than parseStatementDate and never fails
// the row: alert emails are near-real-time, so a missing date defaults to now.
func parseEmailDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range emailDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cellDateFormats extends the statement formats with shapes Excel renders
// after type coercion (ISO dates, month names). Statement formats are tried
// first so the day-first convention keeps precedence.
var cellDateFormats = append(append([]string{}, statementDateFormats...),
	"2006-01-02",
	"02-Jan-2006",
	"02 Jan 2006",
	"2006-01-02 15:04:05",
)

// parseCellDate parses a spreadsheet cell that is expected to hold a date.
func parseCellDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range cellDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
