// Package model defines the canonical transaction types shared by the
// parsers, the categorization engine, and the fact loader.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether money left or entered the account.
// Amounts are always positive; direction carries the sign semantics.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// BankCode identifies the issuing bank of a statement or alert.
type BankCode string

const (
	BankHDFC    BankCode = "HDFC"
	BankICICI   BankCode = "ICICI"
	BankSBI     BankCode = "SBI"
	BankAxis    BankCode = "AXIS"
	BankGeneric BankCode = "GENERIC"
	BankUnknown BankCode = "UNKNOWN"
)

// Channel tags the source medium a row was ingested from. Email rows may be
// sub-classified into a more specific channel by the alert parser.
type Channel string

const (
	ChannelCSV   Channel = "csv"
	ChannelExcel Channel = "excel"
	ChannelPDF   Channel = "pdf"
	ChannelEmail Channel = "email"

	// Email sub-classifications.
	ChannelLoanEMI    Channel = "loan_emi"
	ChannelCreditCard Channel = "credit_card"
	ChannelOTT        Channel = "ott_subscription"
)

// TxnRow is the universal parse output: every source parser converts its raw
// format into a list of these. A row that cannot resolve TxnDate, Amount, and
// Direction is dropped at the parser boundary, never staged as a placeholder.
type TxnRow struct {
	TxnDate     time.Time
	PostedDate  *time.Time
	Amount      decimal.Decimal
	Direction   Direction
	Description string
	MerchantRaw string
	ReferenceID string
	BankCode    BankCode
	Channel     Channel

	// RawMeta preserves source-specific fields for audit and debugging.
	// It is never consulted for business logic.
	RawMeta map[string]string
}

// Complete reports whether the row carries the three fields every staged
// transaction must have. Parsers call this before emitting a row.
func (r TxnRow) Complete() bool {
	return !r.TxnDate.IsZero() && r.Amount.IsPositive() && r.Direction.Valid()
}

// StagedTransaction is a parsed row held in staging, pending validation and
// load. It is mutated by the validator (ParsedOK) and the categorization
// engine (category fields), and never after load.
type StagedTransaction struct {
	ID      string
	BatchID string
	UserID  string

	TxnDate     time.Time
	PostedDate  *time.Time
	Amount      decimal.Decimal
	Direction   Direction
	Description string
	MerchantRaw string
	ReferenceID string
	BankCode    BankCode
	Channel     Channel
	RawMeta     map[string]string

	Category           string
	Subcategory        string
	CategoryConfidence float64
	MatchedRuleID      string
	ParsedOK           bool

	CreatedAt time.Time
}

// StagedFromRow builds a staged transaction from a canonical row.
func StagedFromRow(id, batchID, userID string, row TxnRow) StagedTransaction {
	return StagedTransaction{
		ID:          id,
		BatchID:     batchID,
		UserID:      userID,
		TxnDate:     row.TxnDate,
		PostedDate:  row.PostedDate,
		Amount:      row.Amount,
		Direction:   row.Direction,
		Description: row.Description,
		MerchantRaw: row.MerchantRaw,
		ReferenceID: row.ReferenceID,
		BankCode:    row.BankCode,
		Channel:     row.Channel,
		RawMeta:     row.RawMeta,
		CreatedAt:   time.Now(),
	}
}

// TxnFact is the durable, deduplicated ledger entry. Append-only: facts are
// never updated except by explicit user edit or delete. Loader inserts are
// idempotent under the DedupeFP uniqueness constraint.
type TxnFact struct {
	TxnID            string
	UserID           string
	UploadID         string
	SourceType       string
	AccountRef       string
	TxnDate          time.Time
	PostedDate       *time.Time
	Description      string
	MerchantRaw      string
	MerchantNameNorm string
	Amount           decimal.Decimal
	Direction        Direction
	BankCode         BankCode
	Channel          Channel
	ReferenceID      string
	DedupeFP         string
	CreatedAt        time.Time
}

// TxnEnriched holds the category assignment for a fact, 1:1 by TxnID.
// RuleConfidence at or above ManualConfidence marks a user edit that
// automated re-categorization must not overwrite.
type TxnEnriched struct {
	TxnID           string
	CategoryCode    string
	SubcategoryCode string
	RuleConfidence  float64
	MatchedRuleID   string
}

// ManualConfidence is the confidence floor set by a manual category edit.
// It exceeds every automated tier, signalling "do not auto-recategorize".
const ManualConfidence = 0.99

// MatchField selects which row field a categorization rule tests.
type MatchField string

const (
	MatchDescription MatchField = "description"
	MatchMerchant    MatchField = "merchant"
)

// MatchType selects how a rule's value is tested against the field.
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "startswith"
	MatchRegex      MatchType = "regex"
)

// Rule is one ordered categorization rule. Rules are read-only inputs to the
// engine; the first match in ascending priority order wins.
type Rule struct {
	RuleID          string
	BankCode        *BankCode // nil = universal
	MatchField      MatchField
	MatchType       MatchType
	MatchValue      string
	Direction       *Direction // nil = both directions
	PrimaryCategory string
	SubCategory     string
	Priority        int
	Active          bool
}

// Category is a row of the category dimension. Bucket is one of
// needs/wants/assets/income and exists to satisfy downstream budgeting views.
type Category struct {
	Code   string
	Name   string
	Bucket string
	Active bool
}

// EmailMessageMeta records the source email a staged row was extracted from.
type EmailMessageMeta struct {
	ID        string
	BatchID   string
	UserID    string
	AccountID string
	MessageID string
	ThreadID  string
	Subject   string
	From      string
	To        string
	Snippet   string
	Parsed    bool
	CreatedAt time.Time
}
