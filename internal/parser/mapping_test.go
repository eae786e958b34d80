package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/backend/internal/model"
)

var hdfcHeaders = []string{"Date", "Narration", "Chq/Ref Number", "Value Date", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"}

func TestMapColumnsHDFC(t *testing.T) {
	m, err := mapColumns(model.BankHDFC, hdfcHeaders)
	require.Nil(t, err)

	assert.Equal(t, 0, m.date)
	assert.Equal(t, 1, m.description)
	assert.Equal(t, 2, m.refNo)
	assert.Equal(t, 4, m.debit)
	assert.Equal(t, 5, m.credit)
}

func TestMapColumnsFuzzyFallback(t *testing.T) {
	// Headers that miss the exact table but carry recognizable substrings.
	headers := []string{"Txn Date", "Transaction Particulars", "Withdrawal (INR)", "Deposit (INR)"}

	m, err := mapColumns(model.BankHDFC, headers)
	require.Nil(t, err)
	assert.Equal(t, 0, m.date)
	assert.Equal(t, 1, m.description)
	assert.Equal(t, 2, m.debit)
	assert.Equal(t, 3, m.credit)
}

func TestMapColumnsICICIRemarks(t *testing.T) {
	headers := []string{"Transaction Date", "Cheque Number", "Transaction Remarks", "Withdrawal Amount", "Deposit Amount"}

	m, err := mapColumns(model.BankICICI, headers)
	require.Nil(t, err)
	assert.Equal(t, 0, m.date)
	assert.Equal(t, 2, m.description)
	assert.Equal(t, 3, m.debit)
	assert.Equal(t, 4, m.credit)
}

func TestMapColumnsGenericAmountType(t *testing.T) {
	headers := []string{"Date", "Description", "Amount", "Type"}

	m, err := mapColumns(model.BankGeneric, headers)
	require.Nil(t, err)
	assert.Equal(t, 2, m.amount)
	assert.Equal(t, 3, m.txnType)
	assert.Equal(t, -1, m.debit)
	assert.Equal(t, -1, m.credit)
}

func TestMapColumnsFailureNamesColumns(t *testing.T) {
	headers := []string{"Serial", "Opening Balance", "Closing Balance"}

	_, err := mapColumns(model.BankSBI, headers)
	require.NotNil(t, err)
	assert.Equal(t, string(model.BankSBI), err.Bank)
	assert.Contains(t, err.Columns, "Opening Balance")
	assert.Contains(t, err.Error(), "Opening Balance")
}

func TestDetectHeaderRow(t *testing.T) {
	dataRow := []string{"15/01/2024", "SWIGGY PAYMENT", "REF1", "15/01/2024", "450.00", ""}

	tests := []struct {
		name string
		grid [][]string
		want int
	}{
		{
			name: "header at row 0",
			grid: [][]string{hdfcHeaders, dataRow},
			want: 0,
		},
		{
			name: "one letterhead row",
			grid: [][]string{{"HDFC Bank Ltd."}, hdfcHeaders, dataRow},
			want: 1,
		},
		{
			name: "three leading rows",
			grid: [][]string{{"HDFC Bank Ltd."}, {"Statement of Account"}, {}, hdfcHeaders, dataRow},
			want: 3,
		},
		{
			name: "money token qualifies without description token",
			grid: [][]string{{"title"}, {"Date", "Ref", "Withdrawal", "Deposit"}, dataRow},
			want: 1,
		},
		{
			name: "no header falls back to first non-empty row",
			grid: [][]string{{}, {"just", "some", "cells"}},
			want: 1,
		},
		{
			name: "empty grid",
			grid: nil,
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectHeaderRow(tt.grid))
		})
	}
}

func TestDetectBankFromHeaders(t *testing.T) {
	tests := []struct {
		name      string
		headers   []string
		firstCell string
		hint      model.BankCode
		want      model.BankCode
	}{
		{"bank name in header", []string{"HDFC Date", "Narration"}, "", model.BankGeneric, model.BankHDFC},
		{"letterhead sniff on generic hint", []string{"Date", "Narration"}, "ICICI Bank Statement", model.BankGeneric, model.BankICICI},
		{"explicit hint suppresses sniff", []string{"Date", "Narration"}, "ICICI Bank Statement", model.BankSBI, model.BankSBI},
		{"state bank alias", []string{"State Bank of India", "Date"}, "", model.BankGeneric, model.BankSBI},
		{"unmatched keeps hint", []string{"Date", "Narration"}, "My Ledger", model.BankGeneric, model.BankGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectBankFromHeaders(tt.headers, tt.firstCell, tt.hint))
		})
	}
}

func TestDetectBankFromText(t *testing.T) {
	assert.Equal(t, model.BankAxis, DetectBankFromText("AXIS BANK statement for account"))
	assert.Equal(t, model.BankUnknown, DetectBankFromText("no bank mentioned here"))
}
