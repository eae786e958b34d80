package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/backend/internal/model"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", "450.00", "450", true},
		{"thousands separators", "1,23,456.78", "123456.78", true},
		{"rupee symbol", "₹450.00", "450", true},
		{"rs prefix", "Rs. 450.00", "450", true},
		{"inr prefix", "INR 1,200", "1200", true},
		{"negative", "-450.00", "-450", true},
		{"integer", "450", "450", true},
		{"empty", "", "0", false},
		{"dash only", "-", "0", false},
		{"text", "balance", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseAmount(tt.input)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
					"got %s want %s", got, tt.want)
			}
		})
	}
}

func TestParseGenericLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantOK    bool
		wantDate  time.Time
		wantDesc  string
		wantAmt   string
		wantDir   model.Direction
	}{
		{
			name:     "debit with DR marker",
			line:     "15/01/2024 UPI-SWIGGY BANGALORE 450.00 DR",
			wantOK:   true,
			wantDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			wantDesc: "UPI-SWIGGY BANGALORE",
			wantAmt:  "450",
			wantDir:  model.DirectionDebit,
		},
		{
			name:     "credit with CR marker",
			line:     "01-02-2024 SALARY CREDIT ACME CORP 85,000.00 CR",
			wantOK:   true,
			wantDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantDesc: "SALARY CREDIT ACME CORP",
			wantAmt:  "85000",
			wantDir:  model.DirectionCredit,
		},
		{
			name:     "DEBIT word marker",
			line:     "05/03/24 ATM WDL MG ROAD 2,000 DEBIT",
			wantOK:   true,
			wantDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			wantDesc: "ATM WDL MG ROAD",
			wantAmt:  "2000",
			wantDir:  model.DirectionDebit,
		},
		{
			name:     "lowercase marker",
			line:     "15/01/2024 upi payment 100.00 cr",
			wantOK:   true,
			wantDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			wantDesc: "upi payment",
			wantAmt:  "100",
			wantDir:  model.DirectionCredit,
		},
		{"header line", "Date Narration Amount Dr/Cr", false, time.Time{}, "", "", ""},
		{"no direction marker", "15/01/2024 SWIGGY PAYMENT 450.00", false, time.Time{}, "", "", ""},
		{"balance summary", "Closing Balance 1,234.56", false, time.Time{}, "", "", ""},
		{"empty", "", false, time.Time{}, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, ok := ParseGenericLine(tt.line, model.BankHDFC, model.ChannelPDF)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantDate, row.TxnDate)
			assert.Equal(t, tt.wantDesc, row.Description)
			assert.True(t, row.Amount.Equal(decimal.RequireFromString(tt.wantAmt)))
			assert.Equal(t, tt.wantDir, row.Direction)
			assert.Equal(t, model.BankHDFC, row.BankCode)
			assert.Equal(t, model.ChannelPDF, row.Channel)
		})
	}
}

func TestParseGenericGridCounts(t *testing.T) {
	grid := [][]string{
		{"Statement of Account"},
		{"15/01/2024", "SWIGGY BANGALORE", "450.00", "DR"},
		{""},
		{"16/01/2024", "SALARY", "85,000.00", "CR"},
		{"Closing Balance", "84,550.00"},
	}

	rows, stats := parseGenericGrid(grid, model.BankGeneric, model.ChannelPDF)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, model.DirectionDebit, rows[0].Direction)
	assert.Equal(t, model.DirectionCredit, rows[1].Direction)
}
