package categorize

import "strings"

// keywordEntry maps a narration substring to a category pair.
type keywordEntry struct {
	keyword     string
	category    string
	subcategory string
}

// keywordTable is the static fallback used when no rule matches. Checked
// longest-keyword-first so "credit card payment" beats "credit card".
var keywordTable = []keywordEntry{
	{"credit card payment", "loans", "credit_card"},
	{"credit card", "loans", "credit_card"},
	{"mutual fund", "investments", "mutual_fund"},
	{"prime video", "entertainment", "ott"},
	{"electricity", "utilities", "electricity"},
	{"installment", "loans", "emi"},
	{"instalment", "loans", "emi"},
	{"bigbasket", "groceries", "online"},
	{"broadband", "utilities", "internet"},
	{"insurance", "insurance", "premium"},
	{"recharge", "utilities", "mobile"},
	{"flipkart", "shopping", "online"},
	{"hotstar", "entertainment", "ott"},
	{"netflix", "entertainment", "ott"},
	{"spotify", "entertainment", "ott"},
	{"zerodha", "investments", "equity"},
	{"grocery", "groceries", ""},
	{"swiggy", "food", "food_delivery"},
	{"zomato", "food", "food_delivery"},
	{"amazon", "shopping", "online"},
	{"myntra", "shopping", "online"},
	{"petrol", "fuel", "petrol"},
	{"diesel", "fuel", "diesel"},
	{"salary", "income", "salary"},
	{"groww", "investments", "equity"},
	{"irctc", "travel", "train"},
	{"dmart", "groceries", "supermarket"},
	{"hpcl", "fuel", "petrol"},
	{"iocl", "fuel", "petrol"},
	{"bpcl", "fuel", "petrol"},
	{"rent", "housing", "rent"},
	{"uber", "travel", "cab"},
	{"atm", "cash", "atm_withdrawal"},
	{"dth", "utilities", "dth"},
	{"emi", "loans", "emi"},
	{"ola", "travel", "cab"},
	{"sip", "investments", "mutual_fund"},
	{"upi", "transfers", "upi"},
}

// matchKeywords scans the table in declared (longest-first) order.
func matchKeywords(text string) (Assignment, bool) {
	for _, e := range keywordTable {
		if strings.Contains(text, e.keyword) {
			return Assignment{
				Category:    e.category,
				Subcategory: e.subcategory,
				Confidence:  ConfidenceKeyword,
			}, true
		}
	}
	return Assignment{}, false
}
