// Package categorize maps canonical transaction rows to (category,
// subcategory, confidence) via an ordered rule table with keyword fallback.
package categorize

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/spendsense/backend/internal/model"
)

// Confidence tiers by resolution path. Manual edits sit above all of these
// at model.ManualConfidence.
const (
	ConfidenceRuleFull    = 1.0 // rule matched and resolved a subcategory
	ConfidenceRulePartial = 0.8 // rule matched, no subcategory
	ConfidenceKeyword     = 0.85
	ConfidenceHeuristic   = 0.7 // personal-name / company credit heuristics
	ConfidenceCreditGuess = 0.4 // ambiguous credit defaulted to transfers
	ConfidenceFallback    = 0.1
)

// Fallback category codes.
const (
	CategoryOthers    = "others"
	SubcategoryUncat  = "uncategorized"
	CategoryTransfers = "transfers"
	SubcategoryP2P    = "p2p_personal"
	CategoryIncome    = "income"
	SubcategorySalary = "salary"
)

// Assignment is the engine's verdict for one row.
type Assignment struct {
	Category      string
	Subcategory   string
	Confidence    float64
	MatchedRuleID string
}

// Input carries the row fields the engine inspects.
type Input struct {
	Description string
	Merchant    string
	Direction   model.Direction
	BankCode    model.BankCode
}

// RuleSource supplies active categorization rules for a bank, including the
// universal (nil bank) rules. Order is not trusted; the engine sorts.
type RuleSource interface {
	ActiveRules(ctx context.Context, bank model.BankCode) ([]model.Rule, error)
}

// Engine resolves categories in two tiers: first match against the rule
// table in priority order, then the static keyword table with credit-side
// heuristics. No scoring, no backtracking.
type Engine struct {
	rules    RuleSource
	personal PersonalClassifier
}

// NewEngine builds an engine. personal may be nil, disabling the
// personal-transfer heuristic.
func NewEngine(rules RuleSource, personal PersonalClassifier) *Engine {
	return &Engine{rules: rules, personal: personal}
}

// Categorize resolves one row. It only errors when the rule source fails;
// an unresolvable row gets the others/uncategorized fallback.
func (e *Engine) Categorize(ctx context.Context, in Input) (Assignment, error) {
	rules, err := e.rules.ActiveRules(ctx, in.BankCode)
	if err != nil {
		return Assignment{}, err
	}

	if a, ok := matchRules(rules, in); ok {
		return a, nil
	}
	return e.fallback(in), nil
}

// matchRules walks the rules in ascending priority. First match wins.
func matchRules(rules []model.Rule, in Input) (Assignment, bool) {
	ordered := make([]model.Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, r := range ordered {
		if !r.Active {
			continue
		}
		if r.BankCode != nil && *r.BankCode != in.BankCode {
			continue
		}
		if r.Direction != nil && *r.Direction != in.Direction {
			continue
		}

		haystack := strings.ToLower(in.Description)
		if r.MatchField == model.MatchMerchant {
			haystack = strings.ToLower(in.Merchant)
		}
		if strings.TrimSpace(haystack) == "" {
			continue
		}

		if ruleMatches(r, haystack) {
			conf := ConfidenceRulePartial
			if r.SubCategory != "" {
				conf = ConfidenceRuleFull
			}
			return Assignment{
				Category:      r.PrimaryCategory,
				Subcategory:   r.SubCategory,
				Confidence:    conf,
				MatchedRuleID: r.RuleID,
			}, true
		}
	}
	return Assignment{}, false
}

func ruleMatches(r model.Rule, haystack string) bool {
	needle := strings.ToLower(r.MatchValue)
	switch r.MatchType {
	case model.MatchContains:
		return strings.Contains(haystack, needle)
	case model.MatchStartsWith:
		return strings.HasPrefix(haystack, needle)
	case model.MatchRegex:
		re, err := regexp.Compile("(?i)" + r.MatchValue)
		if err != nil {
			// A broken rule pattern is a non-match, never a failure.
			return false
		}
		return re.MatchString(haystack)
	}
	return false
}

// fallback applies the keyword table, then the credit-side heuristics, then
// the absolute others/uncategorized floor.
func (e *Engine) fallback(in Input) Assignment {
	text := strings.ToLower(strings.TrimSpace(in.Description + " " + in.Merchant))

	if a, ok := matchKeywords(text); ok {
		return a
	}

	if in.Direction == model.DirectionCredit {
		return e.classifyCredit(text)
	}
	return Assignment{Category: CategoryOthers, Subcategory: SubcategoryUncat, Confidence: ConfidenceFallback}
}

// classifyCredit separates incoming personal transfers from business income.
// Best-effort: a wrong guess here costs a category, not a row.
func (e *Engine) classifyCredit(text string) Assignment {
	if containsBusinessKeyword(text) {
		return Assignment{Category: CategoryIncome, Subcategory: SubcategorySalary, Confidence: ConfidenceHeuristic}
	}
	if e.personal != nil && e.personal.IsPersonalTransfer(text) {
		return Assignment{Category: CategoryTransfers, Subcategory: SubcategoryP2P, Confidence: ConfidenceHeuristic}
	}
	return Assignment{Category: CategoryTransfers, Subcategory: SubcategoryP2P, Confidence: ConfidenceCreditGuess}
}
