package categorize

import "strings"

// PersonalClassifier decides whether a credit narration looks like a
// person-to-person transfer rather than a business payment. Pluggable so the
// curated-list heuristic can be replaced without touching the engine.
type PersonalClassifier interface {
	IsPersonalTransfer(text string) bool
}

// businessKeywords disqualify a narration from being a personal name.
var businessKeywords = []string{
	"enterprises", "enterprise", "services", "solutions", "technologies",
	"technology", "private", "limited", "pvt", "ltd", "llp", "inc", "corp",
	"company", "industries", "traders", "trading", "stores", "agencies",
	"hotel", "restaurant", "hospital", "bank", "finance", "consultancy",
}

func containsBusinessKeyword(text string) bool {
	for _, kw := range businessKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// commonNames is a curated list of common Indian given names. Deliberately
// small: a hit is strong evidence, a miss is neutral.
var commonNames = map[string]bool{
	"rahul": true, "priya": true, "amit": true, "sneha": true, "vijay": true,
	"anjali": true, "rohan": true, "pooja": true, "arjun": true, "kavya": true,
	"suresh": true, "ramesh": true, "deepak": true, "neha": true, "kiran": true,
	"sanjay": true, "anita": true, "manoj": true, "divya": true, "rakesh": true,
	"ankit": true, "shreya": true, "varun": true, "meena": true, "gopal": true,
	"lakshmi": true, "krishna": true, "ravi": true, "sunita": true, "ajay": true,
}

// ListClassifier implements PersonalClassifier with the word-count plus
// curated-name heuristic: 2-4 alphabetic tokens, none of them a business
// keyword, at least one a known given name.
type ListClassifier struct{}

func (ListClassifier) IsPersonalTransfer(text string) bool {
	tokens := nameTokens(text)
	if len(tokens) < 2 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		if containsBusinessKeyword(tok) {
			return false
		}
	}
	for _, tok := range tokens {
		if commonNames[tok] {
			return true
		}
	}
	return false
}

// nameTokens keeps purely alphabetic words; reference numbers and UPI
// handles are noise for name detection.
func nameTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		alpha := true
		for _, r := range tok {
			if r < 'a' || r > 'z' {
				alpha = false
				break
			}
		}
		if alpha && tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
