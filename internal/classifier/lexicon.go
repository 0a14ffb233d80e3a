package classifier

import (
	"regexp"
	"strings"

	"goprofile/domain/profiling"
)

// nameHint is what a column name alone suggests
type nameHint struct {
	semantic profiling.SemanticType
	date     bool
	keyword  string
}

// keyword tables are matched against the tokens of a normalized column name
var semanticKeywords = []struct {
	semantic profiling.SemanticType
	tokens   []string
}{
	{profiling.SemanticIdentifier, []string{"id", "uuid", "guid", "identifier", "sku", "key"}},
	{profiling.SemanticAge, []string{"age", "ages"}},
	{profiling.SemanticCurrency, []string{"price", "amount", "cost", "revenue", "salary", "fee", "total", "spend", "income", "balance", "wage", "usd"}},
	{profiling.SemanticPercentage, []string{"percent", "percentage", "pct", "ratio", "share"}},
	{profiling.SemanticRating, []string{"rating", "score", "stars", "grade"}},
	{profiling.SemanticStatus, []string{"status", "state", "stage", "active", "enabled"}},
	{profiling.SemanticDemographic, []string{"gender", "sex", "race", "ethnicity", "marital", "nationality", "education"}},
	{profiling.SemanticOrganizationalUnit, []string{"department", "dept", "division", "team", "unit", "branch", "office", "region", "store", "location"}},
}

var dateKeywords = []string{"date", "time", "timestamp", "datetime", "day", "dob", "birthday", "created", "updated", "at"}

// valueLexicon recognises categorical vocabularies whose values alone imply a semantic type
var valueLexicon = map[profiling.SemanticType][]string{
	profiling.SemanticDemographic: {
		"male", "female", "non-binary", "nonbinary", "man", "woman",
		"single", "married", "divorced", "widowed",
	},
	profiling.SemanticStatus: {
		"active", "inactive", "pending", "completed", "complete", "cancelled", "canceled",
		"shipped", "delivered", "open", "closed", "approved", "rejected", "failed",
		"processing", "in progress", "on hold", "suspended",
	},
	profiling.SemanticOrganizationalUnit: {
		"sales", "marketing", "engineering", "finance", "hr", "human resources",
		"operations", "legal", "support", "it", "research", "procurement", "accounting",
	},
}

// lexiconOrder keeps lexicon evaluation deterministic
var lexiconOrder = []profiling.SemanticType{
	profiling.SemanticDemographic,
	profiling.SemanticStatus,
	profiling.SemanticOrganizationalUnit,
}

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
)

// nameTokens splits "customerAge", "Customer Age" and "customer_age" alike
func nameTokens(name string) []string {
	s := camelBoundary.ReplaceAllString(name, "${1}_${2}")
	s = nonAlnum.ReplaceAllString(strings.ToLower(s), "_")
	var tokens []string
	for _, t := range strings.Split(s, "_") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// hintFromName derives the semantic and date hints of a column name. The last
// token wins so "customer_age" is an age and "age_group_id" an identifier.
func hintFromName(name string) nameHint {
	tokens := nameTokens(name)
	hint := nameHint{semantic: profiling.SemanticUnknown}

	for i := len(tokens) - 1; i >= 0 && hint.semantic == profiling.SemanticUnknown; i-- {
		for _, kw := range semanticKeywords {
			if containsString(kw.tokens, tokens[i]) {
				hint.semantic = kw.semantic
				hint.keyword = tokens[i]
				break
			}
		}
	}

	for _, t := range tokens {
		if containsString(dateKeywords, t) {
			hint.date = true
			if hint.keyword == "" {
				hint.keyword = t
			}
			break
		}
	}
	return hint
}

// lexiconMatch returns the best-covered vocabulary and its match ratio
func lexiconMatch(normalized []string) (profiling.SemanticType, float64) {
	best, bestRatio := profiling.SemanticUnknown, 0.0
	if len(normalized) == 0 {
		return best, 0
	}
	for _, semantic := range lexiconOrder {
		words := valueLexicon[semantic]
		matched := 0
		for _, v := range normalized {
			if containsString(words, v) {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(normalized))
		if ratio > bestRatio {
			best, bestRatio = semantic, ratio
		}
	}
	return best, bestRatio
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
