package analyzer

import (
	"regexp"
	"strings"
)

var (
	stringLiteralRe = regexp.MustCompile(`'[^']*'`)
	columnRefRe     = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)
	castColRe       = regexp.MustCompile(`\(([a-zA-Z_]\w*)\)::`)
	bareWordRe      = regexp.MustCompile(`\b([a-zA-Z_]\w*)\b`)
)

// conditionKeywords are tokens that look like identifiers inside a predicate
// but never name a column.
var conditionKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "is": true, "null": true,
	"in": true, "like": true, "ilike": true, "between": true, "any": true,
	"all": true, "true": true, "false": true, "exists": true, "case": true,
	"when": true, "then": true, "else": true, "end": true,
	"text": true, "numeric": true, "integer": true, "bigint": true,
	"date": true, "timestamp": true, "interval": true, "boolean": true,
	"now": true, "current_date": true, "current_timestamp": true, "sysdate": true,
}

// ExtractConditionColumns pulls distinct column names out of a predicate
// string: qualified refs (t.col), cast refs ((col)::type), and bare
// identifiers that are not keywords or function calls.
func ExtractConditionColumns(cond string) []string {
	if cond == "" {
		return nil
	}
	cleaned := stringLiteralRe.ReplaceAllString(cond, "")

	seen := make(map[string]bool)
	var cols []string
	add := func(col string) {
		key := strings.ToLower(col)
		if !seen[key] && !conditionKeywords[key] {
			seen[key] = true
			cols = append(cols, col)
		}
	}

	for _, m := range columnRefRe.FindAllStringSubmatch(cleaned, -1) {
		add(m[2])
	}
	for _, m := range castColRe.FindAllStringSubmatch(cleaned, -1) {
		add(m[1])
	}

	// Bare identifiers: skip anything immediately followed by "(" (a
	// function call) or already captured as part of a qualified ref.
	qualified := make(map[string]bool)
	for _, m := range columnRefRe.FindAllStringSubmatch(cleaned, -1) {
		qualified[strings.ToLower(m[1])] = true
	}
	for _, loc := range bareWordRe.FindAllStringSubmatchIndex(cleaned, -1) {
		word := cleaned[loc[2]:loc[3]]
		rest := cleaned[loc[3]:]
		if strings.HasPrefix(strings.TrimLeft(rest, " "), "(") {
			continue
		}
		if qualified[strings.ToLower(word)] {
			continue
		}
		if isNumeric(word) {
			continue
		}
		add(word)
	}
	return cols
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// conditionReferencesColumn reports whether cond mentions col, ignoring case.
func conditionReferencesColumn(cond, col string) bool {
	for _, c := range ExtractConditionColumns(cond) {
		if strings.EqualFold(c, col) {
			return true
		}
	}
	return false
}
