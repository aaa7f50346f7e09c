// Package normalize converts SQL text into a canonical shape and computes a
// stable fingerprint grouping executions that differ only in literal values.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const placeholder = "?"

// NormalizedQuery pairs the raw SQL with its canonical form and fingerprint.
type NormalizedQuery struct {
	Raw         string `json:"raw"`
	Normalized  string `json:"normalized"`
	Fingerprint string `json:"fingerprint"`
}

// Normalize tokenizes sql, replaces literals with placeholders, collapses
// whitespace and case-normalizes. The fingerprint is the SHA-256 of the
// normalized text, so identical shape implies identical fingerprint.
func Normalize(sql string) NormalizedQuery {
	tokens := tokenize(sql)
	tokens = collapseInLists(tokens)
	normalized := strings.Join(tokens, " ")
	sum := sha256.Sum256([]byte(normalized))
	return NormalizedQuery{
		Raw:         sql,
		Normalized:  normalized,
		Fingerprint: hex.EncodeToString(sum[:]),
	}
}

// Fingerprint is a shortcut for Normalize(sql).Fingerprint.
func Fingerprint(sql string) string {
	return Normalize(sql).Fingerprint
}

func tokenize(sql string) []string {
	var tokens []string
	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
		case r == '\'':
			// String literal; '' escapes a quote.
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, placeholder)
		case r == '"':
			// Quoted identifier: preserved verbatim, case-sensitive.
			start := i
			i++
			for i < len(runes) && runes[i] != '"' {
				i++
			}
			if i < len(runes) {
				i++
			}
			tokens = append(tokens, string(runes[start:i]))
		case unicode.IsDigit(r), r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]):
			for i < len(runes) && isNumberRune(runes[i]) {
				i++
			}
			tokens = append(tokens, placeholder)
		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, strings.ToUpper(string(runes[start:i])))
		default:
			// Operators and punctuation, one rune per token except
			// two-rune comparison operators.
			if i+1 < len(runes) && isTwoRuneOp(r, runes[i+1]) {
				tokens = append(tokens, string(runes[i:i+2]))
				i += 2
			} else {
				tokens = append(tokens, string(r))
				i++
			}
		}
	}
	return tokens
}

// collapseInLists rewrites IN ( ? , ? , ... ) to IN ( ? ) so that list
// length never changes the fingerprint. Lists containing anything other
// than placeholders are left element-wise.
func collapseInLists(tokens []string) []string {
	var out []string
	for i := 0; i < len(tokens); i++ {
		out = append(out, tokens[i])
		if tokens[i] != "IN" || i+1 >= len(tokens) || tokens[i+1] != "(" {
			continue
		}
		end, ok := pureLiteralList(tokens, i+1)
		if !ok {
			continue
		}
		out = append(out, "(", placeholder, ")")
		i = end
	}
	return out
}

// pureLiteralList reports whether tokens starting at the "(" at open form a
// parenthesized list of only placeholders and commas, returning the index of
// the closing ")".
func pureLiteralList(tokens []string, open int) (int, bool) {
	for j := open + 1; j < len(tokens); j++ {
		switch tokens[j] {
		case placeholder, ",":
		case ")":
			return j, j > open+1
		default:
			return 0, false
		}
	}
	return 0, false
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

func isNumberRune(r rune) bool {
	return unicode.IsDigit(r) || r == '.' || r == 'e' || r == 'E'
}

func isTwoRuneOp(a, b rune) bool {
	switch string([]rune{a, b}) {
	case "<=", ">=", "<>", "!=", "||", "::":
		return true
	}
	return false
}
