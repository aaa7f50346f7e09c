package normalize

import (
	"strings"
	"unicode"
)

// ReferencedTables extracts the table names mentioned in FROM and JOIN
// clauses. This is a heuristic scan over the token stream kept as
// supplementary information only; the authoritative object list for metadata
// collection always comes from the execution plan.
func ReferencedTables(sql string) []string {
	tokens := tokenize(sql)
	var out []string
	seen := make(map[string]bool)

	for i := 0; i < len(tokens); i++ {
		if tokens[i] != "FROM" && tokens[i] != "JOIN" {
			continue
		}
		j := i + 1
		for j < len(tokens) {
			for j < len(tokens) && (tokens[j] == "ONLY" || tokens[j] == "LATERAL") {
				j++
			}
			if j >= len(tokens) || !identToken(tokens[j]) {
				break
			}
			name, next := qualifiedName(tokens, j)
			if next < len(tokens) && tokens[next] == "(" {
				// Function call, not a relation.
				break
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			next = skipAlias(tokens, next)
			// Comma-separated FROM items continue the list.
			if tokens[i] != "FROM" || next >= len(tokens) || tokens[next] != "," {
				break
			}
			j = next + 1
		}
	}
	return out
}

// qualifiedName consumes IDENT (. IDENT)* starting at j and returns the
// dotted name plus the index after it. Unquoted parts fold to lower case the
// way the server does; quoted parts keep their case with the quotes stripped.
func qualifiedName(tokens []string, j int) (string, int) {
	var parts []string
	parts = append(parts, identPart(tokens[j]))
	j++
	for j+1 < len(tokens) && tokens[j] == "." && identToken(tokens[j+1]) {
		parts = append(parts, identPart(tokens[j+1]))
		j += 2
	}
	return strings.Join(parts, "."), j
}

func skipAlias(tokens []string, j int) int {
	if j < len(tokens) && tokens[j] == "AS" {
		j++
	}
	if j < len(tokens) && identToken(tokens[j]) && !fromClauseKeyword(tokens[j]) {
		j++
	}
	return j
}

func identToken(t string) bool {
	if t == "" || t == placeholder {
		return false
	}
	r := []rune(t)[0]
	return r == '"' || r == '_' || unicode.IsLetter(r)
}

func identPart(t string) string {
	if strings.HasPrefix(t, `"`) {
		return strings.Trim(t, `"`)
	}
	return strings.ToLower(t)
}

func fromClauseKeyword(t string) bool {
	switch t {
	case "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "ON", "USING",
		"JOIN", "LEFT", "RIGHT", "FULL", "INNER", "CROSS", "NATURAL",
		"UNION", "INTERSECT", "EXCEPT", "WINDOW", "FETCH", "FOR":
		return true
	}
	return false
}
