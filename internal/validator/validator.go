// Package validator rejects dangerous or invalid SQL before analysis. The
// security phase never contacts the database; the syntax phase runs a
// zero-row probe inside a transaction that is always rolled back.
package validator

import (
	"context"
	"strings"
	"unicode"

	"github.com/aviciot/queryscope/internal/qerror"
)

// Limits bounds statement size and shape for the security phase.
type Limits struct {
	MaxLength  int
	MaxNesting int
}

// DefaultLimits matches the documented structural limits.
var DefaultLimits = Limits{
	MaxLength:  500_000,
	MaxNesting: 32,
}

// Prober runs the engine-side syntax check. Implementations must not
// execute the statement or leave any session state behind.
type Prober interface {
	Probe(ctx context.Context, sql string) error
}

// forbidden lists write/DDL/DCL/session-control/exfiltration keywords that
// fail the security phase on a whole-word match.
var forbidden = []string{
	"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT",
	"DROP", "CREATE", "ALTER", "TRUNCATE", "RENAME", "COMMENT",
	"GRANT", "REVOKE",
	"COMMIT", "ROLLBACK", "SAVEPOINT", "SET", "RESET", "DISCARD",
	"CALL", "DO", "EXECUTE", "PREPARE", "DEALLOCATE",
	"COPY", "VACUUM", "ANALYZE", "CLUSTER", "REINDEX", "REFRESH",
	"LOCK", "LISTEN", "NOTIFY", "UNLISTEN",
	"OUTFILE", "DUMPFILE", "PG_READ_FILE", "PG_SLEEP", "LO_IMPORT", "LO_EXPORT",
	"DBLINK", "PG_TERMINATE_BACKEND", "PG_CANCEL_BACKEND",
}

// CheckSecurity performs the no-DB security phase: keyword scan over the
// comment-stripped statement plus structural limits.
func CheckSecurity(sql string, limits Limits) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return qerror.New(qerror.SecurityViolation,
			"empty statement", "provide a single read-only SELECT statement")
	}
	if limits.MaxLength > 0 && len(sql) > limits.MaxLength {
		return qerror.Newf(qerror.SecurityViolation,
			"shorten the statement or analyze it in parts",
			"statement exceeds maximum length (%d > %d)", len(sql), limits.MaxLength)
	}

	stripped := stripComments(trimmed)
	words := keywords(stripped)

	if len(words) == 0 || (words[0] != "SELECT" && words[0] != "WITH" && words[0] != "(") {
		return qerror.Newf(qerror.SecurityViolation,
			"only read-only SELECT statements are analyzed",
			"statement must begin with SELECT or WITH, got %q", firstWord(words))
	}

	for _, w := range words {
		for _, bad := range forbidden {
			if w == bad {
				return qerror.Newf(qerror.SecurityViolation,
					"remove the offending keyword; only read-only queries are analyzed",
					"statement contains forbidden keyword %s", bad)
			}
		}
	}

	// A semicolon anywhere but the tail means a statement batch.
	if strings.Contains(strings.TrimRight(stripped, "; \t\n\r"), ";") {
		return qerror.New(qerror.SecurityViolation,
			"statement batches are not analyzed",
			"submit a single statement without embedded semicolons")
	}

	if limits.MaxNesting > 0 {
		if depth := maxParenDepth(stripped); depth > limits.MaxNesting {
			return qerror.Newf(qerror.SecurityViolation,
				"flatten the query or raise the nesting limit in settings",
				"subquery nesting too deep (%d > %d)", depth, limits.MaxNesting)
		}
	}

	return nil
}

// Validate runs both phases. The probe is skipped entirely when the
// security phase fails, so a rejected statement never reaches the database.
func Validate(ctx context.Context, prober Prober, sql string, limits Limits) error {
	if err := CheckSecurity(sql, limits); err != nil {
		return err
	}
	if prober == nil {
		return nil
	}
	if err := prober.Probe(ctx, sql); err != nil {
		if _, ok := qerror.KindOf(err); ok {
			return err
		}
		return qerror.Wrap(qerror.SyntaxError, err,
			"database rejected the statement",
			"fix the statement; the engine message above is authoritative")
	}
	return nil
}

// stripComments removes -- and /* */ comments so keywords can't hide in them.
func stripComments(sql string) string {
	var b strings.Builder
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case runes[i] == '\'':
			// Literal content is not keyword territory.
			b.WriteRune(' ')
			i++
			for i < len(runes) && runes[i] != '\'' {
				i++
			}
		default:
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

func keywords(sql string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToUpper(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range sql {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
			continue
		}
		flush()
		if r == '(' {
			words = append(words, "(")
		}
	}
	flush()
	return words
}

func maxParenDepth(sql string) int {
	depth, max := 0, 0
	for _, r := range sql {
		switch r {
		case '(':
			depth++
			if depth > max {
				max = depth
			}
		case ')':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}

func firstWord(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return words[0]
}
