package mysql

import (
	"fmt"
	"strings"
	"unicode"
)

// StatementKind tells how a statement is sent to the server.
type StatementKind string

const (
	// Rows statements are sent with QueryContext and produce a result set.
	Rows = StatementKind("rows")
	// Exec statements are sent with ExecContext and report affected rows.
	Exec = StatementKind("exec")
)

var rowsPrefixes = []string{"select", "show", "describe", "desc", "explain", "with", "values", "table", "call", "("}

// Classify returns the kind of expr. A leading "{{rows}}" or "{{exec}}"
// hint, in any case, forces the kind and is removed from the returned
// statement. Otherwise comments before the first keyword are skipped.
func Classify(expr string) (string, StatementKind) {
	head := strings.TrimLeftFunc(expr, isBlank)
	off := len(expr) - len(head)

	for _, kind := range []StatementKind{Rows, Exec} {
		hint := fmt.Sprintf("{{%s}}", kind)
		if len(head) >= len(hint) && strings.EqualFold(head[:len(hint)], hint) {
			return expr[:off] + expr[off+len(hint):], kind
		}
	}

	head = strings.ToLower(skipComments(head))
	for _, prefix := range rowsPrefixes {
		if strings.HasPrefix(head, prefix) {
			return expr, Rows
		}
	}
	return expr, Exec
}

// skipComments drops leading "/* */", "-- " and "#" comments. An
// unterminated block comment leaves nothing.
func skipComments(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end < 0 {
				return ""
			}
			s = s[end+4:]
		case s == "--" || strings.HasPrefix(s, "--") && isBlank(rune(s[2])), strings.HasPrefix(s, "#"):
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return ""
			}
			s = s[end+1:]
		default:
			return s
		}
		s = strings.TrimLeftFunc(s, isBlank)
	}
}

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r)
}
