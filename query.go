package doctable

import (
	"context"
	"errors"
	"strings"
)

// RelationName is the name under which the current table is visible to
// queries.
const RelationName = "data"

// QueryEngine runs a single SQL statement against t, exposed as a relation
// named relation, and returns the rows it produces with columns in query
// order. Execute only ever passes serialized tables.
type QueryEngine interface {
	Query(ctx context.Context, relation string, t *Table, sql string) (*Table, error)
}

var readKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
}

// Execute runs a read-only statement against the serialized form of t. Write
// statements and multiple statements are rejected before reaching the
// engine. Failures are reported as *QueryError.
func Execute(ctx context.Context, engine QueryEngine, t *Table, sql string) (*Table, error) {
	if err := CheckReadOnly(sql); err != nil {
		return nil, err
	}
	result, err := engine.Query(ctx, RelationName, t.Serialized(), sql)
	if err != nil {
		var qerr *QueryError
		if errors.As(err, &qerr) {
			return nil, err
		}
		return nil, queryErrf(sql, err, "")
	}
	if result == nil {
		result = &Table{}
	}
	return result, nil
}

// CheckReadOnly verifies that sql is a single statement that produces rows.
func CheckReadOnly(sql string) error {
	rest := skipSpaceAndComments(sql)
	if rest == "" {
		return queryErrf(sql, nil, "empty query")
	}
	if rest[0] != '(' {
		kw := leadingKeyword(rest)
		if !readKeywords[strings.ToUpper(kw)] {
			if kw == "" {
				return queryErrf(sql, nil, "unexpected %q at the start of the query", rest[:1])
			}
			return queryErrf(sql, nil, "only read-only queries are supported, got %s", strings.ToUpper(kw))
		}
	}
	if end := statementEnd(rest); end < len(rest) {
		tail := rest[end+1:]
		for {
			tail = skipSpaceAndComments(tail)
			if !strings.HasPrefix(tail, ";") {
				break
			}
			tail = tail[1:]
		}
		if tail != "" {
			return queryErrf(sql, nil, "multiple statements are not supported")
		}
	}
	return nil
}

func leadingKeyword(s string) string {
	i := 0
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return s[:i]
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// skipSpaceAndComments strips leading whitespace, -- and # line comments and
// /* */ block comments.
func skipSpaceAndComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n\f\v")
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
			} else {
				return ""
			}
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s[2:], "*/"); i >= 0 {
				s = s[i+4:]
			} else {
				return ""
			}
		default:
			return s
		}
	}
}

// statementEnd returns the index of the first semicolon outside quotes and
// comments, or len(s).
func statementEnd(s string) int {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ';':
			return i
		case '\'', '"', '`':
			for i++; i < len(s); i++ {
				if s[i] == '\\' && c != '`' {
					i++
				} else if s[i] == c {
					break
				}
			}
		case '-':
			if strings.HasPrefix(s[i:], "--") {
				i = lineEnd(s, i)
			}
		case '#':
			i = lineEnd(s, i)
		case '/':
			if strings.HasPrefix(s[i:], "/*") {
				if j := strings.Index(s[i+2:], "*/"); j >= 0 {
					i += j + 3
				} else {
					return len(s)
				}
			}
		}
	}
	return len(s)
}

func lineEnd(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(s)
}
