// Package sqlsafe validates and quotes SQL identifiers and parameterises
// values, so that no code path in the planner or executor ever builds SQL by
// string-interpolating a connector- or user-supplied name.
package sqlsafe

import (
	"fmt"
	"strings"
)

// MaxIdentifierLength is the longest identifier this package will accept.
const MaxIdentifierLength = 128

// reservedKeywords blocks identifiers that collide with SQLFlow or common SQL
// keywords. It is deliberately small: the grammar keywords plus the handful
// of words that would be actively dangerous to allow as a bare identifier.
var reservedKeywords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TABLE": true,
	"SOURCE": true, "LOAD": true, "EXPORT": true, "SET": true,
	"IF": true, "THEN": true, "ELSE": true, "END": true,
	"MODE": true, "MERGE_KEYS": true, "FROM": true, "TO": true,
	"TYPE": true, "PARAMS": true, "OPTIONS": true, "AND": true,
	"OR": true, "NOT": true, "WHERE": true, "UNION": true,
}

// InvalidIdentifier is returned when an identifier fails validation.
type InvalidIdentifier struct {
	Value  string
	Reason string
}

func (e *InvalidIdentifier) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Value, e.Reason)
}

// ValidateIdentifier reports whether s is safe to embed in generated SQL as a
// bare (unquoted, pre-quoting) identifier: ASCII letters/underscore leading,
// alphanumeric/underscore tail, bounded length, not a reserved keyword, and
// free of quote/semicolon/comment/whitespace characters.
func ValidateIdentifier(s string) bool {
	return checkIdentifier(s) == nil
}

// CheckIdentifier is ValidateIdentifier's verbose counterpart: it returns a
// descriptive *InvalidIdentifier instead of a bool.
func CheckIdentifier(s string) error {
	return checkIdentifier(s)
}

func checkIdentifier(s string) error {
	if s == "" {
		return &InvalidIdentifier{s, "identifier is empty"}
	}
	if len(s) > MaxIdentifierLength {
		return &InvalidIdentifier{s, fmt.Sprintf("identifier longer than %d characters", MaxIdentifierLength)}
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			// always fine
		case r >= '0' && r <= '9':
			if i == 0 {
				return &InvalidIdentifier{s, "identifier must not start with a digit"}
			}
		default:
			return &InvalidIdentifier{s, fmt.Sprintf("identifier contains disallowed character %q", r)}
		}
	}
	if strings.Contains(s, "--") {
		return &InvalidIdentifier{s, "identifier contains a comment sequence"}
	}
	if reservedKeywords[strings.ToUpper(s)] {
		return &InvalidIdentifier{s, "identifier is a reserved keyword"}
	}
	return nil
}

// QuoteIdentifier wraps s in double quotes, doubling any embedded quote
// character. It does not itself validate s; callers must call
// ValidateIdentifier (or CheckIdentifier) first.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteSchemaTable renders a schema-qualified, quoted table reference. schema
// may be empty, in which case only the table is quoted.
func QuoteSchemaTable(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}

// BuildWhereEq returns a parameterised "col <op> ?" fragment and the value to
// bind to its placeholder, so that values are never string-interpolated into
// generated SQL. op must be one of the comparison operators accepted by the
// target engine ("=", "<>", "<", "<=", ">", ">=").
func BuildWhereEq(col string, op string, value any) (string, any, error) {
	if err := checkIdentifier(col); err != nil {
		return "", nil, err
	}
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
	default:
		return "", nil, fmt.Errorf("sqlsafe: unsupported comparison operator %q", op)
	}
	return fmt.Sprintf("%s %s ?", QuoteIdentifier(col), op), value, nil
}
