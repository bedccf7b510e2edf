// Package variables implements SQLFlow's variable parser and substitution
// engine (C2): the single place every other component goes through to find
// "${name}" / "${name|default}" references, resolve them by priority, and
// render them for the context they appear in.
package variables

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

// Source identifies which scope a VariableBinding's value came from.
type Source string

const (
	SourceCLI     Source = "CLI"
	SourceProfile Source = "PROFILE"
	SourceSet     Source = "SET"
	SourceEnv     Source = "ENV"
	SourceDefault Source = "DEFAULT"
)

// Context is one of the four rendering contexts a substitution can occur in.
type Context int

const (
	RAW Context = iota
	SQLLiteral
	CONDITION
	IDENTIFIER
)

func (c Context) String() string {
	switch c {
	case RAW:
		return "RAW"
	case SQLLiteral:
		return "SQL_LITERAL"
	case CONDITION:
		return "CONDITION"
	case IDENTIFIER:
		return "IDENTIFIER"
	default:
		return fmt.Sprintf("Context(%d)", int(c))
	}
}

// UnresolvedVariable is returned when no scope provides a value for a
// reference and it carries no default.
type UnresolvedVariable struct {
	Name string
}

func (e *UnresolvedVariable) Error() string {
	return fmt.Sprintf("unresolved variable %q", e.Name)
}

// QuotedWhitespaceRequired is returned when a "${name|default}" reference's
// default value contains whitespace but is not quoted.
type QuotedWhitespaceRequired struct {
	Raw string
}

func (e *QuotedWhitespaceRequired) Error() string {
	return fmt.Sprintf("default value in %q contains whitespace and must be quoted", e.Raw)
}

// InvalidVariableReference covers malformed references: nested "${...}"
// (unsupported by design) and references with an empty name.
type InvalidVariableReference struct {
	Raw    string
	Reason string
}

func (e *InvalidVariableReference) Error() string {
	return fmt.Sprintf("invalid variable reference %q: %s", e.Raw, e.Reason)
}

// VariableExpr is a parsed "${name}" or "${name|default}" reference.
type VariableExpr struct {
	Raw     string
	Name    string
	Default *string
}

// VariableBinding is a single resolved name/value pair and the scope it
// came from.
type VariableBinding struct {
	Name   string
	Value  string
	Source Source
}

// refPattern is the canonical variable-reference regex every component
// shares, per spec: any component that needs to find references calls
// ParseRefs or Substitute rather than rolling its own pattern.
var refPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// ParseRefs finds every variable reference in s and parses each one,
// without resolving or rendering it. It returns the first parse error
// encountered (references are parsed left to right).
func ParseRefs(s string) ([]VariableExpr, error) {
	locs := refPattern.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return nil, nil
	}
	exprs := make([]VariableExpr, 0, len(locs))
	for _, loc := range locs {
		raw := s[loc[0]:loc[1]]
		inner := s[loc[2]:loc[3]]
		expr, err := parseCapture(raw, inner)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func parseCapture(raw, inner string) (VariableExpr, error) {
	if strings.Contains(inner, "${") {
		return VariableExpr{}, &InvalidVariableReference{raw, "nested variable references are not supported"}
	}
	name, rest, hasDefault := splitUnescapedPipe(inner)
	name = strings.TrimSpace(name)
	if name == "" {
		return VariableExpr{}, &InvalidVariableReference{raw, "empty variable name"}
	}
	expr := VariableExpr{Raw: raw, Name: name}
	if hasDefault {
		def, err := parseDefault(raw, rest)
		if err != nil {
			return VariableExpr{}, err
		}
		expr.Default = &def
	}
	return expr, nil
}

// splitUnescapedPipe splits s on the first unescaped '|'. A '|' preceded by
// a backslash is treated as a literal pipe and does not split.
func splitUnescapedPipe(s string) (name, rest string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '|' {
			i++
			continue
		}
		if s[i] == '|' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func parseDefault(raw, s string) (string, error) {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return unescapePipe(s[1 : len(s)-1]), nil
		}
	}
	if strings.ContainsAny(s, " \t\n\r") {
		return "", &QuotedWhitespaceRequired{raw}
	}
	return unescapePipe(s), nil
}

func unescapePipe(s string) string {
	return strings.ReplaceAll(s, `\|`, "|")
}

// ParseSingleRef parses one raw "${...}" reference (braces included). It is
// used by components, such as the condition evaluator, that tokenise a
// variable reference as a single unit inside a larger grammar rather than
// finding references inside a free-form string template.
func ParseSingleRef(raw string) (VariableExpr, error) {
	if !strings.HasPrefix(raw, "${") || !strings.HasSuffix(raw, "}") {
		return VariableExpr{}, &InvalidVariableReference{Raw: raw, Reason: "not a variable reference"}
	}
	inner := raw[2 : len(raw)-1]
	return parseCapture(raw, inner)
}

// ResolvedVariables is the overlaid CLI/PROFILE/SET/ENV/DEFAULT mapping a
// plan is substituted against. It is built once per compile from the CLI
// and profile scopes, then mutated in place as the planner walks SetStmts
// in source order.
type ResolvedVariables struct {
	values map[string]VariableBinding
}

// Scopes holds the name->value maps for the two scopes supplied up front
// (CLI and PROFILE);
// SET bindings are added afterwards via BindSet, and ENV is consulted
// lazily from the process environment.
type Scopes struct {
	CLI     map[string]string
	Profile map[string]string
}

// NewResolvedVariables overlays CLI and PROFILE scopes, highest priority
// last so CLI wins ties.
func NewResolvedVariables(scopes Scopes) *ResolvedVariables {
	rv := &ResolvedVariables{values: make(map[string]VariableBinding)}
	for name, v := range scopes.Profile {
		rv.values[name] = VariableBinding{Name: name, Value: v, Source: SourceProfile}
	}
	for name, v := range scopes.CLI {
		rv.values[name] = VariableBinding{Name: name, Value: v, Source: SourceCLI}
	}
	return rv
}

// BindSet records a SET assignment. SET sits below CLI and PROFILE in
// priority, so it never overwrites a binding already supplied by either of
// those scopes; it does overwrite a previous SET binding of the same name
// (the planner walks SetStmts in source order, last write wins within the
// SET scope itself).
func (r *ResolvedVariables) BindSet(name, value string) {
	if existing, ok := r.values[name]; ok {
		if existing.Source == SourceCLI || existing.Source == SourceProfile {
			return
		}
	}
	r.values[name] = VariableBinding{Name: name, Value: value, Source: SourceSet}
}

// Lookup resolves name against CLI/PROFILE/SET (in that priority, already
// reflected in r.values) and falls back to the process environment.
func (r *ResolvedVariables) Lookup(name string) (VariableBinding, bool) {
	if b, ok := r.values[name]; ok {
		return b, true
	}
	if v, ok := os.LookupEnv(name); ok {
		return VariableBinding{Name: name, Value: v, Source: SourceEnv}, true
	}
	return VariableBinding{}, false
}

// Substitute renders every variable reference in template for the given
// context, returning the fully-substituted text. It resolves each
// reference via Lookup, falling back to its default (if any), and fails
// with UnresolvedVariable otherwise.
func Substitute(template string, ctx Context, rv *ResolvedVariables) (string, error) {
	locs := refPattern.FindAllStringSubmatchIndex(template, -1)
	if locs == nil {
		return template, nil
	}
	var out strings.Builder
	last := 0
	for _, loc := range locs {
		out.WriteString(template[last:loc[0]])
		raw := template[loc[0]:loc[1]]
		inner := template[loc[2]:loc[3]]
		expr, err := parseCapture(raw, inner)
		if err != nil {
			return "", err
		}
		value, err := resolveValue(expr, rv)
		if err != nil {
			return "", err
		}
		rendered, err := renderValue(value, ctx)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		last = loc[1]
	}
	out.WriteString(template[last:])
	return out.String(), nil
}

func resolveValue(expr VariableExpr, rv *ResolvedVariables) (string, error) {
	if b, ok := rv.Lookup(expr.Name); ok {
		return b.Value, nil
	}
	if expr.Default != nil {
		return *expr.Default, nil
	}
	return "", &UnresolvedVariable{Name: expr.Name}
}

func renderValue(v string, ctx Context) (string, error) {
	switch ctx {
	case RAW:
		return v, nil
	case SQLLiteral:
		return renderSQLLiteral(v), nil
	case CONDITION:
		return quoteSingle(v), nil
	case IDENTIFIER:
		if !sqlsafe.ValidateIdentifier(v) {
			return "", sqlsafe.CheckIdentifier(v)
		}
		return sqlsafe.QuoteIdentifier(v), nil
	default:
		return "", fmt.Errorf("unknown substitution context %v", ctx)
	}
}

// renderSQLLiteral quotes v unless it looks like a bare number, per the
// SQL_LITERAL rendering rule in the variable engine's context table.
func renderSQLLiteral(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil && v != "" {
		return v
	}
	return quoteSingle(v)
}

func quoteSingle(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
