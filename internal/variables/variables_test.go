package variables

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRefsSimple(t *testing.T) {
	exprs, err := ParseRefs("hello ${name} and ${other|fallback}")
	require.NoError(t, err)
	require.Len(t, exprs, 2)
	require.Equal(t, "name", exprs[0].Name)
	require.Nil(t, exprs[0].Default)
	require.Equal(t, "other", exprs[1].Name)
	require.NotNil(t, exprs[1].Default)
	require.Equal(t, "fallback", *exprs[1].Default)
}

func TestParseRefsQuotedDefaultWithWhitespace(t *testing.T) {
	exprs, err := ParseRefs(`${r|"us east"}`)
	require.NoError(t, err)
	require.Equal(t, "us east", *exprs[0].Default)
}

func TestParseRefsUnquotedDefaultWithWhitespaceFails(t *testing.T) {
	_, err := ParseRefs(`${r|us east}`)
	require.Error(t, err)
	var qw *QuotedWhitespaceRequired
	require.ErrorAs(t, err, &qw)
}

func TestParseRefsNestedUnsupported(t *testing.T) {
	_, err := ParseRefs(`${a_${b}}`)
	require.Error(t, err)
	var inv *InvalidVariableReference
	require.ErrorAs(t, err, &inv)
}

func TestParseRefsEmptyName(t *testing.T) {
	_, err := ParseRefs(`${}`)
	require.Error(t, err)
}

func TestParseRefsNoRefs(t *testing.T) {
	exprs, err := ParseRefs("no variables here")
	require.NoError(t, err)
	require.Nil(t, exprs)
}

func TestResolvedVariablesPriorityCLIOverProfile(t *testing.T) {
	rv := NewResolvedVariables(Scopes{
		CLI:     map[string]string{"region": "cli-val"},
		Profile: map[string]string{"region": "profile-val"},
	})
	b, ok := rv.Lookup("region")
	require.True(t, ok)
	require.Equal(t, "cli-val", b.Value)
	require.Equal(t, SourceCLI, b.Source)
}

func TestResolvedVariablesBindSetDoesNotOverrideCLI(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"env": "prod"}})
	rv.BindSet("env", "dev")
	b, ok := rv.Lookup("env")
	require.True(t, ok)
	require.Equal(t, "prod", b.Value)
	require.Equal(t, SourceCLI, b.Source)
}

func TestResolvedVariablesBindSetUsedWhenNoHigherScope(t *testing.T) {
	rv := NewResolvedVariables(Scopes{})
	rv.BindSet("region", "us-west")
	b, ok := rv.Lookup("region")
	require.True(t, ok)
	require.Equal(t, "us-west", b.Value)
	require.Equal(t, SourceSet, b.Source)
}

func TestResolvedVariablesBindSetOverwritesEarlierSet(t *testing.T) {
	rv := NewResolvedVariables(Scopes{})
	rv.BindSet("region", "us-west")
	rv.BindSet("region", "us-east")
	b, _ := rv.Lookup("region")
	require.Equal(t, "us-east", b.Value)
}

func TestResolvedVariablesEnvFallback(t *testing.T) {
	t.Setenv("SQLFLOW_TEST_VAR", "from-env")
	rv := NewResolvedVariables(Scopes{})
	b, ok := rv.Lookup("SQLFLOW_TEST_VAR")
	require.True(t, ok)
	require.Equal(t, "from-env", b.Value)
	require.Equal(t, SourceEnv, b.Source)
}

func TestSubstituteRawContext(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"path": "/tmp/in.csv"}})
	out, err := Substitute("${path}", RAW, rv)
	require.NoError(t, err)
	require.Equal(t, "/tmp/in.csv", out)
}

func TestSubstituteSQLLiteralContextQuotesNonNumeric(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"region": "us-west"}})
	out, err := Substitute("region = ${region}", SQLLiteral, rv)
	require.NoError(t, err)
	require.Equal(t, "region = 'us-west'", out)
}

func TestSubstituteSQLLiteralContextLeavesNumbersBare(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"limit": "42"}})
	out, err := Substitute("LIMIT ${limit}", SQLLiteral, rv)
	require.NoError(t, err)
	require.Equal(t, "LIMIT 42", out)
}

func TestSubstituteSQLLiteralEscapesEmbeddedQuotes(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"name": "o'brien"}})
	out, err := Substitute("${name}", SQLLiteral, rv)
	require.NoError(t, err)
	require.Equal(t, "'o''brien'", out)
}

func TestSubstituteConditionContextAlwaysQuotes(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"env": "42"}})
	out, err := Substitute("${env}", CONDITION, rv)
	require.NoError(t, err)
	require.Equal(t, "'42'", out)
}

func TestSubstituteIdentifierContextValidatesAndQuotes(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"tbl": "orders"}})
	out, err := Substitute("${tbl}", IDENTIFIER, rv)
	require.NoError(t, err)
	require.Equal(t, `"orders"`, out)
}

func TestSubstituteIdentifierContextRejectsInvalid(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"tbl": "1bad; DROP"}})
	_, err := Substitute("${tbl}", IDENTIFIER, rv)
	require.Error(t, err)
}

func TestSubstituteUsesDefaultWhenUnresolved(t *testing.T) {
	rv := NewResolvedVariables(Scopes{})
	out, err := Substitute("${region|us-west}", RAW, rv)
	require.NoError(t, err)
	require.Equal(t, "us-west", out)
}

func TestSubstituteUnresolvedWithoutDefault(t *testing.T) {
	rv := NewResolvedVariables(Scopes{})
	_, err := Substitute("${region}", RAW, rv)
	require.Error(t, err)
	var uv *UnresolvedVariable
	require.ErrorAs(t, err, &uv)
	require.Equal(t, "region", uv.Name)
}

func TestSubstituteMultipleRefsInOneTemplate(t *testing.T) {
	rv := NewResolvedVariables(Scopes{CLI: map[string]string{"a": "1", "b": "2"}})
	out, err := Substitute("${a}-${b}", RAW, rv)
	require.NoError(t, err)
	require.Equal(t, "1-2", out)
}
