package lexer

import (
	"testing"

	"github.com/giaosudau/sqlflow-sub007/internal/token"
	"github.com/stretchr/testify/require"
)

func allTokens(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New(src)
	var toks []token.Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

func TestNextTokenPunctuation(t *testing.T) {
	toks := allTokens(t, `; ( ) , = == != < <= > >=`)
	kinds := []token.Kind{
		token.SEMICOLON, token.LPAREN, token.RPAREN, token.COMMA,
		token.EQUALS, token.EQ, token.NEQ, token.LT, token.LE, token.GT, token.GE,
		token.EOF,
	}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		require.Equalf(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestNextTokenBangWithoutEquals(t *testing.T) {
	l := New("!x")
	_, err := l.NextToken()
	require.Error(t, err)
	var le *LexError
	require.ErrorAs(t, err, &le)
}

func TestNextTokenKeywordsCaseInsensitive(t *testing.T) {
	toks := allTokens(t, "source Load EXPORT set if THEN else mode merge_keys from to type params options and or not")
	want := []token.Kind{
		token.SOURCE, token.LOAD, token.EXPORT, token.SET, token.IF, token.THEN,
		token.ELSE, token.MODE, token.MERGE_KEYS, token.FROM, token.TO, token.TYPE,
		token.PARAMS, token.OPTIONS, token.AND, token.OR, token.NOT, token.EOF,
	}
	require.Len(t, toks, len(want))
	for i, k := range want {
		require.Equalf(t, k, toks[i].Kind, "token %d (%q)", i, toks[i].Lexeme)
	}
}

func TestNextTokenElseIfAndEndIf(t *testing.T) {
	toks := allTokens(t, "ELSE IF END IF")
	require.Equal(t, token.ELSE_IF, toks[0].Kind)
	require.Equal(t, "ELSE IF", toks[0].Lexeme)
	require.Equal(t, token.END_IF, toks[1].Kind)
	require.Equal(t, "END IF", toks[1].Lexeme)
}

func TestNextTokenElseAloneIsNotElseIf(t *testing.T) {
	toks := allTokens(t, "ELSE x")
	require.Equal(t, token.ELSE, toks[0].Kind)
	require.Equal(t, token.IDENT, toks[1].Kind)
	require.Equal(t, "x", toks[1].Lexeme)
}

func TestNextTokenEndAloneIsIdent(t *testing.T) {
	// "END" not followed by "IF" is just an identifier named END; this
	// grammar has no standalone END keyword.
	toks := allTokens(t, "END x")
	require.Equal(t, token.IDENT, toks[0].Kind)
	require.Equal(t, "END", toks[0].Lexeme)
	require.Equal(t, token.IDENT, toks[1].Kind)
}

func TestNextTokenBooleans(t *testing.T) {
	toks := allTokens(t, "TRUE false")
	require.Equal(t, token.BOOL, toks[0].Kind)
	require.Equal(t, token.BOOL, toks[1].Kind)
}

func TestNextTokenNumbers(t *testing.T) {
	l := New("42 3.14 7.")
	var toks []token.Token
	for i := 0; i < 3; i++ {
		tok, err := l.NextToken()
		require.NoError(t, err)
		toks = append(toks, tok)
	}
	require.Equal(t, "42", toks[0].Lexeme)
	require.Equal(t, "3.14", toks[1].Lexeme)
	// "7." has no digit after the dot, so the dot is not consumed as part
	// of the number; it is left for the next NextToken call to reject.
	require.Equal(t, "7", toks[2].Lexeme)
	_, err := l.NextToken()
	require.Error(t, err)
}

func TestNextTokenStrings(t *testing.T) {
	toks := allTokens(t, `'us-west' "out.csv" 'it''s' "a""b"`)
	require.Equal(t, "us-west", toks[0].Lexeme)
	require.Equal(t, "out.csv", toks[1].Lexeme)
	require.Equal(t, "it's", toks[2].Lexeme)
	require.Equal(t, `a"b`, toks[3].Lexeme)
}

func TestNextTokenUnterminatedString(t *testing.T) {
	l := New(`'unterminated`)
	_, err := l.NextToken()
	require.Error(t, err)
}

func TestNextTokenLineComment(t *testing.T) {
	toks := allTokens(t, "-- this is a comment\nLOAD")
	require.Equal(t, token.LOAD, toks[0].Kind)
}

func TestNextTokenUnexpectedCharacter(t *testing.T) {
	l := New(`#`)
	_, err := l.NextToken()
	require.Error(t, err)
	var le *LexError
	require.ErrorAs(t, err, &le)
}

func TestNextTokenPositionsTrackLines(t *testing.T) {
	toks := allTokens(t, "LOAD\nt")
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[1].Line)
}

func TestScanJSONObjectSimple(t *testing.T) {
	l := New(`{"path":"in.csv","has_header":true}`)
	js, err := l.ScanJSONObject()
	require.NoError(t, err)
	require.Equal(t, `{"path":"in.csv","has_header":true}`, js)
	require.True(t, l.AtEOF())
}

func TestScanJSONObjectNested(t *testing.T) {
	l := New(`{"a":{"b":1},"c":[1,2,"}"]}`)
	js, err := l.ScanJSONObject()
	require.NoError(t, err)
	require.Equal(t, `{"a":{"b":1},"c":[1,2,"}"]}`, js)
}

func TestScanJSONObjectBraceInsideStringIgnored(t *testing.T) {
	l := New(`{"note":"a } b \" c"} TYPE`)
	js, err := l.ScanJSONObject()
	require.NoError(t, err)
	require.Equal(t, `{"note":"a } b \" c"}`, js)
	tok, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.TYPE, tok.Kind)
}

func TestScanJSONObjectRequiresOpenBrace(t *testing.T) {
	l := New(`not-json`)
	_, err := l.ScanJSONObject()
	require.Error(t, err)
}

func TestScanJSONObjectUnterminated(t *testing.T) {
	l := New(`{"a":1`)
	_, err := l.ScanJSONObject()
	require.Error(t, err)
}

func TestCaptureSQLUntilStopWord(t *testing.T) {
	l := New(`SELECT * FROM u TO`)
	frag, err := l.CaptureSQLUntil("TO")
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM u", frag.Lexeme)
	tok, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.TO, tok.Kind)
}

func TestCaptureSQLUntilStopsAtSemicolon(t *testing.T) {
	l := New(`CREATE TABLE u AS SELECT 1;`)
	frag, err := l.CaptureSQLUntil()
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE u AS SELECT 1", frag.Lexeme)
	tok, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.SEMICOLON, tok.Kind)
}

func TestCaptureSQLUntilIgnoresStopWordInsideParens(t *testing.T) {
	l := New(`SELECT * FROM (SELECT 1 TO) TO`)
	frag, err := l.CaptureSQLUntil("TO")
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM (SELECT 1 TO)", frag.Lexeme)
	tok, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.TO, tok.Kind)
}

func TestCaptureSQLUntilIgnoresStopWordInsideQuotes(t *testing.T) {
	l := New(`SELECT 'TO' AS x TO`)
	frag, err := l.CaptureSQLUntil("TO")
	require.NoError(t, err)
	require.Equal(t, `SELECT 'TO' AS x`, frag.Lexeme)
}

func TestCaptureSQLUntilPassesThroughVariableRef(t *testing.T) {
	// "${" is not special to the lexer's generic NextToken path, but
	// CaptureSQLUntil must still pass it through verbatim: this is what
	// lets EXPORT/SET/IF bodies start with a variable reference.
	l := New(`${env}=='prod' THEN`)
	frag, err := l.CaptureSQLUntil("THEN")
	require.NoError(t, err)
	require.Equal(t, `${env}=='prod'`, frag.Lexeme)
}

func TestCaptureSQLUntilStopWordCaseInsensitive(t *testing.T) {
	l := New(`SELECT 1 to "x"`)
	frag, err := l.CaptureSQLUntil("TO")
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", frag.Lexeme)
}

func TestCaptureSQLUntilEmptyFragment(t *testing.T) {
	l := New(`TO`)
	frag, err := l.CaptureSQLUntil("TO")
	require.NoError(t, err)
	require.Equal(t, "", frag.Lexeme)
}

func TestCaptureSQLUntilSkipsLeadingCommentsForPosition(t *testing.T) {
	l := New("-- note\nSELECT 1")
	frag, err := l.CaptureSQLUntil()
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", frag.Lexeme)
	require.Equal(t, 2, frag.Line)
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	l := New("LOAD t")
	mark := l.Save()
	tok1, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.LOAD, tok1.Kind)
	l.Restore(mark)
	tok2, err := l.NextToken()
	require.NoError(t, err)
	require.Equal(t, token.LOAD, tok2.Kind)
}

func TestAtEOF(t *testing.T) {
	l := New("   \n-- trailing comment\n  ")
	require.True(t, l.AtEOF())

	l2 := New("x")
	require.False(t, l2.AtEOF())
}
