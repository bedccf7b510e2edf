// Package parser implements SQLFlow's recursive-descent parser: it consumes
// the token stream (and, for opaque SQL text, the raw-capture primitives) of
// internal/lexer and builds the internal/ast tree. The first syntax error
// aborts parsing; there is no error-recovery pass.
package parser

import (
	"fmt"
	"strings"

	"github.com/giaosudau/sqlflow-sub007/internal/ast"
	"github.com/giaosudau/sqlflow-sub007/internal/lexer"
	"github.com/giaosudau/sqlflow-sub007/internal/token"
)

// ParseError reports a syntax error at a specific position.
type ParseError struct {
	Line, Column int
	Message      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser turns a token stream into an *ast.Program.
type Parser struct {
	lx  *lexer.Lexer
	cur token.Token
}

// Parse parses a complete pipeline source file.
func Parse(src string) (*ast.Program, error) {
	p := &Parser{lx: lexer.New(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

func (p *Parser) advance() error {
	t, err := p.lx.NextToken()
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return &ParseError{le.Line, le.Column, le.Message}
		}
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{p.cur.Line, p.cur.Column, fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(kind token.Kind) (token.Token, error) {
	if p.cur.Kind != kind {
		return token.Token{}, p.errorf("expected %s, found %s %q", kind, p.cur.Kind, p.cur.Lexeme)
	}
	t := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return t, nil
}

// expectNoAdvance checks that the current token has the given kind without
// asking the lexer to tokenise whatever follows. It exists for keywords
// that are immediately followed by a JSON object: NextToken has no notion
// of '{', so the caller must scan the JSON object directly off the lexer
// before resuming normal tokenisation.
func (p *Parser) expectNoAdvance(kind token.Kind) (token.Token, error) {
	if p.cur.Kind != kind {
		return token.Token{}, p.errorf("expected %s, found %s %q", kind, p.cur.Kind, p.cur.Lexeme)
	}
	return p.cur, nil
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	var prog ast.Program
	for p.cur.Kind != token.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return &prog, nil
}

// parseStatements parses stmt* until the current token's kind is one of
// stop, or EOF (which is always an implicit stop so callers can report a
// clean "missing END IF" error instead of reading past the file).
func (p *Parser) parseStatements(stop ...token.Kind) ([]ast.Statement, error) {
	var stmts []ast.Statement
	for !p.atStop(stop...) && p.cur.Kind != token.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) atStop(stop ...token.Kind) bool {
	for _, k := range stop {
		if p.cur.Kind == k {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Kind {
	case token.SOURCE:
		s, err := p.parseSourceDef()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil
	case token.LOAD:
		s, err := p.parseLoadStmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil
	case token.EXPORT:
		s, err := p.parseExportStmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil
	case token.SET:
		s, err := p.parseSetStmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil
	case token.IF:
		return p.parseIfBlock()
	default:
		s, err := p.parseSqlStmt()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (p *Parser) parseSourceDef() (*ast.SourceDef, error) {
	pos := p.cur.Pos()
	if _, err := p.expect(token.SOURCE); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	s := &ast.SourceDef{Position: pos, Name: name.Lexeme}

	switch p.cur.Kind {
	case token.TYPE:
		if err := p.advance(); err != nil {
			return nil, err
		}
		typeTag, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		s.TypeTag = typeTag.Lexeme
		if _, err := p.expectNoAdvance(token.PARAMS); err != nil {
			return nil, err
		}
		params, err := p.lx.ScanJSONObject()
		if err != nil {
			return nil, wrapLexErr(err)
		}
		s.Params = params
		if err := p.advance(); err != nil {
			return nil, err
		}
	case token.FROM:
		if err := p.advance(); err != nil {
			return nil, err
		}
		ref, err := p.expect(token.STRING)
		if err != nil {
			return nil, err
		}
		s.FromRef = ref.Lexeme
		if p.cur.Kind == token.OPTIONS {
			opts, err := p.lx.ScanJSONObject()
			if err != nil {
				return nil, wrapLexErr(err)
			}
			s.Options = opts
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	default:
		return nil, p.errorf("expected TYPE or FROM after SOURCE %s, found %s", name.Lexeme, p.cur.Kind)
	}
	return s, nil
}

func (p *Parser) parseLoadStmt() (*ast.LoadStmt, error) {
	pos := p.cur.Pos()
	if _, err := p.expect(token.LOAD); err != nil {
		return nil, err
	}
	target, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.FROM); err != nil {
		return nil, err
	}
	src, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	s := &ast.LoadStmt{Position: pos, TargetTable: target.Lexeme, SourceRef: src.Lexeme, Mode: ast.ModeReplace}

	if p.cur.Kind == token.MODE {
		if err := p.advance(); err != nil {
			return nil, err
		}
		modeTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		mode := ast.LoadMode(strings.ToUpper(modeTok.Lexeme))
		switch mode {
		case ast.ModeReplace, ast.ModeAppend, ast.ModeUpsert, ast.ModeMerge:
			s.Mode = mode
		default:
			return nil, &ParseError{modeTok.Line, modeTok.Column, fmt.Sprintf("unknown load mode %q", modeTok.Lexeme)}
		}
	}
	if p.cur.Kind == token.MERGE_KEYS {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		for {
			key, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			s.MergeKeys = append(s.MergeKeys, key.Lexeme)
			if p.cur.Kind == token.COMMA {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseExportStmt() (*ast.ExportStmt, error) {
	pos := p.cur.Pos()
	// EXPORT is immediately followed by a raw SELECT; expectNoAdvance avoids
	// asking the lexer to tokenise the SELECT's first word (which may start
	// with "${" and would otherwise blow up NextToken's generic scanner).
	if _, err := p.expectNoAdvance(token.EXPORT); err != nil {
		return nil, err
	}
	frag, err := p.lx.CaptureSQLUntil("TO")
	if err != nil {
		return nil, wrapLexErr(err)
	}
	if frag.Lexeme == "" {
		return nil, &ParseError{frag.Line, frag.Column, "EXPORT is missing a SELECT statement"}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	s := &ast.ExportStmt{Position: pos, SelectSQL: frag.Lexeme}

	if _, err := p.expect(token.TO); err != nil {
		return nil, err
	}
	dest, err := p.expect(token.STRING)
	if err != nil {
		return nil, err
	}
	s.DestinationURI = dest.Lexeme

	if _, err := p.expect(token.TYPE); err != nil {
		return nil, err
	}
	typeTag, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	s.TypeTag = typeTag.Lexeme

	if p.cur.Kind == token.OPTIONS {
		opts, err := p.lx.ScanJSONObject()
		if err != nil {
			return nil, wrapLexErr(err)
		}
		s.Options = opts
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseSetStmt() (*ast.SetStmt, error) {
	pos := p.cur.Pos()
	if _, err := p.expect(token.SET); err != nil {
		return nil, err
	}
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	// expectNoAdvance: the expression that follows may start with "${",
	// which NextToken cannot tokenise on its own.
	if _, err := p.expectNoAdvance(token.EQUALS); err != nil {
		return nil, err
	}
	frag, err := p.lx.CaptureSQLUntil()
	if err != nil {
		return nil, wrapLexErr(err)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.SetStmt{Position: pos, Name: name.Lexeme, Expression: unquoteTemplate(frag.Lexeme)}, nil
}

func (p *Parser) parseSqlStmt() (*ast.SqlStmt, error) {
	pos := p.cur.Pos()
	if p.cur.Kind == token.EOF || p.cur.Kind == token.SEMICOLON {
		return nil, p.errorf("expected a statement, found %s %q", p.cur.Kind, p.cur.Lexeme)
	}
	// The leading word was already consumed from the lexer's raw character
	// stream by the NextToken() call that produced p.cur; CaptureSQLUntil
	// only sees what follows, so it must be reattached.
	leading := p.cur.Lexeme
	frag, err := p.lx.CaptureSQLUntil()
	if err != nil {
		return nil, wrapLexErr(err)
	}
	raw := leading
	if frag.Lexeme != "" {
		raw += " " + frag.Lexeme
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.SqlStmt{Position: pos, RawText: raw}, nil
}

func (p *Parser) parseIfBlock() (*ast.IfBlock, error) {
	pos := p.cur.Pos()
	// expectNoAdvance: the condition expression that follows IF may start
	// with "${", which NextToken cannot tokenise on its own.
	if _, err := p.expectNoAdvance(token.IF); err != nil {
		return nil, err
	}
	block := &ast.IfBlock{Position: pos}

	cond, err := p.parseCondExprText()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	body, err := p.parseStatements(token.ELSE_IF, token.ELSE, token.END_IF)
	if err != nil {
		return nil, err
	}
	block.Branches = append(block.Branches, ast.Branch{Condition: cond, Body: body})

	for p.cur.Kind == token.ELSE_IF {
		cond, err := p.parseCondExprText()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.THEN); err != nil {
			return nil, err
		}
		body, err := p.parseStatements(token.ELSE_IF, token.ELSE, token.END_IF)
		if err != nil {
			return nil, err
		}
		block.Branches = append(block.Branches, ast.Branch{Condition: cond, Body: body})
	}

	if p.cur.Kind == token.ELSE {
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseStatements(token.END_IF)
		if err != nil {
			return nil, err
		}
		block.Else = body
	}

	if _, err := p.expect(token.END_IF); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseCondExprText() (string, error) {
	frag, err := p.lx.CaptureSQLUntil("THEN")
	if err != nil {
		return "", wrapLexErr(err)
	}
	if frag.Lexeme == "" {
		return "", &ParseError{frag.Line, frag.Column, "IF is missing a condition expression"}
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	return frag.Lexeme, nil
}

func wrapLexErr(err error) error {
	if le, ok := err.(*lexer.LexError); ok {
		return &ParseError{le.Line, le.Column, le.Message}
	}
	return err
}

// unquoteTemplate strips one layer of matching surrounding quotes from a SET
// expression, so `SET x = 'us-west'` and `SET x = us-west` both yield the
// expression text "us-west" for the variable engine to treat as a template.
func unquoteTemplate(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
