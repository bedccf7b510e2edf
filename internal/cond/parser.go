package cond

import (
	"fmt"

	"github.com/giaosudau/sqlflow-sub007/internal/variables"
)

// ParseError reports a syntax error inside a condition expression. Unlike
// internal/parser's ParseError it carries no line/column: cond_expr text is
// a substring the directive parser captured at a known position, and that
// position is attached by the caller (the planner) when it wraps this
// error.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

type parser struct {
	lx  *lexer
	cur tok
}

// Parse parses a complete condition expression.
func Parse(src string) (Expr, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tEOF {
		return nil, &ParseError{fmt.Sprintf("unexpected trailing token %q", p.cur.lexeme)}
	}
	return expr, nil
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return &ParseError{err.Error()}
	}
	p.cur = t
	return nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tOR {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tAND {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.cur.kind == tNOT {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNotExpr{X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	op, ok := cmpOp(p.cur.kind)
	if !ok {
		return left, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func cmpOp(k tokKind) (string, bool) {
	switch k {
	case tEQ:
		return "==", true
	case tNEQ:
		return "!=", true
	case tLT:
		return "<", true
	case tLE:
		return "<=", true
	case tGT:
		return ">", true
	case tGE:
		return ">=", true
	default:
		return "", false
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tLPAREN:
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tRPAREN {
			return nil, &ParseError{fmt.Sprintf("expected ')', found %q", p.cur.lexeme)}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr, nil
	case tSTRING:
		v := p.cur.lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &StringOperand{Value: v}, nil
	case tNUMBER:
		v := p.cur.lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &NumberOperand{Value: v}, nil
	case tBOOL:
		v := p.cur.lexeme == "TRUE"
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &BoolOperand{Value: v}, nil
	case tVARREF:
		raw := p.cur.lexeme
		ref, err := variables.ParseSingleRef(raw)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &VarRefOperand{Name: ref.Name, Default: ref.Default}, nil
	case tIDENT:
		v := p.cur.lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &IdentOperand{Name: v}, nil
	default:
		return nil, &ParseError{fmt.Sprintf("unexpected token %q in condition expression", p.cur.lexeme)}
	}
}
