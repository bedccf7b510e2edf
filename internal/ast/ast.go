// Package ast defines the SQLFlow statement tree produced by internal/parser
// and consumed by internal/plan.
package ast

import "github.com/giaosudau/sqlflow-sub007/internal/token"

// LoadMode is the mutation semantics of a LoadStmt.
type LoadMode string

const (
	ModeReplace LoadMode = "REPLACE"
	ModeAppend  LoadMode = "APPEND"
	ModeUpsert  LoadMode = "UPSERT"
	ModeMerge   LoadMode = "MERGE"
)

// Statement is implemented by every node that can appear directly in a
// program or inside an IfBlock branch.
type Statement interface {
	statementNode()
	Pos() token.Position
}

// SourceDef declares a named connector-backed source, either fully
// parameterised ("TYPE t PARAMS {...}") or referencing a profile connector
// by URI-like shorthand ("FROM "..." OPTIONS {...}").
type SourceDef struct {
	Position token.Position
	Name     string
	TypeTag  string          // set when declared via TYPE
	Params   string          // raw JSON text, set when declared via TYPE
	FromRef  string          // set when declared via FROM
	Options  string          // raw JSON text, optional, set when declared via FROM
}

func (*SourceDef) statementNode()         {}
func (s *SourceDef) Pos() token.Position { return s.Position }

// LoadStmt materialises a source into a target table.
type LoadStmt struct {
	Position     token.Position
	TargetTable  string
	SourceRef    string
	Mode         LoadMode
	MergeKeys    []string
}

func (*LoadStmt) statementNode()         {}
func (s *LoadStmt) Pos() token.Position { return s.Position }

// ExportStmt runs a SELECT and streams its result to a destination.
type ExportStmt struct {
	Position        token.Position
	SelectSQL       string
	DestinationURI  string
	TypeTag         string
	Options         string // raw JSON text, optional
}

func (*ExportStmt) statementNode()         {}
func (s *ExportStmt) Pos() token.Position { return s.Position }

// SetStmt binds a variable to a (possibly variable-bearing) expression
// template, evaluated in source order as the planner walks statements.
type SetStmt struct {
	Position   token.Position
	Name       string
	Expression string
}

func (*SetStmt) statementNode()         {}
func (s *SetStmt) Pos() token.Position { return s.Position }

// SqlStmt is a raw SQL statement, e.g. CREATE TABLE ... AS SELECT ....
type SqlStmt struct {
	Position token.Position
	RawText  string
}

func (*SqlStmt) statementNode()         {}
func (s *SqlStmt) Pos() token.Position { return s.Position }

// Branch is one arm of an IfBlock: a condition expression (unevaluated, as
// source text) plus the statements to run if it is the first true branch.
type Branch struct {
	Condition string
	Body      []Statement
}

// IfBlock is a nestable conditional block. Exactly one branch (or, failing
// that, the Else body) survives planning; see internal/plan.
type IfBlock struct {
	Position token.Position
	Branches []Branch
	Else     []Statement // nil if no ELSE clause
}

func (*IfBlock) statementNode()         {}
func (s *IfBlock) Pos() token.Position { return s.Position }

// Program is a parsed pipeline file: a flat sequence of top-level
// statements, some of which (IfBlock) may themselves contain nested
// statements.
type Program struct {
	Statements []Statement
}
