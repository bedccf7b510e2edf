// Package plan implements SQLFlow's planner (C5): it turns a parsed
// program plus resolved variables into an acyclic operation DAG, by running
// the four passes spec.md describes in order — conditional flattening,
// variable substitution, identifier validation and lowering, and a cycle
// check with a stable topological sort.
package plan

import (
	"fmt"
	"sort"

	"github.com/giaosudau/sqlflow-sub007/internal/ast"
	"github.com/giaosudau/sqlflow-sub007/internal/cond"
	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
	"github.com/giaosudau/sqlflow-sub007/internal/variables"
)

// Kind is the tag of a plan Operation.
type Kind string

const (
	KindSourceDef Kind = "source_def"
	KindLoad      Kind = "load"
	KindTransform Kind = "transform"
	KindExport    Kind = "export"
)

// Operation is one DAG node. Payload is one of the *Payload types below,
// chosen by Kind.
type Operation struct {
	ID        string
	Kind      Kind
	DependsOn []string
	Payload   any

	order int // source order, for stable topological sort
}

// SourceDefPayload is the lowered form of an ast.SourceDef.
type SourceDefPayload struct {
	Name    string
	TypeTag string
	Params  string
	FromRef string
	Options string
}

// LoadPayload is the lowered form of an ast.LoadStmt.
type LoadPayload struct {
	TargetTable string
	SourceRef   string
	Mode        ast.LoadMode
	MergeKeys   []string
}

// TransformPayload is the lowered form of an ast.SqlStmt. ProducedTable is
// the table name extracted from a CREATE TABLE statement, or "" if the raw
// SQL does not create a table.
type TransformPayload struct {
	SQL           string
	ProducedTable string
}

// ExportPayload is the lowered form of an ast.ExportStmt.
type ExportPayload struct {
	SelectSQL      string
	DestinationURI string
	TypeTag        string
	Options        string
}

// Plan is a compiled, acyclic operation DAG in a valid topological order.
type Plan struct {
	Operations []*Operation
}

// Compile runs all four planner passes and returns the resulting Plan. rv
// is mutated in place as SET statements are bound during flattening —
// callers that need the pre-compile ResolvedVariables for something else
// should clone it first.
func Compile(prog *ast.Program, rv *variables.ResolvedVariables) (*Plan, error) {
	flat, err := flatten(prog.Statements, rv)
	if err != nil {
		return nil, err
	}
	lowered, err := substituteAll(flat, rv)
	if err != nil {
		return nil, err
	}
	ops, err := build(lowered)
	if err != nil {
		return nil, err
	}
	sorted, err := topoSort(ops)
	if err != nil {
		return nil, err
	}
	return &Plan{Operations: sorted}, nil
}

// flatten implements pass 1. It walks stmts in order, selecting exactly one
// branch of each IfBlock (or none) and binding SET values into rv as it
// goes, so that later conditions in the same walk see earlier SET
// assignments. The returned slice contains only SourceDef, LoadStmt,
// SqlStmt and ExportStmt nodes.
func flatten(stmts []ast.Statement, rv *variables.ResolvedVariables) ([]ast.Statement, error) {
	var out []ast.Statement
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.IfBlock:
			body, err := selectBranch(s, rv)
			if err != nil {
				return nil, err
			}
			if body == nil {
				continue
			}
			flattenedBody, err := flatten(body, rv)
			if err != nil {
				return nil, err
			}
			out = append(out, flattenedBody...)
		case *ast.SetStmt:
			val, err := variables.Substitute(s.Expression, variables.RAW, rv)
			if err != nil {
				return nil, err
			}
			rv.BindSet(s.Name, val)
		default:
			out = append(out, stmt)
		}
	}
	return out, nil
}

func selectBranch(block *ast.IfBlock, rv *variables.ResolvedVariables) ([]ast.Statement, error) {
	for _, br := range block.Branches {
		ok, err := cond.Evaluate(br.Condition, rv)
		if err != nil {
			if _, isParse := err.(*cond.ParseError); isParse {
				return nil, fmt.Errorf("%s: %w", block.Position, err)
			}
			return nil, err
		}
		if ok {
			return br.Body, nil
		}
	}
	if block.Else != nil {
		return block.Else, nil
	}
	return nil, nil
}

// substituteAll implements pass 2: every string field is substituted in the
// context §4.2 assigns it. Statements are copied, never mutated in place,
// so the original AST remains inspectable.
func substituteAll(stmts []ast.Statement, rv *variables.ResolvedVariables) ([]ast.Statement, error) {
	out := make([]ast.Statement, 0, len(stmts))
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.SourceDef:
			cp := *s
			var err error
			if cp.Params, err = subIfSet(cp.Params, variables.RAW, rv); err != nil {
				return nil, err
			}
			if cp.Options, err = subIfSet(cp.Options, variables.RAW, rv); err != nil {
				return nil, err
			}
			out = append(out, &cp)
		case *ast.LoadStmt:
			cp := *s
			out = append(out, &cp)
		case *ast.SqlStmt:
			cp := *s
			v, err := variables.Substitute(cp.RawText, variables.SQLLiteral, rv)
			if err != nil {
				return nil, err
			}
			cp.RawText = v
			out = append(out, &cp)
		case *ast.ExportStmt:
			cp := *s
			var err error
			if cp.SelectSQL, err = variables.Substitute(cp.SelectSQL, variables.SQLLiteral, rv); err != nil {
				return nil, err
			}
			if cp.DestinationURI, err = variables.Substitute(cp.DestinationURI, variables.RAW, rv); err != nil {
				return nil, err
			}
			if cp.Options, err = subIfSet(cp.Options, variables.RAW, rv); err != nil {
				return nil, err
			}
			out = append(out, &cp)
		default:
			return nil, fmt.Errorf("plan: unexpected statement type %T after flattening", stmt)
		}
	}
	return out, nil
}

func subIfSet(s string, ctx variables.Context, rv *variables.ResolvedVariables) (string, error) {
	if s == "" {
		return s, nil
	}
	return variables.Substitute(s, ctx, rv)
}

// build implements pass 3: identifier validation and lowering into
// Operations, with dependency inference.
func build(stmts []ast.Statement) ([]*Operation, error) {
	ops := make([]*Operation, 0, len(stmts))
	declaredSources := map[string]bool{}
	producedBy := map[string]string{}

	for i, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.SourceDef:
			if err := sqlsafe.CheckIdentifier(s.Name); err != nil {
				return nil, err
			}
			id := "source:" + s.Name
			declaredSources[s.Name] = true
			ops = append(ops, &Operation{
				ID:   id,
				Kind: KindSourceDef,
				Payload: &SourceDefPayload{
					Name: s.Name, TypeTag: s.TypeTag, Params: s.Params,
					FromRef: s.FromRef, Options: s.Options,
				},
				order: i,
			})

		case *ast.LoadStmt:
			if err := sqlsafe.CheckIdentifier(s.TargetTable); err != nil {
				return nil, err
			}
			if !declaredSources[s.SourceRef] {
				return nil, &UnknownReference{Name: s.SourceRef}
			}
			for _, k := range s.MergeKeys {
				if err := sqlsafe.CheckIdentifier(k); err != nil {
					return nil, err
				}
			}
			id := "load:" + s.TargetTable
			ops = append(ops, &Operation{
				ID:        id,
				Kind:      KindLoad,
				DependsOn: []string{"source:" + s.SourceRef},
				Payload: &LoadPayload{
					TargetTable: s.TargetTable, SourceRef: s.SourceRef,
					Mode: s.Mode, MergeKeys: s.MergeKeys,
				},
				order: i,
			})
			producedBy[s.TargetTable] = id

		case *ast.SqlStmt:
			id := fmt.Sprintf("transform:%d", i)
			produced := extractCreatedTable(s.RawText)
			deps := inferDeps(s.RawText, ops, producedBy)
			op := &Operation{
				ID: id, Kind: KindTransform, DependsOn: deps,
				Payload: &TransformPayload{SQL: s.RawText, ProducedTable: produced},
				order:   i,
			}
			ops = append(ops, op)
			if produced != "" && sqlsafe.ValidateIdentifier(produced) {
				producedBy[produced] = id
			}

		case *ast.ExportStmt:
			id := fmt.Sprintf("export:%d", i)
			deps := inferDeps(s.SelectSQL, ops, producedBy)
			ops = append(ops, &Operation{
				ID: id, Kind: KindExport, DependsOn: deps,
				Payload: &ExportPayload{
					SelectSQL: s.SelectSQL, DestinationURI: s.DestinationURI,
					TypeTag: s.TypeTag, Options: s.Options,
				},
				order: i,
			})

		default:
			return nil, fmt.Errorf("plan: unexpected lowered statement type %T", stmt)
		}
	}
	return ops, nil
}

// inferDeps implements the regex-based dependency inference spec.md calls
// for, falling back to "depend on all prior transform operations" when the
// SQL fragment cannot be trusted enough to lex (Open Question (a)).
func inferDeps(sql string, priorOps []*Operation, producedBy map[string]string) []string {
	refs, ok := extractReferencedTables(sql)
	var deps []string
	if ok {
		seen := map[string]bool{}
		for _, t := range refs {
			if opID, found := producedBy[t]; found && !seen[opID] {
				deps = append(deps, opID)
				seen[opID] = true
			}
		}
	} else {
		for _, prior := range priorOps {
			if prior.Kind == KindTransform {
				deps = append(deps, prior.ID)
			}
		}
	}
	sort.Strings(deps)
	return deps
}

// topoSort implements pass 4: a DFS-based topological sort that visits
// roots in source order and always finishes a node's dependencies before
// appending the node itself, which is what gives ties a stable,
// source-order-derived resolution.
func topoSort(ops []*Operation) ([]*Operation, error) {
	byID := make(map[string]*Operation, len(ops))
	for _, op := range ops {
		byID[op.ID] = op
	}

	const (
		white = iota
		gray
		black
	)
	state := make(map[string]int, len(ops))
	var path []string
	var order []*Operation

	var visit func(op *Operation) error
	visit = func(op *Operation) error {
		switch state[op.ID] {
		case black:
			return nil
		case gray:
			return &PlanCycle{Path: append(append([]string{}, path...), op.ID)}
		}
		state[op.ID] = gray
		path = append(path, op.ID)

		deps := append([]string{}, op.DependsOn...)
		sort.Slice(deps, func(i, j int) bool { return byID[deps[i]].order < byID[deps[j]].order })
		for _, depID := range deps {
			dep, ok := byID[depID]
			if !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		state[op.ID] = black
		path = path[:len(path)-1]
		order = append(order, op)
		return nil
	}

	roots := append([]*Operation{}, ops...)
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].order < roots[j].order })
	for _, op := range roots {
		if err := visit(op); err != nil {
			return nil, err
		}
	}
	return order, nil
}
