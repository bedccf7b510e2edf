// Package schema implements SQLFlow's load-mode SQL generation and schema
// compatibility checking (C8).
package schema

import (
	"fmt"
	"strings"

	"github.com/giaosudau/sqlflow-sub007/internal/ast"
	"github.com/giaosudau/sqlflow-sub007/internal/sqlsafe"
)

// Column is one column of a Schema: its name and the engine-reported type
// name (e.g. "integer", "bigint", "text", "date", "timestamp").
type Column struct {
	Name string
	Type string
}

// Schema is an ordered list of columns, as reported by a connector's
// describe() call or an engine's table introspection.
type Schema []Column

func (s Schema) column(name string) (Column, bool) {
	for _, c := range s {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

func (s Schema) has(name string) bool {
	_, ok := s.column(name)
	return ok
}

// Promotion is one entry of the type-widening table: a source type widens
// to a target type without error.
type Promotion struct {
	From string
	To   string
}

// DefaultPromotions is the minimum widening table spec.md §4.8 requires.
// It is exposed as data, per Open Question (b), so an engine adapter can
// extend it with its own dialect-specific widenings.
var DefaultPromotions = []Promotion{
	{From: "integer", To: "bigint"},
	{From: "bigint", To: "decimal"},
	{From: "integer", To: "decimal"},
	{From: "date", To: "timestamp"},
}

// SchemaIncompatible is raised when a source column's type cannot widen to
// the corresponding target column's type, before any write occurs (P10).
type SchemaIncompatible struct {
	Column string
	TSrc   string
	TTgt   string
}

func (e *SchemaIncompatible) Error() string {
	return fmt.Sprintf("column %q: source type %q is not compatible with target type %q", e.Column, e.TSrc, e.TTgt)
}

// MissingMergeKey is raised when an UPSERT/MERGE load has no merge keys, or
// a declared merge key is absent from either schema.
type MissingMergeKey struct {
	Key    string
	Reason string
}

func (e *MissingMergeKey) Error() string {
	return fmt.Sprintf("merge key %q: %s", e.Key, e.Reason)
}

// Compatible reports whether tsrc can be written into a column typed ttgt,
// per the widening table (case-insensitive type names). "any -> text" is
// handled as a wildcard: anything widens to text.
func Compatible(tsrc, ttgt string, promotions []Promotion) bool {
	if strings.EqualFold(tsrc, ttgt) {
		return true
	}
	if strings.EqualFold(ttgt, "text") {
		return true
	}
	for _, p := range promotions {
		if strings.EqualFold(p.From, tsrc) && strings.EqualFold(p.To, ttgt) {
			return true
		}
	}
	return false
}

// CheckCompatible verifies every column of src exists in tgt and widens
// compatibly, per (I5): source schema must be a subset of target
// schema with compatible types. It returns the first incompatibility found,
// scanning columns in src's declared order for determinism.
func CheckCompatible(src, tgt Schema, promotions []Promotion) error {
	for _, c := range src {
		tgtCol, ok := tgt.column(c.Name)
		if !ok {
			return &SchemaIncompatible{Column: c.Name, TSrc: c.Type, TTgt: "<missing>"}
		}
		if !Compatible(c.Type, tgtCol.Type, promotions) {
			return &SchemaIncompatible{Column: c.Name, TSrc: c.Type, TTgt: tgtCol.Type}
		}
	}
	return nil
}

// CheckMergeKeys verifies merge_keys is non-empty and every key exists in
// both schemas, per (I5).
func CheckMergeKeys(keys []string, src, tgt Schema) error {
	if len(keys) == 0 {
		return &MissingMergeKey{Key: "", Reason: "MERGE_KEYS must be non-empty for UPSERT/MERGE loads"}
	}
	for _, k := range keys {
		if !src.has(k) {
			return &MissingMergeKey{Key: k, Reason: "not present in source schema"}
		}
		if !tgt.has(k) {
			return &MissingMergeKey{Key: k, Reason: "not present in target schema"}
		}
	}
	return nil
}

// GenerateLoadSQL builds the SQL statement (and, for MERGE/UPSERT, its
// parameter vector) that implements the given load mode. All identifiers
// are routed through sqlsafe; comparison values are never interpolated.
// sourceTable must itself already be a registered table or view name in
// the engine (the executor's responsibility, not this package's).
func GenerateLoadSQL(mode ast.LoadMode, targetTable, sourceTable string, mergeKeys []string, srcSchema, tgtSchema Schema, promotions []Promotion) (string, []any, error) {
	if err := sqlsafe.CheckIdentifier(targetTable); err != nil {
		return "", nil, err
	}
	if err := sqlsafe.CheckIdentifier(sourceTable); err != nil {
		return "", nil, err
	}
	qTarget := sqlsafe.QuoteIdentifier(targetTable)
	qSource := sqlsafe.QuoteIdentifier(sourceTable)

	switch mode {
	case ast.ModeReplace:
		// The embedded engine (sqlite) has no CREATE OR REPLACE TABLE, so
		// REPLACE drops and recreates the target in one statement batch.
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s; CREATE TABLE %s AS SELECT * FROM %s", qTarget, qTarget, qSource)
		return sql, nil, nil

	case ast.ModeAppend:
		if err := CheckCompatible(srcSchema, tgtSchema, promotions); err != nil {
			return "", nil, err
		}
		cols, err := quotedColumnList(srcSchema)
		if err != nil {
			return "", nil, err
		}
		sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", qTarget, cols, cols, qSource)
		return sql, nil, nil

	case ast.ModeUpsert, ast.ModeMerge:
		if err := CheckMergeKeys(mergeKeys, srcSchema, tgtSchema); err != nil {
			return "", nil, err
		}
		if err := CheckCompatible(srcSchema, tgtSchema, promotions); err != nil {
			return "", nil, err
		}
		return generateMergeSQL(qTarget, qSource, mergeKeys, srcSchema)

	default:
		return "", nil, fmt.Errorf("schema: unknown load mode %q", mode)
	}
}

func quotedColumnList(s Schema) (string, error) {
	names := make([]string, 0, len(s))
	for _, c := range s {
		if err := sqlsafe.CheckIdentifier(c.Name); err != nil {
			return "", err
		}
		names = append(names, sqlsafe.QuoteIdentifier(c.Name))
	}
	return strings.Join(names, ", "), nil
}

// generateMergeSQL builds a join-based MERGE: update matching rows, insert
// non-matching ones. The engine adapter executes this as two statements
// inside one transaction rather than relying on dialect-specific MERGE
// syntax, since the embedded engine (sqlite) has no MERGE statement.
func generateMergeSQL(qTarget, qSource string, mergeKeys []string, srcSchema Schema) (string, []any, error) {
	quotedKeys := make([]string, 0, len(mergeKeys))
	joinConds := make([]string, 0, len(mergeKeys))
	for _, k := range mergeKeys {
		if err := sqlsafe.CheckIdentifier(k); err != nil {
			return "", nil, err
		}
		qk := sqlsafe.QuoteIdentifier(k)
		quotedKeys = append(quotedKeys, qk)
		joinConds = append(joinConds, fmt.Sprintf("%s.%s = %s.%s", qTarget, qk, qSource, qk))
	}

	var setClauses []string
	for _, c := range srcSchema {
		if containsFold(mergeKeys, c.Name) {
			continue
		}
		if err := sqlsafe.CheckIdentifier(c.Name); err != nil {
			return "", nil, err
		}
		qc := sqlsafe.QuoteIdentifier(c.Name)
		setClauses = append(setClauses, fmt.Sprintf("%s = %s.%s", qc, qSource, qc))
	}

	cols, err := quotedColumnList(srcSchema)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	if len(setClauses) > 0 {
		fmt.Fprintf(&b, "UPDATE %s SET %s FROM %s WHERE %s; ",
			qTarget, strings.Join(setClauses, ", "), qSource, strings.Join(joinConds, " AND "))
	}
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s)",
		qTarget, cols, cols, qSource, qTarget, strings.Join(joinConds, " AND "))

	return b.String(), nil, nil
}

func containsFold(keys []string, name string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
