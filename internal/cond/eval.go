package cond

import (
	"fmt"
	"strconv"

	"github.com/giaosudau/sqlflow-sub007/internal/variables"
)

// ConditionTypeError is returned when a comparison's operands cannot be
// compared (a boolean against a non-boolean, or a non-boolean expression
// used where a boolean is required).
type ConditionTypeError struct {
	Message string
}

func (e *ConditionTypeError) Error() string { return e.Message }

// Evaluate parses and evaluates a condition expression's source text
// against rv, returning its truth value. Variable references are resolved
// directly against rv (falling back to their own "|default", if any) —
// SQLFlow's condition evaluator never relies on a prior substitution pass.
func Evaluate(src string, rv *variables.ResolvedVariables) (bool, error) {
	expr, err := Parse(src)
	if err != nil {
		return false, err
	}
	return Eval(expr, rv)
}

// value is the evaluated form of an operand: either a bool, or a string
// (used for both string and numeric comparisons, since numeric comparison
// is attempted first and string comparison is the fallback).
type value struct {
	isBool bool
	b      bool
	s      string
}

// Eval walks expr, short-circuiting AND/OR and propagating errors.
func Eval(expr Expr, rv *variables.ResolvedVariables) (bool, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		switch e.Op {
		case "AND":
			left, err := Eval(e.Left, rv)
			if err != nil {
				return false, err
			}
			if !left {
				return false, nil
			}
			return Eval(e.Right, rv)
		case "OR":
			left, err := Eval(e.Left, rv)
			if err != nil {
				return false, err
			}
			if left {
				return true, nil
			}
			return Eval(e.Right, rv)
		default:
			lv, err := evalOperand(e.Left, rv)
			if err != nil {
				return false, err
			}
			rv2, err := evalOperand(e.Right, rv)
			if err != nil {
				return false, err
			}
			return compare(e.Op, lv, rv2)
		}
	case *UnaryNotExpr:
		v, err := Eval(e.X, rv)
		if err != nil {
			return false, err
		}
		return !v, nil
	default:
		v, err := evalOperand(expr, rv)
		if err != nil {
			return false, err
		}
		if v.isBool {
			return v.b, nil
		}
		return false, &ConditionTypeError{fmt.Sprintf("expected a boolean condition, found %q", v.s)}
	}
}

func evalOperand(e Expr, rv *variables.ResolvedVariables) (value, error) {
	switch o := e.(type) {
	case *VarRefOperand:
		if b, ok := rv.Lookup(o.Name); ok {
			return value{s: b.Value}, nil
		}
		if o.Default != nil {
			return value{s: *o.Default}, nil
		}
		return value{}, &variables.UnresolvedVariable{Name: o.Name}
	case *StringOperand:
		return value{s: o.Value}, nil
	case *NumberOperand:
		return value{s: o.Value}, nil
	case *BoolOperand:
		return value{isBool: true, b: o.Value}, nil
	case *IdentOperand:
		return value{s: o.Name}, nil
	default:
		return value{}, &ConditionTypeError{"expression is not a comparable operand"}
	}
}

// compare implements the comparison semantics C4 mandates: booleans compare
// as booleans (only for ==/!=); otherwise numeric comparison when both
// operands parse as numbers, else lexicographic string comparison.
func compare(op string, l, r value) (bool, error) {
	if l.isBool || r.isBool {
		if !l.isBool || !r.isBool {
			return false, &ConditionTypeError{fmt.Sprintf("cannot compare boolean and non-boolean operands with %q", op)}
		}
		switch op {
		case "==":
			return l.b == r.b, nil
		case "!=":
			return l.b != r.b, nil
		default:
			return false, &ConditionTypeError{fmt.Sprintf("operator %q is not valid for boolean operands", op)}
		}
	}

	if lf, lerr := strconv.ParseFloat(l.s, 64); lerr == nil {
		if rf, rerr := strconv.ParseFloat(r.s, 64); rerr == nil {
			switch op {
			case "==":
				return lf == rf, nil
			case "!=":
				return lf != rf, nil
			case "<":
				return lf < rf, nil
			case "<=":
				return lf <= rf, nil
			case ">":
				return lf > rf, nil
			case ">=":
				return lf >= rf, nil
			}
		}
	}

	switch op {
	case "==":
		return l.s == r.s, nil
	case "!=":
		return l.s != r.s, nil
	case "<":
		return l.s < r.s, nil
	case "<=":
		return l.s <= r.s, nil
	case ">":
		return l.s > r.s, nil
	case ">=":
		return l.s >= r.s, nil
	}
	return false, &ConditionTypeError{fmt.Sprintf("unknown comparison operator %q", op)}
}
